// Package app wires configuration into a ready ingestion service.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"recipebox/internal/config"
	"recipebox/internal/extract"
	"recipebox/internal/ingest"
	"recipebox/internal/metrics"
	"recipebox/internal/platform/fetch"
	"recipebox/internal/platform/gemini"
	"recipebox/internal/platform/localllm"
	"recipebox/internal/recipe"
)

// App holds the long-lived collaborators shared by every request.
type App struct {
	Service *ingest.Service
	Store   recipe.Store

	closers []func() error
}

// Close releases the model and store connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// New builds the service described by cfg. reg may be nil to skip metrics.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{}

	caller, err := a.newCaller(ctx, cfg)
	if err != nil {
		return nil, err
	}
	extractor, err := extract.NewExtractor(caller, logger, extract.WithMaxInputChars(cfg.MaxInputChars))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("error creating extractor: %w", err)
	}

	store, err := a.newStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = store

	var m *metrics.Ingest
	if reg != nil {
		m = metrics.NewIngest(reg)
	}

	fetcher := fetch.NewFetcher(cfg.FetchTimeout.Duration, cfg.MaxFetchBytes)
	a.Service = ingest.NewService(fetcher, extractor, store, logger, m)
	return a, nil
}

func (a *App) newCaller(ctx context.Context, cfg *config.Config) (extract.FunctionCaller, error) {
	switch cfg.Extractor {
	case config.ExtractorLocalLLM:
		return localllm.NewClient(localllm.Config{
			BaseURL: cfg.LocalLLMURL,
			APIKey:  cfg.LocalLLMKey,
			Model:   cfg.LocalLLMModel,
			Timeout: cfg.RequestTimeout.Duration,
		}), nil
	default:
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("error creating gemini client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	}
}

func (a *App) newStore(ctx context.Context, cfg *config.Config) (recipe.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		s, err := recipe.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("error creating postgres store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StoreRedis:
		s, err := recipe.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("error creating redis store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return recipe.NewMemoryStore(), nil
	}
}

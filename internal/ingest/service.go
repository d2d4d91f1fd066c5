// Package ingest turns caller requests into canonical, persisted recipes.
package ingest

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"recipebox/internal/metrics"
	"recipebox/internal/recipe"
	"recipebox/internal/sanitize"
)

// Fetcher retrieves remote pages and images.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Extractor produces structured recipe data from page content or a photo.
type Extractor interface {
	FromHTML(ctx context.Context, cleanedHTML string) (*recipe.ExtractionResult, error)
	FromImage(ctx context.Context, image []byte) (*recipe.ExtractionResult, error)
}

// Service is the ingestion orchestrator. It holds no per-request state and is
// safe for concurrent use as long as its collaborators are.
type Service struct {
	fetcher   Fetcher
	extractor Extractor
	store     recipe.Store
	log       zerolog.Logger
	metrics   *metrics.Ingest
}

// NewService creates a new Service. m may be nil.
func NewService(fetcher Fetcher, extractor Extractor, store recipe.Store, logger zerolog.Logger, m *metrics.Ingest) *Service {
	return &Service{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		log:       logger.With().Str("component", "ingest").Logger(),
		metrics:   m,
	}
}

// Ingest builds a recipe from req and persists it. Nothing is written unless
// every required step, normalization included, succeeded.
func (s *Service) Ingest(ctx context.Context, req Request) (*recipe.Recipe, error) {
	strategy := SelectStrategy(req)
	start := time.Now()

	r, err := s.ingest(ctx, strategy, req)
	s.metrics.Observe(strategy.String(), err, time.Since(start))

	log := s.log.With().Str("strategy", strategy.String()).Dur("elapsed", time.Since(start)).Logger()
	if err != nil {
		log.Warn().Err(err).Msg("ingest.failed")
		return nil, err
	}
	log.Info().Str("id", r.ID).Str("title", r.Title).Msg("ingest.ok")
	return r, nil
}

// Preview runs the selected strategy and normalization without persisting.
func (s *Service) Preview(ctx context.Context, req Request) (*recipe.Recipe, error) {
	fields, err := s.resolve(ctx, SelectStrategy(req), req)
	if err != nil {
		return nil, err
	}
	return recipe.Normalize(fields)
}

func (s *Service) ingest(ctx context.Context, strategy Strategy, req Request) (*recipe.Recipe, error) {
	fields, err := s.resolve(ctx, strategy, req)
	if err != nil {
		return nil, err
	}
	r, err := recipe.Normalize(fields)
	if err != nil {
		return nil, err
	}
	return s.store.Create(ctx, r)
}

func (s *Service) resolve(ctx context.Context, strategy Strategy, req Request) (recipe.Fields, error) {
	switch strategy {
	case StrategySource:
		return s.fromSource(ctx, req.Source)
	case StrategyImage:
		return s.fromImage(ctx, req)
	case StrategyManual:
		return manualFields(req), nil
	default:
		return recipe.Fields{}, recipe.InvalidRequest("request needs a source, an image or a title")
	}
}

func (s *Service) fromSource(ctx context.Context, source string) (recipe.Fields, error) {
	page, err := s.fetcher.FetchPage(ctx, source)
	if err != nil {
		return recipe.Fields{}, err
	}
	res, err := s.extractor.FromHTML(ctx, sanitize.Sanitize(page))
	if err != nil {
		return recipe.Fields{}, err
	}

	fields := recipe.FieldsFromExtraction(res)
	fields.Source = source
	if res.ImageURL == "" {
		return fields, nil
	}

	imageURL := resolveURL(source, res.ImageURL)
	img, err := s.fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		// The image is enrichment; carry on without it.
		s.metrics.ImageFetchFailed()
		s.log.Warn().Err(err).Str("image_url", imageURL).Msg("ingest.image_fetch_failed")
		return fields, nil
	}
	if !recipe.IsImage(img) {
		s.metrics.ImageFetchFailed()
		s.log.Warn().Str("image_url", imageURL).Int("bytes", len(img)).Msg("ingest.image_rejected")
		return fields, nil
	}
	fields.Image = img
	return fields, nil
}

func (s *Service) fromImage(ctx context.Context, req Request) (recipe.Fields, error) {
	res, err := s.extractor.FromImage(ctx, req.Image)
	if err != nil {
		return recipe.Fields{}, err
	}
	return recipe.Fields{
		Title:       res.Title,
		Source:      req.Source,
		Ingredients: res.Ingredients,
		MethodSteps: res.MethodSteps,
		Tags:        req.Tags,
		Image:       req.Image,
	}, nil
}

func manualFields(req Request) recipe.Fields {
	return recipe.Fields{
		Title:       req.Title,
		Source:      req.Source,
		Ingredients: req.Ingredients,
		MethodSteps: req.MethodSteps,
		Tags:        req.Tags,
		Image:       req.Image,
	}
}

// resolveURL makes a possibly relative image URL absolute against the page URL.
func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// Update replaces an existing recipe with caller-supplied fields. No scraping
// or extraction happens; an update without an image keeps the stored one.
func (s *Service) Update(ctx context.Context, id string, req Request) (*recipe.Recipe, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := recipe.Normalize(manualFields(req))
	if err != nil {
		return nil, err
	}
	if len(r.Image) == 0 {
		r.Image = existing.Image
	}
	return s.store.Update(ctx, id, r)
}

// Get returns one recipe.
func (s *Service) Get(ctx context.Context, id string) (*recipe.Recipe, error) {
	return s.store.Get(ctx, id)
}

// List returns every stored recipe.
func (s *Service) List(ctx context.Context) ([]*recipe.Recipe, error) {
	return s.store.List(ctx)
}

// Delete removes a recipe.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"recipebox/internal/app"
	"recipebox/internal/config"
	"recipebox/internal/ingest"
	"recipebox/internal/recipe"
)

type ingestOptions struct {
	configPath string
	source     string
	imagePath  string
	title      string
	persist    bool
	verbose    bool
}

// ingester is the part of the service the ingest command drives.
type ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*recipe.Recipe, error)
	Preview(ctx context.Context, req ingest.Request) (*recipe.Recipe, error)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recipectl",
		Short:         "Ingest recipes from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newIngestCmd(nil))
	return root
}

// newIngestCmd builds the ingest command. A nil svc means the service is
// built from the loaded config when the command runs.
func newIngestCmd(svc ingester) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract a recipe from a URL or an image and print it as JSON",
		Example: `  recipectl ingest --source https://example.com/soup
  recipectl ingest --image ./card.jpg --title "Grandma's stew" --persist`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s := svc
			if s == nil {
				a, err := opts.build(ctx, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()
				s = a.Service
			}

			var r *recipe.Recipe
			if opts.persist {
				r, err = s.Ingest(ctx, req)
			} else {
				r, err = s.Preview(ctx, req)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "config.json", "path to the JSON config file")
	f.StringVar(&opts.source, "source", "", "recipe page URL")
	f.StringVar(&opts.imagePath, "image", "", "path to a recipe photo")
	f.StringVar(&opts.title, "title", "", "title for an image recipe (not allowed with --source)")
	f.BoolVar(&opts.persist, "persist", false, "save the recipe to the configured store")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline events to stderr")
	cmd.MarkFlagsMutuallyExclusive("source", "image")
	cmd.MarkFlagsMutuallyExclusive("source", "title")
	cmd.MarkFlagsOneRequired("source", "image")
	return cmd
}

func (o *ingestOptions) request() (ingest.Request, error) {
	req := ingest.Request{Source: o.source, Title: o.title}
	if o.imagePath != "" {
		img, err := os.ReadFile(o.imagePath)
		if err != nil {
			return ingest.Request{}, fmt.Errorf("read image: %w", err)
		}
		req.Image = img
	}
	return req, nil
}

func (o *ingestOptions) build(ctx context.Context, stderr io.Writer) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if !o.persist {
		cfg.Store = config.StoreMemory
	}

	level := zerolog.WarnLevel
	if o.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()

	return app.New(ctx, cfg, logger, nil)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

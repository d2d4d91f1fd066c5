package ingest

import "recipebox/internal/recipe"

// Request is everything a caller may supply. Nil slices mean the field was not
// sent; empty non-nil slices mean it was sent empty.
type Request struct {
	Source      string
	Image       []byte
	Title       string
	Ingredients []recipe.Ingredient
	MethodSteps []string
	Tags        []string
}

// Strategy is how a request gets turned into a recipe.
type Strategy int

const (
	// StrategyNone means the request cannot be ingested.
	StrategyNone Strategy = iota
	// StrategySource scrapes Source and extracts from the page.
	StrategySource
	// StrategyImage extracts from the uploaded photo.
	StrategyImage
	// StrategyManual passes the caller's fields through.
	StrategyManual
)

func (s Strategy) String() string {
	switch s {
	case StrategySource:
		return "source"
	case StrategyImage:
		return "image"
	case StrategyManual:
		return "manual"
	default:
		return "none"
	}
}

// SelectStrategy picks exactly one strategy, in priority order. A present
// title suppresses scraping even when a source is set, and a missing
// ingredient or step list triggers image extraction whenever an image exists.
func SelectStrategy(req Request) Strategy {
	switch {
	case req.Source != "" && req.Title == "":
		return StrategySource
	case len(req.Image) > 0 && (req.Ingredients == nil || req.MethodSteps == nil):
		return StrategyImage
	case req.Source != "" || len(req.Image) > 0 || req.Title != "":
		return StrategyManual
	default:
		return StrategyNone
	}
}

// Package extract turns sanitized recipe pages and recipe photos into
// structured recipe data by forcing a language model through a fixed
// function-call schema.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"recipebox/internal/recipe"
)

// DefaultMaxInputChars bounds the sanitized HTML sent to the model.
const DefaultMaxInputChars = 100_000

const (
	htmlSystemPrompt = "You are a helpful assistant that extracts recipe information from HTML content and generates relevant tags. " +
		"Try to be as accurate as possible. Ingredients should be parsed separately into name and amount."
	imagePrompt = "Extract the recipe title, ingredients and method steps from this image."
)

// Extractor validates and normalizes model function-call output.
type Extractor struct {
	caller        FunctionCaller
	log           zerolog.Logger
	schema        *jsonschema.Schema
	maxInputChars int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxInputChars overrides DefaultMaxInputChars.
func WithMaxInputChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxInputChars = n
		}
	}
}

// NewExtractor creates a new Extractor on top of a model backend.
func NewExtractor(caller FunctionCaller, logger zerolog.Logger, opts ...Option) (*Extractor, error) {
	schema, err := compilePayloadSchema()
	if err != nil {
		return nil, err
	}
	e := &Extractor{
		caller:        caller,
		log:           logger.With().Str("component", "extractor").Logger(),
		schema:        schema,
		maxInputChars: DefaultMaxInputChars,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// FromHTML extracts a recipe from sanitized page content.
func (e *Extractor) FromHTML(ctx context.Context, cleanedHTML string) (*recipe.ExtractionResult, error) {
	content := strings.TrimSpace(cleanedHTML)
	if content == "" {
		return nil, recipe.ExtractionFailed("page has no extractable content", nil)
	}
	content = truncate(content, e.maxInputChars)

	return e.extract(ctx, FunctionRequest{
		System: htmlSystemPrompt,
		Prompt: "Extract the recipe information from the following HTML content. " +
			"Generate up to 5 relevant tags for this recipe based on its ingredients, method, and overall theme.\n\n" +
			"HTML content:\n" + content,
		Function: htmlFunction(),
	})
}

// FromImage extracts a recipe from a photo. Image results carry no image URL
// and usually no tags.
func (e *Extractor) FromImage(ctx context.Context, image []byte) (*recipe.ExtractionResult, error) {
	if len(image) == 0 {
		return nil, recipe.ExtractionFailed("image is empty", nil)
	}
	return e.extract(ctx, FunctionRequest{
		Prompt:    imagePrompt,
		Image:     image,
		ImageMIME: http.DetectContentType(image),
		Function:  imageFunction(),
	})
}

func (e *Extractor) extract(ctx context.Context, req FunctionRequest) (*recipe.ExtractionResult, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := e.log.With().Str("req_id", rid).Str("function", req.Function.Name).Logger()

	log.Info().
		Int("prompt_len", len(req.Prompt)).
		Int("image_bytes", len(req.Image)).
		Msg("extract.start")

	fail := func(msg string, err error) error {
		log.Error().Err(err).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("extract.failed: " + msg)
		return recipe.ExtractionFailed(msg, err)
	}

	raw, err := e.caller.CallFunction(ctx, req)
	if err != nil {
		if errors.Is(err, ErrNoFunctionCall) {
			return nil, fail("model declined structured output", err)
		}
		return nil, fail("model call failed", err)
	}

	var payload any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fail("function arguments are not valid JSON", err)
	}
	if err := e.schema.Validate(payload); err != nil {
		return nil, fail("function arguments do not match schema", err)
	}

	res := coerce(payload.(map[string]any))
	if strings.TrimSpace(res.Title) == "" {
		return nil, fail("function arguments have a blank title", nil)
	}
	log.Info().
		Str("title", res.Title).
		Int("ingredients", len(res.Ingredients)).
		Int("steps", len(res.MethodSteps)).
		Int("tags", len(res.Tags)).
		Bool("has_image_url", res.ImageURL != "").
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("extract.ok")
	return res, nil
}

// coerce folds a schema-valid payload into an ExtractionResult. Required fields
// are already guaranteed; optional ones default to empty when malformed.
func coerce(m map[string]any) *recipe.ExtractionResult {
	res := &recipe.ExtractionResult{
		Title:       m["title"].(string),
		MethodSteps: stringList(m["methodSteps"]),
		Tags:        stringList(m["tags"]),
	}
	if len(res.Tags) > maxTags {
		res.Tags = res.Tags[:maxTags]
	}
	if u, ok := m["imageUrl"].(string); ok {
		res.ImageURL = strings.TrimSpace(u)
	}

	items, _ := m["ingredients"].([]any)
	res.Ingredients = make([]recipe.Ingredient, 0, len(items))
	for _, it := range items {
		obj := it.(map[string]any)
		res.Ingredients = append(res.Ingredients, recipe.Ingredient{
			Name:   obj["name"].(string),
			Amount: text(obj["amount"]),
		})
	}
	return res
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back off to a rune boundary; stray invalid bytes earlier in s are kept.
	cut := limit
	for cut > 0 && limit-cut < utf8.UTFMax-1 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if !utf8.RuneStart(s[cut]) {
		cut = limit
	}
	return s[:cut]
}

package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipebox/internal/recipe"
)

// mockCaller records the last request and replays a canned answer.
type mockCaller struct {
	args  string
	err   error
	calls int
	last  FunctionRequest
}

func (m *mockCaller) CallFunction(ctx context.Context, req FunctionRequest) (json.RawMessage, error) {
	m.calls++
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(m.args), nil
}

func newTestExtractor(t *testing.T, caller FunctionCaller, opts ...Option) *Extractor {
	t.Helper()
	e, err := NewExtractor(caller, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return e
}

func TestFromHTML(t *testing.T) {
	caller := &mockCaller{args: `{
		"title": "Soup",
		"ingredients": [{"name": "water", "amount": "1 l"}, {"name": "salt", "amount": 2}],
		"methodSteps": ["Boil", 3, "Serve"],
		"imageUrl": " https://example.com/soup.jpg ",
		"tags": ["a", "b", "c", "d", "e", "f", "g"]
	}`}
	e := newTestExtractor(t, caller)

	res, err := e.FromHTML(context.Background(), "<h1>Soup</h1>")
	require.NoError(t, err)

	assert.Equal(t, "Soup", res.Title)
	assert.Equal(t, []recipe.Ingredient{{Name: "water", Amount: "1 l"}, {Name: "salt", Amount: "2"}}, res.Ingredients)
	assert.Equal(t, []string{"Boil", "Serve"}, res.MethodSteps)
	assert.Equal(t, "https://example.com/soup.jpg", res.ImageURL)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, res.Tags)

	assert.Equal(t, htmlFunctionName, caller.last.Function.Name)
	assert.Contains(t, caller.last.Prompt, "<h1>Soup</h1>")
	assert.NotEmpty(t, caller.last.System)
}

func TestFromHTML_OptionalFieldsDefaultEmpty(t *testing.T) {
	caller := &mockCaller{args: `{"title":"Toast","ingredients":[{"name":"bread"}],"methodSteps":"toast it","tags":"breakfast"}`}
	e := newTestExtractor(t, caller)

	res, err := e.FromHTML(context.Background(), "<p>toast</p>")
	require.NoError(t, err)
	assert.Equal(t, []string{}, res.MethodSteps)
	assert.Equal(t, []string{}, res.Tags)
	assert.Empty(t, res.ImageURL)
	assert.Equal(t, "", res.Ingredients[0].Amount)
}

func TestFromHTML_Failures(t *testing.T) {
	tests := []struct {
		name   string
		caller *mockCaller
	}{
		{"no function call", &mockCaller{err: ErrNoFunctionCall}},
		{"transport error", &mockCaller{err: errors.New("connection reset")}},
		{"invalid json", &mockCaller{args: `{"title": "Soup",`}},
		{"missing title", &mockCaller{args: `{"ingredients":[{"name":"water"}],"methodSteps":[]}`}},
		{"empty title", &mockCaller{args: `{"title":"","ingredients":[{"name":"water"}],"methodSteps":[]}`}},
		{"blank title", &mockCaller{args: `{"title":"   ","ingredients":[{"name":"water"}],"methodSteps":[]}`}},
		{"missing ingredients", &mockCaller{args: `{"title":"Soup","methodSteps":[]}`}},
		{"missing steps", &mockCaller{args: `{"title":"Soup","ingredients":[]}`}},
		{"ingredient without name", &mockCaller{args: `{"title":"Soup","ingredients":[{"amount":"1"}],"methodSteps":[]}`}},
		{"not an object", &mockCaller{args: `["Soup"]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(t, tt.caller)
			res, err := e.FromHTML(context.Background(), "<p>page</p>")
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, recipe.ErrExtractionFailed), "got %v", err)
		})
	}
}

func TestFromHTML_EmptyContentSkipsModel(t *testing.T) {
	caller := &mockCaller{}
	e := newTestExtractor(t, caller)

	_, err := e.FromHTML(context.Background(), "  ")
	assert.True(t, errors.Is(err, recipe.ErrExtractionFailed))
	assert.Equal(t, 0, caller.calls)
}

func TestFromHTML_TruncatesInput(t *testing.T) {
	caller := &mockCaller{args: `{"title":"x","ingredients":[],"methodSteps":[]}`}
	e := newTestExtractor(t, caller, WithMaxInputChars(10))

	_, err := e.FromHTML(context.Background(), strings.Repeat("é", 20))
	require.NoError(t, err)
	assert.NotContains(t, caller.last.Prompt, strings.Repeat("é", 6))
	assert.Contains(t, caller.last.Prompt, strings.Repeat("é", 5))
}

func TestFromImage(t *testing.T) {
	caller := &mockCaller{args: `{"title":"Cake","ingredients":[{"name":"flour","amount":"200 g"}],"methodSteps":["Bake"]}`}
	e := newTestExtractor(t, caller)
	img := []byte("\x89PNG\r\n\x1a\n0000")

	res, err := e.FromImage(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "Cake", res.Title)
	assert.Empty(t, res.ImageURL)
	assert.Equal(t, []string{}, res.Tags)

	assert.Equal(t, imageFunctionName, caller.last.Function.Name)
	assert.Equal(t, img, caller.last.Image)
	assert.Equal(t, "image/png", caller.last.ImageMIME)
}

func TestFromImage_Empty(t *testing.T) {
	caller := &mockCaller{}
	e := newTestExtractor(t, caller)

	_, err := e.FromImage(context.Background(), nil)
	assert.True(t, errors.Is(err, recipe.ErrExtractionFailed))
	assert.Equal(t, 0, caller.calls)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "é" is two bytes; a cut through it backs off to the previous rune.
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "a", truncate("a€", 3))
	assert.Equal(t, "a€", truncate("a€b", 4))
}

func TestTruncate_KeepsPagesWithStrayBytes(t *testing.T) {
	page := "<p>Cr\xe8me br\xfbl\xe9e</p>" + strings.Repeat("<p>Whisk the yolks.</p>", 10000)
	got := truncate(page, 100000)
	assert.Len(t, got, 100000)
	assert.True(t, strings.HasPrefix(got, "<p>Cr\xe8me"))
}

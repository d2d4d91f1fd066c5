package localllm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipebox/internal/extract"
)

func testFunction() extract.Function {
	return extract.Function{
		Name:       "extract_recipe",
		Parameters: &extract.Schema{Type: "object", Properties: map[string]*extract.Schema{"title": {Type: "string"}}},
	}
}

func TestCallFunction(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","function_call":{"name":"extract_recipe","arguments":"{\"title\":\"Soup\"}"}}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "test-model"})
	args, err := c.CallFunction(context.Background(), extract.FunctionRequest{
		System:    "be precise",
		Prompt:    "extract",
		Image:     []byte{0x89, 'P', 'N', 'G'},
		ImageMIME: "image/png",
		Function:  testFunction(),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Soup"}`, string(args))

	// The request forces the declared function and carries the image inline
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "extract_recipe", got.FunctionCall.Name)
	require.Len(t, got.Functions, 1)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	user := got.Messages[1]
	require.Len(t, user.Content, 2)
	assert.True(t, strings.HasPrefix(user.Content[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestCallFunction_NoFunctionCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Here is your recipe!"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.CallFunction(context.Background(), extract.FunctionRequest{Prompt: "x", Function: testFunction()})
	assert.True(t, errors.Is(err, extract.ErrNoFunctionCall))
}

func TestCallFunction_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.CallFunction(context.Background(), extract.FunctionRequest{Prompt: "x", Function: testFunction()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t, DefaultURL, c.baseURL)
	assert.Equal(t, DefaultModel, c.model)
	assert.Equal(t, 2048, c.maxTokens)
}

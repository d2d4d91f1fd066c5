package localllm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recipebox/internal/extract"
)

const (
	// DefaultURL points at a local OpenAI-compatible server.
	DefaultURL = "http://localhost:1234/v1"

	// DefaultModel is used when no model name is configured.
	DefaultModel = "gemma-3-12b-it:2"
)

// Client talks to any OpenAI-compatible chat/completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
}

// Config holds the connection settings for Client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewClient creates a new client for the local LLM.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
	}
}

// Request represents the request body for the local LLM.
type Request struct {
	Model        string        `json:"model"`
	Messages     []Message     `json:"messages"`
	Functions    []FunctionDef `json:"functions"`
	FunctionCall FunctionName  `json:"function_call"`
	Temperature  float64       `json:"temperature"`
	MaxTokens    int           `json:"max_tokens"`
}

// Message represents a message in the request.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content represents the content of a message.
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents the image URL in the content.
type ImageURL struct {
	URL string `json:"url"`
}

// FunctionDef declares a callable function.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  *extract.Schema `json:"parameters"`
}

// FunctionName forces a specific function.
type FunctionName struct {
	Name string `json:"name"`
}

// Response represents the response from the local LLM.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Choice represents a choice in the response.
type Choice struct {
	Message ResponseMessage `json:"message"`
}

// ResponseMessage represents a message in the response.
type ResponseMessage struct {
	Role         string            `json:"role"`
	Content      string            `json:"content"`
	FunctionCall *FunctionCallResp `json:"function_call,omitempty"`
}

// FunctionCallResp is the model's function invocation.
type FunctionCallResp struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// CallFunction sends a forced function-call completion and returns the call arguments.
func (c *Client) CallFunction(ctx context.Context, req extract.FunctionRequest) (json.RawMessage, error) {
	var messages []Message
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: []Content{{Type: "text", Text: req.System}}})
	}
	user := Message{Role: "user", Content: []Content{{Type: "text", Text: req.Prompt}}}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if !strings.HasPrefix(mime, "image/") {
			mime = "image/jpeg"
		}
		user.Content = append(user.Content, Content{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)},
		})
	}
	messages = append(messages, user)

	reqBody := Request{
		Model:    c.model,
		Messages: messages,
		Functions: []FunctionDef{{
			Name:        req.Function.Name,
			Description: req.Function.Description,
			Parameters:  req.Function.Parameters,
		}},
		FunctionCall: FunctionName{Name: req.Function.Name},
		Temperature:  0,
		MaxTokens:    c.maxTokens,
	}

	llmResp, err := c.do(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	if len(llmResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices found in response")
	}
	call := llmResp.Choices[0].Message.FunctionCall
	if call == nil || call.Name != req.Function.Name {
		return nil, extract.ErrNoFunctionCall
	}
	return json.RawMessage(call.Arguments), nil
}

func (c *Client) do(ctx context.Context, reqBody Request) (*Response, error) {
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("received non-OK status code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var llmResp Response
	if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return &llmResp, nil
}

package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"recipebox/internal/extract"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-1.5-flash"

// Client is a client for the Gemini API.
type Client struct {
	client    *genai.Client
	modelName string
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Client{client: client, modelName: modelName}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// CallFunction issues one generation that must answer through req.Function.
func (c *Client) CallFunction(ctx context.Context, req extract.FunctionRequest) (json.RawMessage, error) {
	// A model value per call keeps concurrent requests from sharing tool config.
	model := c.client.GenerativeModel(c.modelName)
	model.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        req.Function.Name,
			Description: req.Function.Description,
			Parameters:  toGenaiSchema(req.Function.Parameters),
		}},
	}}
	model.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingAny,
			AllowedFunctionNames: []string{req.Function.Name},
		},
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	var parts []genai.Part
	if len(req.Image) > 0 {
		parts = append(parts, genai.ImageData(imageFormat(req.ImageMIME), req.Image))
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		call, ok := part.(genai.FunctionCall)
		if !ok || call.Name != req.Function.Name {
			continue
		}
		args, err := json.Marshal(call.Args)
		if err != nil {
			return nil, fmt.Errorf("marshal function args: %w", err)
		}
		return args, nil
	}
	return nil, extract.ErrNoFunctionCall
}

// imageFormat maps a MIME type to the short form genai.ImageData expects.
func imageFormat(mime string) string {
	if f, ok := strings.CutPrefix(mime, "image/"); ok && f != "" {
		return f
	}
	return "jpeg"
}

func toGenaiSchema(s *extract.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        toGenaiType(s.Type),
		Description: s.Description,
		Items:       toGenaiSchema(s.Items),
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGenaiSchema(p)
		}
	}
	return out
}

func toGenaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

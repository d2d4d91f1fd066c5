package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	htmlFunctionName  = "extract_recipe_info"
	imageFunctionName = "extract_recipe"

	maxTags = 5
)

func ingredientsSchema() *Schema {
	return &Schema{
		Type:        "array",
		Description: "List of ingredients. Ingredients should be parsed separately into name and amount.",
		Items: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"name":   {Type: "string"},
				"amount": {Type: "string"},
			},
			Required: []string{"name", "amount"},
		},
	}
}

func htmlFunction() Function {
	return Function{
		Name:        htmlFunctionName,
		Description: "Extracts recipe information from HTML content: the title, ingredients, method steps, image URL and tags.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"title":       {Type: "string", Description: "The title of the recipe"},
				"ingredients": ingredientsSchema(),
				"methodSteps": {Type: "array", Items: &Schema{Type: "string"}, Description: "List of method steps"},
				"imageUrl":    {Type: "string", Description: "Absolute URL of the main recipe image"},
				"tags":        {Type: "array", Items: &Schema{Type: "string"}, Description: "Up to 5 relevant tags for the recipe"},
			},
			Required: []string{"title", "ingredients", "methodSteps", "imageUrl", "tags"},
		},
	}
}

func imageFunction() Function {
	return Function{
		Name:        imageFunctionName,
		Description: "Extract recipe information from the image",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"title":       {Type: "string", Description: "The title of the recipe"},
				"ingredients": ingredientsSchema(),
				"methodSteps": {Type: "array", Items: &Schema{Type: "string"}, Description: "List of steps to prepare the recipe"},
			},
			Required: []string{"title", "ingredients", "methodSteps"},
		},
	}
}

// payloadSchema is what a function-call payload must satisfy before it is
// accepted. Only required fields are constrained; optional ones are coerced.
var payloadSchema = map[string]any{
	"type":     "object",
	"required": []string{"title", "ingredients", "methodSteps"},
	"properties": map[string]any{
		"title": map[string]any{"type": "string", "minLength": 1},
		"ingredients": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"name"},
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
				},
			},
		},
	},
}

func compilePayloadSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(payloadSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("payload.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

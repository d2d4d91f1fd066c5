package extract

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNoFunctionCall is returned by a FunctionCaller when the model answered
// with free text instead of invoking the requested function.
var ErrNoFunctionCall = errors.New("model did not call the extraction function")

// Schema is the subset of JSON Schema the model backends understand.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Function is a function declaration the model is forced to call.
type Function struct {
	Name        string
	Description string
	Parameters  *Schema
}

// FunctionRequest is one forced function-call completion.
type FunctionRequest struct {
	System    string
	Prompt    string
	Image     []byte
	ImageMIME string
	Function  Function
}

// FunctionCaller is the language model capability the extractor depends on.
// Implementations return the raw JSON arguments of the function call.
type FunctionCaller interface {
	CallFunction(ctx context.Context, req FunctionRequest) (json.RawMessage, error)
}

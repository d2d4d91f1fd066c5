package recipe

import (
	"encoding/json"
	"time"
)

// Ingredient is a single line of a recipe's ingredient list.
type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// MethodStep is one numbered preparation step.
type MethodStep struct {
	StepNumber  int    `json:"stepNumber"`
	Description string `json:"description"`
}

// Tag labels a recipe.
type Tag struct {
	Name string `json:"name"`
}

// Recipe represents the canonical recipe record.
type Recipe struct {
	ID          string       `json:"id,omitempty" db:"id"`
	Title       string       `json:"title" db:"title"`
	Source      string       `json:"source,omitempty" db:"source"`
	Ingredients []Ingredient `json:"ingredients"`
	MethodSteps []MethodStep `json:"methodSteps"`
	Tags        []Tag        `json:"tags"`
	Image       []byte       `json:"-" db:"image"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" db:"updated_at"`
}

// MarshalJSON renders the image as a data URI so API callers never see raw bytes.
func (r Recipe) MarshalJSON() ([]byte, error) {
	type Alias Recipe // Create an alias to avoid infinite recursion
	var image *string
	if len(r.Image) > 0 {
		uri := EncodeDataURI(r.Image)
		image = &uri
	}
	return json.Marshal(&struct {
		Alias
		Image *string `json:"image"`
	}{
		Alias: Alias(r),
		Image: image,
	})
}

// ExtractionResult is the raw output of a structured extraction call. It is
// folded into a Recipe by Normalize and never stored.
type ExtractionResult struct {
	Title       string
	Ingredients []Ingredient
	MethodSteps []string
	ImageURL    string
	Tags        []string
}

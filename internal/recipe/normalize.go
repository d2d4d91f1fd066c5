package recipe

import "strings"

// Fields is the union of everything an ingestion path can hand to Normalize.
type Fields struct {
	Title       string
	Source      string
	Ingredients []Ingredient
	MethodSteps []string
	Tags        []string
	Image       []byte
}

// FieldsFromExtraction converts an extraction result into normalizer input.
func FieldsFromExtraction(res *ExtractionResult) Fields {
	return Fields{
		Title:       res.Title,
		Ingredients: res.Ingredients,
		MethodSteps: res.MethodSteps,
		Tags:        res.Tags,
	}
}

// TagNames flattens tags into names.
func TagNames(tags []Tag) []string {
	if tags == nil {
		return nil
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// Normalize assembles the canonical recipe shape. It is the only gate in front of
// persistence: an incomplete record is rejected with ErrInvalidRequest.
func Normalize(f Fields) (*Recipe, error) {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		return nil, InvalidRequest("title is required")
	}
	if len(f.Ingredients) == 0 {
		return nil, InvalidRequest("at least one ingredient is required")
	}

	ingredients := make([]Ingredient, len(f.Ingredients))
	for i, ing := range f.Ingredients {
		name := strings.TrimSpace(ing.Name)
		if name == "" {
			return nil, InvalidRequest("ingredient %d has no name", i+1)
		}
		ingredients[i] = Ingredient{Name: name, Amount: strings.TrimSpace(ing.Amount)}
	}

	steps := make([]MethodStep, len(f.MethodSteps))
	for i, s := range f.MethodSteps {
		desc := strings.TrimSpace(s)
		if desc == "" {
			return nil, InvalidRequest("method step %d is empty", i+1)
		}
		steps[i] = MethodStep{StepNumber: i + 1, Description: desc}
	}

	return &Recipe{
		Title:       title,
		Source:      strings.TrimSpace(f.Source),
		Ingredients: ingredients,
		MethodSteps: steps,
		Tags:        DedupeTags(f.Tags),
		Image:       NormalizeImage(f.Image),
	}, nil
}

// DedupeTags trims tags and drops repeats that differ only in case or
// surrounding whitespace. The first spelling seen wins.
func DedupeTags(names []string) []Tag {
	tags := make([]Tag, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		name := strings.TrimSpace(n)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, Tag{Name: name})
	}
	return tags
}

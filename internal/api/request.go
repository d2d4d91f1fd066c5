package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"recipebox/internal/ingest"
	"recipebox/internal/recipe"
)

// stepList accepts method steps either as plain strings or as the
// {stepNumber, description} objects this API returns, so a fetched recipe can
// be sent back unchanged on update. Step numbers are ignored.
type stepList []string

// UnmarshalJSON implements the json.Unmarshaler interface for stepList.
func (s *stepList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("methodSteps must be an array: %w", err)
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			out = append(out, text)
			continue
		}
		var step recipe.MethodStep
		if err := json.Unmarshal(item, &step); err != nil {
			return fmt.Errorf("methodSteps[%d] must be a string or an object with a description", i)
		}
		out = append(out, step.Description)
	}
	*s = out
	return nil
}

// tagList accepts tags as {name} objects or plain strings.
type tagList []string

// UnmarshalJSON implements the json.Unmarshaler interface for tagList.
func (t *tagList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tags must be an array: %w", err)
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			out = append(out, name)
			continue
		}
		var tag recipe.Tag
		if err := json.Unmarshal(item, &tag); err != nil {
			return fmt.Errorf("tags[%d] must be a string or an object with a name", i)
		}
		out = append(out, tag.Name)
	}
	*t = out
	return nil
}

// recipeRequest is the body of create and update calls.
type recipeRequest struct {
	Title       string              `json:"title"`
	Source      string              `json:"source"`
	Image       string              `json:"image"`
	Ingredients []recipe.Ingredient `json:"ingredients"`
	MethodSteps stepList            `json:"methodSteps"`
	Tags        tagList             `json:"tags"`
}

// bindRequest reads a JSON or multipart body into an ingest request, resolving
// the image to raw bytes whatever form it arrived in.
func bindRequest(c *gin.Context, maxBytes int64) (ingest.Request, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	var body recipeRequest
	var upload []byte

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		form, err := c.MultipartForm()
		if err != nil {
			return ingest.Request{}, &recipe.Error{Kind: recipe.KindInvalidRequest, Message: "parse form", Err: err}
		}
		if err := bindForm(form, &body); err != nil {
			return ingest.Request{}, err
		}
		if files := form.File["image"]; len(files) > 0 {
			if upload, err = readUpload(files[0]); err != nil {
				return ingest.Request{}, err
			}
		}
	} else if err := c.ShouldBindJSON(&body); err != nil {
		return ingest.Request{}, &recipe.Error{Kind: recipe.KindInvalidRequest, Message: "parse body", Err: err}
	}

	req := ingest.Request{
		Source:      strings.TrimSpace(body.Source),
		Image:       upload,
		Title:       strings.TrimSpace(body.Title),
		Ingredients: body.Ingredients,
		MethodSteps: body.MethodSteps,
		Tags:        body.Tags,
	}
	if req.Image == nil && body.Image != "" {
		img, err := recipe.DecodeDataURI(body.Image)
		if err != nil {
			return ingest.Request{}, err
		}
		req.Image = img
	}
	return req, nil
}

// bindForm decodes form fields. List fields carry JSON; an absent field stays nil.
func bindForm(form *multipart.Form, body *recipeRequest) error {
	value := func(key string) (string, bool) {
		v, ok := form.Value[key]
		if !ok || len(v) == 0 {
			return "", false
		}
		return v[0], true
	}

	body.Title, _ = value("title")
	body.Source, _ = value("source")
	body.Image, _ = value("image")

	if v, ok := value("ingredients"); ok {
		if err := json.Unmarshal([]byte(v), &body.Ingredients); err != nil {
			return recipe.InvalidRequest("ingredients must be a JSON array: %v", err)
		}
	}
	if v, ok := value("methodSteps"); ok {
		if err := json.Unmarshal([]byte(v), &body.MethodSteps); err != nil {
			return recipe.InvalidRequest("%v", err)
		}
	}
	if v, ok := value("tags"); ok {
		if err := json.Unmarshal([]byte(v), &body.Tags); err != nil {
			return recipe.InvalidRequest("%v", err)
		}
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open file err: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read image err: %w", err)
	}
	if len(data) == 0 {
		return nil, recipe.InvalidRequest("uploaded image is empty")
	}
	return data, nil
}

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"recipebox/internal/ingest"
	"recipebox/internal/recipe"
)

// DefaultMaxBodyBytes caps request bodies, uploads included.
const DefaultMaxBodyBytes int64 = 20 << 20

// RecipeService defines the operations the handlers need.
type RecipeService interface {
	Ingest(ctx context.Context, req ingest.Request) (*recipe.Recipe, error)
	Update(ctx context.Context, id string, req ingest.Request) (*recipe.Recipe, error)
	Get(ctx context.Context, id string) (*recipe.Recipe, error)
	List(ctx context.Context) ([]*recipe.Recipe, error)
	Delete(ctx context.Context, id string) error
}

// Handler handles HTTP requests.
type Handler struct {
	Service      RecipeService
	Timeout      time.Duration
	MaxBodyBytes int64
	log          zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(service RecipeService, timeout time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		Service:      service,
		Timeout:      timeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
		log:          logger.With().Str("component", "api").Logger(),
	}
}

// Register mounts the recipe routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/recipes", h.ListRecipes)
	r.GET("/recipes/:id", h.GetRecipe)
	r.POST("/recipes", h.CreateRecipe)
	r.PUT("/recipes/:id", h.UpdateRecipe)
	r.DELETE("/recipes/:id", h.DeleteRecipe)
}

// CreateRecipe ingests a recipe from a source URL, an image or manual fields.
func (h *Handler) CreateRecipe(c *gin.Context) {
	req, err := bindRequest(c, h.MaxBodyBytes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// Create a context with a timeout for the fetch and model calls
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	r, err := h.Service.Ingest(ctx, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// UpdateRecipe replaces a stored recipe.
func (h *Handler) UpdateRecipe(c *gin.Context) {
	req, err := bindRequest(c, h.MaxBodyBytes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	r, err := h.Service.Update(ctx, c.Param("id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GetRecipe handles requests to retrieve a single recipe by id.
func (h *Handler) GetRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	r, err := h.Service.Get(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ListRecipes handles requests to retrieve all recipes.
func (h *Handler) ListRecipes(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	recipes, err := h.Service.List(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// DeleteRecipe removes a recipe.
func (h *Handler) DeleteRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.Delete(ctx, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}
	kind, ok := recipe.KindOf(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}
	switch kind {
	case recipe.KindInvalidRequest:
		return http.StatusBadRequest
	case recipe.KindNotFound:
		return http.StatusNotFound
	case recipe.KindSourceUnreachable, recipe.KindExtractionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package recipe

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps recipes in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	recipes map[string]*Recipe
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recipes: make(map[string]*Recipe),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a copy of r under a fresh id.
func (s *MemoryStore) Create(_ context.Context, r *Recipe) (*Recipe, error) {
	out := clone(r)
	out.ID = uuid.NewString()
	out.CreatedAt = s.now()
	out.UpdatedAt = out.CreatedAt

	s.mu.Lock()
	s.recipes[out.ID] = out
	s.mu.Unlock()
	return clone(out), nil
}

// Get returns a copy of the recipe with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipes[id]
	if !ok {
		return nil, NotFound(id)
	}
	return clone(r), nil
}

// Update replaces an existing recipe, keeping its id and creation time.
func (s *MemoryStore) Update(_ context.Context, id string, r *Recipe) (*Recipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.recipes[id]
	if !ok {
		return nil, NotFound(id)
	}
	out := clone(r)
	out.ID = id
	out.CreatedAt = existing.CreatedAt
	out.UpdatedAt = s.now()
	s.recipes[id] = out
	return clone(out), nil
}

// Delete removes a recipe.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recipes[id]; !ok {
		return NotFound(id)
	}
	delete(s.recipes, id)
	return nil
}

// List returns copies of all recipes, newest first.
func (s *MemoryStore) List(_ context.Context) ([]*Recipe, error) {
	s.mu.RLock()
	out := make([]*Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		out = append(out, clone(r))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Recipe) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func clone(r *Recipe) *Recipe {
	out := *r
	out.Ingredients = slices.Clone(r.Ingredients)
	out.MethodSteps = slices.Clone(r.MethodSteps)
	out.Tags = slices.Clone(r.Tags)
	out.Image = slices.Clone(r.Image)
	return &out
}

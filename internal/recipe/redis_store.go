package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "recipe:"
	redisIndexKey  = "recipes"
)

// recipeDoc is the stored JSON document. Unlike the API shape it keeps the
// image as raw bytes (base64 in JSON).
type recipeDoc struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Source      string       `json:"source,omitempty"`
	Ingredients []Ingredient `json:"ingredients"`
	MethodSteps []MethodStep `json:"methodSteps"`
	Tags        []Tag        `json:"tags"`
	Image       []byte       `json:"image,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func docFromRecipe(r *Recipe) recipeDoc {
	return recipeDoc{
		ID:          r.ID,
		Title:       r.Title,
		Source:      r.Source,
		Ingredients: nonNil(r.Ingredients),
		MethodSteps: nonNil(r.MethodSteps),
		Tags:        nonNil(r.Tags),
		Image:       r.Image,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (d recipeDoc) toRecipe() *Recipe {
	return &Recipe{
		ID:          d.ID,
		Title:       d.Title,
		Source:      d.Source,
		Ingredients: d.Ingredients,
		MethodSteps: d.MethodSteps,
		Tags:        d.Tags,
		Image:       d.Image,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// RedisStore keeps each recipe as a JSON document, with a sorted set indexing
// ids by creation time.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a new RedisStore and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: func() time.Time { return time.Now().UTC() }}
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Create writes the recipe document and indexes its id by creation time.
func (s *RedisStore) Create(ctx context.Context, r *Recipe) (*Recipe, error) {
	out := *r
	out.ID = uuid.NewString()
	out.CreatedAt = s.now()
	out.UpdatedAt = out.CreatedAt

	b, err := json.Marshal(docFromRecipe(&out))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recipe: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+out.ID, b, 0)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(out.CreatedAt.UnixNano()), Member: out.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save recipe: %w", err)
	}
	return &out, nil
}

// Get loads a recipe document by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Recipe, error) {
	b, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, NotFound(id)
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	var doc recipeDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipe %s: %w", id, err)
	}
	return doc.toRecipe(), nil
}

// Update rewrites an existing recipe document, keeping its creation time.
func (s *RedisStore) Update(ctx context.Context, id string, r *Recipe) (*Recipe, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	out := *r
	out.ID = id
	out.CreatedAt = existing.CreatedAt
	out.UpdatedAt = s.now()

	b, err := json.Marshal(docFromRecipe(&out))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recipe: %w", err)
	}
	// XX keeps a concurrent delete from resurrecting the document.
	ok, err := s.client.SetXX(ctx, redisKeyPrefix+id, b, redis.KeepTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to update recipe: %w", err)
	}
	if !ok {
		return nil, NotFound(id)
	}
	return &out, nil
}

// Delete removes the document and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, redisKeyPrefix+id)
		pipe.ZRem(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	if del.Val() == 0 {
		return NotFound(id)
	}
	return nil
}

// List returns all recipes, newest first.
func (s *RedisStore) List(ctx context.Context) ([]*Recipe, error) {
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	if len(ids) == 0 {
		return []*Recipe{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKeyPrefix + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}

	recipes := make([]*Recipe, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Index entry without a document; skip it.
			continue
		}
		var doc recipeDoc
		if err := json.Unmarshal([]byte(str), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipe %s: %w", ids[i], err)
		}
		recipes = append(recipes, doc.toRecipe())
	}
	return recipes, nil
}

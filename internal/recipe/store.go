package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store defines the interface for recipe data operations.
type Store interface {
	Create(ctx context.Context, r *Recipe) (*Recipe, error)
	Get(ctx context.Context, id string) (*Recipe, error)
	Update(ctx context.Context, id string, r *Recipe) (*Recipe, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Recipe, error)
}

const recipeColumns = "id, title, source, ingredients, method_steps, tags, image, created_at, updated_at"

// recipeRow mirrors the recipes table; list columns are stored as JSONB.
type recipeRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Source      string    `db:"source"`
	Ingredients []byte    `db:"ingredients"`
	MethodSteps []byte    `db:"method_steps"`
	Tags        []byte    `db:"tags"`
	Image       []byte    `db:"image"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row *recipeRow) toRecipe() (*Recipe, error) {
	r := &Recipe{
		ID:        row.ID,
		Title:     row.Title,
		Source:    row.Source,
		Image:     row.Image,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Ingredients, &r.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
	}
	if err := json.Unmarshal(row.MethodSteps, &r.MethodSteps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal method steps: %w", err)
	}
	if err := json.Unmarshal(row.Tags, &r.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	return r, nil
}

func marshalLists(r *Recipe) (ingredients, steps, tags []byte, err error) {
	if ingredients, err = json.Marshal(nonNil(r.Ingredients)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	if steps, err = json.Marshal(nonNil(r.MethodSteps)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal method steps: %w", err)
	}
	if tags, err = json.Marshal(nonNil(r.Tags)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	return ingredients, steps, tags, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// PostgresStore implements the Store interface for PostgreSQL.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore creates a new PostgresStore and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, dataSourceName string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := NewPostgresStoreWithDB(db)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithDB wraps an existing connection without touching the schema.
func NewPostgresStoreWithDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the recipes table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recipes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		ingredients JSONB NOT NULL,
		method_steps JSONB NOT NULL,
		tags JSONB NOT NULL,
		image BYTEA,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create recipes table: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Create inserts a new recipe and assigns its id.
func (s *PostgresStore) Create(ctx context.Context, r *Recipe) (*Recipe, error) {
	ingredients, steps, tags, err := marshalLists(r)
	if err != nil {
		return nil, err
	}

	out := *r
	out.ID = uuid.NewString()
	out.CreatedAt = s.now()
	out.UpdatedAt = out.CreatedAt

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO recipes ("+recipeColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		out.ID,
		out.Title,
		out.Source,
		ingredients,
		steps,
		tags,
		out.Image,
		out.CreatedAt,
		out.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save recipe: %w", err)
	}
	return &out, nil
}

// Get retrieves a recipe by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Recipe, error) {
	var row recipeRow
	err := s.db.GetContext(ctx, &row, "SELECT "+recipeColumns+" FROM recipes WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound(id)
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return row.toRecipe()
}

// Update replaces every field of an existing recipe.
func (s *PostgresStore) Update(ctx context.Context, id string, r *Recipe) (*Recipe, error) {
	ingredients, steps, tags, err := marshalLists(r)
	if err != nil {
		return nil, err
	}

	out := *r
	out.ID = id
	out.UpdatedAt = s.now()

	err = s.db.QueryRowxContext(ctx,
		"UPDATE recipes SET title = $2, source = $3, ingredients = $4, method_steps = $5, tags = $6, image = $7, updated_at = $8 WHERE id = $1 RETURNING created_at",
		id,
		out.Title,
		out.Source,
		ingredients,
		steps,
		tags,
		out.Image,
		out.UpdatedAt,
	).Scan(&out.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound(id)
		}
		return nil, fmt.Errorf("failed to update recipe: %w", err)
	}
	return &out, nil
}

// Delete removes a recipe.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recipes WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	if n == 0 {
		return NotFound(id)
	}
	return nil
}

// List returns all recipes, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*Recipe, error) {
	var rows []recipeRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+recipeColumns+" FROM recipes ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}

	recipes := make([]*Recipe, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toRecipe()
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

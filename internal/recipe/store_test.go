package recipe

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewPostgresStoreWithDB(sqlx.NewDb(db, "postgres"))
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

var rowColumns = []string{"id", "title", "source", "ingredients", "method_steps", "tags", "image", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS recipes").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRecipe("Salt")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO recipes (" + recipeColumns + ")")).
		WithArgs(sqlmock.AnyArg(), "Salt", "",
			[]byte(`[{"name":"salt","amount":"1 pinch"}]`),
			[]byte(`[{"stepNumber":1,"description":"Season"}]`),
			[]byte(`[{"name":"basic"}]`),
			sqlmock.AnyArg(), s.now(), s.now()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := s.Create(context.Background(), r)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, s.now(), created.CreatedAt)
	assert.Empty(t, r.ID, "input must not be mutated")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + recipeColumns + " FROM recipes WHERE id = $1")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(
			"abc", "Salt", "https://example.com",
			[]byte(`[{"name":"salt","amount":"1 pinch"}]`),
			[]byte(`[{"stepNumber":1,"description":"Season"}]`),
			[]byte(`[]`),
			[]byte{0xff, 0xd8},
			created, created,
		))

	r, err := s.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Salt", r.Title)
	assert.Equal(t, []Ingredient{{Name: "salt", Amount: "1 pinch"}}, r.Ingredients)
	assert.Equal(t, []MethodStep{{StepNumber: 1, Description: "Season"}}, r.MethodSteps)
	assert.Equal(t, []Tag{}, r.Tags)
	assert.Equal(t, []byte{0xff, 0xd8}, r.Image)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresStore_Update(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE recipes SET")).
		WithArgs("abc", "Salted", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), s.now()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	r, err := s.Update(context.Background(), "abc", sampleRecipe("Salted"))
	require.NoError(t, err)
	assert.Equal(t, "abc", r.ID)
	assert.Equal(t, created, r.CreatedAt)
	assert.Equal(t, s.now(), r.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE recipes").WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	_, err := s.Update(context.Background(), "missing", sampleRecipe("x"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresStore_Delete(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recipes WHERE id = $1")).WithArgs("abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM recipes").WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.Delete(context.Background(), "abc"))
	assert.True(t, errors.Is(s.Delete(context.Background(), "gone"), ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow("2", "Newer", "", []byte(`[{"name":"a","amount":""}]`), []byte(`[]`), []byte(`[]`), nil, now, now).
			AddRow("1", "Older", "", []byte(`[{"name":"b","amount":""}]`), []byte(`[]`), []byte(`[]`), nil, now.Add(-time.Hour), now))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Newer", list[0].Title)
	assert.Equal(t, "Older", list[1].Title)
}

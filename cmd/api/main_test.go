package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipebox/internal/api"
	"recipebox/internal/config"
	"recipebox/internal/extract"
	"recipebox/internal/ingest"
	"recipebox/internal/metrics"
	"recipebox/internal/recipe"
)

// stubFetcher serves one page and no images.
type stubFetcher struct {
	page string
}

func (f *stubFetcher) FetchPage(ctx context.Context, url string) (string, error) {
	return f.page, nil
}

func (f *stubFetcher) FetchImage(ctx context.Context, url string) ([]byte, error) {
	return nil, recipe.SourceUnreachable("no images in tests", nil)
}

// stubCaller answers every function call with the same arguments.
type stubCaller struct {
	args string
}

func (c *stubCaller) CallFunction(ctx context.Context, req extract.FunctionRequest) (json.RawMessage, error) {
	return json.RawMessage(c.args), nil
}

func setupRouter(t *testing.T) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// Create the extractor on top of a canned model response
	caller := &stubCaller{args: `{"title":"Soup","ingredients":[{"name":"water","amount":"1 l"}],"methodSteps":["Boil"],"imageUrl":"/soup.jpg","tags":["easy"]}`}
	extractor, err := extract.NewExtractor(caller, zerolog.Nop())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	svc := ingest.NewService(&stubFetcher{page: "<html><body><h1>Soup</h1></body></html>"}, extractor,
		recipe.NewMemoryStore(), zerolog.Nop(), metrics.NewIngest(reg))

	cfg := config.Default()
	cfg.Env = "test"
	handler := api.NewHandler(svc, 5*time.Second, zerolog.Nop())
	return newRouter(cfg, handler, zerolog.Nop(), reg), reg
}

func TestHealthz(t *testing.T) {
	r, _ := setupRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestCreateFromSourceThenFetch(t *testing.T) {
	r, _ := setupRouter(t)

	// Create a recipe from a source URL
	body := bytes.NewBufferString(`{"source":"https://example.com/soup"}`)
	req := httptest.NewRequest(http.MethodPost, "/recipes", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "Soup", created["title"])
	assert.Equal(t, "https://example.com/soup", created["source"])
	assert.Nil(t, created["image"])
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	// Fetch it back by id
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/recipes/"+id, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"stepNumber":1`)

	// And find it in the list
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/recipes", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCreateRejectsEmptyRequest(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/recipes", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "error")
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := setupRouter(t)

	// One manual ingestion so the counters have a sample
	req := httptest.NewRequest(http.MethodPost, "/recipes",
		strings.NewReader(`{"title":"Toast","ingredients":[{"name":"bread","amount":"1 slice"}],"methodSteps":["Toast it"]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `recipebox_ingestions_total{outcome="ok",strategy="manual"} 1`)
}

// TestMain_BadConfigExitsCleanly re-runs the test binary as the server with an
// unreadable config and checks that it exits with a log line, not a panic.
func TestMain_BadConfigExitsCleanly(t *testing.T) {
	if path := os.Getenv("RECIPEBOX_BAD_CONFIG"); path != "" {
		os.Args = []string{"api", "-config", path}
		main()
		return
	}

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	cmd := exec.Command(os.Args[0], "-test.run=^TestMain_BadConfigExitsCleanly$")
	cmd.Env = append(os.Environ(), "RECIPEBOX_BAD_CONFIG="+path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, stderr.String(), "failed to load config")
	assert.NotContains(t, stderr.String(), "panic:")
}

//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/kbindex/internal/api/handlers"
	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/jobs"
	"github.com/cloo-solutions/kbindex/internal/openai"
	"github.com/cloo-solutions/kbindex/internal/repository"
	"github.com/cloo-solutions/kbindex/internal/server"
	"github.com/cloo-solutions/kbindex/internal/service"
	"github.com/cloo-solutions/kbindex/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	testIndexName = "knowledge-base"
	testDimension = 8
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	Embeddings   *httptest.Server
	ServerURL    string
	ServerCloser func()
	Worker       *jobs.IndexWorker
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with a pgvector container,
// a fake embeddings endpoint and the API server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")
	embeddings := newFakeEmbeddingServer(testDimension)

	embedder := openai.NewClientWithConfig(openai.Config{
		APIKey:              "test-key",
		BaseURL:             embeddings.URL + "/v1",
		EmbeddingDimensions: testDimension,
	})

	index := repository.NewPgVectorIndex(pool)
	indexing := service.NewIndexingService(embedder, index, service.IndexingConfig{
		Index: domain.IndexSpec{
			Name:      testIndexName,
			Dimension: testDimension,
			Metric:    domain.MetricCosine,
			Cloud:     "aws",
			Region:    "us-east-1",
		},
		Cluster: service.ClusterConfig{Seed: 7},
	}).WithRunRecorder(repository.NewIndexRunRepository(pool))

	jobRepo := repository.NewIndexJobRepository(pool)
	jobSvc := service.NewIndexJobService(jobRepo, repository.NewTxRunner(pool))

	router := server.NewRouter(server.RouterConfig{
		IndexHandler:    handlers.NewIndexHandler(indexing, index, testIndexName),
		IndexJobHandler: handlers.NewIndexJobHandler(jobSvc),
	})
	srv := httptest.NewServer(router)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		Embeddings:   embeddings,
		ServerURL:    srv.URL,
		ServerCloser: srv.Close,
		Worker:       jobs.NewIndexWorker(jobRepo, indexing),
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Embeddings != nil {
		e.Embeddings.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries builds the kbindexd binary
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "kbindex-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "kbindexd"), "./cmd/kbindexd")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build kbindexd: %v\n%s", err, out)
	}
}

// RunKbindexd runs the kbindexd CLI against the test database and embeddings endpoint
func (e *E2ETestEnv) RunKbindexd(input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "kbindexd"), args...)
	cmd.Dir = "../.."
	cmd.Stdin = strings.NewReader(input)
	cmd.Env = append(os.Environ(),
		"KBINDEX_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"KBINDEX_OPENAI_API_KEY=test-key",
		"KBINDEX_OPENAI_BASE_URL="+e.Embeddings.URL+"/v1",
		fmt.Sprintf("KBINDEX_INDEX_DIMENSION=%d", testDimension),
		"KBINDEX_INDEX_NAME="+testIndexName,
		"KBINDEX_CLUSTER_SEED=7",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int             `json:"-"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) Put(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPut, path, body)
}

func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil)
}

// doRequest returns the decoded envelope for every status. Failed pipeline
// runs still carry their result in data.
func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{Status: resp.StatusCode}
	if err := json.Unmarshal(respBody, apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return apiResp, nil
}

// newFakeEmbeddingServer serves the embeddings API with deterministic
// unit vectors derived from a hash of each input.
func newFakeEmbeddingServer(dimension int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data := make([]map[string]interface{}, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": hashVector(text, dimension),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
		})
	}))
}

func hashVector(text string, dimension int) []float32 {
	v := make([]float32, dimension)
	var norm float64
	for i := range v {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%s", i, text)
		x := float64(h.Sum32()%1000)/1000 - 0.5
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

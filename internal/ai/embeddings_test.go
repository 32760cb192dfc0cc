package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// scriptedBackend lets a test decide per call whether to fail.
type scriptedBackend struct {
	calls int
	dim   int
	fn    func(call int, texts []string) ([][]float32, error)
}

func (b *scriptedBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	b.calls++
	if b.fn != nil {
		return b.fn(b.calls, texts)
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, b.dim)
		v[0] = float32(i + 1)
		vectors[i] = v
	}
	return vectors, nil
}

func newTestClient(backend embedBackend, dim int) *EmbeddingClient {
	return &EmbeddingClient{
		backend:   backend,
		dimension: dim,
		batchSize: defaultBatchSize,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "test",
			ReadyToTrip: func(gobreaker.Counts) bool { return false },
		}),
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func TestEmbedAllSuccess(t *testing.T) {
	backend := &scriptedBackend{dim: 4}
	c := newTestClient(backend, 4)

	vectors := c.EmbedAll(context.Background(), []string{"alpha", "beta", "gamma"})

	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 4 {
			t.Errorf("vector %d has dimension %d, want 4", i, len(v))
		}
		if isZero(v) {
			t.Errorf("vector %d is unexpectedly zero", i)
		}
	}
	if backend.calls != 1 {
		t.Errorf("backend called %d times, want 1", backend.calls)
	}
}

func TestEmbedAllEmptyTextsSkipAPI(t *testing.T) {
	backend := &scriptedBackend{dim: 4}
	c := newTestClient(backend, 4)

	vectors := c.EmbedAll(context.Background(), []string{"", "  \n  "})

	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 4 || !isZero(v) {
			t.Errorf("vector %d should be a zero vector of dimension 4, got %v", i, v)
		}
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times for empty-only input, want 0", backend.calls)
	}
}

func TestEmbedAllRetriesTransientFailure(t *testing.T) {
	backend := &scriptedBackend{dim: 4}
	backend.fn = func(call int, texts []string) ([][]float32, error) {
		if call == 1 {
			return nil, errors.New("rate limited")
		}
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{1, 2, 3, 4}
		}
		return vectors, nil
	}
	c := newTestClient(backend, 4)

	vectors := c.EmbedAll(context.Background(), []string{"a", "b", "c"})

	if backend.calls != 2 {
		t.Errorf("backend called %d times, want 2 (one retry)", backend.calls)
	}
	for i, v := range vectors {
		if isZero(v) {
			t.Errorf("vector %d zero after successful retry", i)
		}
	}
}

func TestEmbedAllFailedItemGetsZeroVector(t *testing.T) {
	backend := &scriptedBackend{dim: 4}
	backend.fn = func(call int, texts []string) ([][]float32, error) {
		if len(texts) > 1 {
			return nil, errors.New("batch failure")
		}
		if texts[0] == "bad" {
			return nil, errors.New("item failure")
		}
		return [][]float32{{9, 9, 9, 9}}, nil
	}
	c := newTestClient(backend, 4)

	vectors := c.EmbedAll(context.Background(), []string{"good one", "bad", "good two"})

	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	if isZero(vectors[0]) {
		t.Error("vector 0 should survive the per-item fallback")
	}
	if !isZero(vectors[1]) || len(vectors[1]) != 4 {
		t.Errorf("vector 1 should be a zero vector of dimension 4, got %v", vectors[1])
	}
	if isZero(vectors[2]) {
		t.Error("vector 2 should survive the per-item fallback")
	}
}

func TestEmbedAllCountMismatchFallsBackPerItem(t *testing.T) {
	backend := &scriptedBackend{dim: 4}
	backend.fn = func(call int, texts []string) ([][]float32, error) {
		if len(texts) > 1 {
			// Wrong count, no error: must still trigger the fallback.
			return [][]float32{{1, 1, 1, 1}}, nil
		}
		return [][]float32{{2, 2, 2, 2}}, nil
	}
	c := newTestClient(backend, 4)

	vectors := c.EmbedAll(context.Background(), []string{"a", "b"})

	for i, v := range vectors {
		if isZero(v) {
			t.Errorf("vector %d zero after per-item fallback", i)
		}
	}
}

func TestEmbedAllWrongDimensionSubstitutesZero(t *testing.T) {
	backend := &scriptedBackend{}
	backend.fn = func(call int, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{1, 2} // shorter than the configured dimension
		}
		return vectors, nil
	}
	c := newTestClient(backend, 4)

	vectors := c.EmbedAll(context.Background(), []string{"a"})

	if len(vectors[0]) != 4 || !isZero(vectors[0]) {
		t.Errorf("expected zero vector of dimension 4, got %v", vectors[0])
	}
}

func TestCleanText(t *testing.T) {
	if got := cleanText("  first\nsecond  "); got != "first second" {
		t.Errorf("got %q", got)
	}
	if got := cleanText("\n \n"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestDimensionForModel(t *testing.T) {
	cases := map[string]int{
		"text-embedding-3-large": 3072,
		"text-embedding-3-small": 1536,
		"text-embedding-ada-002": 1536,
		"text-embedding-004":     768,
		"models/embedding-001":   768,
		"some-future-model":      1536,
	}
	for model, want := range cases {
		if got := dimensionForModel(model); got != want {
			t.Errorf("dimensionForModel(%q) = %d, want %d", model, got, want)
		}
	}
}

func TestOpenAIBackendAgainstStub(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limit exceeded","type":"requests"}}`)
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{"object": "list", "model": "text-embedding-ada-002"}
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{0.1, 0.2, 0.3},
			}
		}
		resp["data"] = data
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	backend := newOpenAIBackend("test-key", srv.URL+"/v1", "text-embedding-ada-002")
	c := newTestClient(backend, 3)

	vectors := c.EmbedAll(context.Background(), []string{"first chunk", "second chunk"})

	if got := requests.Load(); got != 2 {
		t.Errorf("stub saw %d requests, want 2 (one 429 then success)", got)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 3 || isZero(v) {
			t.Errorf("vector %d: got %v, want the stub embedding", i, v)
		}
	}
}

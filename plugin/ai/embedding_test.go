package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewEmbeddingService tests service creation.
func TestNewEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *EmbeddingConfig
		expectError bool
	}{
		{
			name: "SiliconFlow config",
			cfg: &EmbeddingConfig{
				Provider:   "siliconflow",
				Model:      "BAAI/bge-m3",
				Dimensions: 1024,
				APIKey:     "test-key",
				BaseURL:    "https://api.siliconflow.cn/v1",
			},
		},
		{
			name: "OpenAI config",
			cfg: &EmbeddingConfig{
				Provider:   "openai",
				Model:      "text-embedding-3-small",
				Dimensions: 1536,
				APIKey:     "test-key",
			},
		},
		{
			name: "Local config",
			cfg: &EmbeddingConfig{
				Provider:   "local",
				Dimensions: 128,
			},
		},
		{
			name: "Unsupported provider",
			cfg: &EmbeddingConfig{
				Provider: "unsupported",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEmbeddingService(tt.cfg)
			if (err != nil) != tt.expectError {
				t.Errorf("NewEmbeddingService() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

type embeddingRequestBody struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// newEmbeddingServer answers /v1/embeddings with one vector per input, built by fn.
func newEmbeddingServer(t *testing.T, fn func(i int, text string) []float32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var body embeddingRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, 0, len(body.Input))
		// Reverse order to check that results are placed by index.
		for i := len(body.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": fn(i, body.Input[i]),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  body.Model,
			"data":   data,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestEmbeddingService_EmbedBatch_OrdersByIndex(t *testing.T) {
	srv, _ := newEmbeddingServer(t, func(i int, _ string) []float32 {
		return []float32{float32(i), 1}
	})

	service, err := NewEmbeddingService(&EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 2,
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
	})
	require.NoError(t, err)

	vectors, err := service.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(i), 1}, v)
	}
	assert.Equal(t, "text-embedding-3-small", service.Model())
	assert.Equal(t, 2, service.Dimensions())
}

func TestEmbeddingService_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	service, err := NewEmbeddingService(&EmbeddingConfig{
		Provider:   "siliconflow",
		Model:      "BAAI/bge-m3",
		Dimensions: 1024,
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
	})
	require.NoError(t, err)

	_, err = service.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingUnavailable))
}

func TestEmbeddingService_EmbedBatch_Empty(t *testing.T) {
	service := NewLocalEmbeddingService(8)

	_, err := service.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestLocalEmbeddingService_Deterministic(t *testing.T) {
	service := NewLocalEmbeddingService(64)
	ctx := context.Background()

	a, err := service.Embed(ctx, "How do I cook pasta carbonara?")
	require.NoError(t, err)
	b, err := service.Embed(ctx, "How do I cook pasta carbonara?")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Equal(t, LocalEmbeddingModel, service.Model())
}

func TestLocalEmbeddingService_Similarity(t *testing.T) {
	service := NewLocalEmbeddingService(256)
	ctx := context.Background()

	vectors, err := service.EmbedBatch(ctx, []string{
		"my dog loves long walks in the park",
		"walks in the park with my dog",
		"quarterly tax filing deadline",
	})
	require.NoError(t, err)

	dot := func(x, y []float32) float32 {
		var s float32
		for i := range x {
			s += x[i] * y[i]
		}
		return s
	}

	assert.Greater(t, dot(vectors[0], vectors[1]), dot(vectors[0], vectors[2]))
	assert.InDelta(t, 1.0, dot(vectors[0], vectors[0]), 1e-5, "vectors are unit length")
}

func TestLocalEmbeddingService_EmptyText(t *testing.T) {
	service := NewLocalEmbeddingService(0)

	vec, err := service.Embed(context.Background(), "  ")
	require.NoError(t, err)
	assert.Len(t, vec, defaultLocalDimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLocalEmbeddingService_CanceledContext(t *testing.T) {
	service := NewLocalEmbeddingService(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Embed(ctx, "text")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedEmbeddingService(t *testing.T) {
	srv, calls := newEmbeddingServer(t, func(_ int, text string) []float32 {
		return []float32{float32(len(text)), 0}
	})

	inner, err := NewEmbeddingService(&EmbeddingConfig{
		Provider:   "openai",
		Model:      "m",
		Dimensions: 2,
		APIKey:     "k",
		BaseURL:    srv.URL + "/v1",
	})
	require.NoError(t, err)
	service := NewCachedEmbeddingService(inner, 10, time.Minute)
	ctx := context.Background()

	first, err := service.Embed(ctx, "abc")
	require.NoError(t, err)
	first[0] = 999 // callers may mutate their copy

	second, err := service.Embed(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0}, second)
	assert.Equal(t, int32(1), calls.Load())

	// Batch only fetches the texts that are not cached yet.
	vectors, err := service.EmbedBatch(ctx, []string{"abc", "hello"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 0}, {5, 0}}, vectors)
	assert.Equal(t, int32(2), calls.Load())

	_, err = service.EmbedBatch(ctx, []string{"hello", "abc"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	stats := service.(*cachedEmbeddingService).Stats()
	assert.Equal(t, 2, stats.Size)
}

// shortBatchEmbedder drops the last vector of every batch.
type shortBatchEmbedder struct {
	EmbeddingService
}

func (s shortBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.EmbeddingService.EmbedBatch(ctx, texts)
	if err != nil || len(vectors) == 0 {
		return vectors, err
	}
	return vectors[:len(vectors)-1], nil
}

func TestCachedEmbeddingService_ShortBatch(t *testing.T) {
	service := NewCachedEmbeddingService(shortBatchEmbedder{NewLocalEmbeddingService(8)}, 10, time.Minute)

	vectors, err := service.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Nil(t, vectors)

	// Nothing from the short batch is cached.
	assert.Zero(t, service.(*cachedEmbeddingService).Stats().Size)
}

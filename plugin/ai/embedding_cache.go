package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hrygo/intellichat/plugin/ai/cache"
)

// cachedEmbeddingService memoizes vectors by model and text. Embeddings are
// deterministic for a fixed model, so a cached vector is always the right one.
type cachedEmbeddingService struct {
	inner EmbeddingService
	cache *cache.LRU[[]float32]
	ttl   time.Duration
}

// NewCachedEmbeddingService wraps an EmbeddingService with an LRU+TTL cache.
func NewCachedEmbeddingService(inner EmbeddingService, capacity int, ttl time.Duration) EmbeddingService {
	return &cachedEmbeddingService{
		inner: inner,
		cache: cache.NewLRU[[]float32](capacity, ttl),
		ttl:   ttl,
	}
}

func (s *cachedEmbeddingService) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return s.inner.Model() + ":" + hex.EncodeToString(sum[:])
}

func (s *cachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := s.key(text)
	if vec, ok := s.cache.Get(key); ok {
		return cloneVector(vec), nil
	}

	vec, err := s.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, cloneVector(vec), s.ttl)
	return vec, nil
}

func (s *cachedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := s.cache.Get(s.key(text)); ok {
			vectors[i] = cloneVector(vec)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	fetched, err := s.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missing) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingUnavailable, len(missing), len(fetched))
	}
	for j, vec := range fetched {
		vectors[missingIdx[j]] = vec
		s.cache.Set(s.key(missing[j]), cloneVector(vec), s.ttl)
	}
	return vectors, nil
}

func (s *cachedEmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

func (s *cachedEmbeddingService) Model() string {
	return s.inner.Model()
}

// Stats exposes the cache counters.
func (s *cachedEmbeddingService) Stats() cache.Stats {
	return s.cache.Stats()
}

// RunJanitor evicts expired vectors until ctx is done.
func (s *cachedEmbeddingService) RunJanitor(ctx context.Context, interval time.Duration) {
	s.cache.RunJanitor(ctx, interval)
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

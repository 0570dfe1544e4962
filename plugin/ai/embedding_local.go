package ai

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbeddingModel is the model name recorded for vectors produced by the local embedder.
const LocalEmbeddingModel = "local-hash-v1"

const defaultLocalDimensions = 384

// localEmbeddingService is a deterministic feature-hashing embedder. Each word and
// each adjacent word pair is hashed into a signed bucket, and the result is L2
// normalized so that cosine similarity tracks shared vocabulary.
type localEmbeddingService struct {
	dimensions int
}

// NewLocalEmbeddingService creates an embedder that needs no network access.
func NewLocalEmbeddingService(dimensions int) EmbeddingService {
	if dimensions <= 0 {
		dimensions = defaultLocalDimensions
	}
	return &localEmbeddingService{dimensions: dimensions}
}

func (s *localEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrEmbeddingUnavailable, err)
	}
	return s.embed(text), nil
}

func (s *localEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(ErrEmbeddingUnavailable, err)
		}
		vectors[i] = s.embed(text)
	}
	return vectors, nil
}

func (s *localEmbeddingService) Dimensions() int {
	return s.dimensions
}

func (s *localEmbeddingService) Model() string {
	return LocalEmbeddingModel
}

func (s *localEmbeddingService) embed(text string) []float32 {
	vec := make([]float32, s.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for i, w := range words {
		s.add(vec, w, 1.0)
		if i > 0 {
			s.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func (s *localEmbeddingService) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(s.dimensions))
	// The top bit picks the sign, which keeps collisions from always adding up.
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

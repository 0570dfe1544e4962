package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hrygo/intellichat/store"
)

// StoreIndex persists records in the message_embedding table, so the index
// survives restarts and is shared by every process using the same database.
type StoreIndex struct {
	store *store.Store
	dims  int
	model string
}

// NewStoreIndex creates an index over s. Vectors must have exactly dims entries;
// model is recorded next to each vector.
func NewStoreIndex(s *store.Store, dims int, model string) *StoreIndex {
	return &StoreIndex{store: s, dims: dims, model: model}
}

func (x *StoreIndex) checkDims(vec []float32) error {
	if len(vec) == 0 || (x.dims > 0 && len(vec) != x.dims) {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), x.dims)
	}
	return nil
}

func (x *StoreIndex) Upsert(ctx context.Context, vec []float32, rec Record) (string, error) {
	if err := x.checkDims(vec); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	_, err := x.store.UpsertMessageEmbedding(ctx, &store.MessageEmbedding{
		VectorRef: rec.ID,
		MessageID: rec.MessageID,
		UserID:    rec.UserID,
		ChatID:    rec.ChatID,
		IsUser:    rec.IsUser,
		Content:   rec.Content,
		Embedding: vec,
		Model:     x.model,
	})
	if err != nil {
		return "", fmt.Errorf("upsert embedding %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

func (x *StoreIndex) Query(ctx context.Context, vec []float32, k int, filter Filter) ([]Result, error) {
	if filter.UserID == nil {
		return nil, ErrUserFilterRequired
	}
	if err := x.checkDims(vec); err != nil {
		return nil, err
	}

	hits, err := x.store.SearchMessageEmbeddings(ctx, &store.MessageEmbeddingSearchOptions{
		UserID: *filter.UserID,
		ChatID: filter.ChatID,
		Vector: vec,
		Limit:  normalizeK(k),
	})
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		e := hit.Embedding
		results = append(results, Result{
			Record: Record{
				ID:        e.VectorRef,
				MessageID: e.MessageID,
				UserID:    e.UserID,
				ChatID:    e.ChatID,
				IsUser:    e.IsUser,
				Content:   e.Content,
			},
			Score: hit.Score,
		})
	}
	return results, nil
}

func (x *StoreIndex) DeleteByFilter(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	n, err := x.store.DeleteMessageEmbeddings(ctx, &store.DeleteMessageEmbedding{
		VectorRef: filter.ID,
		UserID:    filter.UserID,
		ChatID:    filter.ChatID,
	})
	if err != nil {
		return 0, fmt.Errorf("delete embeddings: %w", err)
	}
	return int(n), nil
}

// Close is a no-op; the store is owned and closed by the server.
func (x *StoreIndex) Close() error {
	return nil
}

var _ Index = (*StoreIndex)(nil)

package store

import "context"

// MessageEmbedding is the persisted form of a vector index record.
type MessageEmbedding struct {
	ID        int32
	VectorRef string
	MessageID int32
	UserID    int32
	ChatID    int32
	IsUser    bool
	Content   string
	Embedding []float32
	Model     string
	CreatedTs int64
	UpdatedTs int64
}

// FindMessageEmbedding is the find condition for message embeddings.
type FindMessageEmbedding struct {
	VectorRef *string
	UserID    *int32
	ChatID    *int32
}

// DeleteMessageEmbedding requires at least one condition.
type DeleteMessageEmbedding struct {
	VectorRef *string
	UserID    *int32
	ChatID    *int32
}

// MessageEmbeddingWithScore represents a vector search result with similarity score.
type MessageEmbeddingWithScore struct {
	Embedding *MessageEmbedding
	Score     float32 // cosine similarity, higher is more similar
}

// MessageEmbeddingSearchOptions represents the options for vector search.
type MessageEmbeddingSearchOptions struct {
	UserID int32  // Required, only search embeddings of this user
	ChatID *int32 // Optional
	Vector []float32
	Limit  int
}

// UpsertMessageEmbedding inserts or replaces the embedding stored under VectorRef.
// A replaced row keeps its id, and with it its position in insertion order.
func (s *Store) UpsertMessageEmbedding(ctx context.Context, upsert *MessageEmbedding) (*MessageEmbedding, error) {
	return s.driver.UpsertMessageEmbedding(ctx, upsert)
}

func (s *Store) ListMessageEmbeddings(ctx context.Context, find *FindMessageEmbedding) ([]*MessageEmbedding, error) {
	return s.driver.ListMessageEmbeddings(ctx, find)
}

// SearchMessageEmbeddings returns the nearest embeddings of one user, by descending
// score then ascending id.
func (s *Store) SearchMessageEmbeddings(ctx context.Context, opts *MessageEmbeddingSearchOptions) ([]*MessageEmbeddingWithScore, error) {
	return s.driver.SearchMessageEmbeddings(ctx, opts)
}

func (s *Store) DeleteMessageEmbeddings(ctx context.Context, delete *DeleteMessageEmbedding) (int64, error) {
	return s.driver.DeleteMessageEmbeddings(ctx, delete)
}

// Package vector provides the similarity index over embedded chat messages.
//
// Every query is partitioned by user: a Filter without UserID is rejected, so a
// caller cannot read another user's history by forgetting a predicate.
package vector

import (
	"context"
	"errors"
)

// DefaultK is the number of neighbours returned when the caller passes k <= 0.
const DefaultK = 5

var (
	// ErrUserFilterRequired is returned by Query when Filter.UserID is nil.
	ErrUserFilterRequired = errors.New("vector: user filter is required")

	// ErrEmptyFilter is returned by DeleteByFilter when no predicate is set.
	ErrEmptyFilter = errors.New("vector: refusing to delete with an empty filter")

	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")
)

// Record is the metadata stored next to each vector.
type Record struct {
	// ID is the vector ref. Chat messages use their UID so that re-indexing overwrites.
	ID        string `json:"id"`
	MessageID int32  `json:"message_id"`
	UserID    int32  `json:"user_id"`
	ChatID    int32  `json:"chat_id"`
	IsUser    bool   `json:"is_user"`
	Content   string `json:"content"`
}

// Filter restricts a query or delete.
type Filter struct {
	UserID *int32
	ChatID *int32
	// ID restricts to a single record.
	ID *string
}

// ForUser returns a filter for all records of one user.
func ForUser(userID int32) Filter {
	return Filter{UserID: &userID}
}

// ForChat returns a filter for the records of one chat of one user.
func ForChat(userID, chatID int32) Filter {
	return Filter{UserID: &userID, ChatID: &chatID}
}

// ForRecord returns a filter for one record of one user.
func ForRecord(userID int32, id string) Filter {
	return Filter{UserID: &userID, ID: &id}
}

// IsEmpty reports whether no predicate is set.
func (f Filter) IsEmpty() bool {
	return f.UserID == nil && f.ChatID == nil && f.ID == nil
}

// Matches reports whether a record satisfies every predicate of the filter.
func (f Filter) Matches(rec *Record) bool {
	if f.UserID != nil && rec.UserID != *f.UserID {
		return false
	}
	if f.ChatID != nil && rec.ChatID != *f.ChatID {
		return false
	}
	if f.ID != nil && rec.ID != *f.ID {
		return false
	}
	return true
}

// Result is a query hit. Score is the cosine similarity, higher is closer.
type Result struct {
	Record
	Score float32 `json:"score"`
}

// Index is a similarity index partitioned by user.
type Index interface {
	// Upsert stores vec under rec.ID, or under a generated id when rec.ID is empty,
	// and returns the id. Writing an existing id replaces its vector and metadata
	// but keeps its original insertion position.
	Upsert(ctx context.Context, vec []float32, rec Record) (string, error)

	// Query returns up to k records nearest to vec, by descending score with ties
	// broken by insertion order. An empty partition yields an empty slice.
	Query(ctx context.Context, vec []float32, k int, filter Filter) ([]Result, error)

	// DeleteByFilter removes every matching record and returns how many were removed.
	DeleteByFilter(ctx context.Context, filter Filter) (int, error)

	// Close releases resources held by the index.
	Close() error
}

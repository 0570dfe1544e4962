package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	ListSystemSettings(ctx context.Context, find *FindSystemSetting) ([]*SystemSetting, error)

	// Chat model related methods.
	CreateChat(ctx context.Context, create *Chat) (*Chat, error)
	ListChats(ctx context.Context, find *FindChat) ([]*Chat, error)
	UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error)
	// DeleteChat removes the chat row and all of its messages in one transaction.
	DeleteChat(ctx context.Context, delete *DeleteChat) error

	// Message model related methods.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	UpdateMessage(ctx context.Context, update *UpdateMessage) error
	// ClearMessageVectorRefs empties vector_ref on every message and returns the number of rows changed.
	ClearMessageVectorRefs(ctx context.Context) (int64, error)

	// MessageEmbedding model related methods.
	UpsertMessageEmbedding(ctx context.Context, upsert *MessageEmbedding) (*MessageEmbedding, error)
	ListMessageEmbeddings(ctx context.Context, find *FindMessageEmbedding) ([]*MessageEmbedding, error)
	SearchMessageEmbeddings(ctx context.Context, opts *MessageEmbeddingSearchOptions) ([]*MessageEmbeddingWithScore, error)
	DeleteMessageEmbeddings(ctx context.Context, delete *DeleteMessageEmbedding) (int64, error)
}

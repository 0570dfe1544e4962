package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/hrygo/intellichat/plugin/ai"
	"github.com/hrygo/intellichat/plugin/ai/timeout"
	"github.com/hrygo/intellichat/plugin/ai/vector"
	errs "github.com/hrygo/intellichat/server/internal/errors"
	"github.com/hrygo/intellichat/store"
)

// Indexer writes messages into the vector index and records the resulting
// vector ref on the message. Records are keyed by message UID, so indexing a
// message twice overwrites its record.
type Indexer struct {
	store    *store.Store
	embedder ai.EmbeddingService
	index    vector.Index

	embeddingTimeout time.Duration
	indexTimeout     time.Duration
}

func NewIndexer(s *store.Store, embedder ai.EmbeddingService, index vector.Index) *Indexer {
	return &Indexer{
		store:            s,
		embedder:         embedder,
		index:            index,
		embeddingTimeout: timeout.EmbeddingTimeout,
		indexTimeout:     timeout.IndexTimeout,
	}
}

// IndexMessage embeds and indexes one message. On success msg.VectorRef is set.
// Errors are *errs.AIError with EMBEDDING_UNAVAILABLE or INDEX_UPSERT_FAILURE.
func (x *Indexer) IndexMessage(ctx context.Context, msg *store.Message) error {
	embedCtx, cancel := context.WithTimeout(ctx, x.embeddingTimeout)
	vec, err := x.embedder.Embed(embedCtx, msg.Content)
	cancel()
	if err != nil {
		return errs.EmbeddingUnavailable(err)
	}
	return x.upsert(ctx, msg, vec)
}

// IndexBatch embeds msgs in one call and indexes each. It returns the number of
// messages indexed; a failing upsert skips that message only.
func (x *Indexer) IndexBatch(ctx context.Context, msgs []*store.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Content
	}

	embedCtx, cancel := context.WithTimeout(ctx, x.embeddingTimeout)
	vectors, err := x.embedder.EmbedBatch(embedCtx, texts)
	cancel()
	if err != nil {
		return 0, errs.EmbeddingUnavailable(err)
	}
	if len(vectors) != len(msgs) {
		return 0, errs.EmbeddingUnavailable(fmt.Errorf("expected %d vectors, got %d", len(msgs), len(vectors)))
	}

	indexed := 0
	var firstErr error
	for i, m := range msgs {
		if err := x.upsert(ctx, m, vectors[i]); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		indexed++
	}
	return indexed, firstErr
}

// DeleteChat removes every record of the chat.
func (x *Indexer) DeleteChat(ctx context.Context, userID, chatID int32) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, x.indexTimeout)
	defer cancel()
	return x.index.DeleteByFilter(ctx, vector.ForChat(userID, chatID))
}

func (x *Indexer) upsert(ctx context.Context, msg *store.Message, vec []float32) error {
	ctx, cancel := context.WithTimeout(ctx, x.indexTimeout)
	defer cancel()

	ref, err := x.index.Upsert(ctx, vec, recordFor(msg))
	if err != nil {
		return errs.IndexUpsertFailure(err)
	}
	if err := x.store.UpdateMessage(ctx, &store.UpdateMessage{ID: msg.ID, VectorRef: &ref}); err != nil {
		// The message may have been deleted since it was read; a record must not outlive it.
		if _, rollbackErr := x.index.DeleteByFilter(ctx, vector.ForRecord(msg.UserID, ref)); rollbackErr != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rollbackErr)
		}
		return errs.IndexUpsertFailure(fmt.Errorf("record vector ref: %w", err))
	}
	msg.VectorRef = ref
	return nil
}

func recordFor(msg *store.Message) vector.Record {
	return vector.Record{
		ID:        msg.UID,
		MessageID: msg.ID,
		UserID:    msg.UserID,
		ChatID:    msg.ChatID,
		IsUser:    msg.IsUser(),
		Content:   msg.Content,
	}
}

// Package embedding runs the background backfill that indexes messages the
// request path could not.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/intellichat/server/internal/observability"
	"github.com/hrygo/intellichat/server/service/chat"
	"github.com/hrygo/intellichat/store"
)

const (
	defaultInterval  = 2 * time.Minute
	defaultBatchSize = 8
)

// Runner periodically finds messages without a vector ref and indexes them.
// Degraded replies are never indexed.
type Runner struct {
	store          *store.Store
	indexer        *chat.Indexer
	metrics        *observability.Metrics
	interval       time.Duration
	batchSize      int
	indexAssistant bool
}

// NewRunner creates a backfill runner. indexAssistant mirrors the request path:
// when false only user messages are indexed. metrics may be nil.
func NewRunner(s *store.Store, indexer *chat.Indexer, metrics *observability.Metrics, indexAssistant bool) *Runner {
	return &Runner{
		store:          s,
		indexer:        indexer,
		metrics:        metrics,
		interval:       defaultInterval,
		batchSize:      defaultBatchSize,
		indexAssistant: indexAssistant,
	}
}

// Run processes once on start, then every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

// RunOnce pages through pending messages in id order and indexes them. Each
// message is tried at most once per pass, so messages that keep failing do not
// hide newer ones. It returns the number of messages indexed.
func (r *Runner) RunOnce(ctx context.Context) int {
	total := 0
	var lastSeen int32
	for {
		msgs, err := r.findPending(ctx, lastSeen)
		if err != nil {
			slog.Error("failed to find messages without embedding", "error", err)
			return total
		}
		if len(msgs) == 0 {
			return total
		}

		slog.Info("processing messages for embedding", "count", len(msgs), "after_id", lastSeen)
		total += r.processMessages(ctx, msgs)
		if ctx.Err() != nil {
			return total
		}
		lastSeen = msgs[len(msgs)-1].ID
	}
}

func (r *Runner) processMessages(ctx context.Context, msgs []*store.Message) int {
	indexed := 0
	for i := 0; i < len(msgs); i += r.batchSize {
		select {
		case <-ctx.Done():
			slog.Info("embedding processing cancelled", "processed", i, "total", len(msgs))
			return indexed
		default:
		}

		end := min(i+r.batchSize, len(msgs))
		batch := msgs[i:end]

		n, err := r.indexer.IndexBatch(ctx, batch)
		indexed += n
		r.metrics.RecordBackfill(observability.OutcomeOK, n)
		r.metrics.RecordBackfill(observability.OutcomeFailed, len(batch)-n)
		if err != nil {
			slog.Error("failed to process batch", "error", err, "indexed", n, "size", len(batch))
			continue
		}
		slog.Info("batch processed", "count", len(batch), "progress", fmt.Sprintf("%d/%d", end, len(msgs)))
	}
	return indexed
}

func (r *Runner) findPending(ctx context.Context, afterID int32) ([]*store.Message, error) {
	hasRef, degraded := false, false
	limit := r.batchSize * 20
	find := &store.FindMessage{
		AfterID:      &afterID,
		HasVectorRef: &hasRef,
		Degraded:     &degraded,
		Limit:        &limit,
	}
	if !r.indexAssistant {
		role := store.MessageRoleUser
		find.Role = &role
	}
	return r.store.ListMessages(ctx, find)
}

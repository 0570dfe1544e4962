package sqlite

import (
	"context"
	"slices"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/intellichat/plugin/ai/vector"
	"github.com/hrygo/intellichat/store"
)

// Vectors are stored as pgvector's text form ("[0.1,0.2]") in a TEXT column.

func (d *DB) UpsertMessageEmbedding(ctx context.Context, upsert *store.MessageEmbedding) (*store.MessageEmbedding, error) {
	stmt := `
		INSERT INTO message_embedding (vector_ref, message_id, user_id, chat_id, is_user, content, embedding, model)
		VALUES (` + placeholders(8) + `)
		ON CONFLICT(vector_ref) DO UPDATE SET
			message_id = EXCLUDED.message_id,
			user_id = EXCLUDED.user_id,
			chat_id = EXCLUDED.chat_id,
			is_user = EXCLUDED.is_user,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			updated_ts = strftime('%s', 'now')
		RETURNING id, created_ts, updated_ts`

	err := d.db.QueryRowContext(ctx, stmt,
		upsert.VectorRef,
		upsert.MessageID,
		upsert.UserID,
		upsert.ChatID,
		upsert.IsUser,
		upsert.Content,
		pgvector.NewVector(upsert.Embedding),
		upsert.Model,
	).Scan(&upsert.ID, &upsert.CreatedTs, &upsert.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert message embedding")
	}
	return upsert, nil
}

func (d *DB) ListMessageEmbeddings(ctx context.Context, find *store.FindMessageEmbedding) ([]*store.MessageEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.VectorRef != nil {
		where, args = append(where, "vector_ref = ?"), append(args, *find.VectorRef)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.ChatID != nil {
		where, args = append(where, "chat_id = ?"), append(args, *find.ChatID)
	}

	query := `
		SELECT id, vector_ref, message_id, user_id, chat_id, is_user, content, embedding, model, created_ts, updated_ts
		FROM message_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list message embeddings")
	}
	defer rows.Close()

	list := []*store.MessageEmbedding{}
	for rows.Next() {
		var e store.MessageEmbedding
		var raw []byte
		if err := rows.Scan(
			&e.ID, &e.VectorRef, &e.MessageID, &e.UserID, &e.ChatID, &e.IsUser,
			&e.Content, &raw, &e.Model, &e.CreatedTs, &e.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan message embedding")
		}
		var vec pgvector.Vector
		if err := vec.Scan(raw); err != nil {
			return nil, errors.Wrapf(err, "failed to decode embedding %s", e.VectorRef)
		}
		e.Embedding = vec.Slice()
		list = append(list, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// SearchMessageEmbeddings scores every embedding of the user in Go. Rows whose
// dimension differs from the query were written by another model and are skipped.
func (d *DB) SearchMessageEmbeddings(ctx context.Context, opts *store.MessageEmbeddingSearchOptions) ([]*store.MessageEmbeddingWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = vector.DefaultK
	}

	userID := opts.UserID
	candidates, err := d.ListMessageEmbeddings(ctx, &store.FindMessageEmbedding{
		UserID: &userID,
		ChatID: opts.ChatID,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*store.MessageEmbeddingWithScore, 0, len(candidates))
	for _, e := range candidates {
		if len(e.Embedding) != len(opts.Vector) {
			continue
		}
		results = append(results, &store.MessageEmbeddingWithScore{
			Embedding: e,
			Score:     vector.CosineSimilarity(opts.Vector, e.Embedding),
		})
	}

	// Candidates arrive in id order, so a stable sort keeps ties in insertion order.
	slices.SortStableFunc(results, func(a, b *store.MessageEmbeddingWithScore) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (d *DB) DeleteMessageEmbeddings(ctx context.Context, delete *store.DeleteMessageEmbedding) (int64, error) {
	where, args := []string{}, []any{}
	if delete.VectorRef != nil {
		where, args = append(where, "vector_ref = ?"), append(args, *delete.VectorRef)
	}
	if delete.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *delete.UserID)
	}
	if delete.ChatID != nil {
		where, args = append(where, "chat_id = ?"), append(args, *delete.ChatID)
	}
	if len(where) == 0 {
		return 0, errors.New("no condition to delete")
	}

	result, err := d.db.ExecContext(ctx, `DELETE FROM message_embedding WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete message embeddings")
	}
	return result.RowsAffected()
}

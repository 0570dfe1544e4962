package postgres

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/intellichat/store"
)

// UpsertMessageEmbedding inserts or updates a message embedding keyed by vector_ref.
func (d *DB) UpsertMessageEmbedding(ctx context.Context, upsert *store.MessageEmbedding) (*store.MessageEmbedding, error) {
	stmt := `
		INSERT INTO message_embedding (vector_ref, message_id, user_id, chat_id, is_user, content, embedding, model)
		VALUES (` + placeholders(8) + `)
		ON CONFLICT (vector_ref)
		DO UPDATE SET
			message_id = EXCLUDED.message_id,
			user_id = EXCLUDED.user_id,
			chat_id = EXCLUDED.chat_id,
			is_user = EXCLUDED.is_user,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			updated_ts = EXTRACT(EPOCH FROM NOW())::BIGINT
		RETURNING id, created_ts, updated_ts
	`

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

// ListMessageEmbeddings lists message embeddings in insertion order.
func (d *DB) ListMessageEmbeddings(ctx context.Context, find *store.FindMessageEmbedding) ([]*store.MessageEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.VectorRef != nil {
		where, args = append(where, "vector_ref = "+placeholder(len(args)+1)), append(args, *find.VectorRef)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.ChatID != nil {
		where, args = append(where, "chat_id = "+placeholder(len(args)+1)), append(args, *find.ChatID)
	}

	query := `
		SELECT id, vector_ref, message_id, user_id, chat_id, is_user, content, embedding, model, created_ts, updated_ts
		FROM message_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list message embeddings")
	}
	defer rows.Close()

	list := []*store.MessageEmbedding{}
	for rows.Next() {
		var e store.MessageEmbedding
		var vector pgvector.Vector
		if err := rows.Scan(
			&e.ID, &e.VectorRef, &e.MessageID, &e.UserID, &e.ChatID, &e.IsUser,
			&e.Content, &vector, &e.Model, &e.CreatedTs, &e.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan message embedding")
		}
		e.Embedding = vector.Slice()
		list = append(list, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// SearchMessageEmbeddings performs cosine similarity search using pgvector.
// The <=> operator computes cosine distance (1 - cosine similarity), so rows are
// ordered by distance ascending, then by id for a stable tie order. Rows of
// another dimension are skipped.
func (d *DB) SearchMessageEmbeddings(ctx context.Context, opts *store.MessageEmbeddingSearchOptions) ([]*store.MessageEmbeddingWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	vector := pgvector.NewVector(opts.Vector)
	where, args := []string{"user_id = " + placeholder(2)}, []any{vector, opts.UserID}
	if opts.ChatID != nil {
		where, args = append(where, "chat_id = "+placeholder(len(args)+1)), append(args, *opts.ChatID)
	}
	// <=> rejects operands of different dimensions, and the column is untyped.
	where, args = append(where, "vector_dims(embedding) = "+placeholder(len(args)+1)), append(args, len(opts.Vector))
	args = append(args, limit)

	query := `
		SELECT id, vector_ref, message_id, user_id, chat_id, is_user, content, model, created_ts, updated_ts,
			1 - (embedding <=> ` + placeholder(1) + `) AS score
		FROM message_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY embedding <=> ` + placeholder(1) + `, id ASC
		LIMIT ` + placeholder(len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search message embeddings")
	}
	defer rows.Close()

	results := []*store.MessageEmbeddingWithScore{}
	for rows.Next() {
		e := &store.MessageEmbedding{}
		var score float64
		if err := rows.Scan(
			&e.ID, &e.VectorRef, &e.MessageID, &e.UserID, &e.ChatID, &e.IsUser,
			&e.Content, &e.Model, &e.CreatedTs, &e.UpdatedTs, &score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		results = append(results, &store.MessageEmbeddingWithScore{Embedding: e, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteMessageEmbeddings deletes embeddings matching the condition.
func (d *DB) DeleteMessageEmbeddings(ctx context.Context, delete *store.DeleteMessageEmbedding) (int64, error) {
	where, args := []string{}, []any{}
	if delete.VectorRef != nil {
		where, args = append(where, "vector_ref = "+placeholder(len(args)+1)), append(args, *delete.VectorRef)
	}
	if delete.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *delete.UserID)
	}
	if delete.ChatID != nil {
		where, args = append(where, "chat_id = "+placeholder(len(args)+1)), append(args, *delete.ChatID)
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

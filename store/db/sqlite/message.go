package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/intellichat/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	fields := []string{"uid", "chat_id", "user_id", "role", "content", "vector_ref", "degraded"}
	args := []any{create.UID, create.ChatID, create.UserID, string(create.Role), create.Content, create.VectorRef, create.Degraded}
	if create.CreatedTs != 0 {
		fields, args = append(fields, "created_ts"), append(args, create.CreatedTs)
	}

	stmt := `INSERT INTO message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID, &create.CreatedTs); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.ChatID != nil {
		where, args = append(where, "chat_id = ?"), append(args, *find.ChatID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.BeforeID != nil {
		where, args = append(where, "id < ?"), append(args, *find.BeforeID)
	}
	if find.AfterID != nil {
		where, args = append(where, "id > ?"), append(args, *find.AfterID)
	}
	if find.HasVectorRef != nil {
		if *find.HasVectorRef {
			where = append(where, "vector_ref != ''")
		} else {
			where = append(where, "vector_ref = ''")
		}
	}
	if find.Degraded != nil {
		where, args = append(where, "degraded = ?"), append(args, *find.Degraded)
	}
	if find.Role != nil {
		where, args = append(where, "role = ?"), append(args, string(*find.Role))
	}

	order := "ASC"
	if find.Newest {
		order = "DESC"
	}
	query := `SELECT id, uid, chat_id, user_id, role, content, vector_ref, degraded, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ` + order
	if find.Limit != nil {
		query, args = query+" LIMIT ?", append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var role string
		if err := rows.Scan(&m.ID, &m.UID, &m.ChatID, &m.UserID, &role, &m.Content, &m.VectorRef, &m.Degraded, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = store.MessageRole(role)
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateMessage(ctx context.Context, update *store.UpdateMessage) error {
	if update.VectorRef == nil {
		return fmt.Errorf("no fields to update")
	}
	result, err := d.db.ExecContext(ctx, `UPDATE message SET vector_ref = ? WHERE id = ?`, *update.VectorRef, update.ID)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("message not found")
	}
	return nil
}

func (d *DB) ClearMessageVectorRefs(ctx context.Context) (int64, error) {
	result, err := d.db.ExecContext(ctx, `UPDATE message SET vector_ref = '' WHERE vector_ref != ''`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear vector refs: %w", err)
	}
	return result.RowsAffected()
}

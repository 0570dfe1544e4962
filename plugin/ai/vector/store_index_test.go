package vector_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/intellichat/plugin/ai/vector"
	"github.com/hrygo/intellichat/store"
	storetest "github.com/hrygo/intellichat/store/test"
)

// newMessageFactory creates real chats and messages so record ids point at
// rows that exist, as they do in production.
func newMessageFactory(t *testing.T, ts *store.Store) vector.RecordFactory {
	chats := map[string]*store.Chat{}
	return func(userID int32, chat int, isUser bool, content string) vector.Record {
		ctx := context.Background()
		key := fmt.Sprintf("%d/%d", userID, chat)
		c, ok := chats[key]
		if !ok {
			var err error
			c, err = ts.CreateChat(ctx, &store.Chat{UID: shortuuid.New(), UserID: userID, Title: key})
			require.NoError(t, err)
			chats[key] = c
		}

		role := store.MessageRoleAssistant
		if isUser {
			role = store.MessageRoleUser
		}
		msg, err := ts.CreateMessage(ctx, &store.Message{
			UID:     shortuuid.New(),
			ChatID:  c.ID,
			UserID:  userID,
			Role:    role,
			Content: content,
		})
		require.NoError(t, err)

		return vector.Record{
			ID:        msg.UID,
			MessageID: msg.ID,
			UserID:    userID,
			ChatID:    c.ID,
			IsUser:    isUser,
			Content:   content,
		}
	}
}

func TestStoreIndexContract(t *testing.T) {
	vector.RunIndexContract(t, func(t *testing.T) (vector.Index, vector.RecordFactory) {
		ts := storetest.NewTestingStore(context.Background(), t)
		return vector.NewStoreIndex(ts, 3, "test-model"), newMessageFactory(t, ts)
	})
}

func TestStoreIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	idx := vector.NewStoreIndex(ts, 3, "test-model")
	newRecord := newMessageFactory(t, ts)

	_, err := idx.Upsert(ctx, []float32{1, 0}, newRecord(1, 1, true, "short"))
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	_, err = idx.Query(ctx, []float32{1, 0, 0, 0}, 5, vector.ForUser(1))
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestStoreIndexPersistsModel(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	idx := vector.NewStoreIndex(ts, 3, "local-hash-v1")
	rec := newMessageFactory(t, ts)(7, 1, true, "persisted")

	id, err := idx.Upsert(ctx, []float32{0, 0, 1}, rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, id)

	list, err := ts.ListMessageEmbeddings(ctx, &store.FindMessageEmbedding{VectorRef: &id})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "local-hash-v1", list[0].Model)
	assert.Equal(t, rec.MessageID, list[0].MessageID)

	// A second index over the same store sees the record, as after a restart.
	reopened := vector.NewStoreIndex(ts, 3, "local-hash-v1")
	results, err := reopened.Query(ctx, []float32{0, 0, 1}, 1, vector.ForUser(7))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Content)
}

package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RecordFactory returns a record for a fresh message in the given chat of the
// user. chat is a small per-user number; implementations map it to real ids.
type RecordFactory func(userID int32, chat int, isUser bool, content string) Record

// RunIndexContract checks the behaviour every Index implementation must share.
// Indexes are expected to hold 3-dimensional vectors.
func RunIndexContract(t *testing.T, newIndex func(t *testing.T) (Index, RecordFactory)) {
	t.Run("empty partition", func(t *testing.T) {
		idx, _ := newIndex(t)
		results, err := idx.Query(context.Background(), []float32{1, 0, 0}, 5, ForUser(404))
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("user filter required", func(t *testing.T) {
		idx, _ := newIndex(t)
		_, err := idx.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{})
		assert.ErrorIs(t, err, ErrUserFilterRequired)

		chatID := int32(1)
		_, err = idx.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{ChatID: &chatID})
		assert.ErrorIs(t, err, ErrUserFilterRequired)
	})

	t.Run("tenant isolation", func(t *testing.T) {
		ctx := context.Background()
		idx, newRecord := newIndex(t)
		vec := []float32{0.3, 0.4, 0.5}

		_, err := idx.Upsert(ctx, vec, newRecord(1, 1, true, "same text"))
		require.NoError(t, err)
		_, err = idx.Upsert(ctx, vec, newRecord(2, 1, true, "same text"))
		require.NoError(t, err)

		for _, userID := range []int32{1, 2} {
			results, err := idx.Query(ctx, vec, 10, ForUser(userID))
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, userID, results[0].UserID)
		}
	})

	t.Run("ordering", func(t *testing.T) {
		ctx := context.Background()
		idx, newRecord := newIndex(t)

		far, err := idx.Upsert(ctx, []float32{0, 1, 0}, newRecord(1, 1, true, "far"))
		require.NoError(t, err)
		tieA, err := idx.Upsert(ctx, []float32{1, 0, 0}, newRecord(1, 1, false, "tie a"))
		require.NoError(t, err)
		near, err := idx.Upsert(ctx, []float32{1, 0.2, 0}, newRecord(1, 1, true, "near"))
		require.NoError(t, err)
		tieB, err := idx.Upsert(ctx, []float32{2, 0, 0}, newRecord(1, 1, true, "tie b"))
		require.NoError(t, err)

		results, err := idx.Query(ctx, []float32{1, 0, 0}, 10, ForUser(1))
		require.NoError(t, err)
		require.Len(t, results, 4)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
		}
		assert.Equal(t, []string{tieA, tieB, near, far}, resultIDs(results))
		assert.False(t, results[0].IsUser)
		assert.Equal(t, "tie a", results[0].Content)

		top, err := idx.Query(ctx, []float32{1, 0, 0}, 2, ForUser(1))
		require.NoError(t, err)
		assert.Equal(t, []string{tieA, tieB}, resultIDs(top))
	})

	t.Run("idempotent upsert", func(t *testing.T) {
		ctx := context.Background()
		idx, newRecord := newIndex(t)

		first := newRecord(1, 1, true, "first")
		firstID, err := idx.Upsert(ctx, []float32{1, 0, 0}, first)
		require.NoError(t, err)
		first.ID = firstID
		_, err = idx.Upsert(ctx, []float32{1, 0, 0}, newRecord(1, 1, true, "second"))
		require.NoError(t, err)

		before, err := idx.Query(ctx, []float32{1, 0, 0}, 10, ForUser(1))
		require.NoError(t, err)

		id, err := idx.Upsert(ctx, []float32{1, 0, 0}, first)
		require.NoError(t, err)
		assert.Equal(t, firstID, id)

		after, err := idx.Query(ctx, []float32{1, 0, 0}, 10, ForUser(1))
		require.NoError(t, err)
		assert.Equal(t, before, after)

		// Overwriting keeps the record's original position among ties.
		first.Content = "first, edited"
		_, err = idx.Upsert(ctx, []float32{1, 0, 0}, first)
		require.NoError(t, err)
		edited, err := idx.Query(ctx, []float32{1, 0, 0}, 10, ForUser(1))
		require.NoError(t, err)
		require.Len(t, edited, 2)
		assert.Equal(t, firstID, edited[0].ID)
		assert.Equal(t, "first, edited", edited[0].Content)
	})

	t.Run("delete by chat", func(t *testing.T) {
		ctx := context.Background()
		idx, newRecord := newIndex(t)

		doomed := newRecord(1, 1, true, "doomed")
		_, err := idx.Upsert(ctx, []float32{1, 0, 0}, doomed)
		require.NoError(t, err)
		_, err = idx.Upsert(ctx, []float32{1, 0, 0}, newRecord(1, 1, false, "doomed reply"))
		require.NoError(t, err)
		kept := newRecord(1, 2, true, "kept")
		_, err = idx.Upsert(ctx, []float32{1, 0, 0}, kept)
		require.NoError(t, err)
		other := newRecord(2, 1, true, "other user")
		_, err = idx.Upsert(ctx, []float32{1, 0, 0}, other)
		require.NoError(t, err)

		_, err = idx.DeleteByFilter(ctx, Filter{})
		assert.ErrorIs(t, err, ErrEmptyFilter)

		n, err := idx.DeleteByFilter(ctx, ForChat(1, doomed.ChatID))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		results, err := idx.Query(ctx, []float32{1, 0, 0}, 10, ForUser(1))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "kept", results[0].Content)

		results, err = idx.Query(ctx, []float32{1, 0, 0}, 10, ForUser(2))
		require.NoError(t, err)
		assert.Len(t, results, 1)

		n, err = idx.DeleteByFilter(ctx, ForChat(1, doomed.ChatID))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("delete single record", func(t *testing.T) {
		ctx := context.Background()
		idx, newRecord := newIndex(t)

		doomed := newRecord(1, 1, true, "doomed")
		_, err := idx.Upsert(ctx, []float32{1, 0, 0}, doomed)
		require.NoError(t, err)
		_, err = idx.Upsert(ctx, []float32{1, 0, 0}, newRecord(1, 1, false, "sibling"))
		require.NoError(t, err)

		// Another user's filter must not reach the record.
		n, err := idx.DeleteByFilter(ctx, ForRecord(2, doomed.ID))
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = idx.DeleteByFilter(ctx, ForRecord(1, doomed.ID))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		results, err := idx.Query(ctx, []float32{1, 0, 0}, 10, ForUser(1))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "sibling", results[0].Content)
	})

	t.Run("chat filter", func(t *testing.T) {
		ctx := context.Background()
		idx, newRecord := newIndex(t)

		inChat := newRecord(1, 1, true, "in chat")
		_, err := idx.Upsert(ctx, []float32{1, 0, 0}, inChat)
		require.NoError(t, err)
		_, err = idx.Upsert(ctx, []float32{1, 0, 0}, newRecord(1, 2, true, "elsewhere"))
		require.NoError(t, err)

		results, err := idx.Query(ctx, []float32{1, 0, 0}, 10, ForChat(1, inChat.ChatID))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "in chat", results[0].Content)
	})
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

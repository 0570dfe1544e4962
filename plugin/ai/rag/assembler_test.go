package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/intellichat/plugin/ai"
	"github.com/hrygo/intellichat/plugin/ai/vector"
)

// fakeEmbedder returns fixed vectors by text.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Model() string   { return "fake" }

func seed(t *testing.T, idx vector.Index, vec []float32, rec vector.Record) {
	t.Helper()
	_, err := idx.Upsert(context.Background(), vec, rec)
	require.NoError(t, err)
}

func TestAssembleGolden(t *testing.T) {
	idx := vector.NewMemoryIndex(3)
	seed(t, idx, []float32{1, 0, 0}, vector.Record{ID: "m1", MessageID: 1, UserID: 1, IsUser: true, Content: "I love hiking in the Alps."})
	seed(t, idx, []float32{0.9, 0.1, 0}, vector.Record{ID: "m2", MessageID: 2, UserID: 1, IsUser: false, Content: "The Alps have great trails."})
	seed(t, idx, []float32{0, 1, 0}, vector.Record{ID: "m3", MessageID: 3, UserID: 1, IsUser: true, Content: "Unrelated."})

	embedder := &fakeEmbedder{vectors: map[string][]float32{"Where should I hike?": {1, 0, 0}}}
	assembled, err := NewAssembler(embedder, idx, 0).Assemble(context.Background(), AssembleRequest{
		UserID: 1,
		Query:  "Where should I hike?",
		K:      2,
	})
	require.NoError(t, err)

	want := "Use the background below from my previous conversations only if it is relevant to the question. If it does not help, answer normally and do not mention it.\n\n" +
		"Relevant information from previous conversations:\n\n" +
		"1. [User]: I love hiking in the Alps.\n\n" +
		"2. [AI]: The Alps have great trails.\n\n"
	assert.Equal(t, want, assembled.Block)
	require.Len(t, assembled.Entries, 2)
	assert.Equal(t, "m1", assembled.Entries[0].ID)

	assert.Equal(t, want+"Question: Where should I hike?", ComposePrompt(assembled.Block, "Where should I hike?"))
}

func TestAssembleEmptyPartition(t *testing.T) {
	idx := vector.NewMemoryIndex(3)
	seed(t, idx, []float32{1, 0, 0}, vector.Record{ID: "other", MessageID: 1, UserID: 2, IsUser: true, Content: "someone else"})

	for _, query := range []string{"", "anything", "someone else"} {
		assembled, err := NewAssembler(&fakeEmbedder{}, idx, 0).Assemble(context.Background(), AssembleRequest{UserID: 1, Query: query})
		require.NoError(t, err)
		assert.True(t, assembled.IsEmpty())
		assert.Empty(t, assembled.Entries)
	}
	assert.Equal(t, "plain question", ComposePrompt("", "plain question"))
}

func TestAssembleExcludesCurrentMessage(t *testing.T) {
	idx := vector.NewMemoryIndex(3)
	seed(t, idx, []float32{1, 0, 0}, vector.Record{ID: "current", MessageID: 10, UserID: 1, IsUser: true, Content: "current question"})
	seed(t, idx, []float32{0.8, 0.2, 0}, vector.Record{ID: "older", MessageID: 4, UserID: 1, IsUser: true, Content: "older question"})

	embedder := &fakeEmbedder{vectors: map[string][]float32{"current question": {1, 0, 0}}}
	assembled, err := NewAssembler(embedder, idx, 0).Assemble(context.Background(), AssembleRequest{
		UserID:            1,
		Query:             "current question",
		K:                 1,
		ExcludeMessageIDs: []int32{10},
	})
	require.NoError(t, err)
	require.Len(t, assembled.Entries, 1)
	assert.Equal(t, "older", assembled.Entries[0].ID)
	assert.NotContains(t, assembled.Block, "current question")
}

func TestAssembleEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: fmt.Errorf("%w: model offline", ai.ErrEmbeddingUnavailable)}
	_, err := NewAssembler(embedder, vector.NewMemoryIndex(3), 0).Assemble(context.Background(), AssembleRequest{UserID: 1, Query: "q"})
	assert.ErrorIs(t, err, ai.ErrEmbeddingUnavailable)
}

func TestAssembleWithLocalEmbedder(t *testing.T) {
	ctx := context.Background()
	embedder := ai.NewLocalEmbeddingService(256)
	idx := vector.NewMemoryIndex(embedder.Dimensions())

	history := []string{
		"How do I bake sourdough bread at home?",
		"What is the best way to learn the Go programming language?",
		"Recommend a few hiking trails near Denver.",
	}
	for i, text := range history {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		seed(t, idx, vec, vector.Record{ID: fmt.Sprint(i), MessageID: int32(i + 1), UserID: 1, IsUser: true, Content: text})
	}

	assembled, err := NewAssembler(embedder, idx, 0).Assemble(ctx, AssembleRequest{
		UserID: 1,
		Query:  "Which resources help to learn the Go programming language quickly?",
		K:      3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, assembled.Entries)
	assert.Equal(t, history[1], assembled.Entries[0].Content)
	assert.True(t, strings.Contains(assembled.Block, "1. [User]: "+history[1]))
}

func TestRenderBudget(t *testing.T) {
	entries := []vector.Result{
		{Record: vector.Record{IsUser: true, Content: "short one"}},
		{Record: vector.Record{IsUser: false, Content: strings.Repeat("x", 100)}},
		{Record: vector.Record{IsUser: true, Content: "never reached"}},
	}
	overhead := utf8.RuneCountInString(Instruction + Header)

	t.Run("stops at the first entry that does not fit", func(t *testing.T) {
		block, used := Render(entries, overhead+len("1. [User]: short one\n\n")+10)
		assert.Equal(t, 1, used)
		assert.Equal(t, Instruction+Header+"1. [User]: short one\n\n", block)
		assert.NotContains(t, block, "never reached")
	})

	t.Run("truncates the first entry when nothing fits", func(t *testing.T) {
		long := []vector.Result{{Record: vector.Record{IsUser: true, Content: "äöü" + strings.Repeat("z", 50)}}}
		max := overhead + 30
		block, used := Render(long, max)
		assert.Equal(t, 1, used)
		assert.Equal(t, max, utf8.RuneCountInString(block))
		assert.True(t, strings.HasSuffix(block, "...\n\n"))
		assert.True(t, strings.HasPrefix(block, Instruction+Header+"1. [User]: äöü"))
	})

	t.Run("budget too small for anything", func(t *testing.T) {
		block, used := Render(entries, overhead+5)
		assert.Empty(t, block)
		assert.Zero(t, used)
	})

	t.Run("no entries", func(t *testing.T) {
		block, used := Render(nil, 100)
		assert.Empty(t, block)
		assert.Zero(t, used)
	})
}

func TestAssembleIndexFailure(t *testing.T) {
	idx := vector.NewMemoryIndex(4)
	_, err := NewAssembler(&fakeEmbedder{}, idx, 0).Assemble(context.Background(), AssembleRequest{UserID: 1, Query: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, vector.ErrDimensionMismatch))
}

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/intellichat/internal/profile"
	"github.com/hrygo/intellichat/plugin/ai"
	"github.com/hrygo/intellichat/plugin/ai/vector"
	"github.com/hrygo/intellichat/store"
	storetest "github.com/hrygo/intellichat/store/test"
)

func testProfile(index string) *profile.Profile {
	return &profile.Profile{Mode: "dev", Addr: "127.0.0.1", Port: 0, VectorIndex: index, Version: "test"}
}

func TestNewServerRequiresDeps(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)
	_, err := NewServer(ctx, testProfile("store"), s, &ai.Config{}, Deps{})
	require.Error(t, err)
}

func TestNewServerResetsRefsForMemoryIndex(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)
	c, err := s.CreateChat(ctx, &store.Chat{UID: shortuuid.New(), UserID: 1, Title: "old"})
	require.NoError(t, err)
	msg, err := s.CreateMessage(ctx, &store.Message{UID: shortuuid.New(), ChatID: c.ID, UserID: 1, Role: store.MessageRoleUser, Content: "indexed before restart"})
	require.NoError(t, err)
	ref := msg.UID
	require.NoError(t, s.UpdateMessage(ctx, &store.UpdateMessage{ID: msg.ID, VectorRef: &ref}))

	p := testProfile("memory")
	embedder := ai.NewLocalEmbeddingService(64)
	index := NewVectorIndex(p, s, embedder)
	require.IsType(t, &vector.MemoryIndex{}, index)

	srv, err := NewServer(ctx, p, s, &ai.Config{RAG: ai.RAGConfig{IndexAssistantReplies: true}}, Deps{Embedder: embedder, Index: index})
	require.NoError(t, err)

	got, err := s.GetMessage(ctx, &store.FindMessage{ID: &msg.ID})
	require.NoError(t, err)
	assert.Empty(t, got.VectorRef)

	// The backfill rebuilds the in-memory index from the log.
	assert.Equal(t, 1, srv.Runner.RunOnce(ctx))
	assert.Equal(t, 1, index.(*vector.MemoryIndex).Len())
}

func TestServerHandler(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)
	p := testProfile("store")
	embedder := ai.NewLocalEmbeddingService(64)
	srv, err := NewServer(ctx, p, s, &ai.Config{}, Deps{Embedder: embedder, Index: NewVectorIndex(p, s, embedder)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats", strings.NewReader(`{"title":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "7")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"hello"`)
}

// Package server wires the chat pipeline behind an echo HTTP server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/intellichat/internal/profile"
	"github.com/hrygo/intellichat/plugin/ai"
	"github.com/hrygo/intellichat/plugin/ai/rag"
	"github.com/hrygo/intellichat/plugin/ai/vector"
	"github.com/hrygo/intellichat/server/internal/observability"
	"github.com/hrygo/intellichat/server/middleware"
	apiv1 "github.com/hrygo/intellichat/server/router/api/v1"
	"github.com/hrygo/intellichat/server/runner/embedding"
	"github.com/hrygo/intellichat/server/service/chat"
	"github.com/hrygo/intellichat/store"
)

const (
	embeddingCacheSize = 4096
	embeddingCacheTTL  = time.Hour
	shutdownTimeout    = 10 * time.Second
)

// Deps are the external capabilities the server is built from. LLM may be nil
// to run with generation disabled.
type Deps struct {
	Embedder ai.EmbeddingService
	Index    vector.Index
	LLM      ai.LLMService
}

type Server struct {
	Profile *profile.Profile
	Store   *store.Store
	Metrics *observability.Metrics
	Chat    *chat.Service
	Runner  *embedding.Runner

	echoServer *echo.Echo
	embedder   ai.EmbeddingService
	index      vector.Index
}

// NewServer builds the pipeline. The server takes ownership of deps.Index and s
// and closes them on Shutdown.
func NewServer(ctx context.Context, p *profile.Profile, s *store.Store, aiConfig *ai.Config, deps Deps) (*Server, error) {
	if deps.Embedder == nil || deps.Index == nil {
		return nil, errors.New("embedder and vector index are required")
	}

	// The memory index starts empty, so every message has to be indexed again.
	if p.VectorIndex == "memory" {
		cleared, err := s.ClearMessageVectorRefs(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to reset vector refs")
		}
		slog.Info("vector refs reset for in-memory index", slog.Int64("messages", cleared))
	}

	metrics := observability.NewMetrics()
	indexer := chat.NewIndexer(s, deps.Embedder, deps.Index)
	assembler := rag.NewAssembler(deps.Embedder, deps.Index, aiConfig.RAG.MaxContextChars)
	chatService := chat.NewService(s, indexer, assembler, deps.LLM, metrics, chat.NewConfigFromAI(aiConfig))

	echoServer := echo.New()
	echoServer.Debug = true
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(echomiddleware.RequestID())

	limiter := middleware.NewRateLimiter(0, 0)
	apiv1.NewAPIV1Service(s, chatService, metrics, limiter).Register(echoServer)

	return &Server{
		Profile:    p,
		Store:      s,
		Metrics:    metrics,
		Chat:       chatService,
		Runner:     embedding.NewRunner(s, indexer, metrics, aiConfig.RAG.IndexAssistantReplies),
		echoServer: echoServer,
		embedder:   deps.Embedder,
		index:      deps.Index,
	}, nil
}

// Start serves HTTP and runs the background runners until ctx is done or one of
// them fails.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener
	slog.Info("intellichat started", slog.String("address", address), slog.String("version", s.Profile.Version))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to serve http")
		}
		return nil
	})
	g.Go(func() error {
		s.Runner.Run(ctx)
		return nil
	})
	if janitor, ok := s.embedder.(interface {
		RunJanitor(ctx context.Context, interval time.Duration)
	}); ok {
		g.Go(func() error {
			janitor.RunJanitor(ctx, time.Minute)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.echoServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops serving and releases the index and the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown http server", slog.String("error", err.Error()))
	}
	if err := s.index.Close(); err != nil {
		slog.Error("failed to close vector index", slog.String("error", err.Error()))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}
	slog.Info("intellichat stopped properly")
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// NewEmbeddingService builds the configured provider behind the LRU cache.
func NewEmbeddingService(cfg *ai.EmbeddingConfig) (ai.EmbeddingService, error) {
	inner, err := ai.NewEmbeddingService(cfg)
	if err != nil {
		return nil, err
	}
	return ai.NewCachedEmbeddingService(inner, embeddingCacheSize, embeddingCacheTTL), nil
}

// NewVectorIndex builds the index selected by the profile.
func NewVectorIndex(p *profile.Profile, s *store.Store, embedder ai.EmbeddingService) vector.Index {
	if p.VectorIndex == "memory" {
		return vector.NewMemoryIndex(embedder.Dimensions())
	}
	return vector.NewStoreIndex(s, embedder.Dimensions(), embedder.Model())
}

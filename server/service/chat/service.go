// Package chat coordinates a chat request: the conversation log, the vector
// index, context retrieval and the generation call.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/intellichat/plugin/ai"
	"github.com/hrygo/intellichat/plugin/ai/rag"
	"github.com/hrygo/intellichat/plugin/ai/tags"
	"github.com/hrygo/intellichat/plugin/ai/timeout"
	errs "github.com/hrygo/intellichat/server/internal/errors"
	"github.com/hrygo/intellichat/server/internal/observability"
	"github.com/hrygo/intellichat/store"
)

// Stage is a step of the send pipeline.
type Stage string

const (
	StageReceived     Stage = "RECEIVED"
	StagePersisted    Stage = "PERSISTED"
	StageIndexed      Stage = "INDEXED"
	StageContextBuilt Stage = "CONTEXT_BUILT"
	StageGenerated    Stage = "GENERATED"
	StageReplied      Stage = "REPLIED"
	StageReplyIndexed Stage = "REPLY_INDEXED"
)

// ContextAssembler builds background context from a user's history.
type ContextAssembler interface {
	Assemble(ctx context.Context, req rag.AssembleRequest) (*rag.Assembled, error)
}

// Config tunes the pipeline. Zero values fall back to defaults.
type Config struct {
	TopK                  int
	MaxHistoryMessages    int
	IndexAssistantReplies bool
	SystemPrompt          string

	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
}

// NewConfigFromAI maps the AI configuration onto the pipeline.
func NewConfigFromAI(cfg *ai.Config) Config {
	return Config{
		TopK:                  cfg.RAG.TopK,
		MaxHistoryMessages:    cfg.RAG.MaxHistoryMessages,
		IndexAssistantReplies: cfg.RAG.IndexAssistantReplies,
		SystemPrompt:          cfg.LLM.SystemPrompt,
		GenerationTimeout:     cfg.RAG.GenerationTimeout,
	}
}

const defaultMaxHistoryMessages = 20

// Service is the chat orchestrator. It holds no per-request state and is safe
// for concurrent use.
type Service struct {
	store     *store.Store
	indexer   *Indexer
	assembler ContextAssembler
	llm       ai.LLMService
	metrics   *observability.Metrics
	logger    *slog.Logger
	cfg       Config
}

// NewService wires the orchestrator. llm may be nil when generation is disabled;
// every reply is then a degraded one. metrics may be nil.
func NewService(s *store.Store, indexer *Indexer, assembler ContextAssembler, llm ai.LLMService, metrics *observability.Metrics, cfg Config) *Service {
	if cfg.MaxHistoryMessages <= 0 {
		cfg.MaxHistoryMessages = defaultMaxHistoryMessages
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = timeout.RetrievalTimeout
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = timeout.GenerationTimeout
	}
	return &Service{
		store:     s,
		indexer:   indexer,
		assembler: assembler,
		llm:       llm,
		metrics:   metrics,
		logger:    slog.Default(),
		cfg:       cfg,
	}
}

// SendRequest is one inbound user message.
type SendRequest struct {
	UserID     int32
	ChatID     int32
	Content    string
	UseContext bool
	RequestID  string
}

// Warning is a stage failure the request degraded past.
type Warning struct {
	Stage   Stage          `json:"stage"`
	Code    errs.ErrorCode `json:"code"`
	Message string         `json:"message"`
}

// SendResult reports what a send did. Reply is always set; its ID is zero when
// the reply could not be stored.
type SendResult struct {
	UserMessage *store.Message
	Reply       *store.Message
	// Stage is the last stage reached, Stages every stage reached in order.
	Stage  Stage
	Stages []Stage
	// Context is the retrieved history, nil when context was not requested.
	Context *rag.Assembled
	// Prompt is the final user turn sent to generation.
	Prompt string
	// Title is set when this message named the chat.
	Title    string
	Warnings []Warning
}

func (r *SendResult) reach(stage Stage) {
	r.Stage = stage
	r.Stages = append(r.Stages, stage)
}

// Send runs the pipeline for one user message. Only invalid input, an unknown
// chat or a failure to store the user message returns an error; every later
// failure degrades and is reported in the result.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	rc := observability.NewRequestContextWithID(s.logger, req.RequestID, req.UserID, req.ChatID)
	result := &SendResult{}
	result.reach(StageReceived)

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errs.InvalidArgument("message content is empty")
	}
	if _, err := s.getOwnedChat(ctx, req.UserID, req.ChatID); err != nil {
		return nil, err
	}

	userMsg, err := s.store.CreateMessage(ctx, &store.Message{
		UID:     shortuuid.New(),
		ChatID:  req.ChatID,
		UserID:  req.UserID,
		Role:    store.MessageRoleUser,
		Content: content,
	})
	if err != nil {
		s.metrics.RecordStage(string(StagePersisted), observability.OutcomeFailed)
		rc.Error("failed to persist user message", err, slog.String(observability.LogFieldErrorCode, string(errs.ErrCodePersistenceFailure)))
		return nil, errs.PersistenceFailure("failed to save message", err)
	}
	result.UserMessage = userMsg
	result.reach(StagePersisted)
	s.metrics.RecordStage(string(StagePersisted), observability.OutcomeOK)
	s.touchChat(ctx, rc, req.ChatID)

	result.Title = s.maybeDeriveTitle(ctx, rc, userMsg)

	if err := s.indexer.IndexMessage(ctx, userMsg); err != nil {
		s.degrade(rc, result, StageIndexed, err)
	} else {
		result.reach(StageIndexed)
		s.metrics.RecordStage(string(StageIndexed), observability.OutcomeOK)
	}

	block := ""
	if req.UseContext && s.assembler != nil {
		retrieveCtx, cancel := context.WithTimeout(ctx, s.cfg.RetrievalTimeout)
		assembled, err := s.assembler.Assemble(retrieveCtx, rag.AssembleRequest{
			UserID:            req.UserID,
			Query:             content,
			K:                 s.cfg.TopK,
			ExcludeMessageIDs: []int32{userMsg.ID},
		})
		cancel()
		if err != nil {
			s.degrade(rc, result, StageContextBuilt, errs.RetrievalFailure(err))
		} else {
			result.Context = assembled
			block = assembled.Block
			result.reach(StageContextBuilt)
			s.metrics.RecordStage(string(StageContextBuilt), observability.OutcomeOK)
			s.metrics.ObserveRetrieval(len(assembled.Entries))
		}
	}

	result.Prompt = rag.ComposePrompt(block, content)
	history := s.loadHistory(ctx, rc, userMsg)
	replyText, degraded := s.generate(ctx, rc, result, history)
	result.reach(StageGenerated)

	reply := &store.Message{
		UID:      shortuuid.New(),
		ChatID:   req.ChatID,
		UserID:   req.UserID,
		Role:     store.MessageRoleAssistant,
		Content:  replyText,
		Degraded: degraded,
	}
	result.Reply = reply
	saved, err := s.store.CreateMessage(ctx, reply)
	if err != nil {
		s.degrade(rc, result, StageReplied, errs.PersistenceFailure("failed to save reply", err))
		return result, nil
	}
	result.Reply = saved
	result.reach(StageReplied)
	s.metrics.RecordStage(string(StageReplied), observability.OutcomeOK)
	s.touchChat(ctx, rc, req.ChatID)

	switch {
	case degraded || !s.cfg.IndexAssistantReplies:
		s.metrics.RecordStage(string(StageReplyIndexed), observability.OutcomeSkipped)
	default:
		if err := s.indexer.IndexMessage(ctx, saved); err != nil {
			s.degrade(rc, result, StageReplyIndexed, err)
		} else {
			result.reach(StageReplyIndexed)
			s.metrics.RecordStage(string(StageReplyIndexed), observability.OutcomeOK)
		}
	}

	rc.Info("chat message processed",
		slog.String(observability.LogFieldStage, string(result.Stage)),
		slog.Int(observability.LogFieldMessageLen, len(content)),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
	)
	return result, nil
}

// generate calls the model. On failure it returns a visible error text and
// degraded=true; the failure is recorded on result.
func (s *Service) generate(ctx context.Context, rc *observability.RequestContext, result *SendResult, history []ai.Message) (string, bool) {
	if s.llm == nil {
		err := errs.GenerationFailure(errors.New("generation is not configured"))
		s.degrade(rc, result, StageGenerated, err)
		return "Error: generation is not configured", true
	}

	messages := ai.FormatMessages(s.cfg.SystemPrompt, result.Prompt, history)
	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.llm.Chat(genCtx, messages)
	s.metrics.ObserveGeneration(time.Since(start))
	if err == nil {
		s.metrics.RecordStage(string(StageGenerated), observability.OutcomeOK)
		return text, false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		s.degrade(rc, result, StageGenerated, errs.GenerationTimeout(err))
		return "Error: the model did not answer in time", true
	}
	s.degrade(rc, result, StageGenerated, errs.GenerationFailure(err))
	return "Error: " + err.Error(), true
}

// loadHistory returns the chat's earlier genuine messages, oldest first.
func (s *Service) loadHistory(ctx context.Context, rc *observability.RequestContext, current *store.Message) []ai.Message {
	degraded := false
	limit := s.cfg.MaxHistoryMessages
	msgs, err := s.store.ListMessages(ctx, &store.FindMessage{
		ChatID:   &current.ChatID,
		BeforeID: &current.ID,
		Degraded: &degraded,
		Newest:   true,
		Limit:    &limit,
	})
	if err != nil {
		rc.Warn("failed to load history, answering without it", slog.String("error", err.Error()))
		return nil
	}

	slices.Reverse(msgs)
	history := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsUser() {
			history = append(history, ai.UserMessage(m.Content))
		} else {
			history = append(history, ai.AssistantMessage(m.Content))
		}
	}
	return history
}

// maybeDeriveTitle names the chat after its first message. It runs only when the
// chat holds exactly that one user message.
func (s *Service) maybeDeriveTitle(ctx context.Context, rc *observability.RequestContext, msg *store.Message) string {
	limit := 2
	msgs, err := s.store.ListMessages(ctx, &store.FindMessage{ChatID: &msg.ChatID, Limit: &limit})
	if err != nil {
		rc.Warn("failed to check chat for title", slog.String("error", err.Error()))
		return ""
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID || !msgs[0].IsUser() {
		return ""
	}

	title := tags.DeriveTitle(msg.Content)
	if title == "" {
		return ""
	}
	title, err = s.uniqueTitle(ctx, msg.UserID, title, msg.ChatID)
	if err == nil {
		_, err = s.store.UpdateChat(ctx, &store.UpdateChat{ID: msg.ChatID, Title: &title})
	}
	if err != nil {
		rc.Warn("failed to set chat title", slog.String("error", err.Error()))
		return ""
	}
	return title
}

func (s *Service) touchChat(ctx context.Context, rc *observability.RequestContext, chatID int32) {
	now := time.Now().Unix()
	if _, err := s.store.UpdateChat(ctx, &store.UpdateChat{ID: chatID, UpdatedTs: &now}); err != nil {
		rc.Warn("failed to update chat timestamp", slog.String("error", err.Error()))
	}
}

func (s *Service) degrade(rc *observability.RequestContext, result *SendResult, stage Stage, err error) {
	code := errs.GetCodeFromError(err, errs.ErrCodePersistenceFailure)
	outcome := observability.OutcomeFailed
	if stage == StageGenerated {
		outcome = observability.OutcomeDegraded
	}
	s.metrics.RecordStage(string(stage), outcome)
	rc.Warn("chat stage degraded",
		slog.String(observability.LogFieldStage, string(stage)),
		slog.String(observability.LogFieldErrorCode, string(code)),
		slog.String("error", err.Error()),
	)
	result.Warnings = append(result.Warnings, Warning{Stage: stage, Code: code, Message: err.Error()})
}

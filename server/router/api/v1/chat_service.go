package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	errs "github.com/hrygo/intellichat/server/internal/errors"
	"github.com/hrygo/intellichat/server/service/chat"
	"github.com/hrygo/intellichat/store"
)

type Chat struct {
	ID           int32     `json:"id"`
	UID          string    `json:"uid"`
	Title        string    `json:"title"`
	MessageCount int32     `json:"message_count"`
	CreateTime   time.Time `json:"create_time"`
	UpdateTime   time.Time `json:"update_time"`
}

type Message struct {
	ID         int32     `json:"id"`
	UID        string    `json:"uid"`
	ChatID     int32     `json:"chat_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Indexed    bool      `json:"indexed"`
	Degraded   bool      `json:"degraded"`
	CreateTime time.Time `json:"create_time"`
}

// ContextEntry is one retrieved record that went into the prompt.
type ContextEntry struct {
	MessageID int32   `json:"message_id"`
	ChatID    int32   `json:"chat_id"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Score     float32 `json:"score"`
}

type CreateChatRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Content    string `json:"content"`
	UseContext bool   `json:"use_context"`
}

type SendMessageResponse struct {
	UserMessage *Message       `json:"user_message"`
	Reply       *Message       `json:"reply"`
	Stage       chat.Stage     `json:"stage"`
	Stages      []chat.Stage   `json:"stages"`
	Context     []ContextEntry `json:"context,omitempty"`
	Title       string         `json:"title,omitempty"`
	Warnings    []chat.Warning `json:"warnings,omitempty"`
}

// CreateChat handles POST /api/v1/chats.
func (s *APIV1Service) CreateChat(c echo.Context) error {
	var req CreateChatRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.InvalidArgument("malformed request body"))
	}
	created, err := s.ChatService.CreateChat(c.Request().Context(), currentUserID(c), req.Title)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, convertChatFromStore(created))
}

// ListChats handles GET /api/v1/chats.
func (s *APIV1Service) ListChats(c echo.Context) error {
	list, err := s.ChatService.ListChats(c.Request().Context(), currentUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	chats := make([]*Chat, 0, len(list))
	for _, item := range list {
		chats = append(chats, convertChatFromStore(item))
	}
	return c.JSON(http.StatusOK, map[string]any{"chats": chats})
}

// DeleteChat handles DELETE /api/v1/chats/:id.
func (s *APIV1Service) DeleteChat(c echo.Context) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.ChatService.DeleteChat(c.Request().Context(), currentUserID(c), chatID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMessages handles GET /api/v1/chats/:id/messages.
func (s *APIV1Service) ListMessages(c echo.Context) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	list, err := s.ChatService.ListMessages(c.Request().Context(), currentUserID(c), chatID)
	if err != nil {
		return writeError(c, err)
	}
	messages := make([]*Message, 0, len(list))
	for _, item := range list {
		messages = append(messages, convertMessageFromStore(item))
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": messages})
}

// SendMessage handles POST /api/v1/chats/:id/messages. Stage failures after the
// user message is stored still answer 200; they are listed in warnings.
func (s *APIV1Service) SendMessage(c echo.Context) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.InvalidArgument("malformed request body"))
	}

	result, err := s.ChatService.Send(c.Request().Context(), chat.SendRequest{
		UserID:     currentUserID(c),
		ChatID:     chatID,
		Content:    req.Content,
		UseContext: req.UseContext,
		RequestID:  requestID(c),
	})
	if err != nil {
		return writeError(c, err)
	}

	resp := &SendMessageResponse{
		UserMessage: convertMessageFromStore(result.UserMessage),
		Reply:       convertMessageFromStore(result.Reply),
		Stage:       result.Stage,
		Stages:      result.Stages,
		Title:       result.Title,
		Warnings:    result.Warnings,
	}
	if result.Context != nil {
		for _, entry := range result.Context.Entries {
			resp.Context = append(resp.Context, ContextEntry{
				MessageID: entry.MessageID,
				ChatID:    entry.ChatID,
				Role:      roleName(entry.IsUser),
				Content:   entry.Content,
				Score:     entry.Score,
			})
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// GetTranscript handles GET /api/v1/chats/:id/transcript.
func (s *APIV1Service) GetTranscript(c echo.Context) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	html, err := s.ChatService.Transcript(c.Request().Context(), currentUserID(c), chatID)
	if err != nil {
		return writeError(c, err)
	}
	return c.HTMLBlob(http.StatusOK, html)
}

func convertChatFromStore(c *store.Chat) *Chat {
	return &Chat{
		ID:           c.ID,
		UID:          c.UID,
		Title:        c.Title,
		MessageCount: c.MessageCount,
		CreateTime:   time.Unix(c.CreatedTs, 0).UTC(),
		UpdateTime:   time.Unix(c.UpdatedTs, 0).UTC(),
	}
}

func convertMessageFromStore(message *store.Message) *Message {
	if message == nil {
		return nil
	}
	return &Message{
		ID:         message.ID,
		UID:        message.UID,
		ChatID:     message.ChatID,
		Role:       roleName(message.IsUser()),
		Content:    message.Content,
		Indexed:    message.VectorRef != "",
		Degraded:   message.Degraded,
		CreateTime: time.Unix(message.CreatedTs, 0).UTC(),
	}
}

func roleName(isUser bool) string {
	if isUser {
		return "user"
	}
	return "assistant"
}

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lithammer/shortuuid/v4"

	errs "github.com/hrygo/intellichat/server/internal/errors"
	"github.com/hrygo/intellichat/store"
)

// DefaultChatTitle names chats created without a title.
const DefaultChatTitle = "New Chat"

// CreateChat creates a chat for the user. Titles are unique per user: a taken
// title gets a " (n)" suffix.
func (s *Service) CreateChat(ctx context.Context, userID int32, title string) (*store.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultChatTitle
	}
	title, err := s.uniqueTitle(ctx, userID, title, 0)
	if err != nil {
		return nil, errs.PersistenceFailure("failed to check chat title", err)
	}

	chat, err := s.store.CreateChat(ctx, &store.Chat{
		UID:    shortuuid.New(),
		UserID: userID,
		Title:  title,
	})
	if err != nil {
		return nil, errs.PersistenceFailure("failed to create chat", err)
	}
	return chat, nil
}

// ListChats returns the user's chats, most recently active first.
func (s *Service) ListChats(ctx context.Context, userID int32) ([]*store.Chat, error) {
	chats, err := s.store.ListChats(ctx, &store.FindChat{UserID: &userID})
	if err != nil {
		return nil, errs.PersistenceFailure("failed to list chats", err)
	}
	return chats, nil
}

// GetChat returns the chat if the user owns it.
func (s *Service) GetChat(ctx context.Context, userID, chatID int32) (*store.Chat, error) {
	return s.getOwnedChat(ctx, userID, chatID)
}

// ListMessages returns the chat's messages in conversation order.
func (s *Service) ListMessages(ctx context.Context, userID, chatID int32) ([]*store.Message, error) {
	if _, err := s.getOwnedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, &store.FindMessage{ChatID: &chatID})
	if err != nil {
		return nil, errs.PersistenceFailure("failed to list messages", err)
	}
	return msgs, nil
}

// DeleteChat removes the chat's index records, then its messages and the chat,
// then sweeps the index once more. When the first index delete fails the chat is
// kept, so no record outlives its message.
func (s *Service) DeleteChat(ctx context.Context, userID, chatID int32) error {
	if _, err := s.getOwnedChat(ctx, userID, chatID); err != nil {
		return err
	}

	removed, err := s.indexer.DeleteChat(ctx, userID, chatID)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodePersistenceFailure, "failed to delete chat embeddings")
	}
	if err := s.store.DeleteChat(ctx, &store.DeleteChat{ID: chatID}); err != nil {
		return errs.PersistenceFailure("failed to delete chat", err)
	}

	// A concurrent indexer may have written a record between the two steps above.
	// Later writes fail to record their ref and roll themselves back.
	late, err := s.indexer.DeleteChat(ctx, userID, chatID)
	if err != nil {
		s.logger.Warn("failed to sweep chat embeddings after delete",
			slog.Int64("chat_id", int64(chatID)),
			slog.String("error", err.Error()),
		)
	}
	removed += late

	s.logger.Info("chat deleted",
		slog.Int64("user_id", int64(userID)),
		slog.Int64("chat_id", int64(chatID)),
		slog.Int("embeddings_removed", removed),
	)
	return nil
}

func (s *Service) getOwnedChat(ctx context.Context, userID, chatID int32) (*store.Chat, error) {
	chat, err := s.store.GetChat(ctx, &store.FindChat{ID: &chatID, UserID: &userID})
	if err != nil {
		return nil, errs.PersistenceFailure("failed to load chat", err)
	}
	if chat == nil {
		return nil, errs.NotFound(fmt.Sprintf("chat %d not found", chatID))
	}
	return chat, nil
}

// uniqueTitle returns title, or title with the smallest free " (n)" suffix.
// A chat already holding the title is ignored when its id is selfID.
func (s *Service) uniqueTitle(ctx context.Context, userID int32, title string, selfID int32) (string, error) {
	candidate := title
	for n := 1; ; n++ {
		existing, err := s.store.GetChat(ctx, &store.FindChat{UserID: &userID, Title: &candidate})
		if err != nil {
			return "", err
		}
		if existing == nil || existing.ID == selfID {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (%d)", title, n)
	}
}

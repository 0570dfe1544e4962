package store

import (
	"context"
)

// Chat is a conversation owned by one user.
type Chat struct {
	ID        int32
	UID       string
	UserID    int32
	Title     string
	CreatedTs int64
	UpdatedTs int64

	// MessageCount is derived on listing.
	MessageCount int32
}

type FindChat struct {
	ID     *int32
	UID    *string
	UserID *int32
	Title  *string
}

type UpdateChat struct {
	ID        int32
	Title     *string
	UpdatedTs *int64
}

type DeleteChat struct {
	ID int32
}

func (s *Store) CreateChat(ctx context.Context, create *Chat) (*Chat, error) {
	chat, err := s.driver.CreateChat(ctx, create)
	if err != nil {
		return nil, err
	}
	s.chatCache.Set(chatCacheKey(chat.ID), chat, 0)
	return chat, nil
}

// ListChats lists chats, newest activity first.
func (s *Store) ListChats(ctx context.Context, find *FindChat) ([]*Chat, error) {
	return s.driver.ListChats(ctx, find)
}

// GetChat returns the chat matching find, or nil when there is none.
// MessageCount is left zero; use ListChats for counts.
func (s *Store) GetChat(ctx context.Context, find *FindChat) (*Chat, error) {
	if find.ID != nil && find.UID == nil && find.Title == nil {
		if cached, ok := s.chatCache.Get(chatCacheKey(*find.ID)); ok {
			if find.UserID == nil || *find.UserID == cached.UserID {
				return cached, nil
			}
			return nil, nil
		}
	}

	list, err := s.driver.ListChats(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	chat := list[0]
	// Counts go stale with every append, so GetChat never reports one.
	chat.MessageCount = 0
	s.chatCache.Set(chatCacheKey(chat.ID), chat, 0)
	return chat, nil
}

func (s *Store) UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error) {
	chat, err := s.driver.UpdateChat(ctx, update)
	if err != nil {
		return nil, err
	}
	s.chatCache.Set(chatCacheKey(chat.ID), chat, 0)
	return chat, nil
}

// DeleteChat deletes the chat and its messages. Embedding records are owned by
// the vector index and must be removed through it first.
func (s *Store) DeleteChat(ctx context.Context, delete *DeleteChat) error {
	s.chatCache.Delete(chatCacheKey(delete.ID))
	return s.driver.DeleteChat(ctx, delete)
}

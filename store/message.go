package store

import "context"

type MessageRole string

const (
	MessageRoleUser      MessageRole = "USER"
	MessageRoleAssistant MessageRole = "ASSISTANT"
)

func (r MessageRole) String() string {
	return string(r)
}

// Message is one entry of a chat's append-only log.
type Message struct {
	ID      int32
	UID     string
	ChatID  int32
	UserID  int32
	Role    MessageRole
	Content string
	// VectorRef is the index record id, empty until the message is embedded.
	VectorRef string
	// Degraded marks a substitute reply produced when generation failed.
	Degraded  bool
	CreatedTs int64
}

func (m *Message) IsUser() bool {
	return m.Role == MessageRoleUser
}

type FindMessage struct {
	ID     *int32
	UID    *string
	ChatID *int32
	UserID *int32
	Role   *MessageRole

	// BeforeID restricts to messages older than the given id.
	BeforeID *int32
	// AfterID restricts to messages newer than the given id.
	AfterID *int32
	// HasVectorRef filters on whether the message was embedded.
	HasVectorRef *bool
	Degraded     *bool

	// Newest returns the most recent messages first; default is chronological.
	Newest bool
	Limit  *int
}

type UpdateMessage struct {
	ID        int32
	VectorRef *string
}

// CreateMessage appends a message to its chat. The store-assigned id orders the chat.
func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

func (s *Store) GetMessage(ctx context.Context, find *FindMessage) (*Message, error) {
	list, err := s.driver.ListMessages(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateMessage(ctx context.Context, update *UpdateMessage) error {
	return s.driver.UpdateMessage(ctx, update)
}

// ClearMessageVectorRefs marks every message as not yet embedded.
func (s *Store) ClearMessageVectorRefs(ctx context.Context) (int64, error) {
	return s.driver.ClearMessageVectorRefs(ctx)
}

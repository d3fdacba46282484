package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type ChatID string

type UserID string

type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Validate checks if the role is valid
func (r Role) Validate() error {
	switch r {
	case RoleUser, RoleAssistant:
		return nil
	default:
		return goerr.New("invalid role", goerr.V("role", r), goerr.T(ErrTagInvalidInput))
	}
}

// Message is a single chat message. It is immutable once persisted.
type Message struct {
	ID        MessageID
	ChatID    ChatID
	UserID    UserID
	Role      Role
	Content   string
	CreatedAt time.Time

	// Seq is assigned by the store on insertion and breaks CreatedAt ties.
	Seq int64
}

// Validate checks required fields before the message is stored
func (m *Message) Validate() error {
	if m.ChatID == "" {
		return goerr.New("chat ID is empty", goerr.T(ErrTagInvalidInput))
	}
	if m.UserID == "" {
		return goerr.New("user ID is empty", goerr.T(ErrTagInvalidInput))
	}
	if err := m.Role.Validate(); err != nil {
		return err
	}
	return nil
}

// Before reports whether m is ordered before other within a chat
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}

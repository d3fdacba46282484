package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// MaxChatTitleLength bounds titles in runes
const MaxChatTitleLength = 100

// NewChatID generates a new unique ChatID
func NewChatID() ChatID {
	return ChatID(uuid.New().String())
}

// Chat is a conversation owned by exactly one user. Its messages are only
// visible to the owner.
type Chat struct {
	ID        ChatID
	UserID    UserID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Chat) Validate() error {
	if c.ID == "" {
		return goerr.New("chat ID is empty", goerr.T(ErrTagInvalidInput))
	}
	if c.UserID == "" {
		return goerr.New("chat owner is empty", goerr.V("chat_id", c.ID), goerr.T(ErrTagInvalidInput))
	}
	return ValidateChatTitle(c.Title)
}

// OwnedBy reports whether userID owns the chat
func (c *Chat) OwnedBy(userID UserID) bool {
	return c.UserID == userID
}

// ValidateChatTitle rejects blank and oversized titles
func ValidateChatTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return goerr.New("chat title is empty", goerr.T(ErrTagInvalidInput))
	}
	if n := len([]rune(title)); n > MaxChatTitleLength {
		return goerr.New("chat title is too long",
			goerr.V("length", n),
			goerr.V("max", MaxChatTitleLength),
			goerr.T(ErrTagInvalidInput),
		)
	}
	return nil
}

// TitleFromText derives a chat title from the first message of a chat
func TitleFromText(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if title == "" {
		return "New chat"
	}
	if runes := []rune(title); len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return title
}

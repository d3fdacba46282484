package interfaces

import (
	"context"

	"github.com/m-mizutani/nova/pkg/model"
)

// ChatStore keeps chats and their owners
type ChatStore interface {
	// CreateChat stores a new chat. A chat with the same ID that already
	// exists is returned unchanged.
	CreateChat(ctx context.Context, chat *model.Chat) (*model.Chat, error)

	// GetChat returns an error tagged ErrTagNotFound when the chat does not exist
	GetChat(ctx context.Context, chatID model.ChatID) (*model.Chat, error)

	// ListChats returns chats owned by userID, most recently updated first
	ListChats(ctx context.Context, userID model.UserID) ([]*model.Chat, error)

	UpdateChatTitle(ctx context.Context, chatID model.ChatID, title string) (*model.Chat, error)

	// DeleteChat removes the chat together with all of its messages
	DeleteChat(ctx context.Context, chatID model.ChatID) error
}

// MessageStore is the durable append-only record of chat messages
type MessageStore interface {
	ChatStore

	// CreateMessage stores a new message. ID, CreatedAt and Seq are assigned when empty.
	CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error)

	// ListRecentMessages returns up to limit most recent messages of the chat, oldest first
	ListRecentMessages(ctx context.Context, chatID model.ChatID, limit int) ([]*model.Message, error)
}

// MemoryIndex stores embedding records and answers nearest-neighbor queries
type MemoryIndex interface {
	// UpsertMemory stores or replaces the record with the same ID
	UpsertMemory(ctx context.Context, record *model.MemoryRecord) error

	// QueryMemory returns up to topK records matching filter, most similar first
	QueryMemory(ctx context.Context, vector []float32, topK int, filter model.MemoryFilter) ([]*model.MemoryMatch, error)
}

package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/adapter"
	"github.com/m-mizutani/nova/pkg/interfaces"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/utils/logging"
)

const (
	DefaultListLimit = 50
	ExportLimit      = 1000
)

// UseCase manages a user's chats and reads their history for listing and
// export
type UseCase struct {
	store   interfaces.MessageStore
	storage adapter.Storage
	now     func() time.Time
}

type Option func(*UseCase)

// WithStorage enables Export
func WithStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

func New(store interfaces.MessageStore, opts ...Option) *UseCase {
	uc := &UseCase{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// List returns up to limit most recent messages of the chat, oldest first. A
// non-empty userID restricts the result to that user's chat; a chat owned by
// someone else is reported as not found.
func (uc *UseCase) List(ctx context.Context, chatID model.ChatID, userID model.UserID, limit int) ([]*model.Message, error) {
	if chatID == "" {
		return nil, goerr.New("chat ID is required", goerr.T(model.ErrTagInvalidInput))
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	if userID != "" {
		if _, err := uc.ownedChat(ctx, chatID, userID); err != nil {
			return nil, err
		}
	}

	msgs, err := uc.store.ListRecentMessages(ctx, chatID, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages",
			goerr.V("chat_id", chatID),
			goerr.T(model.ErrTagStoreUnavailable))
	}
	return msgs, nil
}

// Transcript is the exported form of a chat
type Transcript struct {
	ChatID     model.ChatID        `json:"chat_id"`
	UserID     model.UserID        `json:"user_id,omitempty"`
	ExportedAt time.Time           `json:"exported_at"`
	Messages   []TranscriptMessage `json:"messages"`
}

type TranscriptMessage struct {
	ID        model.MessageID `json:"id"`
	Role      model.Role      `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// TranscriptKey is the object key a chat is exported to
func TranscriptKey(chatID model.ChatID) string {
	return "transcripts/" + string(chatID) + ".json"
}

// Export writes the chat transcript to storage and returns the object key
func (uc *UseCase) Export(ctx context.Context, chatID model.ChatID, userID model.UserID) (string, error) {
	if uc.storage == nil {
		return "", goerr.New("storage is not configured")
	}

	msgs, err := uc.List(ctx, chatID, userID, ExportLimit)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", goerr.New("chat has no messages", goerr.V("chat_id", chatID), goerr.T(model.ErrTagNotFound))
	}

	transcript := Transcript{
		ChatID:     chatID,
		UserID:     userID,
		ExportedAt: uc.now().UTC(),
		Messages:   make([]TranscriptMessage, 0, len(msgs)),
	}
	for _, msg := range msgs {
		transcript.Messages = append(transcript.Messages, TranscriptMessage{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}

	data, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal transcript", goerr.V("chat_id", chatID))
	}

	key := TranscriptKey(chatID)
	if err := uc.storage.Write(ctx, key, "application/json", data); err != nil {
		return "", goerr.Wrap(err, "failed to export transcript", goerr.V("chat_id", chatID))
	}

	logging.From(ctx).Info("transcript exported", "chat_id", chatID, "key", key, "messages", len(msgs))
	return key, nil
}

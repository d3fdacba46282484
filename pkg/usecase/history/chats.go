package history

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/utils/logging"
)

// ownedChat returns the chat if userID owns it. Missing chats and chats of
// other users both yield ErrTagNotFound.
func (uc *UseCase) ownedChat(ctx context.Context, chatID model.ChatID, userID model.UserID) (*model.Chat, error) {
	chat, err := uc.store.GetChat(ctx, chatID)
	if err != nil {
		if goerr.HasTag(err, model.ErrTagNotFound) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to get chat",
			goerr.V("chat_id", chatID),
			goerr.T(model.ErrTagStoreUnavailable))
	}

	if !chat.OwnedBy(userID) {
		return nil, goerr.New("chat not found",
			goerr.V("chat_id", chatID),
			goerr.V("user_id", userID),
			goerr.T(model.ErrTagNotFound))
	}
	return chat, nil
}

// CreateChat starts a new empty chat owned by userID
func (uc *UseCase) CreateChat(ctx context.Context, userID model.UserID, title string) (*model.Chat, error) {
	if userID == "" {
		return nil, goerr.New("user ID is required", goerr.T(model.ErrTagInvalidInput))
	}

	chat, err := uc.store.CreateChat(ctx, &model.Chat{
		ID:     model.NewChatID(),
		UserID: userID,
		Title:  strings.TrimSpace(title),
	})
	if err != nil {
		if goerr.HasTag(err, model.ErrTagInvalidInput) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to create chat",
			goerr.V("user_id", userID),
			goerr.T(model.ErrTagStoreUnavailable))
	}

	logging.From(ctx).Info("chat created", "chat_id", chat.ID, "user_id", userID)
	return chat, nil
}

// ListChats returns the chats of userID, most recently updated first
func (uc *UseCase) ListChats(ctx context.Context, userID model.UserID) ([]*model.Chat, error) {
	if userID == "" {
		return nil, goerr.New("user ID is required", goerr.T(model.ErrTagInvalidInput))
	}

	chats, err := uc.store.ListChats(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list chats",
			goerr.V("user_id", userID),
			goerr.T(model.ErrTagStoreUnavailable))
	}
	return chats, nil
}

func (uc *UseCase) RenameChat(ctx context.Context, chatID model.ChatID, userID model.UserID, title string) (*model.Chat, error) {
	title = strings.TrimSpace(title)
	if err := model.ValidateChatTitle(title); err != nil {
		return nil, err
	}
	if _, err := uc.ownedChat(ctx, chatID, userID); err != nil {
		return nil, err
	}

	chat, err := uc.store.UpdateChatTitle(ctx, chatID, title)
	if err != nil {
		if goerr.HasTag(err, model.ErrTagNotFound) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to rename chat",
			goerr.V("chat_id", chatID),
			goerr.T(model.ErrTagStoreUnavailable))
	}
	return chat, nil
}

// DeleteChat removes the chat and its messages. Memories recalled from it
// stay in the user's long-term memory.
func (uc *UseCase) DeleteChat(ctx context.Context, chatID model.ChatID, userID model.UserID) error {
	if _, err := uc.ownedChat(ctx, chatID, userID); err != nil {
		return err
	}

	if err := uc.store.DeleteChat(ctx, chatID); err != nil {
		if goerr.HasTag(err, model.ErrTagNotFound) {
			return err
		}
		return goerr.Wrap(err, "failed to delete chat",
			goerr.V("chat_id", chatID),
			goerr.T(model.ErrTagStoreUnavailable))
	}

	logging.From(ctx).Info("chat deleted", "chat_id", chatID, "user_id", userID)
	return nil
}

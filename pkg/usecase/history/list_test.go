package history_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/repository"
	"github.com/m-mizutani/nova/pkg/usecase/history"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (s *memoryStorage) Write(ctx context.Context, key, contentType string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memoryStorage) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func seed(t *testing.T, repo *repository.Memory, chatID model.ChatID, userID model.UserID, texts ...string) {
	t.Helper()
	_, err := repo.CreateChat(context.Background(), &model.Chat{ID: chatID, UserID: userID, Title: "seeded"})
	gt.NoError(t, err)

	for i, text := range texts {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		_, err := repo.CreateMessage(context.Background(), &model.Message{
			ChatID:  chatID,
			UserID:  userID,
			Role:    role,
			Content: text,
		})
		gt.NoError(t, err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	seed(t, repo, "c1", "u1", "hi", "hello", "how are you?", "fine")
	uc := history.New(repo)

	t.Run("owner sees messages oldest first", func(t *testing.T) {
		msgs, err := uc.List(ctx, "c1", "u1", 0)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(4)
		gt.Equal(t, msgs[0].Content, "hi")
		gt.Equal(t, msgs[3].Content, "fine")
	})

	t.Run("limit keeps the most recent", func(t *testing.T) {
		msgs, err := uc.List(ctx, "c1", "u1", 2)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(2)
		gt.Equal(t, msgs[0].Content, "how are you?")
	})

	t.Run("other user gets not found", func(t *testing.T) {
		_, err := uc.List(ctx, "c1", "u2", 10)
		gt.True(t, goerr.HasTag(err, model.ErrTagNotFound))
	})

	t.Run("empty user ID is unrestricted", func(t *testing.T) {
		msgs, err := uc.List(ctx, "c1", "", 10)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(4)
	})

	t.Run("unknown chat is not found for a user", func(t *testing.T) {
		_, err := uc.List(ctx, "nope", "u1", 10)
		gt.True(t, goerr.HasTag(err, model.ErrTagNotFound))
	})

	t.Run("unknown chat is empty without a user", func(t *testing.T) {
		msgs, err := uc.List(ctx, "nope", "", 10)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(0)
	})

	t.Run("chat without messages is empty for its owner", func(t *testing.T) {
		seed(t, repo, "fresh", "u1")
		msgs, err := uc.List(ctx, "fresh", "u1", 10)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(0)
	})

	t.Run("chat ID is required", func(t *testing.T) {
		_, err := uc.List(ctx, "", "u1", 10)
		gt.True(t, goerr.HasTag(err, model.ErrTagInvalidInput))
	})
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	seed(t, repo, "c1", "u1", "hi", "hello")

	t.Run("writes transcript", func(t *testing.T) {
		storage := &memoryStorage{objects: map[string][]byte{}}
		uc := history.New(repo, history.WithStorage(storage))

		key, err := uc.Export(ctx, "c1", "u1")
		gt.NoError(t, err)
		gt.Equal(t, key, "transcripts/c1.json")

		data, err := storage.Read(ctx, key)
		gt.NoError(t, err)

		var transcript history.Transcript
		gt.NoError(t, json.Unmarshal(data, &transcript))
		gt.Equal(t, transcript.ChatID, model.ChatID("c1"))
		gt.A(t, transcript.Messages).Length(2)
		gt.Equal(t, transcript.Messages[0].Role, model.RoleUser)
		gt.Equal(t, transcript.Messages[1].Content, "hello")
	})

	t.Run("empty chat is not exported", func(t *testing.T) {
		seed(t, repo, "empty", "u1")
		uc := history.New(repo, history.WithStorage(&memoryStorage{objects: map[string][]byte{}}))
		_, err := uc.Export(ctx, "empty", "u1")
		gt.True(t, goerr.HasTag(err, model.ErrTagNotFound))
	})

	t.Run("other user cannot export", func(t *testing.T) {
		storage := &memoryStorage{objects: map[string][]byte{}}
		uc := history.New(repo, history.WithStorage(storage))
		_, err := uc.Export(ctx, "c1", "u2")
		gt.True(t, goerr.HasTag(err, model.ErrTagNotFound))
		gt.Equal(t, len(storage.objects), 0)
	})

	t.Run("storage failure", func(t *testing.T) {
		uc := history.New(repo, history.WithStorage(&memoryStorage{err: errors.New("denied")}))
		_, err := uc.Export(ctx, "c1", "u1")
		gt.Error(t, err)
	})

	t.Run("storage not configured", func(t *testing.T) {
		_, err := history.New(repo).Export(ctx, "c1", "u1")
		gt.Error(t, err)
	})
}

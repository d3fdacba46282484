package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/nova/pkg/interfaces"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/repository"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.New(context.Background(), projectID, databaseID)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

// uniqueChatID keeps runs against a shared database from colliding
func uniqueChatID(prefix string) model.ChatID {
	return model.ChatID(fmt.Sprintf("%s-%s", prefix, model.NewMessageID()))
}

func testMessageStore(t *testing.T, store interfaces.MessageStore) {
	ctx := context.Background()

	t.Run("messages are listed oldest first", func(t *testing.T) {
		chatID := uniqueChatID("order")
		for _, text := range []string{"first", "second", "third"} {
			_, err := store.CreateMessage(ctx, &model.Message{
				ChatID:  chatID,
				UserID:  "u1",
				Role:    model.RoleUser,
				Content: text,
			})
			gt.NoError(t, err)
		}

		msgs, err := store.ListRecentMessages(ctx, chatID, 10)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(3)
		gt.Equal(t, msgs[0].Content, "first")
		gt.Equal(t, msgs[1].Content, "second")
		gt.Equal(t, msgs[2].Content, "third")
	})

	t.Run("limit keeps the most recent messages", func(t *testing.T) {
		chatID := uniqueChatID("limit")
		for i := 0; i < 25; i++ {
			_, err := store.CreateMessage(ctx, &model.Message{
				ChatID:  chatID,
				UserID:  "u1",
				Role:    model.RoleUser,
				Content: fmt.Sprintf("msg-%02d", i),
			})
			gt.NoError(t, err)
		}

		msgs, err := store.ListRecentMessages(ctx, chatID, 20)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(20)
		gt.Equal(t, msgs[0].Content, "msg-05")
		gt.Equal(t, msgs[19].Content, "msg-24")
	})

	t.Run("identical timestamps keep insertion order", func(t *testing.T) {
		chatID := uniqueChatID("tie")
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for _, text := range []string{"a", "b", "c"} {
			_, err := store.CreateMessage(ctx, &model.Message{
				ChatID:    chatID,
				UserID:    "u1",
				Role:      model.RoleUser,
				Content:   text,
				CreatedAt: at,
			})
			gt.NoError(t, err)
		}

		msgs, err := store.ListRecentMessages(ctx, chatID, 10)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(3)
		gt.Equal(t, msgs[0].Content, "a")
		gt.Equal(t, msgs[2].Content, "c")
	})

	t.Run("create assigns identity and is idempotent by ID", func(t *testing.T) {
		chatID := uniqueChatID("idem")
		created, err := store.CreateMessage(ctx, &model.Message{
			ChatID:  chatID,
			UserID:  "u1",
			Role:    model.RoleAssistant,
			Content: "reply",
		})
		gt.NoError(t, err)
		gt.True(t, created.ID != "")
		gt.False(t, created.CreatedAt.IsZero())

		again, err := store.CreateMessage(ctx, created)
		gt.NoError(t, err)
		gt.Equal(t, again.ID, created.ID)

		msgs, err := store.ListRecentMessages(ctx, chatID, 10)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(1)
	})

	t.Run("unknown chat is empty", func(t *testing.T) {
		msgs, err := store.ListRecentMessages(ctx, uniqueChatID("none"), 10)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(0)
	})

	t.Run("invalid role is rejected", func(t *testing.T) {
		_, err := store.CreateMessage(ctx, &model.Message{
			ChatID:  uniqueChatID("role"),
			UserID:  "u1",
			Role:    "system",
			Content: "x",
		})
		gt.True(t, goerr.HasTag(err, model.ErrTagInvalidInput))
	})
}

func testChatStore(t *testing.T, store interfaces.MessageStore) {
	ctx := context.Background()
	owner := model.UserID(fmt.Sprintf("owner-%s", model.NewMessageID()))

	t.Run("create and get", func(t *testing.T) {
		chatID := uniqueChatID("chat")
		created, err := store.CreateChat(ctx, &model.Chat{ID: chatID, UserID: owner, Title: "Trip plans"})
		gt.NoError(t, err)
		gt.Equal(t, created.ID, chatID)
		gt.False(t, created.CreatedAt.IsZero())

		got, err := store.GetChat(ctx, chatID)
		gt.NoError(t, err)
		gt.Equal(t, got.UserID, owner)
		gt.Equal(t, got.Title, "Trip plans")
	})

	t.Run("second create keeps the first owner", func(t *testing.T) {
		chatID := uniqueChatID("owner")
		_, err := store.CreateChat(ctx, &model.Chat{ID: chatID, UserID: owner, Title: "mine"})
		gt.NoError(t, err)

		again, err := store.CreateChat(ctx, &model.Chat{ID: chatID, UserID: "intruder", Title: "theirs"})
		gt.NoError(t, err)
		gt.Equal(t, again.UserID, owner)
		gt.Equal(t, again.Title, "mine")
	})

	t.Run("unknown chat is not found", func(t *testing.T) {
		_, err := store.GetChat(ctx, uniqueChatID("missing"))
		gt.True(t, goerr.HasTag(err, model.ErrTagNotFound))

		_, err = store.UpdateChatTitle(ctx, uniqueChatID("missing"), "x")
		gt.True(t, goerr.HasTag(err, model.ErrTagNotFound))

		gt.True(t, goerr.HasTag(store.DeleteChat(ctx, uniqueChatID("missing")), model.ErrTagNotFound))
	})

	t.Run("list returns only the owner's chats", func(t *testing.T) {
		user := model.UserID(fmt.Sprintf("lister-%s", model.NewMessageID()))
		first := uniqueChatID("list")
		second := uniqueChatID("list")
		_, err := store.CreateChat(ctx, &model.Chat{ID: first, UserID: user, Title: "first"})
		gt.NoError(t, err)
		_, err = store.CreateChat(ctx, &model.Chat{ID: second, UserID: user, Title: "second"})
		gt.NoError(t, err)
		_, err = store.CreateChat(ctx, &model.Chat{ID: uniqueChatID("list"), UserID: owner, Title: "other"})
		gt.NoError(t, err)

		chats, err := store.ListChats(ctx, user)
		gt.NoError(t, err)
		gt.A(t, chats).Length(2)
		for _, chat := range chats {
			gt.Equal(t, chat.UserID, user)
		}
	})

	t.Run("rename updates title", func(t *testing.T) {
		chatID := uniqueChatID("rename")
		_, err := store.CreateChat(ctx, &model.Chat{ID: chatID, UserID: owner, Title: "old"})
		gt.NoError(t, err)

		renamed, err := store.UpdateChatTitle(ctx, chatID, "new")
		gt.NoError(t, err)
		gt.Equal(t, renamed.Title, "new")
		gt.Equal(t, renamed.UserID, owner)

		_, err = store.UpdateChatTitle(ctx, chatID, " ")
		gt.True(t, goerr.HasTag(err, model.ErrTagInvalidInput))
	})

	t.Run("delete removes chat and messages", func(t *testing.T) {
		chatID := uniqueChatID("delete")
		_, err := store.CreateChat(ctx, &model.Chat{ID: chatID, UserID: owner, Title: "gone"})
		gt.NoError(t, err)
		for _, text := range []string{"one", "two"} {
			_, err := store.CreateMessage(ctx, &model.Message{ChatID: chatID, UserID: owner, Role: model.RoleUser, Content: text})
			gt.NoError(t, err)
		}

		gt.NoError(t, store.DeleteChat(ctx, chatID))

		_, err = store.GetChat(ctx, chatID)
		gt.True(t, goerr.HasTag(err, model.ErrTagNotFound))
		msgs, err := store.ListRecentMessages(ctx, chatID, 10)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(0)
	})
}

func testMemoryIndex(t *testing.T, index interfaces.MemoryIndex) {
	ctx := context.Background()
	userA := model.UserID(fmt.Sprintf("ua-%s", model.NewMessageID()))
	userB := model.UserID(fmt.Sprintf("ub-%s", model.NewMessageID()))

	put := func(userID model.UserID, text string, vector []float32) *model.Message {
		msg := &model.Message{
			ID:      model.NewMessageID(),
			ChatID:  "c1",
			UserID:  userID,
			Role:    model.RoleUser,
			Content: text,
		}
		gt.NoError(t, index.UpsertMemory(ctx, model.NewMemoryRecord(msg, vector)))
		return msg
	}

	tea := put(userA, "I like tea", []float32{1, 0, 0})
	put(userA, "I live in Tokyo", []float32{0, 1, 0})
	put(userB, "I like coffee", []float32{0.99, 0.01, 0})

	t.Run("nearest record of the user", func(t *testing.T) {
		matches, err := index.QueryMemory(ctx, []float32{1, 0.05, 0}, 1, model.UserFilter(userA))
		gt.NoError(t, err)
		gt.A(t, matches).Length(1)
		gt.Equal(t, matches[0].ID, tea.ID)
		gt.Equal(t, matches[0].Text(), "I like tea")
		gt.Equal(t, matches[0].Metadata[model.MetaUserID], string(userA))
	})

	t.Run("ranked by similarity", func(t *testing.T) {
		matches, err := index.QueryMemory(ctx, []float32{0.2, 1, 0}, 2, model.UserFilter(userA))
		gt.NoError(t, err)
		gt.A(t, matches).Length(2)
		gt.Equal(t, matches[0].Text(), "I live in Tokyo")
		gt.True(t, matches[0].Score >= matches[1].Score)
	})

	t.Run("other users are filtered out", func(t *testing.T) {
		matches, err := index.QueryMemory(ctx, []float32{1, 0, 0}, 5, model.UserFilter(userB))
		gt.NoError(t, err)
		gt.A(t, matches).Length(1)
		gt.Equal(t, matches[0].Text(), "I like coffee")
	})

	t.Run("unknown user has no memories", func(t *testing.T) {
		matches, err := index.QueryMemory(ctx, []float32{1, 0, 0}, 1, model.UserFilter("nobody"))
		gt.NoError(t, err)
		gt.A(t, matches).Length(0)
	})

	t.Run("upsert replaces the record", func(t *testing.T) {
		updated := *tea
		updated.Content = "I like green tea"
		gt.NoError(t, index.UpsertMemory(ctx, model.NewMemoryRecord(&updated, []float32{1, 0, 0})))

		matches, err := index.QueryMemory(ctx, []float32{1, 0, 0}, 1, model.UserFilter(userA))
		gt.NoError(t, err)
		gt.A(t, matches).Length(1)
		gt.Equal(t, matches[0].Text(), "I like green tea")
	})

	t.Run("empty vector is rejected", func(t *testing.T) {
		err := index.UpsertMemory(ctx, &model.MemoryRecord{ID: model.NewMessageID()})
		gt.Error(t, err)
	})
}

func TestMemory(t *testing.T) {
	t.Run("MessageStore", func(t *testing.T) {
		testMessageStore(t, repository.NewMemory())
	})
	t.Run("ChatStore", func(t *testing.T) {
		testChatStore(t, repository.NewMemory())
	})
	t.Run("MemoryIndex", func(t *testing.T) {
		testMemoryIndex(t, repository.NewMemory())
	})
}

func TestMemoryClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := repository.NewMemory(repository.WithClock(func() time.Time { return at }))

	msg, err := repo.CreateMessage(context.Background(), &model.Message{
		ChatID:  "c1",
		UserID:  "u1",
		Role:    model.RoleUser,
		Content: "hi",
	})
	gt.NoError(t, err)
	gt.Equal(t, msg.CreatedAt, at)
	gt.Equal(t, msg.Seq, int64(1))

	chat, err := repo.CreateChat(context.Background(), &model.Chat{ID: "c1", UserID: "u1", Title: "t"})
	gt.NoError(t, err)
	gt.Equal(t, chat.CreatedAt, at)
	gt.Equal(t, chat.UpdatedAt, at)
}

func TestChromem(t *testing.T) {
	t.Run("in memory", func(t *testing.T) {
		index, err := repository.NewChromem("")
		gt.NoError(t, err)
		testMemoryIndex(t, index)
	})

	t.Run("persistent", func(t *testing.T) {
		dir := t.TempDir()
		index, err := repository.NewChromem(dir)
		gt.NoError(t, err)
		testMemoryIndex(t, index)

		reopened, err := repository.NewChromem(dir)
		gt.NoError(t, err)
		matches, err := reopened.QueryMemory(context.Background(), []float32{0, 1, 0}, 1, nil)
		gt.NoError(t, err)
		gt.A(t, matches).Length(1)
	})

	t.Run("empty index", func(t *testing.T) {
		index, err := repository.NewChromem("")
		gt.NoError(t, err)
		matches, err := index.QueryMemory(context.Background(), []float32{1, 0, 0}, 1, nil)
		gt.NoError(t, err)
		gt.A(t, matches).Length(0)
	})
}

func TestFirestore(t *testing.T) {
	repo := setupFirestore(t)

	t.Run("MessageStore", func(t *testing.T) {
		testMessageStore(t, repo)
	})
	t.Run("ChatStore", func(t *testing.T) {
		testChatStore(t, repo)
	})
	t.Run("MemoryIndex", func(t *testing.T) {
		testMemoryIndex(t, repo)
	})
}

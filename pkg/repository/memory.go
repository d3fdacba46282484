package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
)

// Memory is an in-process MessageStore (chats included) and MemoryIndex. It keeps everything in
// maps and scores memories by brute-force cosine similarity.
type Memory struct {
	mu       sync.RWMutex
	seq      int64
	chats    map[model.ChatID]*model.Chat
	messages map[model.ChatID][]*model.Message
	records  map[model.MessageID]*model.MemoryRecord
	now      func() time.Time
}

// MemoryOption is a functional option for Memory
type MemoryOption func(*Memory)

// WithClock replaces the clock used to stamp CreatedAt
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory repository
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		chats:    make(map[model.ChatID]*model.Chat),
		messages: make(map[model.ChatID][]*model.Message),
		records:  make(map[model.MessageID]*model.MemoryRecord),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) CreateChat(ctx context.Context, chat *model.Chat) (*model.Chat, error) {
	if err := chat.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.chats[chat.ID]; ok {
		copied := *existing
		return &copied, nil
	}

	stored := *chat
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	m.chats[stored.ID] = &stored

	copied := stored
	return &copied, nil
}

func (m *Memory) GetChat(ctx context.Context, chatID model.ChatID) (*model.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, ok := m.chats[chatID]
	if !ok {
		return nil, goerr.New("chat not found", goerr.V("chat_id", chatID), goerr.T(model.ErrTagNotFound))
	}
	copied := *chat
	return &copied, nil
}

func (m *Memory) ListChats(ctx context.Context, userID model.UserID) ([]*model.Chat, error) {
	m.mu.RLock()
	var chats []*model.Chat
	for _, chat := range m.chats {
		if chat.OwnedBy(userID) {
			copied := *chat
			chats = append(chats, &copied)
		}
	}
	m.mu.RUnlock()

	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
		}
		return chats[i].ID < chats[j].ID
	})
	return chats, nil
}

func (m *Memory) UpdateChatTitle(ctx context.Context, chatID model.ChatID, title string) (*model.Chat, error) {
	if err := model.ValidateChatTitle(title); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[chatID]
	if !ok {
		return nil, goerr.New("chat not found", goerr.V("chat_id", chatID), goerr.T(model.ErrTagNotFound))
	}
	chat.Title = title
	chat.UpdatedAt = m.now()

	copied := *chat
	return &copied, nil
}

func (m *Memory) DeleteChat(ctx context.Context, chatID model.ChatID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chats[chatID]; !ok {
		return goerr.New("chat not found", goerr.V("chat_id", chatID), goerr.T(model.ErrTagNotFound))
	}
	delete(m.chats, chatID)
	delete(m.messages, chatID)
	return nil
}

func (m *Memory) CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *msg
	if stored.ID == "" {
		stored.ID = model.NewMessageID()
	}

	// Re-attempting a create with the same ID is a no-op
	for _, existing := range m.messages[stored.ChatID] {
		if existing.ID == stored.ID {
			copied := *existing
			return &copied, nil
		}
	}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	m.seq++
	stored.Seq = m.seq
	m.messages[stored.ChatID] = append(m.messages[stored.ChatID], &stored)

	copied := stored
	return &copied, nil
}

func (m *Memory) ListRecentMessages(ctx context.Context, chatID model.ChatID, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		return nil, goerr.New("limit must be positive", goerr.V("limit", limit), goerr.T(model.ErrTagInvalidInput))
	}

	m.mu.RLock()
	src := m.messages[chatID]
	msgs := make([]*model.Message, 0, len(src))
	for _, msg := range src {
		copied := *msg
		msgs = append(msgs, &copied)
	}
	m.mu.RUnlock()

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Before(msgs[j])
	})

	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *Memory) UpsertMemory(ctx context.Context, record *model.MemoryRecord) error {
	if record.ID == "" {
		return goerr.New("memory record ID is empty", goerr.T(model.ErrTagInvalidInput))
	}
	if len(record.Vector) == 0 {
		return goerr.New("memory record vector is empty", goerr.V("id", record.ID), goerr.T(model.ErrTagInvalidInput))
	}

	copied := &model.MemoryRecord{
		ID:       record.ID,
		Vector:   append([]float32(nil), record.Vector...),
		Metadata: make(map[string]string, len(record.Metadata)),
	}
	for k, v := range record.Metadata {
		copied.Metadata[k] = v
	}

	m.mu.Lock()
	m.records[record.ID] = copied
	m.mu.Unlock()
	return nil
}

func (m *Memory) QueryMemory(ctx context.Context, vector []float32, topK int, filter model.MemoryFilter) ([]*model.MemoryMatch, error) {
	if topK <= 0 {
		return nil, goerr.New("topK must be positive", goerr.V("topK", topK), goerr.T(model.ErrTagInvalidInput))
	}

	m.mu.RLock()
	var matches []*model.MemoryMatch
	for _, record := range m.records {
		if !filter.Match(record.Metadata) {
			continue
		}
		metadata := make(map[string]string, len(record.Metadata))
		for k, v := range record.Metadata {
			metadata[k] = v
		}
		matches = append(matches, &model.MemoryMatch{
			ID:       record.ID,
			Score:    cosineSimilarity(vector, record.Vector),
			Metadata: metadata,
		})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

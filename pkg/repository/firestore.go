package repository

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionChats    = "chats"
	collectionMessages = "messages"
	collectionMemories = "memories"

	distanceResultField = "vector_distance"
)

// Firestore implements MessageStore and MemoryIndex. Chats live in chats,
// their messages in chats/{chat_id}/messages and embedding records in
// memories, searched with FindNearest over cosine distance.
type Firestore struct {
	client *firestore.Client
	seq    atomic.Int64
}

type chatDoc struct {
	ID        string    `firestore:"id"`
	UserID    string    `firestore:"user_id"`
	Title     string    `firestore:"title"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	ID        string    `firestore:"id"`
	ChatID    string    `firestore:"chat_id"`
	UserID    string    `firestore:"user_id"`
	Role      string    `firestore:"role"`
	Content   string    `firestore:"content"`
	CreatedAt time.Time `firestore:"created_at"`
	Seq       int64     `firestore:"seq"`
}

type memoryDoc struct {
	ID        string             `firestore:"id"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	Metadata  map[string]string  `firestore:"metadata"`
	UpdatedAt time.Time          `firestore:"updated_at"`
}

// New creates a Firestore repository for the given project and database
func New(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID),
		)
	}

	r := &Firestore{client: client}
	// Seq only needs to be monotonic within a process; CreatedAt orders across processes.
	r.seq.Store(time.Now().UnixNano())
	return r, nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

func (r *Firestore) messages(chatID model.ChatID) *firestore.CollectionRef {
	return r.client.Collection(collectionChats).Doc(string(chatID)).Collection(collectionMessages)
}

func (r *Firestore) chat(chatID model.ChatID) *firestore.DocumentRef {
	return r.client.Collection(collectionChats).Doc(string(chatID))
}

func (r *Firestore) CreateChat(ctx context.Context, chat *model.Chat) (*model.Chat, error) {
	if err := chat.Validate(); err != nil {
		return nil, err
	}

	stored := *chat
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}

	if _, err := r.chat(stored.ID).Create(ctx, toChatDoc(&stored)); err != nil {
		if status.Code(err) != codes.AlreadyExists {
			return nil, goerr.Wrap(err, "failed to create chat",
				goerr.V("chat_id", stored.ID),
				goerr.T(model.ErrTagStoreUnavailable),
			)
		}
		// Owner is fixed by the first create
		return r.GetChat(ctx, stored.ID)
	}

	return &stored, nil
}

func (r *Firestore) GetChat(ctx context.Context, chatID model.ChatID) (*model.Chat, error) {
	snap, err := r.chat(chatID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(err, "chat not found", goerr.V("chat_id", chatID), goerr.T(model.ErrTagNotFound))
		}
		return nil, goerr.Wrap(err, "failed to get chat",
			goerr.V("chat_id", chatID),
			goerr.T(model.ErrTagStoreUnavailable),
		)
	}

	var doc chatDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode chat", goerr.V("chat_id", chatID))
	}
	return fromChatDoc(&doc), nil
}

func (r *Firestore) ListChats(ctx context.Context, userID model.UserID) ([]*model.Chat, error) {
	iter := r.client.Collection(collectionChats).
		Where("user_id", "==", string(userID)).
		OrderBy("updated_at", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var chats []*model.Chat
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list chats",
				goerr.V("user_id", userID),
				goerr.T(model.ErrTagStoreUnavailable),
			)
		}

		var doc chatDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode chat", goerr.V("doc_id", snap.Ref.ID))
		}
		chats = append(chats, fromChatDoc(&doc))
	}
	return chats, nil
}

func (r *Firestore) UpdateChatTitle(ctx context.Context, chatID model.ChatID, title string) (*model.Chat, error) {
	if err := model.ValidateChatTitle(title); err != nil {
		return nil, err
	}

	updates := []firestore.Update{
		{Path: "title", Value: title},
		{Path: "updated_at", Value: time.Now().UTC()},
	}
	if _, err := r.chat(chatID).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(err, "chat not found", goerr.V("chat_id", chatID), goerr.T(model.ErrTagNotFound))
		}
		return nil, goerr.Wrap(err, "failed to update chat title",
			goerr.V("chat_id", chatID),
			goerr.T(model.ErrTagStoreUnavailable),
		)
	}

	return r.GetChat(ctx, chatID)
}

// DeleteChat removes the messages subcollection first so that a failure
// leaves the chat document in place and the delete can be retried.
func (r *Firestore) DeleteChat(ctx context.Context, chatID model.ChatID) error {
	if _, err := r.GetChat(ctx, chatID); err != nil {
		return err
	}

	refs, err := r.messages(chatID).DocumentRefs(ctx).GetAll()
	if err != nil {
		return goerr.Wrap(err, "failed to list messages for delete",
			goerr.V("chat_id", chatID),
			goerr.T(model.ErrTagStoreUnavailable),
		)
	}

	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue message delete",
				goerr.V("chat_id", chatID),
				goerr.V("doc_id", ref.ID),
				goerr.T(model.ErrTagStoreUnavailable),
			)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "failed to delete message",
				goerr.V("chat_id", chatID),
				goerr.T(model.ErrTagStoreUnavailable),
			)
		}
	}

	if _, err := r.chat(chatID).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete chat",
			goerr.V("chat_id", chatID),
			goerr.T(model.ErrTagStoreUnavailable),
		)
	}
	return nil
}

func (r *Firestore) CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	stored := *msg
	if stored.ID == "" {
		stored.ID = model.NewMessageID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.Seq = r.seq.Add(1)

	ref := r.messages(stored.ChatID).Doc(string(stored.ID))
	if _, err := ref.Create(ctx, toMessageDoc(&stored)); err != nil {
		if status.Code(err) != codes.AlreadyExists {
			return nil, goerr.Wrap(err, "failed to create message",
				goerr.V("chat_id", stored.ChatID),
				goerr.V("message_id", stored.ID),
				goerr.T(model.ErrTagStoreUnavailable),
			)
		}

		// Messages are single-write; a re-attempt returns what was stored first
		snap, err := ref.Get(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get existing message",
				goerr.V("message_id", stored.ID),
				goerr.T(model.ErrTagStoreUnavailable),
			)
		}
		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode message", goerr.V("message_id", stored.ID))
		}
		return fromMessageDoc(&doc), nil
	}

	return &stored, nil
}

func (r *Firestore) ListRecentMessages(ctx context.Context, chatID model.ChatID, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		return nil, goerr.New("limit must be positive", goerr.V("limit", limit), goerr.T(model.ErrTagInvalidInput))
	}

	iter := r.messages(chatID).
		OrderBy("created_at", firestore.Desc).
		OrderBy("seq", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var msgs []*model.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list messages",
				goerr.V("chat_id", chatID),
				goerr.T(model.ErrTagStoreUnavailable),
			)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode message", goerr.V("doc_id", snap.Ref.ID))
		}
		msgs = append(msgs, fromMessageDoc(&doc))
	}

	// Query is newest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *Firestore) UpsertMemory(ctx context.Context, record *model.MemoryRecord) error {
	if record.ID == "" {
		return goerr.New("memory record ID is empty", goerr.T(model.ErrTagInvalidInput))
	}
	if len(record.Vector) == 0 {
		return goerr.New("memory record vector is empty", goerr.V("id", record.ID), goerr.T(model.ErrTagInvalidInput))
	}

	doc := &memoryDoc{
		ID:        string(record.ID),
		Embedding: firestore.Vector32(record.Vector),
		Metadata:  record.Metadata,
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := r.client.Collection(collectionMemories).Doc(string(record.ID)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to upsert memory",
			goerr.V("id", record.ID),
			goerr.T(model.ErrTagIndexUnavailable),
		)
	}
	return nil
}

func (r *Firestore) QueryMemory(ctx context.Context, vector []float32, topK int, filter model.MemoryFilter) ([]*model.MemoryMatch, error) {
	if topK <= 0 {
		return nil, goerr.New("topK must be positive", goerr.V("topK", topK), goerr.T(model.ErrTagInvalidInput))
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := r.client.Collection(collectionMemories).Query
	for _, k := range keys {
		q = q.Where("metadata."+k, "==", filter[k])
	}

	iter := q.FindNearest("embedding",
		firestore.Vector32(vector),
		topK,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceResultField},
	).Documents(ctx)
	defer iter.Stop()

	var matches []*model.MemoryMatch
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to query memories", goerr.T(model.ErrTagIndexUnavailable))
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc_id", snap.Ref.ID))
		}

		distance, _ := snap.Data()[distanceResultField].(float64)
		matches = append(matches, &model.MemoryMatch{
			ID:       model.MessageID(doc.ID),
			Score:    1 - distance,
			Metadata: doc.Metadata,
		})
	}

	return matches, nil
}

func toChatDoc(chat *model.Chat) *chatDoc {
	return &chatDoc{
		ID:        string(chat.ID),
		UserID:    string(chat.UserID),
		Title:     chat.Title,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
}

func fromChatDoc(doc *chatDoc) *model.Chat {
	return &model.Chat{
		ID:        model.ChatID(doc.ID),
		UserID:    model.UserID(doc.UserID),
		Title:     doc.Title,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func toMessageDoc(msg *model.Message) *messageDoc {
	return &messageDoc{
		ID:        string(msg.ID),
		ChatID:    string(msg.ChatID),
		UserID:    string(msg.UserID),
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		Seq:       msg.Seq,
	}
}

func fromMessageDoc(doc *messageDoc) *model.Message {
	return &model.Message{
		ID:        model.MessageID(doc.ID),
		ChatID:    model.ChatID(doc.ChatID),
		UserID:    model.UserID(doc.UserID),
		Role:      model.Role(doc.Role),
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
		Seq:       doc.Seq,
	}
}

package model

// Metadata keys of an embedding record
const (
	MetaChatID    = "chat_id"
	MetaUserID    = "user_id"
	MetaText      = "text"
	MetaMessageID = "message_id"
)

// EmbeddingDimension is the vector size produced by the embedding service
const EmbeddingDimension = 768

// MemoryRecord is a vector with metadata, keyed by the message it was created from
type MemoryRecord struct {
	ID       MessageID
	Vector   []float32
	Metadata map[string]string
}

// NewMemoryRecord builds the record for a stored message
func NewMemoryRecord(msg *Message, vector []float32) *MemoryRecord {
	return &MemoryRecord{
		ID:     msg.ID,
		Vector: vector,
		Metadata: map[string]string{
			MetaChatID:    string(msg.ChatID),
			MetaUserID:    string(msg.UserID),
			MetaText:      msg.Content,
			MetaMessageID: string(msg.ID),
		},
	}
}

// MemoryMatch is one ranked result of a memory query. Higher score is more similar.
type MemoryMatch struct {
	ID       MessageID
	Score    float64
	Metadata map[string]string
}

// Text returns the source text of the matched record
func (m *MemoryMatch) Text() string {
	return m.Metadata[MetaText]
}

// MemoryFilter restricts a query to records whose metadata equals every entry
type MemoryFilter map[string]string

// Match reports whether metadata satisfies the filter
func (f MemoryFilter) Match(metadata map[string]string) bool {
	for k, v := range f {
		if got, ok := metadata[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// UserFilter scopes a query to one user
func UserFilter(userID UserID) MemoryFilter {
	return MemoryFilter{MetaUserID: string(userID)}
}

package repository

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
	chromem "github.com/philippgille/chromem-go"
)

const chromemCollection = "memories"

var errNoEmbeddingFunc = goerr.New("embedding must be provided by caller")

// Chromem is a MemoryIndex backed by the embedded chromem-go vector database.
// A single collection holds every record; metadata filters use chromem's
// exact-match where clause.
type Chromem struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromem creates an in-process index. With a non-empty path the database
// is persisted to that directory.
func NewChromem(path string) (*Chromem, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem database", goerr.V("path", path))
		}
	}

	// Vectors always come from our embedder, never from chromem
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	}

	col, err := db.GetOrCreateCollection(chromemCollection, nil, noEmbed)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chromem collection")
	}

	return &Chromem{db: db, col: col}, nil
}

func (c *Chromem) UpsertMemory(ctx context.Context, record *model.MemoryRecord) error {
	if record.ID == "" {
		return goerr.New("memory record ID is empty", goerr.T(model.ErrTagInvalidInput))
	}
	if len(record.Vector) == 0 {
		return goerr.New("memory record vector is empty", goerr.V("id", record.ID), goerr.T(model.ErrTagInvalidInput))
	}

	doc := chromem.Document{
		ID:        string(record.ID),
		Metadata:  record.Metadata,
		Embedding: append([]float32(nil), record.Vector...),
		Content:   record.Metadata[model.MetaText],
	}
	if doc.Content == "" {
		doc.Content = string(record.ID)
	}

	if err := c.col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add chromem document",
			goerr.V("id", record.ID),
			goerr.T(model.ErrTagIndexUnavailable),
		)
	}
	return nil
}

func (c *Chromem) QueryMemory(ctx context.Context, vector []float32, topK int, filter model.MemoryFilter) ([]*model.MemoryMatch, error) {
	if topK <= 0 {
		return nil, goerr.New("topK must be positive", goerr.V("topK", topK), goerr.T(model.ErrTagInvalidInput))
	}

	// chromem rejects nResults larger than the collection
	n := min(topK, c.col.Count())
	if n == 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = map[string]string(filter)
	}

	results, err := c.col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query chromem", goerr.T(model.ErrTagIndexUnavailable))
	}

	matches := make([]*model.MemoryMatch, 0, len(results))
	for _, result := range results {
		matches = append(matches, &model.MemoryMatch{
			ID:       model.MessageID(result.ID),
			Score:    float64(result.Similarity),
			Metadata: result.Metadata,
		})
	}
	return matches, nil
}

package adapter

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/interfaces"
)

// CachedEmbedder memoizes embeddings by exact text. Only successful results
// are cached; failures always reach the underlying embedder again.
type CachedEmbedder struct {
	embedder interfaces.Embedder
	cache    *ristretto.Cache
}

// NewCachedEmbedder wraps embedder with a cache holding roughly maxEntries vectors
func NewCachedEmbedder(embedder interfaces.Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		return nil, goerr.New("cache size must be positive", goerr.V("max_entries", maxEntries))
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}

	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
	}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vector, ok := v.([]float32); ok {
			return append([]float32(nil), vector...), nil
		}
	}

	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(text, append([]float32(nil), vector...), 1)
	return vector, nil
}

// Wait blocks until pending cache writes are applied
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close stops the cache's background goroutines
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}

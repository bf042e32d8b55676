package embedcache

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/kt-search/internal/core/ports"
)

const defaultSize = 1024

// Embedder memoizes query vectors in front of another Embedder. Failed
// embeddings are not cached.
type Embedder struct {
	next  ports.Embedder
	cache *lru.Cache[string, []float32]
}

func New(next ports.Embedder, size int) (*Embedder, error) {
	if size <= 0 {
		size = defaultSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Embedder{next: next, cache: cache}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if vector, ok := e.cache.Get(key); ok {
		return vector, nil
	}
	vector, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, vector)
	return vector, nil
}

func (e *Embedder) Dimension() int {
	return e.next.Dimension()
}

func (e *Embedder) Len() int {
	return e.cache.Len()
}

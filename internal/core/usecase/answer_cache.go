package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

const DefaultAnswerCacheSize = 100

// AnswerCache holds synthesized answers keyed by query and candidate count.
// Entries are never refreshed on read, so eviction is first-in-first-out.
type AnswerCache struct {
	entries *lru.Cache[string, domain.InsightResult]
}

func NewAnswerCache(size int) (*AnswerCache, error) {
	if size <= 0 {
		size = DefaultAnswerCacheSize
	}
	entries, err := lru.New[string, domain.InsightResult](size)
	if err != nil {
		return nil, fmt.Errorf("create answer cache: %w", err)
	}
	return &AnswerCache{entries: entries}, nil
}

func answerCacheKey(query string, candidates int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%d", query, candidates)))
	return hex.EncodeToString(sum[:])
}

func (c *AnswerCache) Get(query string, candidates int) (domain.InsightResult, bool) {
	if c == nil {
		return domain.InsightResult{}, false
	}
	return c.entries.Peek(answerCacheKey(query, candidates))
}

// Put stores result unless the key is already present.
func (c *AnswerCache) Put(query string, candidates int, result domain.InsightResult) {
	if c == nil {
		return
	}
	c.entries.ContainsOrAdd(answerCacheKey(query, candidates), result)
}

func (c *AnswerCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

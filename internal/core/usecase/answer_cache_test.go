package usecase

import (
	"testing"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

func TestAnswerCacheKeyedByQueryAndCount(t *testing.T) {
	cache, err := NewAnswerCache(4)
	if err != nil {
		t.Fatalf("NewAnswerCache() error = %v", err)
	}
	cache.Put("q", 3, domain.InsightResult{Text: "três"})

	if got, ok := cache.Get("q", 3); !ok || got.Text != "três" {
		t.Fatalf("expected hit, got %+v ok=%v", got, ok)
	}
	if _, ok := cache.Get("q", 4); ok {
		t.Fatalf("different candidate count must miss")
	}
}

func TestAnswerCacheEvictsOldestFirst(t *testing.T) {
	cache, err := NewAnswerCache(2)
	if err != nil {
		t.Fatalf("NewAnswerCache() error = %v", err)
	}
	cache.Put("a", 1, domain.InsightResult{Text: "a"})
	cache.Put("b", 1, domain.InsightResult{Text: "b"})
	// Reads do not refresh recency.
	cache.Get("a", 1)
	cache.Put("c", 1, domain.InsightResult{Text: "c"})

	if _, ok := cache.Get("a", 1); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if _, ok := cache.Get("b", 1); !ok {
		t.Fatalf("expected b retained")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected size 2, got %d", cache.Len())
	}
}

func TestAnswerCacheKeepsFirstValue(t *testing.T) {
	cache, _ := NewAnswerCache(0)
	cache.Put("q", 1, domain.InsightResult{Text: "primeiro"})
	cache.Put("q", 1, domain.InsightResult{Text: "segundo"})
	if got, _ := cache.Get("q", 1); got.Text != "primeiro" {
		t.Fatalf("expected first stored value, got %q", got.Text)
	}
}

func TestNilAnswerCache(t *testing.T) {
	var cache *AnswerCache
	cache.Put("q", 1, domain.InsightResult{})
	if _, ok := cache.Get("q", 1); ok || cache.Len() != 0 {
		t.Fatalf("nil cache must behave as always-miss")
	}
}

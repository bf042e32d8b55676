package embedcache

import (
	"context"
	"errors"
	"testing"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) Dimension() int { return 1 }

func TestEmbedderCachesByTrimmedText(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := New(inner, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, text := range []string{"f110", " f110 ", "f110"} {
		if _, err := cached.Embed(context.Background(), text); err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.calls)
	}
	if cached.Dimension() != 1 || cached.Len() != 1 {
		t.Fatalf("unexpected dimension %d or len %d", cached.Dimension(), cached.Len())
	}
}

func TestEmbedderDoesNotCacheFailures(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	cached, err := New(inner, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for range 2 {
		if _, err := cached.Embed(context.Background(), "x"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if inner.calls != 2 {
		t.Fatalf("expected failures to reach the inner embedder, got %d calls", inner.calls)
	}
}

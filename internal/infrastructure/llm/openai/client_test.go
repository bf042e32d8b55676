package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/core/ports"
	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func TestCompleteUsesChatCompletions(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"chat",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" resposta "}}]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL + "/v1", APIKey: "k", ChatModel: "chat"}, testExecutor())
	text, err := client.Complete(context.Background(), ports.CompletionRequest{Prompt: "oi", MaxTokens: 300, Temperature: 0.1})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "resposta" {
		t.Fatalf("unexpected text %q", text)
	}
	if payload["model"] != "chat" {
		t.Fatalf("unexpected model in payload: %v", payload["model"])
	}
	if got, _ := payload["max_tokens"].(float64); got != 300 {
		t.Fatalf("expected max_tokens 300, got %v", payload["max_tokens"])
	}
}

func TestEmbedConvertsVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"emb","usage":{"prompt_tokens":1,"total_tokens":1},` +
			`"data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL + "/v1", APIKey: "k", EmbedModel: "emb", EmbedDimension: 2}, testExecutor())
	vector, err := client.Embed(context.Background(), "texto")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vector) != 2 || vector[0] != 0.5 || vector[1] != 0.25 {
		t.Fatalf("unexpected vector %v", vector)
	}
}

func TestCompleteRetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL + "/v1", APIKey: "k", ChatModel: "chat"}, testExecutor())
	_, err := client.Complete(context.Background(), ports.CompletionRequest{Prompt: "oi"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected executor to retry once, got %d calls", calls.Load())
	}
}

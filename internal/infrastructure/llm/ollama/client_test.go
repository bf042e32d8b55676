package ollama

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

func TestCompleteSendsGenerationOptions(t *testing.T) {
	var captured generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  resposta  "}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, GenModel: "gen", EmbedModel: "embed"}, testExecutor())
	text, err := client.Complete(context.Background(), ports.CompletionRequest{
		Prompt:      "pergunta?",
		MaxTokens:   600,
		Temperature: 0.2,
		TopP:        0.9,
		Timeout:     time.Second,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "resposta" {
		t.Fatalf("expected trimmed response, got %q", text)
	}
	if captured.Model != "gen" || captured.Prompt != "pergunta?" || captured.Stream {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if captured.Options.NumPredict != 600 || captured.Options.Temperature != 0.2 || captured.Options.TopP != 0.9 {
		t.Fatalf("unexpected options: %+v", captured.Options)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, GenModel: "gen"}, testExecutor())
	text, err := client.Complete(context.Background(), ports.CompletionRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "ok" || calls.Load() != 2 {
		t.Fatalf("expected success on second call, got %q after %d calls", text, calls.Load())
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, EmbedModel: "embed"}, testExecutor())
	_, err := client.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error kind, got %v", err)
	}
}

func TestEmbedReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Model != "embed" || len(payload.Input) != 1 || payload.Input[0] != "hello" {
			t.Fatalf("unexpected payload: %+v", payload)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, EmbedModel: "embed", EmbedDimension: 3}, testExecutor())
	vector, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vector) != 3 || client.Dimension() != 3 {
		t.Fatalf("unexpected vector %v (dimension %d)", vector, client.Dimension())
	}
}

func TestEmbedBadRequestIsProviderUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, EmbedModel: "embed"}, testExecutor())
	_, err := client.Embed(context.Background(), "hello")
	if !domain.IsKind(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry for 400, got %d calls", calls.Load())
	}
}

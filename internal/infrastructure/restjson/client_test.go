package restjson

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
)

func TestPostSendsJSONAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/kt/points/query" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("api-key") != "secret" || r.Header.Get("Content-Type") != "application/json" {
			t.Fatalf("missing headers: %v", r.Header)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"echo": body["limit"]})
	}))
	defer srv.Close()

	c := New("qdrant", srv.URL+"/", time.Second, http.Header{"api-key": {"secret"}})
	var out struct {
		Echo int `json:"echo"`
	}
	if err := c.Post(context.Background(), "/collections/kt/points/query", map[string]int{"limit": 7}, &out, "query"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if out.Echo != 7 {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestNon2xxBecomesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := New("qdrant", srv.URL, time.Second, nil).Get(context.Background(), "/collections/missing", nil, "collection info")

	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Provider != "qdrant" || statusErr.Body != "collection not found" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}

func TestGetWithNilOutDiscardsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
	}))
	defer srv.Close()

	if err := New("qdrant", srv.URL, time.Second, nil).Get(context.Background(), "/", nil, "ping"); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestDecodeFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out map[string]any
	err := New("ollama", srv.URL, time.Second, nil).Post(context.Background(), "/api/embed", map[string]string{}, &out, "embed")
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

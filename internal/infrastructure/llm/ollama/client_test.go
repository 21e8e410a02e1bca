package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/resilience"
)

func TestGeneratorSendsSystemAndUserPrompt(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  retinol note \n"}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen-model", "embed-model"))
	out, err := gen.Generate(context.Background(), "system text", "user text")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "retinol note" {
		t.Fatalf("expected trimmed response, got %q", out)
	}
	if payload["system"] != "system text" || payload["prompt"] != "user text" || payload["model"] != "gen-model" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["stream"] != false {
		t.Fatalf("expected non-streaming request")
	}
}

func TestGeneratorOmitsBlankSystemPrompt(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"response":""}`))
	}))
	defer server.Close()

	out, err := NewGenerator(New(server.URL, "gen", "embed")).Generate(context.Background(), " ", "user")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "" {
		t.Fatalf("expected blank output, got %q", out)
	}
	if _, ok := payload["system"]; ok {
		t.Fatalf("expected system key to be omitted")
	}
}

func TestEmbedReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["input"] != "hello" || payload["model"] != "embed-model" {
			t.Fatalf("unexpected payload: %v", payload)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.25,0.125]]}`))
	}))
	defer server.Close()

	vector, err := NewEmbedder(New(server.URL, "gen", "embed-model")).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vector) != 3 || vector[2] != 0.125 {
		t.Fatalf("unexpected vector: %v", vector)
	}
}

func TestEmbedEmptyResultIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	if _, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for empty embeddings")
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to be marked temporary, got %v", err)
	}
}

func TestBadRequestIsNotTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewGenerator(New(server.URL, "missing", "embed")).Generate(context.Background(), "", "q")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected 404 not to be temporary, got %v", err)
	}
}

func TestClientDoesNotRetryThroughExecutor(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		BreakerEnabled:      true,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	})
	gen := NewGenerator(New(server.URL, "gen", "embed", WithExecutor(exec)))

	for i := 0; i < 3; i++ {
		if _, err := gen.Generate(context.Background(), "", "q"); !domain.IsKind(err, domain.ErrTemporary) {
			t.Fatalf("call %d: expected temporary error, got %v", i, err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected 2 upstream calls before the breaker opened, got %d", calls)
	}
}

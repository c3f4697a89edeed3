package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/resilience"
)

func TestBackendSendsPromptsInJSONMode(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  {\"category_id\": 3}  "}`))
	}))
	defer server.Close()

	temp := 0.7
	backend := NewBackend(NewWithOptions(server.URL, "llama3.2", "nomic-embed-text", Options{Temperature: &temp}))
	reply, err := backend.Complete(context.Background(), domain.ClassificationRequest{
		RequestID:    "r1",
		SystemPrompt: "classify",
		UserPrompt:   "Here is the document content to classify:\n\npizza menu",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != `{"category_id": 3}` {
		t.Fatalf("unexpected reply %q", reply)
	}
	if payload["system"] != "classify" || payload["format"] != "json" || payload["stream"] != false || payload["model"] != "llama3.2" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if !strings.Contains(payload["prompt"].(string), "pizza menu") {
		t.Fatalf("prompt missing document text: %v", payload["prompt"])
	}
	options, _ := payload["options"].(map[string]any)
	if options["temperature"] != 0.7 {
		t.Fatalf("expected temperature option, got %v", payload["options"])
	}
	if _, ok := payload["images"]; ok {
		t.Fatalf("text request must not carry images")
	}
}

func TestBackendEncodesImage(t *testing.T) {
	var images []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		images, _ = payload["images"].([]any)
		_, _ = w.Write([]byte(`{"response":"{}"}`))
	}))
	defer server.Close()

	backend := NewBackend(New(server.URL, "llava", "embed"))
	_, err := backend.Complete(context.Background(), domain.ClassificationRequest{
		UserPrompt: "classify",
		Image:      &domain.Image{MimeType: "image/png", Data: []byte("png-bytes")},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(images) != 1 || images[0] != base64.StdEncoding.EncodeToString([]byte("png-bytes")) {
		t.Fatalf("unexpected images %v", images)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed")
	embedder := NewEmbedder(client)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected HTTPStatusError, got %T", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("502 should be marked temporary, got %v", err)
	}
}

func TestEmbedRejectsVectorCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	_, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestExecutorRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,2,3]]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
	})
	embedder := NewEmbedder(NewWithOptions(server.URL, "gen", "embed", Options{ResilienceExecutor: exec}))
	vectors, err := embedder.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 || calls.Load() != 2 {
		t.Fatalf("expected retry then success, vectors=%v calls=%d", vectors, calls.Load())
	}
}

func TestClassifyOllamaErrorDoesNotRetryClientErrors(t *testing.T) {
	class := classifyOllamaError(&HTTPStatusError{Operation: "generate", StatusCode: http.StatusBadRequest, Status: "400 Bad Request"})
	if class.Retryable || class.RecordFailure {
		t.Fatalf("unexpected classification %+v", class)
	}
	class = classifyOllamaError(&HTTPStatusError{Operation: "generate", StatusCode: http.StatusTooManyRequests, Status: "429"})
	if !class.Retryable {
		t.Fatalf("429 should be retryable")
	}
}

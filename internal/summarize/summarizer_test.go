package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/knowledge"
	"github.com/nidhogg/recall/internal/memory"
)

func testTurns() []memory.Turn {
	now := time.Now().UTC()
	return []memory.Turn{
		{Role: "user", Content: "what color is the sky", Timestamp: now},
		{Role: "assistant", Content: "The sky is blue.", Timestamp: now},
	}
}

func TestChatSummarizerSummarize(t *testing.T) {
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  User asked about sky color; it is blue.  "}},
			},
		})
	}))
	defer server.Close()

	s := NewChatSummarizer(Config{
		Endpoint: server.URL,
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
	}, zap.NewNop())

	summary, err := s.Summarize(context.Background(), testTurns())
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary != "User asked about sky color; it is blue." {
		t.Errorf("unexpected summary %q", summary)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Errorf("unexpected model %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(gotBody.Messages))
	}
	content := gotBody.Messages[0].Content
	if !strings.Contains(content, "[user]: what color is the sky") {
		t.Errorf("transcript missing user turn: %q", content)
	}
	if !strings.Contains(content, "[assistant]: The sky is blue.") {
		t.Errorf("transcript missing assistant turn: %q", content)
	}
}

func TestChatSummarizerEmptyTurns(t *testing.T) {
	s := NewChatSummarizer(Config{Endpoint: "http://localhost:9"}, zap.NewNop())
	if _, err := s.Summarize(context.Background(), nil); !errors.Is(err, knowledge.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestChatSummarizerUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewChatSummarizer(Config{Endpoint: server.URL, Model: "m"}, zap.NewNop())
	if _, err := s.Summarize(context.Background(), testTurns()); !errors.Is(err, knowledge.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for 503, got %v", err)
	}

	// Connection refused maps the same way.
	down := NewChatSummarizer(Config{Endpoint: "http://127.0.0.1:1", Model: "m", TimeoutSeconds: 1}, zap.NewNop())
	if _, err := down.Summarize(context.Background(), testTurns()); !errors.Is(err, knowledge.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for connection failure, got %v", err)
	}
}

func TestChatSummarizerEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	s := NewChatSummarizer(Config{Endpoint: server.URL, Model: "m"}, zap.NewNop())
	if _, err := s.Summarize(context.Background(), testTurns()); !errors.Is(err, knowledge.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for empty choices, got %v", err)
	}
}

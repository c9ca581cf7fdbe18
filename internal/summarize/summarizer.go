package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/knowledge"
	"github.com/nidhogg/recall/internal/memory"
)

const summaryPrompt = "Compress the following conversation into a concise summary. " +
	"Keep facts, decisions, and open questions. Drop pleasantries.\n\n"

// Config holds connection settings for an OpenAI-compatible chat API.
type Config struct {
	Endpoint       string `json:"endpoint"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	MaxTokens      int    `json:"max_tokens"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ChatSummarizer implements memory.Summarizer against a chat completions
// endpoint.
type ChatSummarizer struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

var _ memory.Summarizer = (*ChatSummarizer)(nil)

// NewChatSummarizer creates a summarizer for an OpenAI-compatible API.
func NewChatSummarizer(cfg Config, logger *zap.Logger) *ChatSummarizer {
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &ChatSummarizer{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize renders the turns as a transcript and asks the model for a
// compact summary.
func (s *ChatSummarizer) Summarize(ctx context.Context, turns []memory.Turn) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("%w: no turns to summarize", knowledge.ErrValidation)
	}

	var transcript strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&transcript, "[%s]: %s\n", t.Role, t.Content)
	}

	req := chatRequest{
		Model: s.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: summaryPrompt + transcript.String()},
		},
		MaxTokens: s.config.MaxTokens,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: summarizer request: %v", knowledge.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: summarizer API error %d: %s",
			knowledge.ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decode summarizer response: %v", knowledge.ErrUnavailable, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response from summarizer", knowledge.ErrUnavailable)
	}

	summary := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("%w: blank summary from summarizer", knowledge.ErrUnavailable)
	}
	s.logger.Debug("summarized turns",
		zap.Int("turns", len(turns)),
		zap.Int("summary_len", len(summary)))
	return summary, nil
}

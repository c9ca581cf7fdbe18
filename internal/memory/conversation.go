package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store implementations for unknown sessions.
var ErrNotFound = errors.New("session not found")

// Turn is a single conversational exchange half.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the per-session memory record: a bounded short-term window
// plus an optional consolidated summary. The window and the summary together
// always represent the full available context.
type Conversation struct {
	SessionID               string    `json:"session_id"`
	Window                  []Turn    `json:"window"`
	Summary                 string    `json:"summary,omitempty"`
	TurnsSinceConsolidation int       `json:"turns_since_consolidation"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never alias a stored window slice.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Window = make([]Turn, len(c.Window))
	copy(out.Window, c.Window)
	return &out
}

// Store persists Conversation records keyed by session id. The engine defines
// the shape; persistence mechanics live behind this interface.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// Summarizer is the external summarization collaborator.
type Summarizer interface {
	Summarize(ctx context.Context, turns []Turn) (string, error)
}

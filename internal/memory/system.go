package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/knowledge"
	"github.com/nidhogg/recall/internal/retrieval"
)

// LongTermStore receives promoted turns and consolidated summaries.
// The engine's idempotent ingest satisfies it.
type LongTermStore interface {
	Ingest(ctx context.Context, text string, metadata map[string]string) (id string, deduped bool, err error)
}

// Retriever supplies ranked long-term context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filters map[string]string) ([]retrieval.Result, error)
}

// Config tunes the two-tier memory behavior.
type Config struct {
	// WindowSize bounds the short-term window; the oldest turn is evicted
	// FIFO once the bound is exceeded.
	WindowSize int `json:"window_size"`
	// ConsolidationThreshold is the turn count that triggers summarization.
	ConsolidationThreshold int `json:"consolidation_threshold"`
	// KeepRecent turns are kept verbatim through a consolidation.
	KeepRecent int `json:"keep_recent"`
	// RetrieveK is the number of long-term results assembled into context.
	RetrieveK int `json:"retrieve_k"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:             10,
		ConsolidationThreshold: 10,
		KeepRecent:             4,
		RetrieveK:              3,
	}
}

// System orchestrates short-term windows and long-term promotion.
// Turns for different sessions may run concurrently; turns for the same
// session are serialized by a per-session lock that is released on every
// exit path, including failures.
type System struct {
	store      Store
	longTerm   LongTermStore
	retriever  Retriever
	summarizer Summarizer
	cfg        Config
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSystem wires the memory system. longTerm, retriever and summarizer may
// be nil, which disables promotion, retrieval and consolidation respectively.
func NewSystem(store Store, longTerm LongTermStore, retriever Retriever, summarizer Summarizer, cfg Config, logger *zap.Logger) *System {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.ConsolidationThreshold <= 0 {
		cfg.ConsolidationThreshold = def.ConsolidationThreshold
	}
	if cfg.KeepRecent <= 0 || cfg.KeepRecent >= cfg.WindowSize {
		cfg.KeepRecent = def.KeepRecent
		if cfg.KeepRecent >= cfg.WindowSize {
			cfg.KeepRecent = cfg.WindowSize / 2
		}
	}
	if cfg.RetrieveK <= 0 {
		cfg.RetrieveK = def.RetrieveK
	}
	return &System{
		store:      store,
		longTerm:   longTerm,
		retriever:  retriever,
		summarizer: summarizer,
		cfg:        cfg,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex guarding one session's mutations.
func (s *System) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// AppendTurn records a turn in the short-term window and promotes it into
// long-term memory. The window is created on the first turn of a session.
func (s *System) AppendTurn(ctx context.Context, sessionID, role, text string) error {
	if sessionID == "" || role == "" {
		return fmt.Errorf("append turn: %w: session id and role are required", knowledge.ErrValidation)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("append turn: %w: empty text", knowledge.ErrValidation)
	}

	now := time.Now().UTC()

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.store.Load(ctx, sessionID)
	if err == ErrNotFound {
		conv = &Conversation{SessionID: sessionID, CreatedAt: now}
	} else if err != nil {
		return fmt.Errorf("append turn: load session %s: %w", sessionID, err)
	}

	conv.Window = append(conv.Window, Turn{Role: role, Content: text, Timestamp: now})
	for len(conv.Window) > s.cfg.WindowSize {
		conv.Window = conv.Window[1:]
	}
	conv.TurnsSinceConsolidation++
	conv.UpdatedAt = now

	if err := s.store.Save(ctx, conv); err != nil {
		return fmt.Errorf("append turn: save session %s: %w", sessionID, err)
	}

	// Promotion makes the turn searchable from any session. A long-term
	// write failure never loses the turn itself.
	if s.longTerm != nil {
		_, _, err := s.longTerm.Ingest(ctx, text, map[string]string{
			knowledge.MetaSessionID: sessionID,
			knowledge.MetaRole:      role,
			knowledge.MetaTimestamp: now.Format(time.RFC3339Nano),
			knowledge.MetaType:      knowledge.TypeConversation,
		})
		if err != nil {
			s.logger.Warn("long-term promotion failed",
				zap.String("session", sessionID), zap.Error(err))
		}
	}
	return nil
}

// Context is the bundle handed to the external language-model call.
type Context struct {
	Summary     string             `json:"summary,omitempty"`
	RecentTurns []Turn             `json:"recent_turns"`
	Retrieved   []retrieval.Result `json:"retrieved,omitempty"`
}

// GetContext assembles the short-term window (with summary, if any) and,
// when useRetrieval is set, the ranked long-term results for the query.
// Retrieval collaborator failures degrade to an empty retrieved set.
func (s *System) GetContext(ctx context.Context, sessionID, query string, useRetrieval bool) (*Context, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("get context: %w: session id is required", knowledge.ErrValidation)
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	conv, err := s.store.Load(ctx, sessionID)
	lock.Unlock()

	out := &Context{}
	switch {
	case err == ErrNotFound:
		// First turn of a session has no history yet.
	case err != nil:
		return nil, fmt.Errorf("get context: load session %s: %w", sessionID, err)
	default:
		out.Summary = conv.Summary
		out.RecentTurns = conv.Window
	}

	if useRetrieval && s.retriever != nil && strings.TrimSpace(query) != "" {
		results, err := s.retriever.Retrieve(ctx, query, s.cfg.RetrieveK, nil)
		if err != nil {
			s.logger.Warn("context retrieval degraded",
				zap.String("session", sessionID), zap.Error(err))
		} else {
			out.Retrieved = results
		}
	}
	return out, nil
}

// MaybeConsolidate summarizes the older part of the window once the turn
// counter crosses the threshold. On summarizer failure the window, summary
// and counter are left untouched and consolidation retries on a later turn.
func (s *System) MaybeConsolidate(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("consolidate: %w: session id is required", knowledge.ErrValidation)
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.store.Load(ctx, sessionID)
	if err == ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("consolidate: load session %s: %w", sessionID, err)
	}

	if conv.TurnsSinceConsolidation < s.cfg.ConsolidationThreshold {
		return false, nil
	}
	cut := len(conv.Window) - s.cfg.KeepRecent
	if cut <= 0 || s.summarizer == nil {
		return false, nil
	}

	summary, err := s.summarizer.Summarize(ctx, conv.Window[:cut])
	if err != nil {
		return false, fmt.Errorf("consolidate session %s: %w", sessionID, err)
	}
	if strings.TrimSpace(summary) == "" {
		return false, fmt.Errorf("consolidate session %s: %w: empty summary", sessionID, knowledge.ErrUnavailable)
	}

	if conv.Summary != "" {
		conv.Summary = conv.Summary + "\n" + summary
	} else {
		conv.Summary = summary
	}
	conv.Window = conv.Window[cut:]
	conv.TurnsSinceConsolidation = 0
	conv.UpdatedAt = time.Now().UTC()

	if err := s.store.Save(ctx, conv); err != nil {
		return false, fmt.Errorf("consolidate: save session %s: %w", sessionID, err)
	}

	// The summary joins long-term memory so other sessions can surface it.
	if s.longTerm != nil {
		_, _, err := s.longTerm.Ingest(ctx, summary, map[string]string{
			knowledge.MetaSessionID: sessionID,
			knowledge.MetaTimestamp: conv.UpdatedAt.Format(time.RFC3339Nano),
			knowledge.MetaType:      knowledge.TypeSummary,
		})
		if err != nil {
			s.logger.Warn("summary promotion failed",
				zap.String("session", sessionID), zap.Error(err))
		}
	}

	s.logger.Info("consolidated session",
		zap.String("session", sessionID),
		zap.Int("summarized_turns", cut),
		zap.Int("kept_turns", len(conv.Window)))
	return true, nil
}

// DeleteSession removes a session's memory and its lock entry.
func (s *System) DeleteSession(ctx context.Context, sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	delete(s.locks, sessionID)
	s.mu.Unlock()
	return nil
}

// Sessions lists known session ids.
func (s *System) Sessions(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

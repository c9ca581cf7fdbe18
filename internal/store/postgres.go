package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/memory"
)

// Postgres persists Conversation records in PostgreSQL. The short-term
// window is a JSONB document: the engine owns its shape, the database only
// keys it by session id.
type Postgres struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a Postgres store with a pgx connection pool.
func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Postgres{db: pool, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (s *Postgres) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Load fetches one conversation, memory.ErrNotFound when absent.
func (s *Postgres) Load(ctx context.Context, sessionID string) (*memory.Conversation, error) {
	conv := &memory.Conversation{SessionID: sessionID}
	var windowJSON []byte

	err := s.db.QueryRow(ctx, `
		SELECT window, summary, turns_since_consolidation, created_at, updated_at
		FROM conversations
		WHERE session_id = $1`, sessionID,
	).Scan(&windowJSON, &conv.Summary, &conv.TurnsSinceConsolidation, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", sessionID, err)
	}

	if len(windowJSON) > 0 {
		if err := json.Unmarshal(windowJSON, &conv.Window); err != nil {
			return nil, fmt.Errorf("decode window %s: %w", sessionID, err)
		}
	}
	return conv, nil
}

// Save upserts a conversation record.
func (s *Postgres) Save(ctx context.Context, conv *memory.Conversation) error {
	windowJSON, err := json.Marshal(conv.Window)
	if err != nil {
		return fmt.Errorf("encode window %s: %w", conv.SessionID, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO conversations (session_id, window, summary, turns_since_consolidation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id)
		DO UPDATE SET window = $2, summary = $3, turns_since_consolidation = $4, updated_at = $6`,
		conv.SessionID, windowJSON, conv.Summary, conv.TurnsSinceConsolidation,
		conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.SessionID, err)
	}
	return nil
}

// Delete removes a conversation record.
func (s *Postgres) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM conversations WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete conversation %s: %w", sessionID, err)
	}
	return nil
}

// List returns all known session ids ordered by last update.
func (s *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT session_id FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close shuts down the connection pool.
func (s *Postgres) Close() {
	s.db.Close()
}

package memory

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-process Store, used in tests and single-node setups
// without external persistence.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*Conversation
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]*Conversation)}
}

func (s *MemStore) Load(ctx context.Context, sessionID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

func (s *MemStore) Save(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[conv.SessionID] = conv.Clone()
	return nil
}

func (s *MemStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

package session

import (
	"context"
	"sync"
)

// MemoryStore keeps the token for the lifetime of the process.
type MemoryStore struct {
	mu    sync.Mutex
	token Token
	set   bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CurrentToken(ctx context.Context) (Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.set, nil
}

func (m *MemoryStore) PersistToken(ctx context.Context, tok Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = tok
	m.set = true
	return nil
}

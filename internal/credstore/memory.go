package credstore

import (
	"context"
	"sync"
)

// Memory keeps the credential in process memory.
type Memory struct {
	mu         sync.RWMutex
	credential string
	set        bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return "", ErrNotFound
	}
	return m.credential, nil
}

func (m *Memory) Save(_ context.Context, credential string) error {
	m.mu.Lock()
	m.credential = credential
	m.set = true
	m.mu.Unlock()
	return nil
}

var _ Store = (*Memory)(nil)

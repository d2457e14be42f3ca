package chat

import (
	"context"
	"sync"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
)

type memoryBackend struct {
	mu        sync.RWMutex
	exchanges map[string][]chat.Exchange
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{exchanges: make(map[string][]chat.Exchange)}
}

func (m *memoryBackend) Append(_ context.Context, ex chat.Exchange, retention int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := append(m.exchanges[ex.BotID], ex)
	if over := len(entries) - retention; over > 0 {
		entries = append([]chat.Exchange(nil), entries[over:]...)
	}
	m.exchanges[ex.BotID] = entries
	return nil
}

func (m *memoryBackend) List(_ context.Context, botID string) ([]chat.Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.exchanges[botID]
	copied := make([]chat.Exchange, len(stored))
	copy(copied, stored)
	return copied, nil
}

package memory

import (
	"context"
	"sync"
)

// FireMarker remembers fired schedule slots for the life of the process.
type FireMarker struct {
	mu    sync.Mutex
	fired map[string]string // guildID -> last slot
}

func NewFireMarker() *FireMarker {
	return &FireMarker{fired: make(map[string]string)}
}

func (m *FireMarker) MarkFired(_ context.Context, guildID, slot string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fired[guildID] == slot {
		return false, nil
	}
	m.fired[guildID] = slot
	return true, nil
}

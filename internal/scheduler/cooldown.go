package scheduler

import (
	"context"
	"sync"
	"time"
)

// DefaultCooldownWindow is the minimum gap between two low-stock alert
// bursts for the same product.
const DefaultCooldownWindow = 24 * time.Hour

// CooldownStore remembers when each product was last alerted on.
type CooldownStore interface {
	// LastNotified returns the last alert time for productID and whether
	// one exists.
	LastNotified(ctx context.Context, productID int64) (time.Time, bool, error)
	// RecordNotified stores at as the last alert time for productID.
	RecordNotified(ctx context.Context, productID int64, at time.Time) error
}

// MemoryCooldown keeps cooldowns in process memory. Entries are never
// removed; they simply stop mattering once the window has passed. A restart
// forgets every cooldown.
type MemoryCooldown struct {
	mu   sync.Mutex
	last map[int64]time.Time
}

// NewMemoryCooldown returns an empty MemoryCooldown.
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{last: make(map[int64]time.Time)}
}

func (m *MemoryCooldown) LastNotified(_ context.Context, productID int64) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.last[productID]
	return t, ok, nil
}

func (m *MemoryCooldown) RecordNotified(_ context.Context, productID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[productID] = at
	return nil
}

// CooldownElapsed reports whether a product last alerted at last (if any)
// may be alerted again at now.
func CooldownElapsed(now, last time.Time, found bool, window time.Duration) bool {
	return !found || now.Sub(last) >= window
}

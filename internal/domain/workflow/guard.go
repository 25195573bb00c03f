package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultDebounceWindow = 5 * time.Second
	DefaultDedupRetention = 60 * time.Second
)

// DedupStore keeps the last time a (channel, workflow, booking, trigger) key
// was dispatched. Implementations: MemoryDedupStore here, Redis in infra/dedup.
type DedupStore interface {
	// Reserve records at under key unless the key was reserved less than
	// window ago, in one atomic step. It reports whether the reservation
	// was made.
	Reserve(ctx context.Context, key string, at time.Time, window time.Duration) (bool, error)

	// Purge drops every entry recorded before olderThan.
	Purge(ctx context.Context, olderThan time.Time) error
}

// DedupKey builds the composite guard key.
func DedupKey(channel Channel, workflowID, bookingID string, trigger Trigger) string {
	return string(channel) + ":" + workflowID + ":" + bookingID + ":" + string(trigger)
}

// Guard debounces repeated dispatches of the same workflow for the same
// booking and trigger. Concurrent callers sharing a store see exactly one
// proceed decision per window.
type Guard struct {
	store     DedupStore
	window    time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewGuard creates a guard. Zero durations fall back to the defaults and a
// nil clock means time.Now.
func NewGuard(store DedupStore, window, retention time.Duration, now func() time.Time) *Guard {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if retention < window {
		retention = max(DefaultDedupRetention, window)
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, window: window, retention: retention, now: now}
}

// ShouldSkip reports whether the key was dispatched within the debounce
// window. On a proceed decision the current time is recorded. Store errors
// fail open.
func (g *Guard) ShouldSkip(ctx context.Context, channel Channel, workflowID, bookingID string, trigger Trigger) bool {
	now := g.now()

	if err := g.store.Purge(ctx, now.Add(-g.retention)); err != nil {
		slog.Warn("dedup purge failed", "error", err)
	}

	key := DedupKey(channel, workflowID, bookingID, trigger)
	reserved, err := g.store.Reserve(ctx, key, now, g.window)
	if err != nil {
		slog.Warn("dedup reservation failed, proceeding", "key", key, "error", err)
		return false
	}
	return !reserved
}

var _ DedupStore = (*MemoryDedupStore)(nil)

// MemoryDedupStore is a process-local DedupStore.
type MemoryDedupStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryDedupStore creates an empty in-memory store.
func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{entries: make(map[string]time.Time)}
}

func (m *MemoryDedupStore) Reserve(_ context.Context, key string, at time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.entries[key]; ok && at.Sub(last) < window {
		return false, nil
	}
	m.entries[key] = at
	return true, nil
}

func (m *MemoryDedupStore) Purge(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, at := range m.entries {
		if at.Before(olderThan) {
			delete(m.entries, key)
		}
	}
	return nil
}

// Len returns the number of tracked keys.
func (m *MemoryDedupStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

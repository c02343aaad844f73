package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store useful for tests.
// It is not intended for production use.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	clock func() time.Time

	// Err, when set, is returned by every call to simulate an outage.
	Err error
}

type memoryItem struct {
	value     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memoryItem{}, clock: time.Now}
}

// SetClock swaps the clock used for TTL eviction.
func (m *MemoryStore) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

func (m *MemoryStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.items[key] = memoryItem{value: value, expiresAt: m.clock().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	it, ok := m.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return it.value, nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, key, prev, next string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	it, ok := m.live(key)
	if !ok || it.value != prev {
		return false, nil
	}
	m.items[key] = memoryItem{value: next, expiresAt: m.clock().Add(ttl)}
	return true, nil
}

func (m *MemoryStore) ScanPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if limit <= 0 || limit > DefaultScanLimit {
		limit = DefaultScanLimit
	}
	out := make([]string, 0)
	for k := range m.items {
		if _, ok := m.live(k); ok && strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TTL reports the remaining lifetime of key, or zero when absent.
func (m *MemoryStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.live(key)
	if !ok {
		return 0
	}
	return it.expiresAt.Sub(m.clock())
}

// live must be called with mu held.
func (m *MemoryStore) live(key string) (memoryItem, bool) {
	it, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !m.clock().Before(it.expiresAt) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return it, true
}

package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	mu      sync.Mutex
	sess    *Session
	evicted bool
}

// MemoryStore is the in-process Store. The map lock is held only to find or
// insert entries; each entry carries its own lock for the session itself.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for LastActivity.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// acquire returns the locked live entry for key, creating it if needed.
func (m *MemoryStore) acquire(key string) *entry {
	for {
		m.mu.Lock()
		e, ok := m.entries[key]
		if !ok {
			e = &entry{sess: New(key, m.now())}
			m.entries[key] = e
		}
		m.mu.Unlock()

		e.mu.Lock()
		if !e.evicted {
			return e
		}
		// Lost a race with the sweeper; the next pass creates a fresh entry.
		e.mu.Unlock()
	}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, key string) (*Session, error) {
	return m.Update(ctx, key, func(*Session) error { return nil })
}

func (m *MemoryStore) Update(ctx context.Context, key string, fn func(*Session) error) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := m.acquire(NormalizeKey(key))
	defer e.mu.Unlock()

	work := e.sess.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.Key = e.sess.Key
	work.LastActivity = m.now()
	e.sess = work
	return work.Clone(), nil
}

// Peek returns a copy of a session without touching it.
func (m *MemoryStore) Peek(_ context.Context, key string) (*Session, bool, error) {
	m.mu.Lock()
	e, ok := m.entries[NormalizeKey(key)]
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil, false, nil
	}
	return e.sess.Clone(), true, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	key = NormalizeKey(key)
	m.mu.Lock()
	e, ok := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()
	if ok {
		e.mu.Lock()
		e.evicted = true
		e.mu.Unlock()
	}
	return nil
}

func (m *MemoryStore) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

// EvictStale snapshots the entries, then removes each stale one under its
// own lock. Entries busy with a turn are skipped; they are fresh by the time
// the turn finishes.
func (m *MemoryStore) EvictStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	m.mu.Lock()
	snapshot := make(map[string]*entry, len(m.entries))
	for k, e := range m.entries {
		snapshot[k] = e
	}
	m.mu.Unlock()

	removed := 0
	for key, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.mu.TryLock() {
			continue
		}
		if !e.evicted && now.Sub(e.sess.LastActivity) > ttl {
			e.evicted = true
			m.mu.Lock()
			if m.entries[key] == e {
				delete(m.entries, key)
			}
			m.mu.Unlock()
			removed++
		}
		e.mu.Unlock()
	}
	return removed, nil
}

// Package session keeps per-call conversation state: the accumulated
// context map and a bounded transcript of recent turns.
package session

import (
	"context"
	"time"
)

// DefaultKey is used when a caller supplies no session key.
const DefaultKey = "default"

// DefaultHistoryLimit bounds the transcript kept per session.
const DefaultHistoryLimit = 10

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one line of the transcript.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is the state remembered for one call.
type Session struct {
	Key          string            `json:"key"`
	Context      map[string]string `json:"context"`
	History      []Turn            `json:"history"`
	LastActivity time.Time         `json:"last_activity"`
}

// New returns an empty session for key.
func New(key string, now time.Time) *Session {
	return &Session{
		Key:          NormalizeKey(key),
		Context:      map[string]string{},
		History:      []Turn{},
		LastActivity: now,
	}
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := &Session{
		Key:          s.Key,
		Context:      make(map[string]string, len(s.Context)),
		History:      make([]Turn, len(s.History)),
		LastActivity: s.LastActivity,
	}
	for k, v := range s.Context {
		c.Context[k] = v
	}
	copy(c.History, s.History)
	return c
}

// NormalizeKey maps an empty key to DefaultKey.
func NormalizeKey(key string) string {
	if key == "" {
		return DefaultKey
	}
	return key
}

// AppendTurn adds a turn and drops the oldest entries so that at most limit
// remain. A limit below 1 uses DefaultHistoryLimit.
func AppendTurn(s *Session, role Role, text string, limit int) {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	s.History = append(s.History, Turn{Role: role, Text: text})
	if over := len(s.History) - limit; over > 0 {
		s.History = append(s.History[:0:0], s.History[over:]...)
	}
}

// Store is the session registry. Implementations isolate updates per key:
// two calls never block each other, and one call's turns apply in order.
type Store interface {
	// GetOrCreate returns a copy of the session for key, creating it when
	// absent. It refreshes LastActivity.
	GetOrCreate(ctx context.Context, key string) (*Session, error)
	// Update applies fn to the session for key atomically and returns a copy
	// of the result. When fn fails nothing is stored.
	Update(ctx context.Context, key string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) (int, error)
	// EvictStale removes sessions idle for longer than ttl and returns how
	// many it removed.
	EvictStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}

// Lookup returns a copy of the session for key without creating or touching
// it. ok is false when no such session exists.
type Lookup interface {
	Peek(ctx context.Context, key string) (s *Session, ok bool, err error)
}

// Package devotp keeps the last message dispatched to each destination so local clients can read
// verification codes without a mail or SMS provider. Only wired when OTP_RETURN_TO_CLIENT is set
// outside production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// DefaultRetention is how long a captured message stays readable.
const DefaultRetention = 15 * time.Minute

// Entry is a captured message.
type Entry struct {
	To      string    `json:"to"`
	Channel string    `json:"channel"`
	Subject string    `json:"subject,omitempty"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sentAt"`
}

// Store holds the latest Entry per destination.
type Store interface {
	Put(ctx context.Context, e Entry)
	// Get returns the entry for to if present and not past retention.
	Get(ctx context.Context, to string) (Entry, bool)
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	m         map[string]Entry
	retention time.Duration
	nowF      func() time.Time
}

// NewMemoryStore returns a store keeping entries for retention (<= 0 uses DefaultRetention).
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		m:         make(map[string]Entry),
		retention: retention,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Put replaces the entry for e.To. SentAt is stamped when zero.
func (s *MemoryStore) Put(ctx context.Context, e Entry) {
	if e.SentAt.IsZero() {
		e.SentAt = s.nowF()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[e.To] = e
}

func (s *MemoryStore) Get(ctx context.Context, to string) (Entry, bool) {
	s.mu.RLock()
	e, ok := s.m[to]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if !e.SentAt.Add(s.retention).After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, to)
		s.mu.Unlock()
		return Entry{}, false
	}
	return e, true
}

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store for tests and development.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Session
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Session), now: time.Now}
}

// NewMemoryStoreAt returns a MemoryStore reading time from now.
func NewMemoryStoreAt(now func() time.Time) *MemoryStore {
	return &MemoryStore{data: make(map[string]*Session), now: now}
}

func (s *MemoryStore) Get(_ context.Context, sid string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.data[sid]
	if !ok || !sess.ExpiresAt.After(s.now()) {
		return nil, ErrNotFound
	}
	cp := *sess
	if sess.Data != nil {
		cp.Data = make(map[string]string, len(sess.Data))
		for k, v := range sess.Data {
			cp.Data[k] = v
		}
	}
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, sid string, idleTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[sid]; exists {
		// Concurrent create race: keep the existing row.
		return nil
	}
	now := s.now()
	s.data[sid] = &Session{
		SID:        sid,
		CreatedAt:  now,
		AccessedAt: now,
		ExpiresAt:  now.Add(idleTimeout),
	}
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, sid string, idleTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[sid]
	if !ok {
		return nil
	}
	now := s.now()
	sess.AccessedAt = now
	sess.ExpiresAt = now.Add(idleTimeout)
	return nil
}

func (s *MemoryStore) UpdateData(_ context.Context, sid string, data map[string]string, idleTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[sid]
	if !ok {
		return nil
	}
	cp := make(map[string]string, len(data))
	for k, v := range data {
		cp[k] = v
	}
	now := s.now()
	sess.Data = cp
	sess.AccessedAt = now
	sess.ExpiresAt = now.Add(idleTimeout)
	return nil
}

func (s *MemoryStore) Rotate(_ context.Context, oldSID string, userID *string, idleTimeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newSID := NewSID()
	now := s.now()
	s.data[newSID] = &Session{
		SID:        newSID,
		UserID:     userID,
		CreatedAt:  now,
		AccessedAt: now,
		ExpiresAt:  now.Add(idleTimeout),
	}
	delete(s.data, oldSID)
	return newSID, nil
}

func (s *MemoryStore) ClearUser(_ context.Context, sid string, idleTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[sid]
	if !ok {
		return nil
	}
	now := s.now()
	sess.UserID = nil
	sess.AccessedAt = now
	sess.ExpiresAt = now.Add(idleTimeout)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sid)
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed int64
	for sid, sess := range s.data {
		if !sess.ExpiresAt.After(now) {
			delete(s.data, sid)
			removed++
		}
	}
	return removed, nil
}

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jmcleod/driftwood/internal/uuid"
)

// MemoryStore is an in-memory Store used in tests and single-process
// development setups. It enforces the same one-active-holder-per-address
// rule the Postgres exclusion constraint does.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*User         // by user id
	addresses map[string]*EmailAddress // active interval by address
	preferred map[string]string        // user id -> address
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*User),
		addresses: make(map[string]*EmailAddress),
		preferred: make(map[string]string),
	}
}

func (s *MemoryStore) UserByEmail(_ context.Context, address string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ea, ok := s.addresses[address]
	if !ok {
		return nil, ErrNotFound
	}
	u, ok := s.users[ea.UserID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, address, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.addresses[address]; taken {
		return nil, ErrEmailTaken
	}
	u := &User{
		ID:           uuid.New(),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	s.addresses[address] = &EmailAddress{
		ID:        uuid.New(),
		UserID:    u.ID,
		Address:   address,
		ValidFrom: u.CreatedAt,
	}
	s.preferred[u.ID] = address
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) PreferredEmail(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	address, ok := s.preferred[userID]
	if !ok {
		return "", ErrNotFound
	}
	return address, nil
}

package user

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. Used by tests
// and by cmd/api when no database is configured.
type InMemory struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*User
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty user store.
func NewInMemory() *InMemory {
	return &InMemory{users: make(map[int64]*User)}
}

func (s *InMemory) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		switch {
		case existing.Username == u.Username:
			return &ConflictError{Field: "username"}
		case existing.Email == u.Email:
			return &ConflictError{Field: "email"}
		case existing.MobileNumber == u.MobileNumber:
			return &ConflictError{Field: "mobile_number"}
		}
	}

	s.nextID++
	u.ID = s.nextID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemory) Find(ctx context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == identifier || u.Email == identifier || u.MobileNumber == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

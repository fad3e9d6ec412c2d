package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory implements Registry and Ledger with in-process concurrency safety.
// The single mutex serializes create calls, which is what upholds the cap
// under concurrent logins. Used by tests and by cmd/api without a database.
type InMemory struct {
	mu       sync.RWMutex
	nextID   int64
	sessions map[string]*Session        // token id -> session
	revoked  map[string]RevocationEntry // token id -> entry
	now      func() time.Time
}

var (
	_ Registry = (*InMemory)(nil)
	_ Ledger   = (*InMemory)(nil)
)

// NewInMemory creates an empty registry/ledger pair.
func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[string]*Session),
		revoked:  make(map[string]RevocationEntry),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Only intended for test use.
func (s *InMemory) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

func (s *InMemory) CountActive(ctx context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countActiveLocked(userID), nil
}

func (s *InMemory) countActiveLocked(userID int64) int {
	n := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active {
			n++
		}
	}
	return n
}

func (s *InMemory) FindOldestActive(ctx context.Context, userID int64) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	oldest := s.oldestActiveLocked(userID)
	if oldest == nil {
		return nil, ErrNotFound
	}
	cp := *oldest
	return &cp, nil
}

// oldestActiveLocked picks the eviction candidate: smallest last-active,
// ties broken by smallest creation time, then smallest id.
func (s *InMemory) oldestActiveLocked(userID int64) *Session {
	var oldest *Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Active {
			continue
		}
		if oldest == nil || olderThan(sess, oldest) {
			oldest = sess
		}
	}
	return oldest
}

func olderThan(a, b *Session) bool {
	if !a.LastActive.Equal(b.LastActive) {
		return a.LastActive.Before(b.LastActive)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *InMemory) Create(ctx context.Context, userID int64, tokenID, deviceInfo, ipAddress string) (Session, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for s.countActiveLocked(userID) >= MaxActivePerUser {
		victim := s.oldestActiveLocked(userID)
		victim.Active = false
		if _, ok := s.revoked[victim.TokenID]; !ok {
			s.revoked[victim.TokenID] = RevocationEntry{
				TokenID:   victim.TokenID,
				UserID:    victim.UserID,
				RevokedAt: s.now().UTC(),
			}
		}
		evicted = append(evicted, victim.TokenID)
	}

	s.nextID++
	now := s.now().UTC()
	sess := &Session{
		ID:         s.nextID,
		UserID:     userID,
		TokenID:    tokenID,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		Active:     true,
		CreatedAt:  now,
		LastActive: now,
	}
	s.sessions[tokenID] = sess
	return *sess, evicted, nil
}

func (s *InMemory) Touch(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenID]
	if !ok || !sess.Active {
		return false, nil
	}
	sess.LastActive = s.now().UTC()
	return true, nil
}

func (s *InMemory) Deactivate(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenID]
	if !ok {
		return false, nil
	}
	sess.Active = false
	return true, nil
}

func (s *InMemory) ListActive(ctx context.Context, userID int64) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active {
			res = append(res, *sess)
		}
	}
	// Most recently used first; newest id first on equal timestamps.
	sortSessions(res)
	return res, nil
}

func (s *InMemory) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[tokenID]
	return ok, nil
}

func (s *InMemory) Revoke(ctx context.Context, tokenID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[tokenID]; ok {
		return nil
	}
	s.revoked[tokenID] = RevocationEntry{
		TokenID:   tokenID,
		UserID:    userID,
		RevokedAt: s.now().UTC(),
	}
	return nil
}

func sortSessions(list []Session) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].LastActive.Equal(list[j].LastActive) {
			return list[i].LastActive.After(list[j].LastActive)
		}
		return list[i].ID > list[j].ID
	})
}

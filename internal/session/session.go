// Package session is the token/session lifecycle core: issuing sessions bound
// to signed tokens, revoking them through an append-only blacklist, verifying
// tokens against signature, revocation and liveness, and evicting the least
// recently active session once a user exceeds the concurrent-device cap.
package session

import (
	"context"
	"errors"
	"time"
)

// MaxActivePerUser caps simultaneously active sessions per user. Both store
// implementations enforce it atomically inside the creation path.
const MaxActivePerUser = 2

var (
	// ErrInvalidCredentials covers any login failure. It deliberately does
	// not say whether the identifier or the password was wrong.
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	// ErrInvalidToken covers any verification failure: malformed, tampered,
	// expired, or revoked tokens all look the same to the caller.
	ErrInvalidToken = errors.New("session: invalid token")

	// ErrNotFound indicates no session matched the lookup.
	ErrNotFound = errors.New("session: not found")
)

// Session is one device login, bound to exactly one token identifier.
// Rows are never deleted: logout and eviction flip Active to false.
type Session struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	TokenID    string    `json:"-"`
	DeviceInfo string    `json:"device_info"`
	IPAddress  string    `json:"ip_address"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// RevocationEntry marks a token identifier as permanently unusable.
type RevocationEntry struct {
	TokenID   string
	UserID    int64
	RevokedAt time.Time
}

// Registry owns the session collection's mutation path.
type Registry interface {
	// CountActive returns the number of active sessions for the user.
	CountActive(ctx context.Context, userID int64) (int, error)

	// FindOldestActive returns the active session with the smallest
	// last-active timestamp; ties break on creation time, then id.
	// ErrNotFound when the user has no active sessions.
	FindOldestActive(ctx context.Context, userID int64) (*Session, error)

	// Create inserts a new active session. If the user is at the cap, the
	// oldest active session is deactivated and its token revoked inside the
	// same atomic unit, so the cap is never exceeded even transiently.
	// Returns the new session and the token ids of any evicted sessions.
	Create(ctx context.Context, userID int64, tokenID, deviceInfo, ipAddress string) (Session, []string, error)

	// Touch advances the matching active session's last-active timestamp.
	// False when no active session matches; that is not an error.
	Touch(ctx context.Context, tokenID string) (bool, error)

	// Deactivate flips the matching session inactive. Idempotent; false when
	// no session row matches at all.
	Deactivate(ctx context.Context, tokenID string) (bool, error)

	// ListActive returns the user's active sessions, most recently used first.
	ListActive(ctx context.Context, userID int64) ([]Session, error)
}

// Ledger owns the append-only revocation record.
type Ledger interface {
	// IsRevoked reports whether the token id has been revoked. Unknown ids
	// return false, not an error.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// Revoke appends a revocation entry. Idempotent: revoking an already
	// revoked token succeeds without duplicating.
	Revoke(ctx context.Context, tokenID string, userID int64) error
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate.org/internal/token"
	"authgate.org/internal/user"
)

const defaultAccessTTL = 30 * time.Minute

// Device describes where a login came from.
type Device struct {
	Info    string
	Address string
}

// Identity is the result of a successful token verification.
type Identity struct {
	UserID   int64
	Username string
	TokenID  string
}

// LoginResult carries everything a successful login or registration yields.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
	Session   Session
	// Evicted lists token ids of sessions displaced to make room.
	Evicted []string
}

// Manager sequences the codec, registry, ledger and user store. It owns no
// storage itself; all collaborators are injected at construction.
type Manager struct {
	users    user.Store
	codec    *token.Codec
	registry Registry
	ledger   Ledger
	ttl      time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAccessTTL overrides the issued token lifetime.
func WithAccessTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewManager constructs the orchestrator.
func NewManager(users user.Store, codec *token.Codec, registry Registry, ledger Ledger, opts ...ManagerOption) *Manager {
	m := &Manager{
		users:    users,
		codec:    codec,
		registry: registry,
		ledger:   ledger,
		ttl:      defaultAccessTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register creates a user account and logs it in. Input must already be
// validated; the store reports uniqueness conflicts per field.
func (m *Manager) Register(ctx context.Context, in user.RegisterInput, dev Device) (LoginResult, error) {
	hash, err := user.HashPassword(in.Password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("hash password: %w", err)
	}
	u := &user.User{
		Username:     in.Username,
		Email:        in.Email,
		MobileNumber: in.MobileNumber,
		PasswordHash: hash,
	}
	if err := m.users.Create(ctx, u); err != nil {
		return LoginResult{}, err
	}
	return m.openSession(ctx, u, dev)
}

// Login authenticates by username, email, or mobile number. Any credential
// failure is ErrInvalidCredentials; the caller cannot tell which check failed.
func (m *Manager) Login(ctx context.Context, identifier, password string, dev Device) (LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	u, err := m.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}
	if err := user.VerifyPassword(u.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	return m.openSession(ctx, u, dev)
}

func (m *Manager) openSession(ctx context.Context, u *user.User, dev Device) (LoginResult, error) {
	tokenString, tokenID, expiresAt, err := m.codec.Issue(u.ID, u.Username, m.ttl)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	sess, evicted, err := m.registry.Create(ctx, u.ID, tokenID, dev.Info, dev.Address)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	return LoginResult{
		Token:     tokenString,
		ExpiresAt: expiresAt,
		User:      u,
		Session:   sess,
		Evicted:   evicted,
	}, nil
}

// Verify checks signature and expiry, then revocation, then touches the
// matching session. The touch result is advisory: a token whose session was
// deactivated in a concurrent logout still passes here, but the logout's
// revocation entry rejects it on every later attempt.
func (m *Manager) Verify(ctx context.Context, tokenString string) (Identity, error) {
	claims, err := m.codec.Parse(tokenString)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	revoked, err := m.ledger.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return Identity{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Identity{}, ErrInvalidToken
	}
	if _, err := m.registry.Touch(ctx, claims.TokenID); err != nil {
		return Identity{}, fmt.Errorf("touch session: %w", err)
	}
	return Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		TokenID:  claims.TokenID,
	}, nil
}

// Logout revokes the token and then deactivates its session, in that order.
// If the revocation cannot be recorded the logout fails and the session
// stays active; a "logged out" answer without a revocation entry would let
// the token keep verifying.
func (m *Manager) Logout(ctx context.Context, tokenString string) error {
	claims, err := m.codec.Parse(tokenString)
	if err != nil {
		return ErrInvalidToken
	}
	if err := m.ledger.Revoke(ctx, claims.TokenID, claims.UserID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if _, err := m.registry.Deactivate(ctx, claims.TokenID); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

// ListSessions enumerates the user's active sessions, most recent first.
func (m *Manager) ListSessions(ctx context.Context, userID int64) ([]Session, error) {
	return m.registry.ListActive(ctx, userID)
}

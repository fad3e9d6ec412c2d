// Package token issues and parses the signed access tokens that identify a
// login session. Every token carries a unique identifier (jti) that the
// session registry and the revocation ledger use as the matching key.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "authgate"

var (
	// ErrNoSecret indicates the signing secret is not configured. It is a
	// construction-time failure, never a per-request one.
	ErrNoSecret = errors.New("token: signing secret is not configured")

	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("token: invalid token")
)

// Claims is the fixed-field JWT payload. Subject holds the user id in
// decimal form; ID (jti) is the revocation and session-matching key.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenClaims is the validated, decoded view handed to callers.
type TokenClaims struct {
	UserID    int64
	Username  string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies access tokens with a symmetric HS256 key.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec. An empty secret returns ErrNoSecret so the
// process fails at startup instead of on the first request.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoSecret
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for the given user. The returned token id is a fresh
// crypto-random UUID, unique per issuance.
func (c *Codec) Issue(userID int64, username string, ttl time.Duration) (tokenString, tokenID string, expiresAt time.Time, err error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", "", time.Time{}, errors.New("token: username is required")
	}
	if ttl <= 0 {
		return "", "", time.Time{}, errors.New("token: ttl must be greater than zero")
	}

	now := c.now().UTC()
	expiresAt = now.Add(ttl)
	tokenID = uuid.NewString()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err = tok.SignedString(c.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return tokenString, tokenID, expiresAt, nil
}

// Parse verifies signature and expiry and extracts the claims. Any defect
// (malformed encoding, wrong algorithm, bad signature, expiry, missing
// subject/username/jti, non-integer subject) yields ErrInvalidToken.
func (c *Codec) Parse(tokenString string) (TokenClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return TokenClaims{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return TokenClaims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return TokenClaims{}, ErrInvalidToken
	}
	return c.validate(claims)
}

func (c *Codec) validate(claims *Claims) (TokenClaims, error) {
	if claims.Issuer != c.issuer {
		return TokenClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Username) == "" {
		return TokenClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.ID) == "" {
		return TokenClaims{}, ErrInvalidToken
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return TokenClaims{}, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil {
		return TokenClaims{}, ErrInvalidToken
	}
	now := c.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return TokenClaims{}, ErrInvalidToken
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return TokenClaims{}, ErrInvalidToken
	}
	return TokenClaims{
		UserID:    userID,
		Username:  claims.Username,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

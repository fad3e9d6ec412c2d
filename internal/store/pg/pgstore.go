// Package pg implements the user store, session registry, and revocation
// ledger on PostgreSQL through database/sql with the pgx driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"authgate.org/internal/user"
)

// Store wraps the shared connection pool and satisfies user.Store. Sessions
// returns the registry/ledger view over the same pool.
type Store struct {
	db *sql.DB
}

var _ user.Store = (*Store)(nil)

// Open connects to PostgreSQL with pool settings tuned for a small service.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Sessions returns the session registry and revocation ledger backed by the
// same pool.
func (s *Store) Sessions() *SessionStore { return &SessionStore{db: s.db} }

// Ping verifies connectivity for the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- user.Store -----------------------------------------------------------

func (s *Store) Create(ctx context.Context, u *user.User) error {
	row := s.db.QueryRowContext(ctx, `
		insert into users(username, email, mobile_number, password_hash)
		values ($1,$2,$3,$4)
		returning id, created_at
	`, u.Username, u.Email, u.MobileNumber, u.PasswordHash)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		if conflict := conflictField(err); conflict != "" {
			return &user.ConflictError{Field: conflict}
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, id int64) (*user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, username, email, mobile_number, password_hash, created_at
		from users where id=$1
	`, id)
	return scanUser(row)
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, username, email, mobile_number, password_hash, created_at
		from users
		where username=$1 or email=$1 or mobile_number=$1
	`, identifier)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.MobileNumber, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// conflictField maps a unique-violation error to the offending column.
func conflictField(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return ""
	}
	switch pgErr.ConstraintName {
	case "users_username_key":
		return "username"
	case "users_email_key":
		return "email"
	case "users_mobile_number_key":
		return "mobile_number"
	default:
		return ""
	}
}

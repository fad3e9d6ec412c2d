// Package user holds the credential store collaborator: user records,
// password hashing, and the field-level validation rules applied at the
// boundary before anything reaches the session core.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// User is an account record. Immutable after creation except through the
// store that owns it.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	MobileNumber string    `json:"mobile_number"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrNotFound indicates no user matched the lookup.
var ErrNotFound = errors.New("user: not found")

// ConflictError reports a uniqueness violation on registration, naming the
// conflicting field ("username", "email" or "mobile_number").
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("user: %s already registered", e.Field)
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("user: invalid %s: %s", e.Field, e.Reason)
}

// Store describes persistence for user records. FindByIdentifier matches
// username, email, or mobile number.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id int64) (*User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
}

package auth

import (
	"context"
	"time"

	"worklane.org/internal/directory"
	"worklane.org/internal/token"
)

// Store is the persistence surface the credential service depends on.
// Implementations must return ErrNotFound and ErrConflict from this package
// for missing rows and unique violations respectively.
type Store interface {
	// FindUserByEmail matches case-insensitively and skips soft-deleted rows.
	FindUserByEmail(ctx context.Context, email string) (directory.User, error)
	GetUser(ctx context.Context, userID string) (directory.User, error)
	CreateUser(ctx context.Context, u directory.User) (directory.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	TouchLastActive(ctx context.Context, userID string, at time.Time) error

	CreateEmailToken(ctx context.Context, rec token.Record) error
	FindEmailToken(ctx context.Context, value, purpose string) (token.Record, error)
	// ConsumeResetToken updates the password and marks the token used in a
	// single transaction.
	ConsumeResetToken(ctx context.Context, tokenID, userID, passwordHash string, at time.Time) error
}

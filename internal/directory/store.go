package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
)

// Store is the persistence surface for the user directory. Every read takes
// an explicit includeDeleted switch; there is no hidden soft-delete filter.
type Store interface {
	List(ctx context.Context, orgID string, f Filter) (Page, error)
	Get(ctx context.Context, userID, orgID string, includeDeleted bool) (User, error)
	Update(ctx context.Context, userID, orgID string, upd Update, at time.Time) (User, error)
	// SetDeleted stamps or clears deleted_at and flips is_active to match.
	SetDeleted(ctx context.Context, userID, orgID string, deletedAt *time.Time, at time.Time) error
	// HardDelete removes the row; dependent rows go with it by cascade.
	HardDelete(ctx context.Context, userID, orgID string) error
}

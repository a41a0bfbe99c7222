package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"worklane.org/internal/audit"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var sortColumns = map[string]struct{}{
	"firstname":  {},
	"lastname":   {},
	"email":      {},
	"createdat":  {},
	"lastactive": {},
}

// Service exposes the user directory and the soft-delete lifecycle.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	s := &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns one page of users matching the filter. Unknown sort columns
// fall back to created-at so a typo cannot reach the query builder.
func (s *Service) List(ctx context.Context, orgID string, f Filter) (Page, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return Page{}, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Role = strings.TrimSpace(f.Role)
	f.Department = strings.TrimSpace(f.Department)
	f.SortBy = strings.ToLower(strings.TrimSpace(f.SortBy))
	if _, ok := sortColumns[f.SortBy]; !ok {
		f.SortBy = "createdat"
	}
	return s.store.List(ctx, orgID, f)
}

// Get loads a user in the caller's organization.
func (s *Service) Get(ctx context.Context, userID, orgID string, includeDeleted bool) (User, error) {
	userID = strings.TrimSpace(userID)
	orgID = strings.TrimSpace(orgID)
	if userID == "" || orgID == "" {
		return User{}, fmt.Errorf("%w: user", ErrNotFound)
	}
	return s.store.Get(ctx, userID, orgID, includeDeleted)
}

// UpdateProfile applies the supplied fields and leaves the rest untouched.
func (s *Service) UpdateProfile(ctx context.Context, userID, orgID string, upd Update) (User, error) {
	userID = strings.TrimSpace(userID)
	orgID = strings.TrimSpace(orgID)
	if userID == "" || orgID == "" {
		return User{}, fmt.Errorf("%w: user", ErrNotFound)
	}
	if upd.Email != nil {
		normalized := strings.TrimSpace(strings.ToLower(*upd.Email))
		if normalized == "" {
			return User{}, fmt.Errorf("%w: email cannot be empty", ErrInvalidInput)
		}
		upd.Email = &normalized
	}
	if upd.FirstName == nil && upd.LastName == nil && upd.Email == nil && upd.Role == nil &&
		upd.Department == nil && upd.Location == nil && upd.Phone == nil && upd.AvatarURL == nil {
		return User{}, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	user, err := s.store.Update(ctx, userID, orgID, upd, s.now())
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return User{}, fmt.Errorf("%w: email is already in use", ErrConflict)
		}
		return User{}, err
	}
	return user, nil
}

// Deactivate soft-deletes the user. The lookup bypasses the deleted filter
// so a second call reads as a conflict rather than a missing row.
func (s *Service) Deactivate(ctx context.Context, userID, orgID string) error {
	user, err := s.Get(ctx, userID, orgID, true)
	if err != nil {
		return err
	}
	if user.DeletedAt != nil {
		return fmt.Errorf("%w: user is already deactivated", ErrConflict)
	}
	now := s.now()
	if err := s.store.SetDeleted(ctx, user.ID, orgID, &now, now); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	audit.LogEvent(ctx, "user_deactivated", map[string]any{"target_user_id": user.ID})
	return nil
}

// Activate restores a soft-deleted user.
func (s *Service) Activate(ctx context.Context, userID, orgID string) error {
	user, err := s.Get(ctx, userID, orgID, true)
	if err != nil {
		return err
	}
	if user.DeletedAt == nil {
		return fmt.Errorf("%w: user is not deactivated", ErrConflict)
	}
	if err := s.store.SetDeleted(ctx, user.ID, orgID, nil, s.now()); err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	audit.LogEvent(ctx, "user_activated", map[string]any{"target_user_id": user.ID})
	return nil
}

// HardDelete physically removes the user and every row that references it.
// Irreversible, so it is audited at warning severity.
func (s *Service) HardDelete(ctx context.Context, userID, orgID string) error {
	user, err := s.Get(ctx, userID, orgID, true)
	if err != nil {
		return err
	}
	if err := s.store.HardDelete(ctx, user.ID, orgID); err != nil {
		return fmt.Errorf("hard delete user: %w", err)
	}
	audit.LogEventWarn(ctx, "user_hard_deleted", map[string]any{
		"target_user_id": user.ID,
		"email":          user.Email,
	})
	return nil
}

package directory

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubStore struct {
	list       func(ctx context.Context, orgID string, f Filter) (Page, error)
	get        func(ctx context.Context, userID, orgID string, includeDeleted bool) (User, error)
	update     func(ctx context.Context, userID, orgID string, upd Update, at time.Time) (User, error)
	setDeleted func(ctx context.Context, userID, orgID string, deletedAt *time.Time, at time.Time) error
	hardDelete func(ctx context.Context, userID, orgID string) error
}

func (s *stubStore) List(ctx context.Context, orgID string, f Filter) (Page, error) {
	if s.list == nil {
		return Page{}, errors.New("unexpected List")
	}
	return s.list(ctx, orgID, f)
}

func (s *stubStore) Get(ctx context.Context, userID, orgID string, includeDeleted bool) (User, error) {
	if s.get == nil {
		return User{}, errors.New("unexpected Get")
	}
	return s.get(ctx, userID, orgID, includeDeleted)
}

func (s *stubStore) Update(ctx context.Context, userID, orgID string, upd Update, at time.Time) (User, error) {
	if s.update == nil {
		return User{}, errors.New("unexpected Update")
	}
	return s.update(ctx, userID, orgID, upd, at)
}

func (s *stubStore) SetDeleted(ctx context.Context, userID, orgID string, deletedAt *time.Time, at time.Time) error {
	if s.setDeleted == nil {
		return errors.New("unexpected SetDeleted")
	}
	return s.setDeleted(ctx, userID, orgID, deletedAt, at)
}

func (s *stubStore) HardDelete(ctx context.Context, userID, orgID string) error {
	if s.hardDelete == nil {
		return errors.New("unexpected HardDelete")
	}
	return s.hardDelete(ctx, userID, orgID)
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(store, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestListNormalizesFilter(t *testing.T) {
	var got Filter
	store := &stubStore{
		list: func(_ context.Context, _ string, f Filter) (Page, error) {
			got = f
			return Page{PageNumber: f.Page, PageSize: f.PageSize}, nil
		},
	}
	svc := newTestService(t, store)

	_, err := svc.List(context.Background(), "org-1", Filter{
		Search:   "  dana ",
		SortBy:   "DROP TABLE users",
		Page:     0,
		PageSize: 1000,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got.Page != 1 {
		t.Fatalf("page = %d, want 1", got.Page)
	}
	if got.PageSize != maxPageSize {
		t.Fatalf("page size = %d, want clamp to %d", got.PageSize, maxPageSize)
	}
	if got.Search != "dana" {
		t.Fatalf("search = %q", got.Search)
	}
	if got.SortBy != "createdat" {
		t.Fatalf("sort = %q, want fallback", got.SortBy)
	}
}

func TestListAcceptsKnownSortColumns(t *testing.T) {
	for _, col := range []string{"FirstName", "lastname", "email", "createdAt", "LastActive"} {
		store := &stubStore{
			list: func(_ context.Context, _ string, f Filter) (Page, error) {
				if _, ok := sortColumns[f.SortBy]; !ok {
					t.Fatalf("sort %q rejected", col)
				}
				return Page{}, nil
			},
		}
		svc := newTestService(t, store)
		if _, err := svc.List(context.Background(), "org-1", Filter{SortBy: col}); err != nil {
			t.Fatalf("List(%q): %v", col, err)
		}
	}
}

func TestUpdateProfile(t *testing.T) {
	t.Run("requires at least one field", func(t *testing.T) {
		svc := newTestService(t, &stubStore{})
		if _, err := svc.UpdateProfile(context.Background(), "u1", "org-1", Update{}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("normalizes email", func(t *testing.T) {
		var got Update
		store := &stubStore{
			update: func(_ context.Context, _, _ string, upd Update, at time.Time) (User, error) {
				got = upd
				if !at.Equal(testNow) {
					t.Fatalf("at = %v", at)
				}
				return User{ID: "u1"}, nil
			},
		}
		svc := newTestService(t, store)
		email := " Dana@Example.COM "
		if _, err := svc.UpdateProfile(context.Background(), "u1", "org-1", Update{Email: &email}); err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if got.Email == nil || *got.Email != "dana@example.com" {
			t.Fatalf("email = %v", got.Email)
		}
	})

	t.Run("email conflict", func(t *testing.T) {
		store := &stubStore{
			update: func(context.Context, string, string, Update, time.Time) (User, error) {
				return User{}, ErrConflict
			},
		}
		svc := newTestService(t, store)
		name := "Dana"
		if _, err := svc.UpdateProfile(context.Background(), "u1", "org-1", Update{FirstName: &name}); !errors.Is(err, ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})
}

func TestDeactivateActivateRoundTrip(t *testing.T) {
	deleted := testNow.Add(-time.Hour)

	t.Run("deactivate live user", func(t *testing.T) {
		var stamped *time.Time
		store := &stubStore{
			get: func(_ context.Context, userID, _ string, includeDeleted bool) (User, error) {
				if !includeDeleted {
					t.Fatal("lifecycle lookups must bypass the deleted filter")
				}
				return User{ID: userID, IsActive: true}, nil
			},
			setDeleted: func(_ context.Context, _, _ string, deletedAt *time.Time, _ time.Time) error {
				stamped = deletedAt
				return nil
			},
		}
		svc := newTestService(t, store)
		if err := svc.Deactivate(context.Background(), "u1", "org-1"); err != nil {
			t.Fatalf("Deactivate: %v", err)
		}
		if stamped == nil || !stamped.Equal(testNow) {
			t.Fatalf("deleted_at = %v, want clock value", stamped)
		}
	})

	t.Run("deactivate twice conflicts", func(t *testing.T) {
		store := &stubStore{
			get: func(context.Context, string, string, bool) (User, error) {
				return User{ID: "u1", DeletedAt: &deleted}, nil
			},
		}
		svc := newTestService(t, store)
		if err := svc.Deactivate(context.Background(), "u1", "org-1"); !errors.Is(err, ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})

	t.Run("activate clears the stamp", func(t *testing.T) {
		var stamped *time.Time = &deleted
		store := &stubStore{
			get: func(context.Context, string, string, bool) (User, error) {
				return User{ID: "u1", DeletedAt: &deleted}, nil
			},
			setDeleted: func(_ context.Context, _, _ string, deletedAt *time.Time, _ time.Time) error {
				stamped = deletedAt
				return nil
			},
		}
		svc := newTestService(t, store)
		if err := svc.Activate(context.Background(), "u1", "org-1"); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if stamped != nil {
			t.Fatal("activate must clear deleted_at")
		}
	})

	t.Run("activate live user conflicts", func(t *testing.T) {
		store := &stubStore{
			get: func(context.Context, string, string, bool) (User, error) {
				return User{ID: "u1", IsActive: true}, nil
			},
		}
		svc := newTestService(t, store)
		if err := svc.Activate(context.Background(), "u1", "org-1"); !errors.Is(err, ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})
}

func TestHardDelete(t *testing.T) {
	var deleted string
	store := &stubStore{
		get: func(_ context.Context, userID, _ string, includeDeleted bool) (User, error) {
			if !includeDeleted {
				t.Fatal("hard delete must bypass the deleted filter")
			}
			return User{ID: userID, Email: "gone@example.com"}, nil
		},
		hardDelete: func(_ context.Context, userID, _ string) error {
			deleted = userID
			return nil
		},
	}
	svc := newTestService(t, store)
	if err := svc.HardDelete(context.Background(), "u1", "org-1"); err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	if deleted != "u1" {
		t.Fatalf("deleted %q", deleted)
	}
}

func TestHardDeleteMissingUser(t *testing.T) {
	store := &stubStore{
		get: func(context.Context, string, string, bool) (User, error) {
			return User{}, ErrNotFound
		},
	}
	svc := newTestService(t, store)
	if err := svc.HardDelete(context.Background(), "u1", "org-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		user User
		want string
	}{
		{User{FirstName: "Dana", LastName: "Reyes"}, "Dana Reyes"},
		{User{FirstName: "Dana"}, "Dana"},
		{User{LastName: "Reyes"}, "Reyes"},
		{User{Email: "dana@example.com"}, "dana@example.com"},
	}
	for _, tc := range cases {
		if got := tc.user.DisplayName(); got != tc.want {
			t.Fatalf("DisplayName(%+v) = %q, want %q", tc.user, got, tc.want)
		}
	}
}

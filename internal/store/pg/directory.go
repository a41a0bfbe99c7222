package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"worklane.org/internal/directory"
)

const userColumns = `
	u.id, u.organization_id, o.name, u.first_name, u.last_name, u.email,
	u.password_hash, coalesce(u.role, ''), coalesce(u.department, ''),
	coalesce(u.location, ''), coalesce(u.phone, ''), coalesce(u.avatar_url, ''),
	u.is_active, u.created_at, u.updated_at, u.last_active, u.deleted_at
`

// userSortColumns maps the service-level sort keys onto real columns. The keys
// are validated upstream; the fallback here is belt and braces against a
// direct store caller.
var userSortColumns = map[string]string{
	"firstname":  "u.first_name",
	"lastname":   "u.last_name",
	"email":      "u.email",
	"createdat":  "u.created_at",
	"lastactive": "u.last_active",
}

func scanUser(scan func(...any) error) (directory.User, error) {
	var (
		u          directory.User
		lastActive sql.NullTime
		deletedAt  sql.NullTime
	)
	err := scan(&u.ID, &u.OrganizationID, &u.OrganizationName, &u.FirstName, &u.LastName, &u.Email,
		&u.PasswordHash, &u.Role, &u.Department, &u.Location, &u.Phone, &u.AvatarURL,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt, &lastActive, &deletedAt)
	if err != nil {
		return directory.User{}, err
	}
	u.LastActive = timePtr(lastActive)
	u.DeletedAt = timePtr(deletedAt)
	return u, nil
}

func (s *Store) List(ctx context.Context, orgID string, f directory.Filter) (directory.Page, error) {
	where := []string{"u.organization_id = $1"}
	args := []any{orgID}
	idx := 2

	if !f.IncludeDeleted {
		where = append(where, "u.deleted_at is null")
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf("(u.first_name ilike $%d or u.last_name ilike $%d or u.email ilike $%d)", idx, idx, idx))
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	if f.Role != "" {
		where = append(where, fmt.Sprintf("u.role = $%d", idx))
		args = append(args, f.Role)
		idx++
	}
	if f.Department != "" {
		where = append(where, fmt.Sprintf("u.department = $%d", idx))
		args = append(args, f.Department)
		idx++
	}
	if f.Active != nil {
		where = append(where, fmt.Sprintf("u.is_active = $%d", idx))
		args = append(args, *f.Active)
		idx++
	}
	cond := strings.Join(where, " and ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from users u where `+cond, args...).Scan(&total); err != nil {
		return directory.Page{}, err
	}

	sortCol, ok := userSortColumns[f.SortBy]
	if !ok {
		sortCol = "u.created_at"
	}
	dir := "asc"
	if f.SortDesc {
		dir = "desc"
	}
	query := fmt.Sprintf(`
		select %s
		from users u
		join organizations o on o.id = u.organization_id
		where %s
		order by %s %s nulls last
		limit $%d offset $%d
	`, userColumns, cond, sortCol, dir, idx, idx+1)
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return directory.Page{}, err
	}
	defer rows.Close()

	var users []directory.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return directory.Page{}, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return directory.Page{}, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + f.PageSize - 1) / f.PageSize
	}
	return directory.Page{
		Users:           users,
		TotalCount:      total,
		PageNumber:      f.Page,
		PageSize:        f.PageSize,
		TotalPages:      totalPages,
		HasPreviousPage: f.Page > 1,
		HasNextPage:     f.Page < totalPages,
	}, nil
}

func (s *Store) Get(ctx context.Context, userID, orgID string, includeDeleted bool) (directory.User, error) {
	query := `
		select ` + userColumns + `
		from users u
		join organizations o on o.id = u.organization_id
		where u.id = $1 and u.organization_id = $2
	`
	if !includeDeleted {
		query += ` and u.deleted_at is null`
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, query, userID, orgID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return u, nil
}

func (s *Store) Update(ctx context.Context, userID, orgID string, upd directory.Update, at time.Time) (directory.User, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	set := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}
	if upd.FirstName != nil {
		set("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		set("last_name", *upd.LastName)
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.Role != nil {
		set("role", nullIfEmpty(*upd.Role))
	}
	if upd.Department != nil {
		set("department", nullIfEmpty(*upd.Department))
	}
	if upd.Location != nil {
		set("location", nullIfEmpty(*upd.Location))
	}
	if upd.Phone != nil {
		set("phone", nullIfEmpty(*upd.Phone))
	}
	if upd.AvatarURL != nil {
		set("avatar_url", nullIfEmpty(*upd.AvatarURL))
	}
	if len(sets) > 0 {
		set("updated_at", at)
		query := fmt.Sprintf(`update users set %s where id = $%d and organization_id = $%d and deleted_at is null`,
			strings.Join(sets, ", "), idx, idx+1)
		args = append(args, userID, orgID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return directory.User{}, directory.ErrConflict
			}
			return directory.User{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return directory.User{}, err
		}
		if aff == 0 {
			return directory.User{}, directory.ErrNotFound
		}
	}
	return s.Get(ctx, userID, orgID, false)
}

func (s *Store) SetDeleted(ctx context.Context, userID, orgID string, deletedAt *time.Time, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set deleted_at = $1, is_active = $2, updated_at = $3
		where id = $4 and organization_id = $5
	`, nullIfZero(deletedAt), deletedAt == nil, at, userID, orgID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func (s *Store) HardDelete(ctx context.Context, userID, orgID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from users where id = $1 and organization_id = $2
	`, userID, orgID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

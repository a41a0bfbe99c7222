package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"worklane.org/internal/rbac"
)

func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, resource, action, coalesce(description, ''), created_at
		from permissions
		order by resource, action
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) CountPermissions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `select count(*) from permissions`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) CreatePermission(ctx context.Context, p rbac.Permission) (rbac.Permission, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, resource, action, description, created_at)
		values ($1, $2, $3, $4, $5, $6)
		returning id, name, resource, action, coalesce(description, ''), created_at
	`, p.ID, p.Name, p.Resource, p.Action, nullIfEmpty(p.Description), p.CreatedAt)
	var created rbac.Permission
	if err := row.Scan(&created.ID, &created.Name, &created.Resource, &created.Action, &created.Description, &created.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Permission{}, rbac.ErrConflict
		}
		return rbac.Permission{}, err
	}
	return created, nil
}

func (s *Store) InsertPermissions(ctx context.Context, perms []rbac.Permission) error {
	if len(perms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, name, resource, action, description, created_at)
			values ($1, $2, $3, $4, $5, $6)
		`, p.ID, p.Name, p.Resource, p.Action, nullIfEmpty(p.Description), p.CreatedAt); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return rbac.ErrConflict
			}
			return err
		}
	}
	return tx.Commit()
}

const roleColumns = `
	r.id, r.organization_id, r.name, coalesce(r.description, ''), r.created_at, r.updated_at,
	(select count(distinct uor.user_id)
	 from user_org_roles uor
	 where uor.role_id = r.id and uor.organization_id = r.organization_id)
`

func (s *Store) ListRoles(ctx context.Context, orgID string) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+`
		from roles r
		where r.organization_id = $1
		order by r.name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var r rbac.Role
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt, &r.UserCount); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) GetRole(ctx context.Context, roleID, orgID string) (rbac.Role, error) {
	var r rbac.Role
	err := s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles r
		where r.id = $1 and r.organization_id = $2
	`, roleID, orgID).Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt, &r.UserCount)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Role{}, err
	}
	return r, nil
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.resource, p.action, coalesce(p.description, ''), p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.resource, p.action
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) CreateRole(ctx context.Context, role rbac.Role, permissionIDs []string) (rbac.Role, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rbac.Role{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into roles (id, organization_id, name, description, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.OrganizationID, role.Name, nullIfEmpty(role.Description), role.CreatedAt, role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.Role{}, rbac.ErrConflict
			case pgErrForeignKeyViolation:
				return rbac.Role{}, rbac.ErrNotFound
			}
		}
		return rbac.Role{}, err
	}
	if err := grantPermissions(ctx, tx, role.ID, permissionIDs, role.CreatedAt); err != nil {
		return rbac.Role{}, err
	}
	if err := tx.Commit(); err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

func (s *Store) UpdateRole(ctx context.Context, roleID, orgID string, upd rbac.RoleUpdate) (rbac.Role, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d and organization_id = $%d`, strings.Join(sets, ", "), idx, idx+1)
		args = append(args, roleID, orgID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return rbac.Role{}, rbac.ErrConflict
			}
			return rbac.Role{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return rbac.Role{}, err
		}
		if aff == 0 {
			return rbac.Role{}, rbac.ErrNotFound
		}
	}
	return s.GetRole(ctx, roleID, orgID)
}

func (s *Store) DeleteRole(ctx context.Context, roleID, orgID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `
		select 1 from roles where id = $1 and organization_id = $2
	`, roleID, orgID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.ErrNotFound
		}
		return err
	}

	var holders int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from user_org_roles where role_id = $1
	`, roleID).Scan(&holders); err != nil {
		return err
	}
	if holders > 0 {
		return fmt.Errorf("%w: role is in use", rbac.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `delete from roles where id = $1`, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID, orgID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `
		select 1 from roles where id = $1 and organization_id = $2
	`, roleID, orgID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	if err := grantPermissions(ctx, tx, roleID, permissionIDs, nowUTC()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `update roles set updated_at = now() where id = $1`, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID, orgID string) (rbac.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rbac.Assignment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `
		select 1 from users where id = $1 and organization_id = $2 and deleted_at is null
	`, userID, orgID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.Assignment{}, rbac.ErrNotFound
		}
		return rbac.Assignment{}, err
	}
	if err := tx.QueryRowContext(ctx, `
		select 1 from roles where id = $1 and organization_id = $2
	`, roleID, orgID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.Assignment{}, rbac.ErrNotFound
		}
		return rbac.Assignment{}, err
	}

	var a rbac.Assignment
	err = tx.QueryRowContext(ctx, `
		insert into user_org_roles (user_id, organization_id, role_id)
		values ($1, $2, $3)
		returning user_id, organization_id, role_id, assigned_at
	`, userID, orgID, roleID).Scan(&a.UserID, &a.OrganizationID, &a.RoleID, &a.AssignedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Assignment{}, fmt.Errorf("%w: role already assigned", rbac.ErrConflict)
		}
		return rbac.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return rbac.Assignment{}, err
	}
	return a, nil
}

func (s *Store) RemoveAssignment(ctx context.Context, userID, roleID, orgID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_org_roles
		where user_id = $1 and role_id = $2 and organization_id = $3
	`, userID, roleID, orgID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) RolesForUser(ctx context.Context, userID, orgID string) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+`
		from user_org_roles uor
		join roles r on r.id = uor.role_id
		where uor.user_id = $1 and uor.organization_id = $2
		order by r.name
	`, userID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var r rbac.Role
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt, &r.UserCount); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) PermissionsForUser(ctx context.Context, userID, orgID string) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.id, p.name, p.resource, p.action, coalesce(p.description, ''), p.created_at
		from user_org_roles uor
		join role_permissions rp on rp.role_id = uor.role_id
		join permissions p on p.id = rp.permission_id
		where uor.user_id = $1 and uor.organization_id = $2
		order by p.resource, p.action
	`, userID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) HasPermission(ctx context.Context, userID, orgID, resource, action string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1
			from user_org_roles uor
			join role_permissions rp on rp.role_id = uor.role_id
			join permissions p on p.id = rp.permission_id
			where uor.user_id = $1 and uor.organization_id = $2
			  and p.resource = $3 and p.action = $4
		)
	`, userID, orgID, resource, action).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// grantPermissions inserts one row per requested id that resolves to a real
// permission. Unknown ids are skipped so the final set always equals the
// valid subset of the request.
func grantPermissions(ctx context.Context, tx *sql.Tx, roleID string, permissionIDs []string, grantedAt time.Time) error {
	for _, permID := range permissionIDs {
		var exists int
		err := tx.QueryRowContext(ctx, `select 1 from permissions where id = $1`, permID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id, granted_at)
			values ($1, $2, $3)
		`, roleID, permID, grantedAt); err != nil {
			return err
		}
	}
	return nil
}

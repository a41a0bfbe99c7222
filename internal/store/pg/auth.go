package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"worklane.org/internal/auth"
	"worklane.org/internal/directory"
	"worklane.org/internal/token"
)

const emailTokenColumns = `
	id, coalesce(user_id, ''), email, token, purpose, expires_at, created_at, used_at
`

func scanEmailToken(scan func(...any) error) (token.Record, error) {
	var (
		rec    token.Record
		usedAt sql.NullTime
	)
	err := scan(&rec.ID, &rec.UserID, &rec.Email, &rec.Token, &rec.Purpose, &rec.ExpiresAt, &rec.CreatedAt, &usedAt)
	if err != nil {
		return token.Record{}, err
	}
	rec.UsedAt = timePtr(usedAt)
	return rec, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (directory.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u
		join organizations o on o.id = u.organization_id
		where lower(u.email) = lower($1) and u.deleted_at is null
	`, email).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, auth.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (directory.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u
		join organizations o on o.id = u.organization_id
		where u.id = $1 and u.deleted_at is null
	`, userID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, auth.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return u, nil
}

// CreateUser inserts the account and its organization membership together.
func (s *Store) CreateUser(ctx context.Context, u directory.User) (directory.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return directory.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into users (id, organization_id, first_name, last_name, email, password_hash,
			role, department, location, phone, avatar_url, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, u.ID, u.OrganizationID, u.FirstName, u.LastName, u.Email, u.PasswordHash,
		nullIfEmpty(u.Role), nullIfEmpty(u.Department), nullIfEmpty(u.Location),
		nullIfEmpty(u.Phone), nullIfEmpty(u.AvatarURL), u.IsActive, u.CreatedAt, u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return directory.User{}, auth.ErrConflict
			case pgErrForeignKeyViolation:
				return directory.User{}, auth.ErrNotFound
			}
		}
		return directory.User{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into organization_users (organization_id, user_id, joined_at)
		values ($1, $2, $3)
	`, u.OrganizationID, u.ID, u.CreatedAt); err != nil {
		return directory.User{}, err
	}
	if err := tx.QueryRowContext(ctx, `
		select name from organizations where id = $1
	`, u.OrganizationID).Scan(&u.OrganizationName); err != nil {
		return directory.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return directory.User{}, err
	}
	return u, nil
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $1, updated_at = $2
		where id = $3 and deleted_at is null
	`, passwordHash, at, userID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update users set last_active = $1 where id = $2
	`, at, userID)
	return err
}

func (s *Store) CreateEmailToken(ctx context.Context, rec token.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into email_tokens (id, user_id, email, token, purpose, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, nullIfEmpty(rec.UserID), rec.Email, rec.Token, rec.Purpose, rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindEmailToken(ctx context.Context, value, purpose string) (token.Record, error) {
	rec, err := scanEmailToken(s.db.QueryRowContext(ctx, `
		select `+emailTokenColumns+`
		from email_tokens
		where token = $1 and purpose = $2
	`, value, purpose).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return token.Record{}, auth.ErrNotFound
	}
	if err != nil {
		return token.Record{}, err
	}
	return rec, nil
}

// ConsumeResetToken applies the new password and retires the token in one
// transaction. A token consumed by a concurrent request surfaces as a
// conflict rather than a silent double-spend.
func (s *Store) ConsumeResetToken(ctx context.Context, tokenID, userID, passwordHash string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update email_tokens set used_at = $1
		where id = $2 and used_at is null
	`, at, tokenID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrConflict
	}

	res, err = tx.ExecContext(ctx, `
		update users set password_hash = $1, updated_at = $2
		where id = $3 and deleted_at is null
	`, passwordHash, at, userID)
	if err != nil {
		return err
	}
	aff, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return tx.Commit()
}

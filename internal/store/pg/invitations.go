package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"worklane.org/internal/directory"
	"worklane.org/internal/invite"
	"worklane.org/internal/token"
)

const invitationColumns = `
	i.id, i.organization_id, o.name, i.email, i.role,
	coalesce(i.department, ''), coalesce(i.location, ''),
	coalesce(i.first_name, ''), coalesce(i.last_name, ''),
	i.invited_by, coalesce(inviter.first_name || ' ' || inviter.last_name, ''),
	i.token, i.status, i.expires_at, i.created_at, i.accepted_at
`

const invitationJoins = `
	from invitations i
	join organizations o on o.id = i.organization_id
	left join users inviter on inviter.id = i.invited_by
`

func scanInvitation(scan func(...any) error) (invite.Invitation, error) {
	var (
		inv        invite.Invitation
		acceptedAt sql.NullTime
	)
	err := scan(&inv.ID, &inv.OrganizationID, &inv.OrganizationName, &inv.Email, &inv.Role,
		&inv.Department, &inv.Location, &inv.FirstName, &inv.LastName,
		&inv.InvitedBy, &inv.InviterName, &inv.Token, &inv.Status,
		&inv.ExpiresAt, &inv.CreatedAt, &acceptedAt)
	if err != nil {
		return invite.Invitation{}, err
	}
	inv.AcceptedAt = timePtr(acceptedAt)
	return inv, nil
}

func (s *Store) CreateInvitation(ctx context.Context, inv invite.Invitation, rec token.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into invitations (id, organization_id, email, role, department, location,
			invited_by, token, status, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, inv.ID, inv.OrganizationID, inv.Email, inv.Role, nullIfEmpty(inv.Department),
		nullIfEmpty(inv.Location), inv.InvitedBy, inv.Token, inv.Status, inv.ExpiresAt, inv.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return invite.ErrConflict
			case pgErrForeignKeyViolation:
				return invite.ErrNotFound
			}
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into email_tokens (id, user_id, email, token, purpose, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, nullIfEmpty(rec.UserID), rec.Email, rec.Token, rec.Purpose, rec.ExpiresAt, rec.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetInvitation(ctx context.Context, invitationID, orgID string) (invite.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `
		select `+invitationColumns+invitationJoins+`
		where i.id = $1 and i.organization_id = $2
	`, invitationID, orgID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return invite.Invitation{}, invite.ErrNotFound
	}
	if err != nil {
		return invite.Invitation{}, err
	}
	return inv, nil
}

func (s *Store) FindByToken(ctx context.Context, value string) (invite.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `
		select `+invitationColumns+invitationJoins+`
		where i.token = $1
	`, value).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return invite.Invitation{}, invite.ErrNotFound
	}
	if err != nil {
		return invite.Invitation{}, err
	}
	return inv, nil
}

func (s *Store) FindPendingByEmail(ctx context.Context, orgID, email string) (invite.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `
		select `+invitationColumns+invitationJoins+`
		where i.organization_id = $1 and lower(i.email) = lower($2)
		  and i.status = 'pending'
	`, orgID, email).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return invite.Invitation{}, invite.ErrNotFound
	}
	if err != nil {
		return invite.Invitation{}, err
	}
	return inv, nil
}

func (s *Store) ListPending(ctx context.Context, orgID string, now time.Time) ([]invite.Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+invitationColumns+invitationJoins+`
		where i.organization_id = $1 and i.status = 'pending' and i.expires_at > $2
		order by i.created_at desc
	`, orgID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invs []invite.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invs, nil
}

func (s *Store) FindInvitationToken(ctx context.Context, value string) (token.Record, error) {
	rec, err := scanEmailToken(s.db.QueryRowContext(ctx, `
		select `+emailTokenColumns+`
		from email_tokens
		where token = $1 and purpose = $2
	`, value, token.PurposeInvitation).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return token.Record{}, invite.ErrNotFound
	}
	if err != nil {
		return token.Record{}, err
	}
	return rec, nil
}

func (s *Store) ActiveUserEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from users where lower(email) = lower($1) and deleted_at is null
		)
	`, email).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) MarkCancelled(ctx context.Context, invitationID string) error {
	res, err := s.db.ExecContext(ctx, `
		update invitations set status = 'cancelled'
		where id = $1 and status = 'pending'
	`, invitationID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return invite.ErrConflict
	}
	return nil
}

func (s *Store) Resend(ctx context.Context, inv invite.Invitation, rec token.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update invitations set token = $1, expires_at = $2
		where id = $3 and status = 'pending'
	`, inv.Token, inv.ExpiresAt, inv.ID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return invite.ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `
		insert into email_tokens (id, user_id, email, token, purpose, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, nullIfEmpty(rec.UserID), rec.Email, rec.Token, rec.Purpose, rec.ExpiresAt, rec.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Accept(ctx context.Context, p invite.AcceptParams) (directory.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return directory.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	u := p.User
	if _, err := tx.ExecContext(ctx, `
		insert into users (id, organization_id, first_name, last_name, email, password_hash,
			role, department, location, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, u.ID, u.OrganizationID, u.FirstName, u.LastName, u.Email, u.PasswordHash,
		nullIfEmpty(u.Role), nullIfEmpty(u.Department), nullIfEmpty(u.Location),
		u.IsActive, u.CreatedAt, u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return directory.User{}, fmt.Errorf("%w: email already registered", invite.ErrConflict)
		}
		return directory.User{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into organization_users (organization_id, user_id, joined_at)
		values ($1, $2, $3)
	`, u.OrganizationID, u.ID, p.AcceptedAt); err != nil {
		return directory.User{}, err
	}

	res, err := tx.ExecContext(ctx, `
		update invitations
		set status = 'accepted', first_name = $1, last_name = $2, accepted_at = $3
		where id = $4 and status = 'pending'
	`, p.FirstName, p.LastName, p.AcceptedAt, p.InvitationID)
	if err != nil {
		return directory.User{}, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return directory.User{}, err
	}
	if aff == 0 {
		return directory.User{}, fmt.Errorf("%w: invitation no longer pending", invite.ErrConflict)
	}

	res, err = tx.ExecContext(ctx, `
		update email_tokens set used_at = $1
		where id = $2 and used_at is null
	`, p.AcceptedAt, p.TokenID)
	if err != nil {
		return directory.User{}, err
	}
	aff, err = res.RowsAffected()
	if err != nil {
		return directory.User{}, err
	}
	if aff == 0 {
		return directory.User{}, fmt.Errorf("%w: invitation token already used", invite.ErrConflict)
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

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update invitations set status = 'expired'
		where status = 'pending' and expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

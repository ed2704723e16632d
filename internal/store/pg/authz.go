package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/authz"
	"github.com/pkanduri1/fabric-platform-sub006/internal/ids"
)

var _ authz.Store = (*Store)(nil)

func (s *Store) GetUser(ctx context.Context, userID string) (authz.User, error) {
	var (
		u           authz.User
		department  sql.NullString
		lockedUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, username, department, status, failed_logins, locked_until, mfa_enabled, created_at, updated_at
		from users
		where id = $1
	`, userID).Scan(&u.ID, &u.Username, &department, &u.Status, &u.FailedLogins, &lockedUntil, &u.MFAEnabled, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.User{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.User{}, err
	}
	if department.Valid {
		u.Department = department.String
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	return u, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (authz.Role, error) {
	var (
		r        authz.Role
		parentID sql.NullString
		desc     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, level, parent_role_id, description, created_at
		from roles
		where id = $1
	`, roleID).Scan(&r.ID, &r.Name, &r.Level, &parentID, &desc, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Role{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.Role{}, err
	}
	if parentID.Valid {
		r.ParentID = parentID.String
	}
	if desc.Valid {
		r.Description = desc.String
	}
	return r, nil
}

func (s *Store) AssignmentsForUser(ctx context.Context, userID string) ([]authz.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, role_id, assigned_by, effective_from, effective_until, is_active, reason, created_at
		from user_role_assignments
		where user_id = $1
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []authz.RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (s *Store) PermissionsForRole(ctx context.Context, roleID string) ([]authz.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.resource_type, p.action, p.resource_pattern, p.description
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []authz.Permission
	for rows.Next() {
		var (
			p    authz.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Pattern, &desc); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) CreateAssignment(ctx context.Context, a authz.RoleAssignment) (authz.RoleAssignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.RoleAssignment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock open windows for this pair so two concurrent grants cannot
	// both pass the overlap check.
	rows, err := tx.QueryContext(ctx, `
		select effective_from, effective_until, is_active
		from user_role_assignments
		where user_id = $1 and role_id = $2 and is_active
		for update
	`, a.UserID, a.RoleID)
	if err != nil {
		return authz.RoleAssignment{}, err
	}
	for rows.Next() {
		var existing authz.RoleAssignment
		var until sql.NullTime
		if err := rows.Scan(&existing.EffectiveFrom, &until, &existing.Active); err != nil {
			rows.Close()
			return authz.RoleAssignment{}, err
		}
		if until.Valid {
			t := until.Time
			existing.EffectiveUntil = &t
		}
		if existing.Overlaps(a.EffectiveFrom, a.EffectiveUntil) {
			rows.Close()
			return authz.RoleAssignment{}, fmt.Errorf("%w: user %s role %s", authz.ErrConflict, a.UserID, a.RoleID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return authz.RoleAssignment{}, err
	}

	if a.ID == "" {
		a.ID = ids.New()
	}
	var until any
	if a.EffectiveUntil != nil {
		until = *a.EffectiveUntil
	}
	err = tx.QueryRowContext(ctx, `
		insert into user_role_assignments (id, user_id, role_id, assigned_by, effective_from, effective_until, is_active, reason)
		values ($1, $2, $3, $4, $5, $6, true, $7)
		returning created_at
	`, a.ID, a.UserID, a.RoleID, a.AssignedBy, a.EffectiveFrom, until, nullIfEmpty(a.Reason)).Scan(&a.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.RoleAssignment{}, authz.ErrConflict
			case pgErrForeignKeyViolation:
				return authz.RoleAssignment{}, authz.ErrNotFound
			}
		}
		return authz.RoleAssignment{}, err
	}
	a.Active = true

	if err := tx.Commit(); err != nil {
		return authz.RoleAssignment{}, err
	}
	return a, nil
}

func (s *Store) CloseAssignment(ctx context.Context, userID, roleID string, at time.Time) (authz.RoleAssignment, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.RoleAssignment{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		select id, user_id, role_id, assigned_by, effective_from, effective_until, is_active, reason, created_at
		from user_role_assignments
		where user_id = $1 and role_id = $2 and is_active
		  and effective_from <= $3
		  and (effective_until is null or effective_until > $3)
		for update
	`, userID, roleID, at)
	prev, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.RoleAssignment{}, false, nil
	}
	if err != nil {
		return authz.RoleAssignment{}, false, err
	}

	if _, err := tx.ExecContext(ctx, `
		update user_role_assignments
		set is_active = false, effective_until = $2
		where id = $1
	`, prev.ID, at); err != nil {
		return authz.RoleAssignment{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return authz.RoleAssignment{}, false, err
	}
	return prev, true, nil
}

func (s *Store) RemoveAssignment(ctx context.Context, assignmentID string) error {
	res, err := s.db.ExecContext(ctx, `delete from user_role_assignments where id = $1`, assignmentID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) ReopenAssignment(ctx context.Context, assignmentID string, until *time.Time) error {
	var u any
	if until != nil {
		u = *until
	}
	res, err := s.db.ExecContext(ctx, `
		update user_role_assignments
		set is_active = true, effective_until = $2
		where id = $1
	`, assignmentID, u)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (authz.RoleAssignment, error) {
	var (
		a      authz.RoleAssignment
		until  sql.NullTime
		reason sql.NullString
	)
	err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &a.AssignedBy, &a.EffectiveFrom, &until, &a.Active, &reason, &a.CreatedAt)
	if err != nil {
		return authz.RoleAssignment{}, err
	}
	if until.Valid {
		t := until.Time
		a.EffectiveUntil = &t
	}
	if reason.Valid {
		a.Reason = reason.String
	}
	return a, nil
}

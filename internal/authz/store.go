package authz

import (
	"context"
	"time"
)

// Store describes persistence operations required by the resolver.
type Store interface {
	GetUser(ctx context.Context, userID string) (User, error)
	GetRole(ctx context.Context, roleID string) (Role, error)

	// AssignmentsForUser returns every assignment row for the user,
	// open and closed; effectiveness filtering happens in the resolver.
	AssignmentsForUser(ctx context.Context, userID string) ([]RoleAssignment, error)

	// PermissionsForRole returns the explicit grants of one role.
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)

	// CreateAssignment inserts a new window. Implementations must reject
	// a window overlapping a currently open one for the same (user, role)
	// pair with ErrConflict, atomically with the insert.
	CreateAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error)

	// CloseAssignment closes the active window at the given instant and
	// returns the row as it was before closing. ok=false when no active
	// window exists, which callers treat as an idempotent no-op.
	CloseAssignment(ctx context.Context, userID, roleID string, at time.Time) (RoleAssignment, bool, error)

	// RemoveAssignment physically deletes an assignment row. Used only
	// to roll back a window whose audit append failed; committed
	// assignments are never removed.
	RemoveAssignment(ctx context.Context, assignmentID string) error

	// ReopenAssignment restores a window closed by CloseAssignment. Used
	// only to roll back a revoke whose audit append failed.
	ReopenAssignment(ctx context.Context, assignmentID string, until *time.Time) error
}

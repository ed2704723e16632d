package authz

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("authz: not found")
	ErrConflict     = errors.New("authz: conflicting assignment window")
	ErrInvalidInput = errors.New("authz: invalid input")
)

// UserStatus is the lifecycle state of a user. Users are never hard
// deleted; they transition between statuses instead.
type UserStatus string

const (
	UserActive   UserStatus = "ACTIVE"
	UserInactive UserStatus = "INACTIVE"
	UserLocked   UserStatus = "LOCKED"
	UserPending  UserStatus = "PENDING"
)

// User is an identity consumed from the external identity provider.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Department   string     `json:"department,omitempty"`
	Status       UserStatus `json:"status"`
	FailedLogins int        `json:"failed_logins"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
	MFAEnabled   bool       `json:"mfa_enabled"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

const maxFailedLogins = 5

// RecordFailedLogin bumps the failure counter and locks the account for
// lockFor once the threshold is crossed.
func (u *User) RecordFailedLogin(now time.Time, lockFor time.Duration) {
	u.FailedLogins++
	if u.FailedLogins >= maxFailedLogins {
		until := now.Add(lockFor)
		u.LockedUntil = &until
		u.Status = UserLocked
	}
	u.UpdatedAt = now
}

// RecordSuccessfulLogin resets the failure counter and clears an expired lock.
func (u *User) RecordSuccessfulLogin(now time.Time) {
	u.FailedLogins = 0
	if u.Status == UserLocked && (u.LockedUntil == nil || !u.LockedUntil.After(now)) {
		u.Status = UserActive
		u.LockedUntil = nil
	}
	u.UpdatedAt = now
}

// Role groups permissions. Level 1 is the most privileged of 1..5.
// ParentID is documentary metadata for level ordering only: grants are
// fully materialized per role and never inherited through the parent
// chain at resolution time.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Level       int       `json:"level"`
	ParentID    string    `json:"parent_id,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Action is what a permission allows on a resource.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionRead    Action = "READ"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionExecute Action = "EXECUTE"
	ActionAll     Action = "ALL"
)

// ResourceType partitions the permission namespace.
type ResourceType string

const (
	ResourceConfig ResourceType = "CONFIG"
	ResourceQuery  ResourceType = "QUERY"
	ResourceAudit  ResourceType = "AUDIT"
)

// Permission is an immutable capability: an action on resources whose
// names match a glob-style pattern.
type Permission struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Resource    ResourceType `json:"resource_type"`
	Action      Action       `json:"action"`
	Pattern     string       `json:"resource_pattern"`
	Description string       `json:"description,omitempty"`
}

// Covers reports whether this permission allows action on the named
// resource of the given type, using the supplied pattern matcher.
func (p Permission) Covers(m PatternMatcher, rt ResourceType, action Action, resource string) bool {
	if p.Resource != rt {
		return false
	}
	if p.Action != action && p.Action != ActionAll {
		return false
	}
	return m.Match(p.Pattern, resource)
}

// RolePermission is an explicit grant edge. A role holds exactly the
// permissions granted here, not a union inherited from its parent.
type RolePermission struct {
	RoleID       string `json:"role_id"`
	PermissionID string `json:"permission_id"`
}

// RoleAssignment gives a user a role for an effective window. Assignments
// are closed, never physically deleted.
type RoleAssignment struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	RoleID         string     `json:"role_id"`
	AssignedBy     string     `json:"assigned_by"`
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	Active         bool       `json:"is_active"`
	Reason         string     `json:"reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EffectiveAt reports whether the assignment grants its role at t.
func (a RoleAssignment) EffectiveAt(t time.Time) bool {
	if !a.Active {
		return false
	}
	if a.EffectiveFrom.After(t) {
		return false
	}
	return a.EffectiveUntil == nil || a.EffectiveUntil.After(t)
}

// Overlaps reports whether two effective windows intersect. Closed
// (inactive) assignments never overlap anything.
func (a RoleAssignment) Overlaps(from time.Time, until *time.Time) bool {
	if !a.Active {
		return false
	}
	if a.EffectiveUntil != nil && !a.EffectiveUntil.After(from) {
		return false
	}
	if until != nil && !until.After(a.EffectiveFrom) {
		return false
	}
	return true
}

package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/audit"
	"github.com/pkanduri1/fabric-platform-sub006/internal/errcode"
	"github.com/pkanduri1/fabric-platform-sub006/internal/obs"
)

// Resolver computes the effective permission set of a user at a point in
// time and owns the only two entitlement mutators. Resolution is
// read-only; grants are applied exactly as stored with no parent-role
// traversal (flattening happens at role-definition time).
type Resolver struct {
	store   Store
	chain   *audit.Chain
	matcher PatternMatcher
	now     func() time.Time
}

// NewResolver wires a resolver over the given store and audit chain.
func NewResolver(store Store, chain *audit.Chain) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("authz store is required")
	}
	if chain == nil {
		return nil, errors.New("audit chain is required")
	}
	return &Resolver{store: store, chain: chain, matcher: GlobMatcher{}, now: time.Now}, nil
}

// Matcher returns the pattern matcher used for resource authorization.
func (r *Resolver) Matcher() PatternMatcher { return r.matcher }

// Resolve returns the deduplicated union of permissions granted by every
// role assignment effective at asOf. An unknown user yields an empty set,
// not an error: callers must treat empty as deny.
func (r *Resolver) Resolve(ctx context.Context, userID string, asOf time.Time) ([]Permission, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	assignments, err := r.store.AssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var perms []Permission
	for _, a := range assignments {
		if !a.EffectiveAt(asOf) {
			continue
		}
		granted, err := r.store.PermissionsForRole(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		for _, p := range granted {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms, nil
}

// HasPermission reports whether the user holds a permission with the
// given name at asOf, short-circuiting on first match.
func (r *Resolver) HasPermission(ctx context.Context, userID, name string, asOf time.Time) (bool, error) {
	assignments, err := r.store.AssignmentsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, a := range assignments {
		if !a.EffectiveAt(asOf) {
			continue
		}
		granted, err := r.store.PermissionsForRole(ctx, a.RoleID)
		if err != nil {
			return false, err
		}
		for _, p := range granted {
			if p.Name == name {
				return true, nil
			}
		}
	}
	return false, nil
}

// Allows reports whether any permission in perms covers the action on the
// named resource.
func (r *Resolver) Allows(perms []Permission, rt ResourceType, action Action, resource string) bool {
	for _, p := range perms {
		if p.Covers(r.matcher, rt, action, resource) {
			return true
		}
	}
	return false
}

// AssignCommand describes a role grant.
type AssignCommand struct {
	UserID         string
	RoleID         string
	AssignedBy     string
	EffectiveFrom  time.Time
	EffectiveUntil *time.Time
	Reason         string
	CorrelationID  string
}

// AssignRole opens a new effective window for (user, role). It fails with
// ErrConflict when an overlapping window exists, and with an
// AUDIT_WRITE_ERROR when the change cannot be logged: an unaudited
// entitlement change is treated as not having happened.
func (r *Resolver) AssignRole(ctx context.Context, cmd AssignCommand) (RoleAssignment, error) {
	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.RoleID) == "" {
		return RoleAssignment{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if _, err := r.store.GetRole(ctx, cmd.RoleID); err != nil {
		return RoleAssignment{}, err
	}
	now := r.now().UTC()
	from := cmd.EffectiveFrom
	if from.IsZero() {
		from = now
	}
	if cmd.EffectiveUntil != nil && !cmd.EffectiveUntil.After(from) {
		return RoleAssignment{}, fmt.Errorf("%w: effective_until must be after effective_from", ErrInvalidInput)
	}

	created, err := r.store.CreateAssignment(ctx, RoleAssignment{
		UserID:         cmd.UserID,
		RoleID:         cmd.RoleID,
		AssignedBy:     cmd.AssignedBy,
		EffectiveFrom:  from,
		EffectiveUntil: cmd.EffectiveUntil,
		Active:         true,
		Reason:         cmd.Reason,
		CreatedAt:      now,
	})
	if err != nil {
		return RoleAssignment{}, err
	}

	if _, err := r.chain.Append(ctx, audit.Event{
		Type:     audit.EventRoleAssigned,
		Severity: audit.SeverityInfo,
		Actor:    audit.Actor{UserID: cmd.AssignedBy},
		Payload: map[string]string{
			"assignment_id":  created.ID,
			"user_id":        created.UserID,
			"role_id":        created.RoleID,
			"effective_from": created.EffectiveFrom.UTC().Format(time.RFC3339),
			"reason":         created.Reason,
		},
		Security:      true,
		Compliance:    true,
		Risk:          audit.RiskMedium,
		CorrelationID: cmd.CorrelationID,
	}); err != nil {
		// The grant is not committed unless it is logged.
		if rbErr := r.store.RemoveAssignment(ctx, created.ID); rbErr != nil {
			obs.LogEvent(map[string]any{
				"level": "error", "msg": "assignment rollback failed",
				"assignment_id": created.ID, "error": rbErr.Error(),
			})
		}
		return RoleAssignment{}, errcode.New(errcode.AuditWriteError, cmd.CorrelationID, err.Error())
	}
	return created, nil
}

// RevokeCommand describes a role revocation.
type RevokeCommand struct {
	UserID        string
	RoleID        string
	RevokedBy     string
	Reason        string
	CorrelationID string
}

// RevokeRole closes the active window for (user, role). Revoking an
// already-revoked assignment is a no-op: it changes no state and appends
// no audit record beyond a log line.
func (r *Resolver) RevokeRole(ctx context.Context, cmd RevokeCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.RoleID) == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	now := r.now().UTC()
	closed, ok, err := r.store.CloseAssignment(ctx, cmd.UserID, cmd.RoleID, now)
	if err != nil {
		return err
	}
	if !ok {
		obs.LogEvent(map[string]any{
			"level": "info", "msg": "revoke no-op: no active assignment",
			"user_id": cmd.UserID, "role_id": cmd.RoleID, "correlation_id": cmd.CorrelationID,
		})
		return nil
	}

	if _, err := r.chain.Append(ctx, audit.Event{
		Type:     audit.EventRoleRevoked,
		Severity: audit.SeverityInfo,
		Actor:    audit.Actor{UserID: cmd.RevokedBy},
		Payload: map[string]string{
			"assignment_id": closed.ID,
			"user_id":       closed.UserID,
			"role_id":       closed.RoleID,
			"revoked_at":    now.Format(time.RFC3339),
			"reason":        cmd.Reason,
		},
		Security:      true,
		Compliance:    true,
		Risk:          audit.RiskMedium,
		CorrelationID: cmd.CorrelationID,
	}); err != nil {
		if rbErr := r.store.ReopenAssignment(ctx, closed.ID, closed.EffectiveUntil); rbErr != nil {
			obs.LogEvent(map[string]any{
				"level": "error", "msg": "revoke rollback failed",
				"assignment_id": closed.ID, "error": rbErr.Error(),
			})
		}
		return errcode.New(errcode.AuditWriteError, cmd.CorrelationID, err.Error())
	}
	return nil
}

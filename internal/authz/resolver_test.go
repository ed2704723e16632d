package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/audit"
	"github.com/pkanduri1/fabric-platform-sub006/internal/errcode"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seededStore() *InMemory {
	s := NewInMemory()
	s.PutUser(User{ID: "u-1", Username: "alice", Status: UserActive})
	s.PutRole(Role{ID: "r-viewer", Name: "VIEWER", Level: 5})
	s.PutRole(Role{ID: "r-admin", Name: "SECURITY_ADMIN", Level: 1})
	s.PutPermission(Permission{
		ID: "p-reports", Name: "query.reports",
		Resource: ResourceQuery, Action: ActionRead, Pattern: "reports/*",
	})
	s.PutPermission(Permission{
		ID: "p-all", Name: "query.all",
		Resource: ResourceQuery, Action: ActionAll, Pattern: "*",
	})
	s.Grant("r-viewer", "p-reports")
	s.Grant("r-admin", "p-all")
	s.Grant("r-admin", "p-reports")
	return s
}

func newTestResolver(t *testing.T, store Store) (*Resolver, *audit.InMemory) {
	t.Helper()
	auditStore := audit.NewInMemory()
	chain, err := audit.NewChain(auditStore)
	if err != nil {
		t.Fatalf("audit chain: %v", err)
	}
	r, err := NewResolver(store, chain)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	r.now = func() time.Time { return testNow }
	return r, auditStore
}

func mustAssign(t *testing.T, r *Resolver, cmd AssignCommand) RoleAssignment {
	t.Helper()
	a, err := r.AssignRole(context.Background(), cmd)
	if err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	return a
}

func TestResolveUnknownUserIsEmptyNotError(t *testing.T) {
	r, _ := newTestResolver(t, seededStore())
	perms, err := r.Resolve(context.Background(), "nobody", testNow)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("perms = %v, want empty", perms)
	}
}

func TestResolveHonorsEffectiveWindow(t *testing.T) {
	r, _ := newTestResolver(t, seededStore())
	until := testNow.Add(48 * time.Hour)
	mustAssign(t, r, AssignCommand{
		UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin",
		EffectiveFrom: testNow, EffectiveUntil: &until,
	})

	cases := []struct {
		name string
		asOf time.Time
		want int
	}{
		{"before window", testNow.Add(-time.Hour), 0},
		{"at start", testNow, 1},
		{"inside window", testNow.Add(24 * time.Hour), 1},
		{"at expiry", until, 0},
		{"after expiry", until.Add(time.Hour), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			perms, err := r.Resolve(context.Background(), "u-1", tc.asOf)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if len(perms) != tc.want {
				t.Fatalf("got %d permissions, want %d", len(perms), tc.want)
			}
		})
	}
}

func TestResolveDeduplicatesAcrossRoles(t *testing.T) {
	r, _ := newTestResolver(t, seededStore())
	mustAssign(t, r, AssignCommand{UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin"})
	mustAssign(t, r, AssignCommand{UserID: "u-1", RoleID: "r-admin", AssignedBy: "admin"})

	perms, err := r.Resolve(context.Background(), "u-1", testNow)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// p-reports is granted by both roles but must appear once.
	if len(perms) != 2 {
		t.Fatalf("got %d permissions, want 2: %v", len(perms), perms)
	}
}

func TestAssignRoleRejectsOverlap(t *testing.T) {
	r, _ := newTestResolver(t, seededStore())
	mustAssign(t, r, AssignCommand{UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin"})

	_, err := r.AssignRole(context.Background(), AssignCommand{
		UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestAssignRoleAllowsDisjointWindows(t *testing.T) {
	r, _ := newTestResolver(t, seededStore())
	until := testNow.Add(time.Hour)
	mustAssign(t, r, AssignCommand{
		UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin",
		EffectiveFrom: testNow, EffectiveUntil: &until,
	})
	mustAssign(t, r, AssignCommand{
		UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin",
		EffectiveFrom: until.Add(time.Minute),
	})
}

func TestAssignRoleUnknownRole(t *testing.T) {
	r, _ := newTestResolver(t, seededStore())
	_, err := r.AssignRole(context.Background(), AssignCommand{
		UserID: "u-1", RoleID: "r-ghost", AssignedBy: "admin",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAssignRoleInvalidWindow(t *testing.T) {
	r, _ := newTestResolver(t, seededStore())
	until := testNow.Add(-time.Hour)
	_, err := r.AssignRole(context.Background(), AssignCommand{
		UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin",
		EffectiveFrom: testNow, EffectiveUntil: &until,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAssignRoleWritesAuditRecord(t *testing.T) {
	r, auditStore := newTestResolver(t, seededStore())
	created := mustAssign(t, r, AssignCommand{
		UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin",
		Reason: "quarterly access review", CorrelationID: "cor-assign",
	})

	rec, err := auditStore.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("audit record missing: %v", err)
	}
	if rec.Type != audit.EventRoleAssigned {
		t.Fatalf("type = %s, want %s", rec.Type, audit.EventRoleAssigned)
	}
	if !rec.Security || !rec.Compliance || rec.Risk != audit.RiskMedium {
		t.Fatalf("flags: %+v", rec)
	}
	if rec.Payload["assignment_id"] != created.ID || rec.CorrelationID != "cor-assign" {
		t.Fatalf("payload: %+v", rec)
	}
}

func TestRevokeRoleClosesWindowAndAudits(t *testing.T) {
	store := seededStore()
	r, auditStore := newTestResolver(t, store)
	mustAssign(t, r, AssignCommand{UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin"})

	err := r.RevokeRole(context.Background(), RevokeCommand{
		UserID: "u-1", RoleID: "r-viewer", RevokedBy: "admin",
	})
	if err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}

	perms, _ := r.Resolve(context.Background(), "u-1", testNow.Add(time.Second))
	if len(perms) != 0 {
		t.Fatalf("permissions survive revoke: %v", perms)
	}
	rec, err := auditStore.Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("revoke audit record missing: %v", err)
	}
	if rec.Type != audit.EventRoleRevoked {
		t.Fatalf("type = %s, want %s", rec.Type, audit.EventRoleRevoked)
	}
}

func TestRevokeRoleIdempotent(t *testing.T) {
	r, auditStore := newTestResolver(t, seededStore())
	mustAssign(t, r, AssignCommand{UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin"})

	cmd := RevokeCommand{UserID: "u-1", RoleID: "r-viewer", RevokedBy: "admin"}
	if err := r.RevokeRole(context.Background(), cmd); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if err := r.RevokeRole(context.Background(), cmd); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	// assign + one revoke; the no-op second revoke appends nothing.
	records, _ := auditStore.Page(context.Background(), 0, 10)
	if len(records) != 2 {
		t.Fatalf("audit records = %d, want 2", len(records))
	}
}

// failingAuditStore rejects every append so chain writes always fail.
type failingAuditStore struct {
	audit.InMemory
}

func (s *failingAuditStore) Append(ctx context.Context, r audit.Record) error {
	return errors.New("disk full")
}

func TestAssignRoleRollsBackOnAuditFailure(t *testing.T) {
	store := seededStore()
	chain, _ := audit.NewChain(&failingAuditStore{})
	r, err := NewResolver(store, chain)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	r.now = func() time.Time { return testNow }

	_, err = r.AssignRole(context.Background(), AssignCommand{
		UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin",
	})
	if errcode.CodeOf(err) != errcode.AuditWriteError {
		t.Fatalf("err = %v, want AUDIT_WRITE_ERROR", err)
	}

	// The unaudited grant must not exist.
	assignments, _ := store.AssignmentsForUser(context.Background(), "u-1")
	if len(assignments) != 0 {
		t.Fatalf("assignment survived audit failure: %v", assignments)
	}
}

// flakyAuditStore fails appends once armed.
type flakyAuditStore struct {
	audit.InMemory
	fail bool
}

func (s *flakyAuditStore) Append(ctx context.Context, r audit.Record) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.InMemory.Append(ctx, r)
}

func TestRevokeRoleRollsBackOnAuditFailure(t *testing.T) {
	store := seededStore()
	auditStore := &flakyAuditStore{}
	chain, _ := audit.NewChain(auditStore)
	r, err := NewResolver(store, chain)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	r.now = func() time.Time { return testNow }
	mustAssign(t, r, AssignCommand{UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin"})

	auditStore.fail = true
	err = r.RevokeRole(context.Background(), RevokeCommand{
		UserID: "u-1", RoleID: "r-viewer", RevokedBy: "admin",
	})
	if errcode.CodeOf(err) != errcode.AuditWriteError {
		t.Fatalf("err = %v, want AUDIT_WRITE_ERROR", err)
	}

	// The assignment must still be effective: the revoke did not happen.
	perms, _ := r.Resolve(context.Background(), "u-1", testNow.Add(time.Second))
	if len(perms) != 1 {
		t.Fatalf("permissions after rolled-back revoke = %v, want 1", perms)
	}
}

func TestHasPermission(t *testing.T) {
	r, _ := newTestResolver(t, seededStore())
	mustAssign(t, r, AssignCommand{UserID: "u-1", RoleID: "r-viewer", AssignedBy: "admin"})

	ok, err := r.HasPermission(context.Background(), "u-1", "query.reports", testNow)
	if err != nil || !ok {
		t.Fatalf("HasPermission = %v, %v; want true", ok, err)
	}
	ok, err = r.HasPermission(context.Background(), "u-1", "query.all", testNow)
	if err != nil || ok {
		t.Fatalf("HasPermission(query.all) = %v, %v; want false", ok, err)
	}
}

func TestAllows(t *testing.T) {
	r, _ := newTestResolver(t, seededStore())
	perms := []Permission{{
		ID: "p-reports", Name: "query.reports",
		Resource: ResourceQuery, Action: ActionRead, Pattern: "reports/*",
	}}
	if !r.Allows(perms, ResourceQuery, ActionRead, "reports/daily") {
		t.Fatal("reports/daily should be allowed")
	}
	if r.Allows(perms, ResourceQuery, ActionRead, "accounts") {
		t.Fatal("accounts should be denied")
	}
	if r.Allows(perms, ResourceQuery, ActionExecute, "reports/daily") {
		t.Fatal("EXECUTE should be denied for a READ grant")
	}
}

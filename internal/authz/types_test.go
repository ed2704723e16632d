package authz

import (
	"testing"
	"time"
)

func TestUserLockout(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	u := User{ID: "u-1", Status: UserActive}

	for i := 0; i < 4; i++ {
		u.RecordFailedLogin(now, time.Hour)
		if u.Status != UserActive {
			t.Fatalf("locked after %d failures", i+1)
		}
	}
	u.RecordFailedLogin(now, time.Hour)
	if u.Status != UserLocked {
		t.Fatalf("status = %s, want LOCKED after 5 failures", u.Status)
	}
	if u.LockedUntil == nil || !u.LockedUntil.Equal(now.Add(time.Hour)) {
		t.Fatalf("locked_until = %v", u.LockedUntil)
	}

	// A success while still locked does not unlock.
	u.RecordSuccessfulLogin(now.Add(30 * time.Minute))
	if u.Status != UserLocked {
		t.Fatal("unlocked before the lock expired")
	}
	if u.FailedLogins != 0 {
		t.Fatalf("failed_logins = %d, want 0", u.FailedLogins)
	}

	// After the lock expires the next success clears it.
	u.RecordSuccessfulLogin(now.Add(2 * time.Hour))
	if u.Status != UserActive || u.LockedUntil != nil {
		t.Fatalf("status = %s, locked_until = %v", u.Status, u.LockedUntil)
	}
}

func TestAssignmentOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := base.Add(24 * time.Hour)
	open := RoleAssignment{Active: true, EffectiveFrom: base}
	bounded := RoleAssignment{Active: true, EffectiveFrom: base, EffectiveUntil: &end}
	closed := RoleAssignment{Active: false, EffectiveFrom: base}

	later := end.Add(time.Hour)
	cases := []struct {
		name  string
		a     RoleAssignment
		from  time.Time
		until *time.Time
		want  bool
	}{
		{"open vs anything later", open, later, nil, true},
		{"bounded vs window after end", bounded, later, nil, false},
		{"bounded vs window inside", bounded, base.Add(time.Hour), &later, true},
		{"bounded vs window before start", bounded, base.Add(-2 * time.Hour), &base, false},
		{"closed never overlaps", closed, base, nil, false},
		{"touching windows do not overlap", bounded, end, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.from, tc.until); got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
		})
	}
}

package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/ids"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu          sync.RWMutex
	users       map[string]User
	roles       map[string]Role
	permissions map[string]Permission
	grants      map[string][]string // roleID -> permission ids
	assignments []RoleAssignment
}

// NewInMemory creates an empty authz store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:       make(map[string]User),
		roles:       make(map[string]Role),
		permissions: make(map[string]Permission),
		grants:      make(map[string][]string),
	}
}

// PutUser upserts a user row.
func (s *InMemory) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutRole upserts a role row.
func (s *InMemory) PutRole(r Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID] = r
}

// PutPermission registers a permission in the catalog.
func (s *InMemory) PutPermission(p Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[p.ID] = p
}

// Grant links a permission to a role.
func (s *InMemory) Grant(roleID, permissionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[roleID] = append(s.grants[roleID], permissionID)
}

func (s *InMemory) GetUser(ctx context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) GetRole(ctx context.Context, roleID string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (s *InMemory) AssignmentsForUser(ctx context.Context, userID string) ([]RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RoleAssignment
	for _, a := range s.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *InMemory) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Permission
	for _, pid := range s.grants[roleID] {
		if p, ok := s.permissions[pid]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemory) CreateAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing.UserID != a.UserID || existing.RoleID != a.RoleID {
			continue
		}
		if existing.Overlaps(a.EffectiveFrom, a.EffectiveUntil) {
			return RoleAssignment{}, fmt.Errorf("%w: user %s role %s", ErrConflict, a.UserID, a.RoleID)
		}
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.assignments = append(s.assignments, a)
	return a, nil
}

func (s *InMemory) CloseAssignment(ctx context.Context, userID, roleID string, at time.Time) (RoleAssignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assignments {
		a := &s.assignments[i]
		if a.UserID == userID && a.RoleID == roleID && a.EffectiveAt(at) {
			prev := *a
			closedAt := at
			a.Active = false
			a.EffectiveUntil = &closedAt
			return prev, true, nil
		}
	}
	return RoleAssignment{}, false, nil
}

func (s *InMemory) RemoveAssignment(ctx context.Context, assignmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assignments {
		if s.assignments[i].ID == assignmentID {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemory) ReopenAssignment(ctx context.Context, assignmentID string, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assignments {
		if s.assignments[i].ID == assignmentID {
			s.assignments[i].Active = true
			s.assignments[i].EffectiveUntil = until
			return nil
		}
	}
	return ErrNotFound
}

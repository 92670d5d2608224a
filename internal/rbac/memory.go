package rbac

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"paydesk.org/internal/ids"
)

// Memory implements Store with in-process concurrency safety. It enforces the
// same uniqueness semantics as the relational store and backs tests and local
// development.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]*User       // id -> user
	usersByMail map[string]string      // lower(email) -> id
	roles       map[string]*Role       // id -> role
	rolesByName map[string]string      // name -> id
	perms       map[string]*Permission // id -> permission
	permsByName map[string]string      // name -> id
	grants      map[string]map[string]struct{} // roleID -> permissionID set
	assignments map[string]map[string]struct{} // userID -> roleID set
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]*User),
		usersByMail: make(map[string]string),
		roles:       make(map[string]*Role),
		rolesByName: make(map[string]string),
		perms:       make(map[string]*Permission),
		permsByName: make(map[string]string),
		grants:      make(map[string]map[string]struct{}),
		assignments: make(map[string]map[string]struct{}),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Users(ctx context.Context) UserStore             { return (*memoryUsers)(m) }
func (m *Memory) Roles(ctx context.Context) RoleStore             { return (*memoryRoles)(m) }
func (m *Memory) Permissions(ctx context.Context) PermissionStore { return (*memoryPerms)(m) }

// Users ---------------------------------------------------------------------

type memoryUsers Memory

func (s *memoryUsers) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, taken := s.usersByMail[key]; taken {
		return ErrConflict
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	s.usersByMail[key] = u.ID
	return nil
}

func (s *memoryUsers) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memoryUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByMail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *memoryUsers) UpdateStatus(ctx context.Context, userID string, status UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryUsers) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	stamp := at.UTC()
	u.LastLoginAt = &stamp
	u.UpdatedAt = stamp
	return nil
}

// Roles ---------------------------------------------------------------------

type memoryRoles Memory

func (s *memoryRoles) Upsert(ctx context.Context, role *Role) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.rolesByName[role.Name]; ok {
		cp := *s.roles[id]
		return &cp, nil
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	cp := *role
	s.roles[role.ID] = &cp
	s.rolesByName[role.Name] = role.ID
	out := cp
	return &out, nil
}

func (s *memoryRoles) Find(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (s *memoryRoles) FindByName(ctx context.Context, name string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.rolesByName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.roles[id]
	return &cp, nil
}

func (s *memoryRoles) List(ctx context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryRoles) Grant(ctx context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.perms[permissionID]; !ok {
		return ErrNotFound
	}
	set, ok := s.grants[roleID]
	if !ok {
		set = make(map[string]struct{})
		s.grants[roleID] = set
	}
	set[permissionID] = struct{}{}
	return nil
}

func (s *memoryRoles) Assign(ctx context.Context, a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[a.UserID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.roles[a.RoleID]; !ok {
		return ErrNotFound
	}
	set, ok := s.assignments[a.UserID]
	if !ok {
		set = make(map[string]struct{})
		s.assignments[a.UserID] = set
	}
	set[a.RoleID] = struct{}{}
	return nil
}

func (s *memoryRoles) AssignmentsForUser(ctx context.Context, userID string) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.assignments[userID]
	out := make([]Assignment, 0, len(set))
	for roleID := range set {
		out = append(out, Assignment{UserID: userID, RoleID: roleID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
	return out, nil
}

// Permissions ---------------------------------------------------------------

type memoryPerms Memory

func (s *memoryPerms) Upsert(ctx context.Context, p *Permission) (*Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.permsByName[p.Name]; ok {
		cp := *s.perms[id]
		return &cp, nil
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.CreatedAt = time.Now().UTC()
	cp := *p
	s.perms[p.ID] = &cp
	s.permsByName[p.Name] = p.ID
	out := cp
	return &out, nil
}

func (s *memoryPerms) FindByName(ctx context.Context, name string) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.permsByName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.perms[id]
	return &cp, nil
}

func (s *memoryPerms) List(ctx context.Context, filter PermissionFilter) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Permission, 0, len(s.perms))
	for _, p := range s.perms {
		if filter.Matches(*p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryPerms) ForRole(ctx context.Context, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.grants[roleID]
	out := make([]Permission, 0, len(set))
	for permID := range set {
		out = append(out, *s.perms[permID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

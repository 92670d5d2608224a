package rbac

import (
	"context"
	"time"
)

// Store describes persistence operations required by the RBAC core.
// Uniqueness (user email, permission name, role name, junction pairs) is
// enforced at the store level; implementations translate their native
// unique-violation errors into ErrConflict.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
}

// UserStore manages identity records.
type UserStore interface {
	// Create persists a new user. Returns ErrConflict when the email is
	// already taken (case-insensitive).
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdateStatus(ctx context.Context, userID string, status UserStatus) error
	// RecordLogin stamps last_login_at. Callers treat failures as
	// non-fatal: the write is not security relevant.
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// RoleStore manages roles, role-permission grants and user-role assignments.
// Upsert, Grant and Assign are insert-or-ignore: replaying them with an
// existing key is a no-op, never an error.
type RoleStore interface {
	Upsert(ctx context.Context, role *Role) (*Role, error)
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	Grant(ctx context.Context, roleID, permissionID string) error
	Assign(ctx context.Context, a Assignment) error
	AssignmentsForUser(ctx context.Context, userID string) ([]Assignment, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	// Upsert creates the permission when the name is absent and leaves an
	// existing record untouched, returning the stored row either way.
	Upsert(ctx context.Context, p *Permission) (*Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
	List(ctx context.Context, filter PermissionFilter) ([]Permission, error)
	ForRole(ctx context.Context, roleID string) ([]Permission, error)
}

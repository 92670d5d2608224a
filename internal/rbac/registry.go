package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Registry manages named roles and their permission grants.
type Registry struct {
	store Store
}

// NewRegistry constructs a Registry over the given store.
func NewRegistry(store Store) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidArgument)
	}
	return &Registry{store: store}, nil
}

// Upsert creates the role when the name is absent; an existing role keeps its
// description untouched.
func (r *Registry) Upsert(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}
	role, err := r.store.Roles(ctx).Upsert(ctx, &Role{
		Name:        name,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return Role{}, err
	}
	return *role, nil
}

// FindByName fails with ErrNotFound when the role is absent. Callers decide
// whether absence is fatal; default-role assignment treats it as a disabled
// feature.
func (r *Registry) FindByName(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}
	role, err := r.store.Roles(ctx).FindByName(ctx, name)
	if err != nil {
		return Role{}, err
	}
	return *role, nil
}

// List returns all registered roles.
func (r *Registry) List(ctx context.Context) ([]Role, error) {
	return r.store.Roles(ctx).List(ctx)
}

// Grant creates the role-permission edge when absent. Replaying an existing
// (role, permission) pair is a no-op.
func (r *Registry) Grant(ctx context.Context, roleID, permissionID string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role_id and permission_id are required", ErrInvalidArgument)
	}
	return r.store.Roles(ctx).Grant(ctx, roleID, permissionID)
}

// GrantByName resolves the permission name against the live catalog before
// granting.
func (r *Registry) GrantByName(ctx context.Context, roleID, permissionName string) error {
	perm, err := r.store.Permissions(ctx).FindByName(ctx, strings.TrimSpace(permissionName))
	if err != nil {
		return err
	}
	return r.Grant(ctx, roleID, perm.ID)
}

// ResolvePermissions returns the full permission set reachable from the role.
func (r *Registry) ResolvePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidArgument)
	}
	return r.store.Permissions(ctx).ForRole(ctx, roleID)
}

// ResolvePermissionsByName is ResolvePermissions with a registry lookup first.
func (r *Registry) ResolvePermissionsByName(ctx context.Context, name string) ([]Permission, error) {
	role, err := r.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.ResolvePermissions(ctx, role.ID)
}

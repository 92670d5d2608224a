package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Catalog exposes the immutable permission catalog. Creation is an idempotent
// upsert keyed by name; there is no update or delete path.
type Catalog struct {
	store Store
}

// NewCatalog constructs a Catalog over the given store.
func NewCatalog(store Store) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidArgument)
	}
	return &Catalog{store: store}, nil
}

// Upsert creates the permission when absent and leaves an existing record
// untouched. The name defaults to resource:action when empty.
func (c *Catalog) Upsert(ctx context.Context, name, resource, action, description string) (Permission, error) {
	resource = strings.TrimSpace(strings.ToLower(resource))
	action = strings.TrimSpace(strings.ToLower(action))
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: resource and action are required", ErrInvalidArgument)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = PermissionName(resource, action)
	}
	perm, err := c.store.Permissions(ctx).Upsert(ctx, &Permission{
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return Permission{}, err
	}
	return *perm, nil
}

// FindByName looks up a single permission; absence is ErrNotFound.
func (c *Catalog) FindByName(ctx context.Context, name string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name is required", ErrInvalidArgument)
	}
	perm, err := c.store.Permissions(ctx).FindByName(ctx, name)
	if err != nil {
		return Permission{}, err
	}
	return *perm, nil
}

// List returns the catalog narrowed by the filter. Order is stable within a
// single snapshot (implementations sort by name).
func (c *Catalog) List(ctx context.Context, filter PermissionFilter) ([]Permission, error) {
	filter.Resource = strings.TrimSpace(strings.ToLower(filter.Resource))
	filter.Action = strings.TrimSpace(strings.ToLower(filter.Action))
	filter.ExcludeName = strings.TrimSpace(filter.ExcludeName)
	return c.store.Permissions(ctx).List(ctx, filter)
}

package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Principal is an identity with its role bindings resolved into a permission
// set. It is built fresh per request; revoking a role is visible on the next
// check without any cache invalidation.
type Principal struct {
	User        *User
	Roles       []RoleGrant
	Permissions map[string]struct{}
}

// NewPrincipal indexes the grants into a permission set.
func NewPrincipal(user *User, grants []RoleGrant) Principal {
	set := make(map[string]struct{})
	for _, g := range grants {
		for _, p := range g.Permissions {
			set[p.Name] = struct{}{}
		}
	}
	return Principal{User: user, Roles: grants, Permissions: set}
}

// Allows reports whether the principal holds the (resource, action) pair.
func (p Principal) Allows(resource, action string) bool {
	_, ok := p.Permissions[PermissionName(resource, action)]
	return ok
}

// HasPermission reports whether the principal holds the named permission.
func (p Principal) HasPermission(name string) bool {
	_, ok := p.Permissions[name]
	return ok
}

// PermissionNames returns the resolved set sorted by name.
func (p Principal) PermissionNames() []string {
	out := make([]string, 0, len(p.Permissions))
	for name := range p.Permissions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RoleNames returns the bound role names sorted.
func (p Principal) RoleNames() []string {
	out := make([]string, 0, len(p.Roles))
	for _, g := range p.Roles {
		out = append(out, g.Role.Name)
	}
	sort.Strings(out)
	return out
}

// Authorizer answers allow/deny questions from the live role bindings.
type Authorizer struct {
	store  Store
	engine *AssignmentEngine
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(store Store, engine *AssignmentEngine) (*Authorizer, error) {
	if store == nil || engine == nil {
		return nil, fmt.Errorf("%w: store and engine are required", ErrInvalidArgument)
	}
	return &Authorizer{store: store, engine: engine}, nil
}

// PrincipalFor loads the user and resolves its capability set at call time.
func (a *Authorizer) PrincipalFor(ctx context.Context, userID string) (Principal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	user, err := a.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	grants, err := a.engine.RolesForUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, grants), nil
}

// Authorize resolves the identity and checks the required pair. The result
// reflects the role bindings at check time.
func (a *Authorizer) Authorize(ctx context.Context, userID, resource, action string) (bool, error) {
	principal, err := a.PrincipalFor(ctx, userID)
	if err != nil {
		return false, err
	}
	return principal.Allows(resource, action), nil
}

// Require is Authorize hardened into an error: deny becomes ErrUnauthorized.
func (a *Authorizer) Require(ctx context.Context, userID, resource, action string) (Principal, error) {
	principal, err := a.PrincipalFor(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if !principal.Allows(resource, action) {
		return Principal{}, ErrUnauthorized
	}
	return principal, nil
}

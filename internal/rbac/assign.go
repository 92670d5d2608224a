package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paydesk.org/internal/obs"
)

// DefaultRoleNames maps an account type to the role bound automatically at
// registration. The names are configuration, not derived from the bootstrap
// display names ("Super Admin", "Merchant Admin", ...): unless an operator
// seeds matching lower-case roles, auto-assignment degrades to a no-op.
var DefaultRoleNames = map[UserType]string{
	UserTypeAdmin:      "admin",
	UserTypeMerchant:   "merchant",
	UserTypeIndividual: "individual",
}

// AssignmentEngine binds users to roles and resolves the bindings into
// capability sets.
type AssignmentEngine struct {
	store    Store
	registry *Registry
}

// NewAssignmentEngine constructs an AssignmentEngine.
func NewAssignmentEngine(store Store, registry *Registry) (*AssignmentEngine, error) {
	if store == nil || registry == nil {
		return nil, fmt.Errorf("%w: store and registry are required", ErrInvalidArgument)
	}
	return &AssignmentEngine{store: store, registry: registry}, nil
}

// AssignRole creates the user-role edge when absent; replaying an existing
// pair is a no-op.
func (e *AssignmentEngine) AssignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidArgument)
	}
	if _, err := e.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return err
	}
	return e.store.Roles(ctx).Assign(ctx, Assignment{UserID: userID, RoleID: roleID})
}

// AssignDefaultRole binds the canonical role for the account type. A missing
// role is not an error: registration must not fail because role seeding has
// not run yet, so the miss is logged and swallowed.
func (e *AssignmentEngine) AssignDefaultRole(ctx context.Context, userID string, userType UserType) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	name, ok := DefaultRoleNames[userType]
	if !ok {
		return fmt.Errorf("%w: unsupported user type %q", ErrInvalidArgument, userType)
	}
	role, err := e.registry.FindByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		obs.Log(map[string]any{
			"level":   "warn",
			"msg":     "default role not seeded, skipping assignment",
			"role":    name,
			"user_id": userID,
		})
		return nil
	}
	if err != nil {
		return err
	}
	return e.store.Roles(ctx).Assign(ctx, Assignment{UserID: userID, RoleID: role.ID})
}

// RolesForUser returns every role bound to the user together with its
// resolved permission set.
func (e *AssignmentEngine) RolesForUser(ctx context.Context, userID string) ([]RoleGrant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	assignments, err := e.store.Roles(ctx).AssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	grants := make([]RoleGrant, 0, len(assignments))
	for _, a := range assignments {
		role, err := e.store.Roles(ctx).Find(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		perms, err := e.registry.ResolvePermissions(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		grants = append(grants, RoleGrant{Role: *role, Permissions: perms})
	}
	return grants, nil
}

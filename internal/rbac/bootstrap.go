package rbac

import (
	"context"
	"fmt"
)

// Resources and actions of the builtin catalog.
const (
	ResourceUser      = "user"
	ResourceRole      = "role"
	ResourceMerchant  = "merchant"
	ResourceOutlet    = "outlet"
	ResourceTerminal  = "terminal"
	ResourceInvoice   = "invoice"
	ResourcePayment   = "payment"
	ResourceAnalytics = "analytics"
	ResourcePayout    = "payout"
	ResourceFee       = "fee"

	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionExport = "export"
)

var crudResources = []string{
	ResourceUser,
	ResourceRole,
	ResourceMerchant,
	ResourceOutlet,
	ResourceTerminal,
	ResourceInvoice,
	ResourcePayment,
	ResourcePayout,
	ResourceFee,
}

// BuiltinPermissions returns the full bootstrap catalog: CRUD for every
// managed resource plus read/export for analytics.
func BuiltinPermissions() []Permission {
	actions := []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	perms := make([]Permission, 0, len(crudResources)*len(actions)+2)
	for _, res := range crudResources {
		for _, act := range actions {
			perms = append(perms, Permission{
				Name:        PermissionName(res, act),
				Resource:    res,
				Action:      act,
				Description: fmt.Sprintf("%s %s records", act, res),
			})
		}
	}
	perms = append(perms,
		Permission{
			Name:        PermissionName(ResourceAnalytics, ActionRead),
			Resource:    ResourceAnalytics,
			Action:      ActionRead,
			Description: "read analytics dashboards",
		},
		Permission{
			Name:        PermissionName(ResourceAnalytics, ActionExport),
			Resource:    ResourceAnalytics,
			Action:      ActionExport,
			Description: "export analytics reports",
		},
	)
	return perms
}

// RoleRule describes a bootstrap role as a predicate over the live catalog.
// Rules are re-evaluated on every synchronization pass, so a permission added
// later flows into every matching role without an explicit grant.
type RoleRule struct {
	Name        string
	Description string
	Matches     func(Permission) bool
}

func resourceIn(resources ...string) func(Permission) bool {
	set := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		set[r] = struct{}{}
	}
	return func(p Permission) bool {
		_, ok := set[p.Resource]
		return ok
	}
}

// BuiltinRoles returns the six bootstrap roles and their selection rules.
func BuiltinRoles() []RoleRule {
	return []RoleRule{
		{
			Name:        "Super Admin",
			Description: "Unrestricted platform access",
			Matches:     func(Permission) bool { return true },
		},
		{
			Name:        "Admin",
			Description: "Platform administration without user deletion",
			Matches: func(p Permission) bool {
				return p.Name != PermissionName(ResourceUser, ActionDelete)
			},
		},
		{
			Name:        "Merchant Admin",
			Description: "Full control over a merchant's commercial resources",
			Matches: resourceIn(
				ResourceMerchant, ResourceOutlet, ResourceTerminal,
				ResourceInvoice, ResourcePayment, ResourceAnalytics,
				ResourcePayout, ResourceFee,
			),
		},
		{
			Name:        "Outlet Manager",
			Description: "Day-to-day outlet operations",
			Matches:     resourceIn(ResourceOutlet, ResourceTerminal, ResourceInvoice, ResourcePayment),
		},
		{
			Name:        "Cashier",
			Description: "Invoice and payment handling without deletion",
			Matches: func(p Permission) bool {
				return resourceIn(ResourceInvoice, ResourcePayment)(p) && p.Action != ActionDelete
			},
		},
		{
			Name:        "Analyst",
			Description: "Read-only analytics access",
			Matches:     func(p Permission) bool { return p.Resource == ResourceAnalytics },
		},
	}
}

// Bootstrap synchronizes the builtin catalog and roles. Every step is
// idempotent, so it runs safely on every process start.
type Bootstrap struct {
	Catalog  *Catalog
	Registry *Registry
}

// Run upserts the catalog, upserts the six roles and re-evaluates each role's
// rule against the live catalog, granting whatever edges are missing.
func (b Bootstrap) Run(ctx context.Context) error {
	for _, p := range BuiltinPermissions() {
		if _, err := b.Catalog.Upsert(ctx, p.Name, p.Resource, p.Action, p.Description); err != nil {
			return fmt.Errorf("upsert permission %s: %w", p.Name, err)
		}
	}
	catalog, err := b.Catalog.List(ctx, PermissionFilter{})
	if err != nil {
		return fmt.Errorf("list catalog: %w", err)
	}
	for _, rule := range BuiltinRoles() {
		role, err := b.Registry.Upsert(ctx, rule.Name, rule.Description)
		if err != nil {
			return fmt.Errorf("upsert role %s: %w", rule.Name, err)
		}
		for _, perm := range catalog {
			if !rule.Matches(perm) {
				continue
			}
			if err := b.Registry.Grant(ctx, role.ID, perm.ID); err != nil {
				return fmt.Errorf("grant %s to %s: %w", perm.Name, rule.Name, err)
			}
		}
	}
	return nil
}

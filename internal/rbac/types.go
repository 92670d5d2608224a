package rbac

import (
	"fmt"
	"strings"
	"time"
)

// UserType classifies an account at registration time. The set is closed;
// every switch over it must carry an explicit default returning
// ErrInvalidArgument.
type UserType string

const (
	UserTypeAdmin      UserType = "ADMIN"
	UserTypeMerchant   UserType = "MERCHANT"
	UserTypeIndividual UserType = "INDIVIDUAL"
)

// Valid reports whether t is a member of the closed enum.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeAdmin, UserTypeMerchant, UserTypeIndividual:
		return true
	default:
		return false
	}
}

// ParseUserType normalizes raw input into a UserType.
func ParseUserType(raw string) (UserType, error) {
	t := UserType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unsupported user type %q", ErrInvalidArgument, raw)
	}
	return t, nil
}

// UserStatus gates login. Only ACTIVE accounts may authenticate.
type UserStatus string

const (
	StatusPendingVerification UserStatus = "PENDING_VERIFICATION"
	StatusActive              UserStatus = "ACTIVE"
	StatusSuspended           UserStatus = "SUSPENDED"
)

// Valid reports whether s is a member of the closed enum.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusActive, StatusSuspended:
		return true
	default:
		return false
	}
}

// Permission is a fine-grained capability identified by a globally unique
// name following the resource:action convention. Immutable after creation.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PermissionName builds the canonical resource:action name.
func PermissionName(resource, action string) string {
	return resource + ":" + action
}

// Role groups permissions under a unique name.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is an identity record. PasswordHash never crosses the authentication
// service boundary; handlers work with public projections only.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Phone         string     `json:"phone,omitempty"`
	UserType      UserType   `json:"user_type"`
	Status        UserStatus `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Assignment binds a user to a role. The (UserID, RoleID) pair is unique.
type Assignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleGrant is a role together with its resolved permission set, as attached
// to an authenticated identity.
type RoleGrant struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// PermissionFilter narrows catalog listings. Zero value matches everything.
type PermissionFilter struct {
	Resource    string
	Action      string
	ExcludeName string
}

// Matches reports whether p passes the filter.
func (f PermissionFilter) Matches(p Permission) bool {
	if f.Resource != "" && p.Resource != f.Resource {
		return false
	}
	if f.Action != "" && p.Action != f.Action {
		return false
	}
	if f.ExcludeName != "" && p.Name == f.ExcludeName {
		return false
	}
	return true
}

package httpapi

import (
	"net/http"
	"strings"

	"paydesk.org/internal/audit"
	"paydesk.org/internal/auth"
	"paydesk.org/internal/rbac"
)

type registerRequest struct {
	Email      string                         `json:"email"`
	Password   string                         `json:"password"`
	FirstName  string                         `json:"first_name"`
	LastName   string                         `json:"last_name"`
	Phone      string                         `json:"phone"`
	UserType   string                         `json:"user_type"`
	Merchant   *auth.MerchantProfileInput     `json:"merchant,omitempty"`
	Individual *auth.IndividualProfileInput   `json:"individual,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type permissionsResponse struct {
	Permissions []rbac.Permission `json:"permissions"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userType, err := rbac.ParseUserType(req.UserType)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		writeError(w, r, http.StatusBadRequest, "first_name and last_name are required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := a.svc.Auth.Register(r.Context(), auth.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		UserType:   userType,
		Merchant:   req.Merchant,
		Individual: req.Individual,
	})
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.user.registered", map[string]any{
		"user_id":   user.ID,
		"user_type": string(user.UserType),
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.svc.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.user.login", map[string]any{
		"user_id": session.User.ID,
	})
	writeJSON(w, http.StatusOK, session)
}

// handleMe echoes the identity resolved during token validation.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             principal.User.ID,
		"email":          principal.User.Email,
		"first_name":     principal.User.FirstName,
		"last_name":      principal.User.LastName,
		"user_type":      principal.User.UserType,
		"status":         principal.User.Status,
		"email_verified": principal.User.EmailVerified,
		"roles":          principal.RoleNames(),
	})
}

// handleMyPermissions returns the caller's resolved permission set.
func (a *API) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	perms := make([]rbac.Permission, 0)
	for _, grant := range principal.Roles {
		perms = append(perms, grant.Permissions...)
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Permissions: dedupePermissions(perms)})
}

func dedupePermissions(perms []rbac.Permission) []rbac.Permission {
	seen := make(map[string]struct{}, len(perms))
	out := make([]rbac.Permission, 0, len(perms))
	for _, p := range perms {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p)
	}
	sortPermissions(out)
	return out
}

package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"paydesk.org/internal/audit"
	"paydesk.org/internal/rbac"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type grantPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, rbac.ResourceRole, rbac.ActionRead) {
		return
	}
	filter := rbac.PermissionFilter{
		Resource: r.URL.Query().Get("resource"),
		Action:   r.URL.Query().Get("action"),
	}
	perms, err := a.svc.Catalog.List(r.Context(), filter)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Permissions: perms})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, rbac.ResourceRole, rbac.ActionRead) {
			return
		}
		roles, err := a.svc.Registry.List(r.Context())
		if err != nil {
			handleCoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !a.ensurePermission(w, r, rbac.ResourceRole, rbac.ActionCreate) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.Registry.Upsert(r.Context(), req.Name, req.Description)
		if err != nil {
			handleCoreError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.upsert", map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleResource serves /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]

	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, rbac.ResourceRole, rbac.ActionRead) {
			return
		}
		perms, err := a.svc.Registry.ResolvePermissions(r.Context(), roleID)
		if err != nil {
			handleCoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, permissionsResponse{Permissions: perms})
	case http.MethodPost:
		if !a.ensurePermission(w, r, rbac.ResourceRole, rbac.ActionUpdate) {
			return
		}
		var req grantPermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if len(req.Permissions) == 0 {
			writeError(w, r, http.StatusBadRequest, "permissions are required")
			return
		}
		for _, name := range req.Permissions {
			if err := a.svc.Registry.GrantByName(r.Context(), roleID, name); err != nil {
				handleCoreError(w, r, err)
				return
			}
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.grant", map[string]any{
			"role_id": roleID,
			"count":   len(req.Permissions),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleUserResource serves /v1/users/{id}/assignments.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 || parts[1] != "assignments" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, rbac.ResourceUser, rbac.ActionUpdate) {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}
	if err := a.svc.Engine.AssignRole(r.Context(), userID, req.RoleID); err != nil {
		handleCoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.assign_role", map[string]any{
		"user_id": userID,
		"role_id": req.RoleID,
	})
	w.WriteHeader(http.StatusCreated)
}

func sortPermissions(perms []rbac.Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
}

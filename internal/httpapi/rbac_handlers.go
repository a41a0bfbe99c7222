package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"worklane.org/internal/audit"
	"worklane.org/internal/rbac"
)

type createPermissionRequest struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type createRoleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type setRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

type assignRoleRequest struct {
	UserID string `json:"user_id"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, rbac.PermRolesRead); !ok {
			return
		}
		perms, err := a.rbac.ListPermissions(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"permissions": perms,
			"count":       len(perms),
		})
	case http.MethodPost:
		if _, ok := a.ensurePermission(w, r, rbac.PermRolesManage); !ok {
			return
		}
		var req createPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.rbac.CreatePermission(r.Context(), req.Resource, req.Action, req.Description)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.create", map[string]any{
			"permission_id": perm.ID,
			"name":          perm.Name,
		})
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.ensurePermission(w, r, rbac.PermRolesManage); !ok {
		return
	}
	seeded, err := a.rbac.SeedDefaultPermissions(r.Context())
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.permission.seed", map[string]any{
		"seeded": seeded,
	})
	writeJSON(w, http.StatusOK, map[string]any{"seeded": seeded})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sess, ok := a.ensurePermission(w, r, rbac.PermRolesRead)
		if !ok {
			return
		}
		roles, err := a.rbac.ListRoles(r.Context(), sess.OrganizationID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"roles": roles,
			"count": len(roles),
		})
	case http.MethodPost:
		sess, ok := a.ensurePermission(w, r, rbac.PermRolesManage)
		if !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), sess.OrganizationID, req.Name, req.Description, req.PermissionIDs)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{
			"role_id":         role.ID,
			"organization_id": role.OrganizationID,
			"name":            role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleResource dispatches /v1/roles/{id} and its sub-resources.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleRole(w, r, roleID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, roleID)
	case len(parts) == 2 && parts[1] == "assignments":
		a.handleRoleAssign(w, r, roleID)
	case len(parts) == 3 && parts[1] == "assignments":
		a.handleRoleUnassign(w, r, roleID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		sess, ok := a.ensurePermission(w, r, rbac.PermRolesRead)
		if !ok {
			return
		}
		role, err := a.rbac.GetRole(r.Context(), roleID, sess.OrganizationID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		sess, ok := a.ensurePermission(w, r, rbac.PermRolesManage)
		if !ok {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.UpdateRole(r.Context(), roleID, sess.OrganizationID, rbac.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.update", map[string]any{
			"role_id":         role.ID,
			"organization_id": role.OrganizationID,
		})
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		sess, ok := a.ensurePermission(w, r, rbac.PermRolesManage)
		if !ok {
			return
		}
		if err := a.rbac.DeleteRole(r.Context(), roleID, sess.OrganizationID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.delete", map[string]any{
			"role_id":         roleID,
			"organization_id": sess.OrganizationID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		sess, ok := a.ensurePermission(w, r, rbac.PermRolesRead)
		if !ok {
			return
		}
		perms, err := a.rbac.RolePermissions(r.Context(), roleID, sess.OrganizationID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"permissions": perms,
			"count":       len(perms),
		})
	case http.MethodPut:
		sess, ok := a.ensurePermission(w, r, rbac.PermRolesManage)
		if !ok {
			return
		}
		var req setRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.SetRolePermissions(r.Context(), roleID, sess.OrganizationID, req.PermissionIDs); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.permissions.update", map[string]any{
			"role_id":   roleID,
			"requested": len(req.PermissionIDs),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleRoleAssign(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sess, ok := a.ensurePermission(w, r, rbac.PermRolesManage)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	assignment, err := a.rbac.AssignRole(r.Context(), req.UserID, roleID, sess.OrganizationID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.assign", map[string]any{
		"role_id":         roleID,
		"user_id":         assignment.UserID,
		"organization_id": assignment.OrganizationID,
	})
	writeJSON(w, http.StatusCreated, assignment)
}

func (a *API) handleRoleUnassign(w http.ResponseWriter, r *http.Request, roleID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	sess, ok := a.ensurePermission(w, r, rbac.PermRolesManage)
	if !ok {
		return
	}
	if err := a.rbac.RemoveRole(r.Context(), userID, roleID, sess.OrganizationID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.unassign", map[string]any{
		"role_id":         roleID,
		"user_id":         userID,
		"organization_id": sess.OrganizationID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "rbac operation failed")
	}
}

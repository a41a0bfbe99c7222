package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"worklane.org/internal/audit"
	"worklane.org/internal/directory"
	"worklane.org/internal/rbac"
)

type updateUserRequest struct {
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Email      *string `json:"email"`
	Role       *string `json:"role"`
	Department *string `json:"department"`
	Location   *string `json:"location"`
	Phone      *string `json:"phone"`
	AvatarURL  *string `json:"avatar_url"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, ok := a.ensurePermission(w, r, rbac.PermUsersRead)
	if !ok {
		return
	}
	page, err := a.directory.List(r.Context(), sess.OrganizationID, filterFromQuery(r))
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// filterFromQuery maps list query parameters onto a directory filter.
// Soft-deleted rows appear only when include_deleted=true is spelled out.
func filterFromQuery(r *http.Request) directory.Filter {
	q := r.URL.Query()
	f := directory.Filter{
		Search:         q.Get("search"),
		Role:           q.Get("role"),
		Department:     q.Get("department"),
		IncludeDeleted: q.Get("include_deleted") == "true",
		SortBy:         q.Get("sort_by"),
		SortDesc:       q.Get("sort_desc") == "true",
	}
	if v := q.Get("active"); v != "" {
		active := v == "true"
		f.Active = &active
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil {
		f.PageSize = n
	}
	return f
}

// handleUserResource dispatches /v1/users/{id} and its sub-resources.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "deactivate":
		a.handleUserDeactivate(w, r, userID)
	case len(parts) == 2 && parts[1] == "activate":
		a.handleUserActivate(w, r, userID)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, userID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleUserPermissions(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		sess, ok := a.ensurePermission(w, r, rbac.PermUsersRead)
		if !ok {
			return
		}
		includeDeleted := r.URL.Query().Get("include_deleted") == "true"
		user, err := a.directory.Get(r.Context(), userID, sess.OrganizationID, includeDeleted)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		sess, ok := a.ensurePermission(w, r, rbac.PermUsersUpdate)
		if !ok {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.directory.UpdateProfile(r.Context(), userID, sess.OrganizationID, directory.Update{
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Email:      req.Email,
			Role:       req.Role,
			Department: req.Department,
			Location:   req.Location,
			Phone:      req.Phone,
			AvatarURL:  req.AvatarURL,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.update", map[string]any{
			"target_user_id":  user.ID,
			"organization_id": user.OrganizationID,
		})
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		sess, ok := a.ensurePermission(w, r, rbac.PermUsersHardDelete)
		if !ok {
			return
		}
		if err := a.directory.HardDelete(r.Context(), userID, sess.OrganizationID); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUserDeactivate(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sess, ok := a.ensurePermission(w, r, rbac.PermUsersDelete)
	if !ok {
		return
	}
	if err := a.directory.Deactivate(r.Context(), userID, sess.OrganizationID); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserActivate(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sess, ok := a.ensurePermission(w, r, rbac.PermUsersDelete)
	if !ok {
		return
	}
	if err := a.directory.Activate(r.Context(), userID, sess.OrganizationID); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, ok := a.ensurePermission(w, r, rbac.PermRolesRead)
	if !ok {
		return
	}
	roles, err := a.rbac.RolesForUser(r.Context(), userID, sess.OrganizationID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roles": roles,
		"count": len(roles),
	})
}

// handleUserPermissions returns the user's effective permission set, the
// union over every role they hold in the organization.
func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, ok := a.ensurePermission(w, r, rbac.PermRolesRead)
	if !ok {
		return
	}
	perms, err := a.rbac.PermissionsForUser(r.Context(), userID, sess.OrganizationID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": perms,
		"count":       len(perms),
	})
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "user operation failed")
	}
}

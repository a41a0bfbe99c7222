package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"worklane.org/internal/audit"
	"worklane.org/internal/auth"
	"worklane.org/internal/rbac"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Routes reachable without a session. Invitation accept and validate are
// public because the recipient has no account yet.
var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/register",
	"/v1/auth/forgot-password",
	"/v1/auth/reset-password",
	"/v1/auth/validate-password",
	"/v1/invitations/accept",
	"/v1/invitations/validate",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenValue, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(tokenValue)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		sess := claims.Session()
		ctx := auth.ContextWithSession(r.Context(), sess)
		ctx = audit.WithActor(ctx, sess.UserID, sess.OrganizationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermission gates a handler on one capability. A role holding
// admin.all passes every check.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, perm string) (auth.Session, bool) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Session{}, false
	}
	resource, action, ok := splitPermission(perm)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "authorization check failed")
		return auth.Session{}, false
	}
	allowed, err := a.rbac.HasPermission(r.Context(), sess.UserID, sess.OrganizationID, resource, action)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authorization check failed")
		return auth.Session{}, false
	}
	if !allowed {
		adminRes, adminAct, _ := splitPermission(rbac.PermAdminAll)
		allowed, err = a.rbac.HasPermission(r.Context(), sess.UserID, sess.OrganizationID, adminRes, adminAct)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "authorization check failed")
			return auth.Session{}, false
		}
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, "permission denied: "+perm)
		return auth.Session{}, false
	}
	return sess, true
}

// sessionOnly is for routes any signed-in member may call.
func (a *API) sessionOnly(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Session{}, false
	}
	return sess, true
}

func splitPermission(perm string) (resource, action string, ok bool) {
	i := strings.LastIndex(perm, ".")
	if i <= 0 || i == len(perm)-1 {
		return "", "", false
	}
	return perm[:i], perm[i+1:], true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

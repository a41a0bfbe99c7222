package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"worklane.org/internal/audit"
	"worklane.org/internal/auth"
	"worklane.org/internal/invite"
	"worklane.org/internal/rbac"
)

type sendInvitationRequest struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Location   string `json:"location"`
	ExpiryDays int    `json:"expiry_days"`
}

type acceptInvitationRequest struct {
	Token           string `json:"token"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// handleInvitations routes POST (send) and GET (list pending) for the
// collection.
func (a *API) handleInvitations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleInvitationSend(w, r)
	case http.MethodGet:
		a.handleInvitationList(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleInvitationSend(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.ensurePermission(w, r, rbac.PermInvitationsSend)
	if !ok {
		return
	}
	var req sendInvitationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// The outbound mail names the inviter and organization, so resolve the
	// sender's profile up front.
	inviter, err := a.auth.CurrentUser(r.Context(), sess.UserID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	inv, err := a.invites.Send(r.Context(), invite.SendRequest{
		OrganizationID:   sess.OrganizationID,
		OrganizationName: inviter.OrganizationName,
		InvitedBy:        sess.UserID,
		InviterName:      inviter.DisplayName(),
		Email:            req.Email,
		Role:             req.Role,
		Department:       req.Department,
		Location:         req.Location,
		ExpiryDays:       req.ExpiryDays,
	})
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invitation.sent", map[string]any{
		"invitation_id":   inv.ID,
		"organization_id": inv.OrganizationID,
		"email":           inv.Email,
	})
	writeJSON(w, http.StatusCreated, inv)
}

func (a *API) handleInvitationList(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.ensurePermission(w, r, rbac.PermInvitationsView)
	if !ok {
		return
	}
	invs, err := a.invites.ListPending(r.Context(), sess.OrganizationID)
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invitations": invs,
		"count":       len(invs),
	})
}

// handleInvitationAccept is public: the recipient holds only the emailed
// token.
func (a *API) handleInvitationAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req acceptInvitationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.invites.Accept(r.Context(), invite.AcceptRequest{
		Token:           req.Token,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invitation.accepted", map[string]any{
		"user_id":         user.ID,
		"organization_id": user.OrganizationID,
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleInvitationValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	tokenValue := strings.TrimSpace(r.URL.Query().Get("token"))
	if tokenValue == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}
	v, err := a.invites.Validate(r.Context(), tokenValue)
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleInvitationResource dispatches /v1/invitations/{id}/(cancel|resend).
func (a *API) handleInvitationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/invitations/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	invitationID := parts[0]
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	switch parts[1] {
	case "cancel":
		sess, ok := a.ensurePermission(w, r, rbac.PermInvitationsCancel)
		if !ok {
			return
		}
		if err := a.invites.Cancel(r.Context(), invitationID, sess.OrganizationID); err != nil {
			handleInviteError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "invitation.cancelled", map[string]any{
			"invitation_id":   invitationID,
			"organization_id": sess.OrganizationID,
		})
		w.WriteHeader(http.StatusNoContent)
	case "resend":
		sess, ok := a.ensurePermission(w, r, rbac.PermInvitationsSend)
		if !ok {
			return
		}
		inv, err := a.invites.Resend(r.Context(), invitationID, sess.OrganizationID)
		if err != nil {
			handleInviteError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "invitation.resent", map[string]any{
			"invitation_id":   inv.ID,
			"organization_id": inv.OrganizationID,
		})
		writeJSON(w, http.StatusOK, inv)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func handleInviteError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, r, verr.Errors)
	case errors.Is(err, invite.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, invite.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, invite.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, invite.ErrExpired):
		writeError(w, r, http.StatusGone, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "invitation operation failed")
	}
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/auth"
	"github.com/pkanduri1/fabric-platform-sub006/internal/authz"
)

type assignRoleRequest struct {
	UserID         string     `json:"user_id"`
	RoleID         string     `json:"role_id"`
	EffectiveFrom  *time.Time `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

type revokeRoleRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
	Reason string `json:"reason,omitempty"`
}

// handleUserResource serves /v1/users/{id}/permissions. Users may view
// their own effective set; viewing another user's requires CONFIG read.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "permissions" || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID := parts[0]

	if caller, ok := auth.UserIDFromContext(r.Context()); !a.authOff && (!ok || caller != userID) {
		if !a.requireAccess(w, r, authz.ResourceConfig, authz.ActionRead, "users/"+userID) {
			return
		}
	}

	asOf := now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "as_of must be RFC 3339")
			return
		}
		asOf = t
	}

	perms, err := a.resolver.Resolve(r.Context(), userID, asOf)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if perms == nil {
		perms = []authz.Permission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"as_of":       asOf.UTC().Format(time.RFC3339),
		"permissions": perms,
	})
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAccess(w, r, authz.ResourceConfig, authz.ActionUpdate, "roles/assignments") {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	assignedBy, _ := auth.UserIDFromContext(r.Context())
	cmd := authz.AssignCommand{
		UserID:         req.UserID,
		RoleID:         req.RoleID,
		AssignedBy:     assignedBy,
		EffectiveUntil: req.EffectiveUntil,
		Reason:         req.Reason,
		CorrelationID:  CorrelationIDFromContext(r.Context()),
	}
	if req.EffectiveFrom != nil {
		cmd.EffectiveFrom = *req.EffectiveFrom
	}

	assignment, err := a.resolver.AssignRole(r.Context(), cmd)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

func (a *API) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAccess(w, r, authz.ResourceConfig, authz.ActionUpdate, "roles/assignments") {
		return
	}
	var req revokeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	revokedBy, _ := auth.UserIDFromContext(r.Context())
	err := a.resolver.RevokeRole(r.Context(), authz.RevokeCommand{
		UserID:        req.UserID,
		RoleID:        req.RoleID,
		RevokedBy:     revokedBy,
		Reason:        req.Reason,
		CorrelationID: CorrelationIDFromContext(r.Context()),
	})
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleAuthzError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "authorization operation failed")
	}
}

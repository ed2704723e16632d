package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/auth"
	"github.com/pkanduri1/fabric-platform-sub006/internal/authz"
	"github.com/pkanduri1/fabric-platform-sub006/internal/obs"
)

type tokenRequest struct {
	User  string   `json:"user"`
	Roles []string `json:"roles"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

// handleAuthToken mints a bearer token. Identity comes from the external
// identity provider; this endpoint only enforces the user lifecycle
// (inactive or locked users cannot mint) and signs the claims.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}

	if a.users != nil {
		u, err := a.users.GetUser(r.Context(), user)
		if err != nil {
			if errors.Is(err, authz.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "unknown user")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "user lookup failed")
			return
		}
		if !canLogin(u, now()) {
			writeError(w, r, http.StatusForbidden, "user is not permitted to log in")
			return
		}
	}

	roles := make([]string, 0, len(req.Roles))
	for _, role := range req.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		roles = append(roles, role)
	}

	token, err := auth.GenerateToken(user, roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := now().Add(tokenTTL)
	obs.LogEvent(map[string]any{
		"level": "info", "msg": "token issued",
		"user": user, "roles": roles,
		"expires_at":     expiresAt.Format(time.RFC3339),
		"correlation_id": CorrelationIDFromContext(r.Context()),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func canLogin(u authz.User, at time.Time) bool {
	switch u.Status {
	case authz.UserActive:
		return true
	case authz.UserLocked:
		// an expired lock clears on the next successful login
		return u.LockedUntil != nil && !u.LockedUntil.After(at)
	default:
		return false
	}
}

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkanduri1/fabric-platform-sub006/internal/audit"
	"github.com/pkanduri1/fabric-platform-sub006/internal/auth"
	"github.com/pkanduri1/fabric-platform-sub006/internal/authz"
)

const (
	defaultAuditPageSize = 100
	maxAuditPageSize     = 1000
)

// handleAuditRecords serves GET /v1/audit/records?after=N&limit=M with
// keyset pagination over the sequence number.
func (a *API) handleAuditRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAccess(w, r, authz.ResourceAudit, authz.ActionRead, "audit/records") {
		return
	}

	after, ok := queryInt64(w, r, "after", 0)
	if !ok {
		return
	}
	limit, ok := queryInt64(w, r, "limit", defaultAuditPageSize)
	if !ok {
		return
	}
	if limit < 1 || limit > maxAuditPageSize {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}

	records, err := a.records.Page(r.Context(), after, int(limit))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit read failed")
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// handleAuditVerify serves POST /v1/audit/verify?since=N.
func (a *API) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAccess(w, r, authz.ResourceAudit, authz.ActionRead, "audit/records") {
		return
	}
	since, ok := queryInt64(w, r, "since", 1)
	if !ok {
		return
	}
	res, err := a.chain.VerifyChain(r.Context(), since)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "chain verification failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAuditResource serves POST /v1/audit/{seq}/escalate.
func (a *API) handleAuditResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/audit/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "escalate" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	seq, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || seq < 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAccess(w, r, authz.ResourceAudit, authz.ActionUpdate, "audit/records") {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, r, http.StatusBadRequest, "reason is required")
		return
	}

	escalatedBy, _ := auth.UserIDFromContext(r.Context())
	rec, err := a.chain.Escalate(r.Context(), seq, escalatedBy, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "audit record not found")
		case errors.Is(err, audit.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "escalation failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func queryInt64(w http.ResponseWriter, r *http.Request, name string, def int64) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		writeError(w, r, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

package httpapi

import (
	"net/http"
	"strings"

	"github.com/pkanduri1/fabric-platform-sub006/internal/auth"
	"github.com/pkanduri1/fabric-platform-sub006/internal/errcode"
	"github.com/pkanduri1/fabric-platform-sub006/internal/gateway"
	"github.com/pkanduri1/fabric-platform-sub006/internal/query"
)

type executeQueryRequest struct {
	MasterQueryID string                     `json:"master_query_id,omitempty"`
	SQL           string                     `json:"sql"`
	Params        map[string]any             `json:"params,omitempty"`
	Specs         map[string]query.ParamSpec `json:"param_specs,omitempty"`
	Resource      string                     `json:"resource,omitempty"`
	RoleID        string                     `json:"role_id,omitempty"`
	SessionID     string                     `json:"session_id,omitempty"`
	MaxRows       int                        `json:"max_rows,omitempty"`
}

func (a *API) handleQueryExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	req, ok := a.gatewayRequest(w, r)
	if !ok {
		return
	}

	res, err := a.gw.Execute(r.Context(), req)
	if err != nil {
		writeError(w, r, statusForCode(errcode.CodeOf(err)), redactedMessage(err))
		return
	}
	writeJSON(w, statusForResult(res), res)
}

func (a *API) handleQueryEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	req, ok := a.gatewayRequest(w, r)
	if !ok {
		return
	}

	estimate, err := a.gw.EstimateRowCount(r.Context(), req)
	if err != nil {
		writeError(w, r, statusForCode(errcode.CodeOf(err)), redactedMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"correlation_id": req.CorrelationID,
		"estimated_rows": estimate,
	})
}

func (a *API) gatewayRequest(w http.ResponseWriter, r *http.Request) (gateway.Request, bool) {
	var req executeQueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return gateway.Request{}, false
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(w, r, http.StatusBadRequest, "sql is required")
		return gateway.Request{}, false
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok && !a.authOff {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return gateway.Request{}, false
	}
	return gateway.Request{
		MasterQueryID: req.MasterQueryID,
		SQL:           req.SQL,
		Params:        req.Params,
		Specs:         req.Specs,
		Resource:      req.Resource,
		UserID:        userID,
		RoleID:        req.RoleID,
		SessionID:     req.SessionID,
		ClientIP:      clientIP(r),
		CorrelationID: CorrelationIDFromContext(r.Context()),
		MaxRows:       req.MaxRows,
	}, true
}

// statusForResult maps a completed execution to an HTTP status. The
// result body always carries the full envelope, reasons included.
func statusForResult(res gateway.Result) int {
	switch res.Status {
	case gateway.StatusSecurityRejected:
		if res.ErrorCode == errcode.ValidationError {
			return http.StatusBadRequest
		}
		return http.StatusForbidden
	case gateway.StatusFailed:
		if res.ErrorCode == errcode.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func statusForCode(code errcode.Code) int {
	switch code {
	case errcode.AccessDenied, errcode.SecurityRejected:
		return http.StatusForbidden
	case errcode.ValidationError:
		return http.StatusBadRequest
	case errcode.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func redactedMessage(err error) string {
	return errcode.Redact(err.Error())
}

// Package httpapi is the HTTP surface over the security core: role
// administration, guarded query execution and the audit trail.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/audit"
	"github.com/pkanduri1/fabric-platform-sub006/internal/authz"
	"github.com/pkanduri1/fabric-platform-sub006/internal/gateway"
	"github.com/pkanduri1/fabric-platform-sub006/internal/obs"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	resolver   *authz.Resolver
	users      authz.Store
	chain      *audit.Chain
	records    audit.Store
	gw         *gateway.Gateway
	readyProbe ReadyProbe
	version    string
	authOff    bool
}

// Deps carries the services the API exposes.
type Deps struct {
	Resolver *authz.Resolver
	Users    authz.Store
	Chain    *audit.Chain
	Records  audit.Store
	Gateway  *gateway.Gateway
	Ready    ReadyProbe
	Version  string
	// DisableAuth skips bearer-token checks. Test use only.
	DisableAuth bool
}

func New(deps Deps) (*API, error) {
	if deps.Resolver == nil || deps.Chain == nil || deps.Records == nil || deps.Gateway == nil {
		return nil, errors.New("resolver, chain, audit store and gateway are required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		resolver:   deps.Resolver,
		users:      deps.Users,
		chain:      deps.Chain,
		records:    deps.Records,
		gw:         deps.Gateway,
		readyProbe: deps.Ready,
		version:    deps.Version,
		authOff:    deps.DisableAuth,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/roles/assign", a.handleAssignRole)
	a.mux.HandleFunc("/v1/roles/revoke", a.handleRevokeRole)
	a.mux.HandleFunc("/v1/queries/execute", a.handleQueryExecute)
	a.mux.HandleFunc("/v1/queries/estimate", a.handleQueryEstimate)
	a.mux.HandleFunc("/v1/audit/records", a.handleAuditRecords)
	a.mux.HandleFunc("/v1/audit/verify", a.handleAuditVerify)
	a.mux.HandleFunc("/v1/audit/", a.handleAuditResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "fabric-security-core",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if cid := CorrelationIDFromContext(r.Context()); cid != "" {
		payload["correlation_id"] = cid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// now is broken out so handler tests can pin the clock.
var now = func() time.Time { return time.Now().UTC() }

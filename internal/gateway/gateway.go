// Package gateway executes validated ad-hoc read queries against an
// isolated read-only connection pool under enforced resource limits,
// and guarantees every attempt leaves exactly one execution record and
// one audit record behind.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/audit"
	"github.com/pkanduri1/fabric-platform-sub006/internal/authz"
	"github.com/pkanduri1/fabric-platform-sub006/internal/errcode"
	"github.com/pkanduri1/fabric-platform-sub006/internal/ids"
	"github.com/pkanduri1/fabric-platform-sub006/internal/obs"
	"github.com/pkanduri1/fabric-platform-sub006/internal/query"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxRows  = 100
	estimateTimeout = 10 * time.Second
)

// Config bounds gateway resource usage.
type Config struct {
	Timeout time.Duration
	MaxRows int
}

// Gateway is the execution side of the security core. The read-only pool
// is distinct from the transactional pool used elsewhere so an ad-hoc
// query can neither starve write-path connections nor escape read-only
// semantics.
type Gateway struct {
	ro        *sql.DB
	resolver  *authz.Resolver
	validator *query.Validator
	chain     *audit.Chain
	records   RecordStore
	timeout   time.Duration
	maxRows   int
	now       func() time.Time
}

// New wires a gateway. ro must be the isolated read-only pool.
func New(ro *sql.DB, resolver *authz.Resolver, validator *query.Validator, chain *audit.Chain, records RecordStore, cfg Config) (*Gateway, error) {
	if ro == nil {
		return nil, errors.New("read-only pool is required")
	}
	if resolver == nil || validator == nil || chain == nil || records == nil {
		return nil, errors.New("resolver, validator, chain and record store are required")
	}
	g := &Gateway{
		ro:        ro,
		resolver:  resolver,
		validator: validator,
		chain:     chain,
		records:   records,
		timeout:   cfg.Timeout,
		maxRows:   cfg.MaxRows,
		now:       time.Now,
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.maxRows <= 0 {
		g.maxRows = defaultMaxRows
	}
	return g, nil
}

// Execute runs the full pipeline: validate, execute under limits, record
// and audit. The returned error is non-nil only when the pipeline itself
// could not complete (permission lookup or audit write failure); every
// query-level outcome is expressed through Result.Status.
func (g *Gateway) Execute(ctx context.Context, req Request) (Result, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = ids.NewCorrelation()
	}
	start := g.now()

	perms, err := g.resolver.Resolve(ctx, req.UserID, start)
	if err != nil {
		code := errcode.Classify(err)
		res := Result{CorrelationID: req.CorrelationID, Status: StatusFailed, ErrorCode: code, RowLimit: g.rowCap(req)}
		if aerr := g.finish(ctx, req, &res, start); aerr != nil {
			return res, aerr
		}
		return res, errcode.New(code, req.CorrelationID, err.Error())
	}

	vres := g.validator.Validate(query.Input{
		SQL:         req.SQL,
		Params:      req.Params,
		Specs:       req.Specs,
		Resource:    req.Resource,
		Permissions: perms,
	})
	if !vres.Valid {
		// Never touch the database for a rejected statement.
		res := Result{
			CorrelationID: req.CorrelationID,
			Status:        StatusSecurityRejected,
			ErrorCode:     rejectionCode(vres.Reasons),
			Reasons:       vres.Reasons,
			RowLimit:      g.rowCap(req),
		}
		return res, g.finish(ctx, req, &res, start)
	}

	res := g.run(ctx, req)
	return res, g.finish(ctx, req, &res, start)
}

// run executes the already-validated statement on the read-only pool.
func (g *Gateway) run(ctx context.Context, req Request) Result {
	res := Result{CorrelationID: req.CorrelationID, RowLimit: g.rowCap(req)}

	sqlText, args, err := query.Rewrite(strings.TrimSuffix(strings.TrimSpace(req.SQL), ";"), req.Params)
	if err != nil {
		res.Status = StatusFailed
		res.ErrorCode = errcode.ValidationError
		res.Reasons = []string{errcode.Redact(err.Error())}
		return res
	}

	qctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	rows, err := g.ro.QueryContext(qctx, sqlText, args...)
	if err != nil {
		return g.failed(ctx, res, err)
	}
	defer rows.Close()

	cols, err := columnMetadata(rows)
	if err != nil {
		return g.failed(ctx, res, err)
	}
	res.Columns = cols

	limit := res.RowLimit
	for rows.Next() {
		if len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return g.failed(ctx, res, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return g.failed(ctx, res, err)
	}

	res.Status = StatusSuccess
	res.RowCount = len(res.Rows)
	return res
}

// failed classifies a database-level error. Caller cancellation is
// distinguished from a server-side timeout so the audit trail reflects
// which side gave up.
func (g *Gateway) failed(ctx context.Context, res Result, err error) Result {
	if errors.Is(ctx.Err(), context.Canceled) {
		res.Status = StatusCancelled
		res.Reasons = []string{"execution cancelled by caller"}
		return res
	}
	res.Status = StatusFailed
	res.ErrorCode = errcode.Classify(err)
	res.Reasons = []string{errcode.Redact(err.Error())}
	return res
}

// finish persists the execution record and appends the audit record.
// Exactly one of each per attempt, success or failure, sharing the
// request correlation id. Audit write failure is fatal to the operation.
func (g *Gateway) finish(ctx context.Context, req Request, res *Result, start time.Time) error {
	res.ExecutionTimeMs = g.now().Sub(start).Milliseconds()
	obs.QueriesTotal.WithLabelValues(string(res.Status)).Inc()
	obs.QueryDuration.Observe(float64(res.ExecutionTimeMs) / 1000)

	// A cancelled or timed-out execution must still be recorded, so the
	// bookkeeping writes are detached from the caller's context.
	wctx := context.WithoutCancel(ctx)

	rec := ExecutionRecord{
		ID:              ids.New(),
		MasterQueryID:   req.MasterQueryID,
		SQL:             req.SQL,
		Params:          req.Params,
		UserID:          req.UserID,
		RoleID:          req.RoleID,
		CorrelationID:   req.CorrelationID,
		Status:          res.Status,
		RowCount:        res.RowCount,
		ExecutionTimeMs: res.ExecutionTimeMs,
		ErrorCode:       res.ErrorCode,
		CreatedAt:       g.now().UTC(),
	}
	saveErr := g.records.Save(wctx, rec)
	if saveErr != nil {
		obs.LogEvent(map[string]any{
			"level": "error", "msg": "execution record save failed",
			"correlation_id": req.CorrelationID, "error": saveErr.Error(),
		})
	}

	ev := g.auditEvent(req, res, rec.ID)
	if saveErr != nil {
		// The audit chain is the system of record, so a lost execution
		// record must be visible there rather than silently logged.
		ev.Payload["record_write_error"] = errcode.Redact(saveErr.Error())
	}
	if _, err := g.chain.Append(wctx, ev); err != nil {
		res.Status = StatusFailed
		res.ErrorCode = errcode.AuditWriteError
		return errcode.New(errcode.AuditWriteError, req.CorrelationID, err.Error())
	}
	return nil
}

func (g *Gateway) auditEvent(req Request, res *Result, recordID string) audit.Event {
	payload := map[string]string{
		"execution_record_id": recordID,
		"master_query_id":     req.MasterQueryID,
		"status":              string(res.Status),
		"row_count":           fmt.Sprintf("%d", res.RowCount),
		"execution_time_ms":   fmt.Sprintf("%d", res.ExecutionTimeMs),
	}
	if res.ErrorCode != "" {
		payload["error_code"] = string(res.ErrorCode)
	}
	if len(res.Reasons) > 0 {
		payload["reasons"] = strings.Join(res.Reasons, "; ")
	}

	ev := audit.Event{
		Actor:         audit.Actor{UserID: req.UserID, SessionID: req.SessionID, IP: req.ClientIP},
		Payload:       payload,
		Compliance:    true,
		CorrelationID: req.CorrelationID,
	}
	switch res.Status {
	case StatusSuccess:
		ev.Type = audit.EventQueryExecuted
		ev.Severity = audit.SeverityInfo
		ev.Risk = audit.RiskLow
	case StatusSecurityRejected:
		ev.Type = audit.EventQueryRejected
		ev.Severity = audit.SeverityWarn
		ev.Security = true
		ev.Risk = audit.RiskHigh
	case StatusCancelled:
		ev.Type = audit.EventQueryCancelled
		ev.Severity = audit.SeverityWarn
		ev.Risk = audit.RiskLow
	default:
		ev.Type = audit.EventQueryFailed
		ev.Severity = audit.SeverityError
		ev.Risk = audit.RiskMedium
	}
	return ev
}

// rejectionCode distinguishes malformed-parameter rejections from
// authorization and shape rejections.
func rejectionCode(reasons []string) errcode.Code {
	sawParam := false
	for _, r := range reasons {
		if strings.HasPrefix(r, "parameter ") {
			sawParam = true
			continue
		}
		if strings.HasPrefix(r, "access denied") {
			return errcode.AccessDenied
		}
		return errcode.SecurityRejected
	}
	if sawParam {
		return errcode.ValidationError
	}
	return errcode.SecurityRejected
}

func (g *Gateway) rowCap(req Request) int {
	if req.MaxRows > 0 && req.MaxRows < g.maxRows {
		return req.MaxRows
	}
	return g.maxRows
}

// EstimateRowCount wraps the validated statement in a COUNT(*) under a
// short timeout. Estimation is a convenience: a database-level failure
// yields nil, not an error. Authorization failures are still errors.
func (g *Gateway) EstimateRowCount(ctx context.Context, req Request) (*int64, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = ids.NewCorrelation()
	}
	perms, err := g.resolver.Resolve(ctx, req.UserID, g.now())
	if err != nil {
		return nil, errcode.Wrap(err, req.CorrelationID)
	}
	vres := g.validator.Validate(query.Input{
		SQL:         req.SQL,
		Params:      req.Params,
		Specs:       req.Specs,
		Resource:    req.Resource,
		Permissions: perms,
	})
	if !vres.Valid {
		return nil, errcode.New(rejectionCode(vres.Reasons), req.CorrelationID, strings.Join(vres.Reasons, "; "))
	}

	inner := strings.TrimSuffix(strings.TrimSpace(req.SQL), ";")
	sqlText, args, err := query.Rewrite(fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS _count", inner), req.Params)
	if err != nil {
		return nil, errcode.New(errcode.ValidationError, req.CorrelationID, err.Error())
	}

	qctx, cancel := context.WithTimeout(ctx, estimateTimeout)
	defer cancel()

	var count int64
	if err := g.ro.QueryRowContext(qctx, sqlText, args...).Scan(&count); err != nil {
		obs.LogEvent(map[string]any{
			"level": "warn", "msg": "row count estimate failed",
			"correlation_id": req.CorrelationID, "error": errcode.Redact(err.Error()),
		})
		return nil, nil
	}
	return &count, nil
}

// columnMetadata builds per-column metadata from the driver.
func columnMetadata(rows *sql.Rows) ([]Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(types))
	for i, ct := range types {
		col := Column{Name: ct.Name(), DBType: ct.DatabaseTypeName()}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = &nullable
		}
		if precision, scale, ok := ct.DecimalSize(); ok {
			col.Precision = &precision
			col.Scale = &scale
		}
		cols[i] = col
	}
	return cols, nil
}

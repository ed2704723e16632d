package gateway

import (
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/errcode"
	"github.com/pkanduri1/fabric-platform-sub006/internal/query"
)

// Status is the final state of one execution attempt.
type Status string

const (
	StatusSuccess          Status = "SUCCESS"
	StatusFailed           Status = "FAILED"
	StatusSecurityRejected Status = "SECURITY_REJECTED"
	StatusCancelled        Status = "CANCELLED"
)

// Request describes one ad-hoc query execution on behalf of a user.
type Request struct {
	MasterQueryID string
	SQL           string
	Params        map[string]any
	Specs         map[string]query.ParamSpec
	// Resource optionally names the catalogued target; when empty the
	// referenced table names are authorized.
	Resource      string
	UserID        string
	RoleID        string
	SessionID     string
	ClientIP      string
	CorrelationID string
	// MaxRows overrides the gateway row cap when lower than it; it can
	// never raise the cap.
	MaxRows int
}

// Column carries result-set metadata so consumers can render rows
// without a second metadata round-trip.
type Column struct {
	Name      string `json:"name"`
	DBType    string `json:"db_type"`
	Nullable  *bool  `json:"nullable,omitempty"`
	Precision *int64 `json:"precision,omitempty"`
	Scale     *int64 `json:"scale,omitempty"`
}

// Result is the outcome of Execute.
type Result struct {
	CorrelationID   string       `json:"correlation_id"`
	Status          Status       `json:"status"`
	Columns         []Column     `json:"columns,omitempty"`
	Rows            [][]any      `json:"rows,omitempty"`
	RowCount        int          `json:"row_count"`
	Truncated       bool         `json:"truncated"`
	RowLimit        int          `json:"row_limit"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
	ErrorCode       errcode.Code `json:"error_code,omitempty"`
	Reasons         []string     `json:"reasons,omitempty"`
}

// ExecutionRecord is the immutable per-attempt log row feeding the audit
// chain. Created once per attempt, success or failure.
type ExecutionRecord struct {
	ID              string         `json:"id"`
	MasterQueryID   string         `json:"master_query_id,omitempty"`
	SQL             string         `json:"sql"`
	Params          map[string]any `json:"params,omitempty"`
	UserID          string         `json:"user_id"`
	RoleID          string         `json:"role_id,omitempty"`
	CorrelationID   string         `json:"correlation_id"`
	Status          Status         `json:"status"`
	RowCount        int            `json:"row_count"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	ErrorCode       errcode.Code   `json:"error_code,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

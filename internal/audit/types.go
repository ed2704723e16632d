package audit

import (
	"errors"
	"time"
)

// Severity grades audit events.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// RiskLevel grades the assessed risk of an event.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Well-known event types emitted by the core.
const (
	EventRoleAssigned    = "entitlement.role.assigned"
	EventRoleRevoked     = "entitlement.role.revoked"
	EventQueryExecuted   = "query.executed"
	EventQueryRejected   = "query.security_rejected"
	EventQueryFailed     = "query.failed"
	EventQueryCancelled  = "query.cancelled"
	EventRecordEscalated = "audit.record.escalated"
)

// Actor identifies who triggered an event.
type Actor struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// Event is the caller-supplied portion of an audit record.
type Event struct {
	Type          string
	Subtype       string
	Severity      Severity
	Actor         Actor
	Payload       map[string]string
	Security      bool
	Compliance    bool
	Risk          RiskLevel
	CorrelationID string
	Signature     string
}

// Record is one immutable link of the hash chain. Records are never
// mutated after Append; corrections are expressed as new records.
type Record struct {
	Sequence      int64             `json:"sequence"`
	Type          string            `json:"event_type"`
	Subtype       string            `json:"event_subtype,omitempty"`
	Severity      Severity          `json:"severity"`
	Actor         Actor             `json:"actor"`
	Timestamp     time.Time         `json:"timestamp"`
	Payload       map[string]string `json:"payload,omitempty"`
	Security      bool              `json:"security_event"`
	Compliance    bool              `json:"compliance_event"`
	Risk          RiskLevel         `json:"risk_level"`
	CorrelationID string            `json:"correlation_id"`
	Hash          string            `json:"audit_hash"`
	PrevHash      string            `json:"previous_audit_hash"`
	Signature     string            `json:"digital_signature,omitempty"`
}

// IsSecurityEvent reports whether the record was flagged security-relevant.
func (r Record) IsSecurityEvent() bool { return r.Security }

// IsComplianceEvent reports whether the record falls under regulatory retention.
func (r Record) IsComplianceEvent() bool { return r.Compliance }

// IsCritical reports whether the record demands immediate attention.
func (r Record) IsCritical() bool {
	return r.Severity == SeverityCritical || r.Risk == RiskCritical
}

var (
	ErrNotFound     = errors.New("audit: record not found")
	ErrInvalidInput = errors.New("audit: invalid input")
)

// Package errcode defines the closed error taxonomy shared by the
// security core. Low-level driver failures are classified into these
// codes before they reach an audit record or an API response.
package errcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Code identifies a failure category.
type Code string

const (
	Timeout          Code = "TIMEOUT"
	SyntaxError      Code = "SYNTAX_ERROR"
	AccessDenied     Code = "ACCESS_DENIED"
	ConnectionError  Code = "CONNECTION_ERROR"
	SecurityRejected Code = "SECURITY_REJECTED"
	ValidationError  Code = "VALIDATION_ERROR"
	AuditWriteError  Code = "AUDIT_WRITE_ERROR"
	Unexpected       Code = "UNEXPECTED_ERROR"
)

// Error carries a classified code alongside a redacted message and the
// correlation id of the request that produced it.
type Error struct {
	Code          Code
	Message       string
	CorrelationID string
}

func (e *Error) Error() string {
	if e.CorrelationID == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (correlation %s)", e.Code, e.Message, e.CorrelationID)
}

// New builds a classified error with a redacted, truncated message.
func New(code Code, correlationID, msg string) *Error {
	return &Error{Code: code, Message: Redact(msg), CorrelationID: correlationID}
}

// Wrap classifies err and attaches the correlation id.
func Wrap(err error, correlationID string) *Error {
	return New(Classify(err), correlationID, err.Error())
}

// CodeOf extracts the taxonomy code from err, classifying on the fly if
// err is not already an *Error.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Classify(err)
}

// Classify maps a low-level error to the taxonomy. Driver errors are
// matched best-effort on SQLSTATE-shaped codes and message fragments.
func Classify(err error) Code {
	if err == nil {
		return Unexpected
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "canceling statement"):
		return Timeout
	case strings.Contains(msg, "syntax error") || strings.Contains(msg, "sqlstate 42601"):
		return SyntaxError
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "read-only") || strings.Contains(msg, "sqlstate 42501"):
		return AccessDenied
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "bad connection") || strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "connection unavailable"):
		return ConnectionError
	}
	return Unexpected
}

const maxMessageLen = 256

var credentialKeys = []string{"password=", "passwd=", "user=", "host=", "secret="}

// Redact masks credential-shaped substrings and truncates the message so
// raw driver text never reaches an audit record or response verbatim.
func Redact(msg string) string {
	lower := strings.ToLower(msg)
	var b strings.Builder
	i := 0
	for i < len(msg) {
		matched := false
		for _, key := range credentialKeys {
			if strings.HasPrefix(lower[i:], key) {
				b.WriteString(msg[i : i+len(key)])
				b.WriteString("***")
				i += len(key)
				for i < len(msg) && !isValueEnd(msg[i]) {
					i++
				}
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(msg[i])
			i++
		}
	}
	out := b.String()
	if len(out) > maxMessageLen {
		out = out[:maxMessageLen]
	}
	return out
}

func isValueEnd(c byte) bool {
	return c == ' ' || c == ';' || c == '&' || c == ',' || c == '\n' || c == '\t'
}

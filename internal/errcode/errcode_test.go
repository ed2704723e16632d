package errcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"deadline", context.DeadlineExceeded, Timeout},
		{"cancel", context.Canceled, Timeout},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), Timeout},
		{"pg cancel", errors.New("ERROR: canceling statement due to statement timeout"), Timeout},
		{"syntax", errors.New(`ERROR: syntax error at or near "FORM" (SQLSTATE 42601)`), SyntaxError},
		{"denied", errors.New("ERROR: permission denied for table accounts (SQLSTATE 42501)"), AccessDenied},
		{"read only", errors.New("ERROR: cannot execute INSERT in a read-only transaction"), AccessDenied},
		{"refused", errors.New("dial tcp 10.0.0.5:5432: connection refused"), ConnectionError},
		{"broken pipe", errors.New("write: broken pipe"), ConnectionError},
		{"driver bad conn", errors.New("driver: bad connection"), ConnectionError},
		{"anything else", errors.New("slice bounds out of range"), Unexpected},
		{"nil", nil, Unexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	err := New(AuditWriteError, "cor-1", "append failed")
	if got := CodeOf(fmt.Errorf("outer: %w", err)); got != AuditWriteError {
		t.Fatalf("CodeOf = %s, want AUDIT_WRITE_ERROR", got)
	}
	if got := CodeOf(errors.New("connection refused")); got != ConnectionError {
		t.Fatalf("CodeOf = %s, want CONNECTION_ERROR", got)
	}
}

func TestErrorString(t *testing.T) {
	err := New(Timeout, "cor-9", "query exceeded budget")
	if got := err.Error(); got != "TIMEOUT: query exceeded budget (correlation cor-9)" {
		t.Fatalf("Error() = %q", got)
	}
	err = New(Timeout, "", "query exceeded budget")
	if got := err.Error(); got != "TIMEOUT: query exceeded budget" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestRedactMasksCredentials(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"dsn fields",
			"connect failed: host=db1.internal user=fabric password=hunter2 dbname=core",
			"connect failed: host=*** user=*** password=*** dbname=core",
		},
		{
			"case insensitive key",
			"PASSWORD=topsecret rejected",
			"PASSWORD=*** rejected",
		},
		{
			"nothing sensitive",
			"ERROR: relation does not exist",
			"ERROR: relation does not exist",
		},
		{
			"value at end of message",
			"auth failed for user=svc_reader",
			"auth failed for user=***",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Redact(tc.in); got != tc.want {
				t.Fatalf("Redact(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRedactTruncates(t *testing.T) {
	long := strings.Repeat("x", 1000)
	if got := Redact(long); len(got) != 256 {
		t.Fatalf("len = %d, want 256", len(got))
	}
}

package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/users/abc":                 "/v1/users/:id",
		"/v1/users/abc/permissions":     "/v1/users/:id/permissions",
		"/v1/audit/42/escalate":         "/v1/audit/:seq/escalate",
		"/v1/queries/execute":           "/v1/queries/execute",
		"/v1/queries/execute?limit=10":  "/v1/queries/execute",
		"/v1/audit/verify":              "/v1/audit/verify",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

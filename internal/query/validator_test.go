package query

import (
	"strings"
	"testing"

	"github.com/pkanduri1/fabric-platform-sub006/internal/authz"
)

func allQueries() []authz.Permission {
	return []authz.Permission{{
		ID: "p-all", Resource: authz.ResourceQuery, Action: authz.ActionAll, Pattern: "*",
	}}
}

func reportsOnly() []authz.Permission {
	return []authz.Permission{{
		ID: "p-reports", Resource: authz.ResourceQuery, Action: authz.ActionRead, Pattern: "reports/*",
	}}
}

func hasReason(res Result, fragment string) bool {
	for _, r := range res.Reasons {
		if strings.Contains(r, fragment) {
			return true
		}
	}
	return false
}

func TestValidateAcceptsPlainSelect(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate(Input{
		SQL:         "SELECT id, amount FROM accounts WHERE region = :region",
		Params:      map[string]any{"region": "EU"},
		Permissions: allQueries(),
	})
	if !res.Valid {
		t.Fatalf("rejected: %v", res.Reasons)
	}
}

func TestValidateAcceptsWithClause(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate(Input{
		SQL:         "WITH recent AS (SELECT * FROM accounts) SELECT * FROM recent",
		Permissions: allQueries(),
	})
	if !res.Valid {
		t.Fatalf("rejected: %v", res.Reasons)
	}
}

func TestValidateTrailingSemicolonAllowed(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate(Input{
		SQL:         "SELECT 1 FROM accounts;",
		Permissions: allQueries(),
	})
	if !res.Valid {
		t.Fatalf("rejected: %v", res.Reasons)
	}
}

func TestValidateRejectsNonSelect(t *testing.T) {
	v := NewValidator(nil)
	cases := []struct {
		name string
		sql  string
	}{
		{"insert", "INSERT INTO accounts (id) VALUES (:id)"},
		{"update", "UPDATE accounts SET region = :r"},
		{"delete", "delete from accounts"},
		{"drop", "DROP TABLE accounts"},
		{"truncate", "TRUNCATE accounts"},
		{"grant", "GRANT SELECT ON accounts TO public"},
		{"call", "CALL refresh_accounts()"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(Input{SQL: tc.sql, Permissions: allQueries()})
			if res.Valid {
				t.Fatal("accepted a non-SELECT statement")
			}
			if !hasReason(res, "not permitted") && !hasReason(res, "single SELECT") {
				t.Fatalf("unexpected reasons: %v", res.Reasons)
			}
		})
	}
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate(Input{
		SQL:         "SELECT 1 FROM accounts; DELETE FROM accounts",
		Permissions: allQueries(),
	})
	if res.Valid {
		t.Fatal("accepted stacked statements")
	}
	if !hasReason(res, "multiple statements") {
		t.Fatalf("reasons: %v", res.Reasons)
	}
	if !hasReason(res, "DELETE") {
		t.Fatalf("trailing statement type not reported: %v", res.Reasons)
	}
}

func TestValidateIgnoresKeywordsInsideStringsAndComments(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate(Input{
		SQL: "SELECT note FROM accounts -- DROP TABLE accounts\n" +
			"WHERE note <> 'please DELETE me' /* TRUNCATE */",
		Permissions: allQueries(),
	})
	if !res.Valid {
		t.Fatalf("rejected: %v", res.Reasons)
	}
}

func TestValidateBindRules(t *testing.T) {
	v := NewValidator(nil)

	t.Run("placeholder without value", func(t *testing.T) {
		res := v.Validate(Input{
			SQL:         "SELECT * FROM accounts WHERE id = :id",
			Permissions: allQueries(),
		})
		if res.Valid || !hasReason(res, "bind parameter :id has no supplied value") {
			t.Fatalf("reasons: %v", res.Reasons)
		}
	})

	t.Run("value without placeholder", func(t *testing.T) {
		res := v.Validate(Input{
			SQL:         "SELECT * FROM accounts",
			Params:      map[string]any{"ghost": 1},
			Permissions: allQueries(),
		})
		if res.Valid || !hasReason(res, "does not appear as a bind parameter") {
			t.Fatalf("reasons: %v", res.Reasons)
		}
	})

	t.Run("value concatenated into literal", func(t *testing.T) {
		res := v.Validate(Input{
			SQL:         "SELECT * FROM accounts WHERE region = 'EU-WEST' AND id = :region",
			Params:      map[string]any{"region": "EU-WEST"},
			Permissions: allQueries(),
		})
		if res.Valid || !hasReason(res, "appears inline in the SQL text") {
			t.Fatalf("reasons: %v", res.Reasons)
		}
	})
}

func TestValidateAuthorization(t *testing.T) {
	v := NewValidator(nil)

	t.Run("viewer denied outside pattern", func(t *testing.T) {
		res := v.Validate(Input{
			SQL:         "SELECT * FROM accounts",
			Permissions: reportsOnly(),
		})
		if res.Valid {
			t.Fatal("accepted a query outside the permission pattern")
		}
		if !hasReason(res, `access denied: no permission covers resource "accounts"`) {
			t.Fatalf("reasons: %v", res.Reasons)
		}
	})

	t.Run("catalogued resource wins over table names", func(t *testing.T) {
		res := v.Validate(Input{
			SQL:         "SELECT * FROM accounts",
			Resource:    "reports/daily",
			Permissions: reportsOnly(),
		})
		if !res.Valid {
			t.Fatalf("rejected: %v", res.Reasons)
		}
	})

	t.Run("every joined table must be authorized", func(t *testing.T) {
		perms := []authz.Permission{{
			ID: "p-accounts", Resource: authz.ResourceQuery, Action: authz.ActionRead, Pattern: "accounts",
		}}
		res := v.Validate(Input{
			SQL:         "SELECT * FROM accounts a JOIN balances b ON b.account_id = a.id",
			Permissions: perms,
		})
		if res.Valid {
			t.Fatal("accepted a join with one unauthorized table")
		}
		if !hasReason(res, `"balances"`) {
			t.Fatalf("reasons: %v", res.Reasons)
		}
	})

	t.Run("no permissions at all", func(t *testing.T) {
		res := v.Validate(Input{SQL: "SELECT * FROM accounts"})
		if res.Valid {
			t.Fatal("accepted with empty permission set")
		}
	})
}

func TestValidateParamSpecs(t *testing.T) {
	v := NewValidator(nil)
	min, max := 1.0, 100.0

	specs := map[string]ParamSpec{
		"limit":  {Type: ParamInteger, Required: true, Min: &min, Max: &max},
		"day":    {Type: ParamDate},
		"status": {Type: ParamEnum, Enum: []string{"OPEN", "CLOSED"}},
	}
	sql := "SELECT * FROM accounts WHERE n < :limit AND day = :day AND status = :status"

	t.Run("all valid", func(t *testing.T) {
		res := v.Validate(Input{
			SQL:         sql,
			Params:      map[string]any{"limit": 10, "day": "2026-03-01", "status": "OPEN"},
			Specs:       specs,
			Permissions: allQueries(),
		})
		if !res.Valid {
			t.Fatalf("rejected: %v", res.Reasons)
		}
	})

	t.Run("violations are all collected", func(t *testing.T) {
		res := v.Validate(Input{
			SQL:         sql,
			Params:      map[string]any{"limit": 2000, "day": "03/01/2026", "status": "WEIRD"},
			Specs:       specs,
			Permissions: allQueries(),
		})
		if res.Valid {
			t.Fatal("accepted invalid parameters")
		}
		for _, fragment := range []string{"above maximum", "not a valid date", "not in allowed set"} {
			if !hasReason(res, fragment) {
				t.Fatalf("missing %q in %v", fragment, res.Reasons)
			}
		}
	})

	t.Run("required parameter missing", func(t *testing.T) {
		res := v.Validate(Input{
			SQL:         "SELECT * FROM accounts WHERE day = :day AND status = :status",
			Params:      map[string]any{"day": "2026-03-01", "status": "OPEN"},
			Specs:       specs,
			Permissions: allQueries(),
		})
		if res.Valid || !hasReason(res, "parameter limit is required") {
			t.Fatalf("reasons: %v", res.Reasons)
		}
	})
}

func TestValidateEmptyStatement(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate(Input{SQL: "   ", Permissions: allQueries()})
	if res.Valid || !hasReason(res, "empty statement") {
		t.Fatalf("reasons: %v", res.Reasons)
	}
}

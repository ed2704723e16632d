// Package query statically inspects candidate ad-hoc SQL and its bound
// parameters before anything touches a regulated source system. The
// checks are keyword/shape based by design; this is not a SQL parser.
package query

import (
	"fmt"
	"strings"

	"github.com/pkanduri1/fabric-platform-sub006/internal/authz"
)

// Result is the structured outcome of validation. Reasons stay
// human-readable so rejected attempts remain forensically useful in the
// audit trail.
type Result struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

// Input carries everything the validator needs for one decision.
type Input struct {
	SQL    string
	Params map[string]any
	// Specs declares per-parameter types and constraints, typically from
	// the master-query catalogue. Parameters without a spec only pass
	// the bind-placement checks.
	Specs map[string]ParamSpec
	// Resource optionally names the catalogued target (master-query id).
	// When empty the referenced table names are authorized instead.
	Resource    string
	Permissions []authz.Permission
}

// Statement-leading keywords that disqualify a candidate outright.
var forbiddenLeading = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "MERGE": {},
	"DROP": {}, "ALTER": {}, "CREATE": {}, "TRUNCATE": {},
	"EXEC": {}, "EXECUTE": {}, "CALL": {}, "GRANT": {}, "REVOKE": {},
}

// Validator runs the four-stage static check: statement shape, bind-only
// parameters, resource authorization, and parameter value validation.
// All stages run to completion so every reason is collected.
type Validator struct {
	matcher authz.PatternMatcher
}

// NewValidator builds a validator using the given resource pattern matcher.
func NewValidator(matcher authz.PatternMatcher) *Validator {
	if matcher == nil {
		matcher = authz.GlobMatcher{}
	}
	return &Validator{matcher: matcher}
}

// Validate checks the candidate statement. The query may only execute
// when the returned result is Valid.
func (v *Validator) Validate(in Input) Result {
	var reasons []string

	sqlText := strings.TrimSpace(in.SQL)
	if sqlText == "" {
		return Result{Reasons: []string{"empty statement"}}
	}
	toks := lex(sqlText)

	reasons = append(reasons, checkShape(toks)...)
	reasons = append(reasons, checkBindings(toks, sqlText, in.Params)...)
	reasons = append(reasons, v.checkAuthorization(toks, in)...)
	reasons = append(reasons, checkParamSpecs(in.Params, in.Specs)...)

	return Result{Valid: len(reasons) == 0, Reasons: reasons}
}

// checkShape enforces a single top-level SELECT statement.
func checkShape(toks []token) []string {
	var reasons []string
	if len(toks) == 0 {
		return []string{"empty statement"}
	}

	first := strings.ToUpper(toks[0].text)
	if toks[0].kind != tokWord || (first != "SELECT" && first != "WITH") {
		if _, ok := forbiddenLeading[first]; ok {
			reasons = append(reasons, fmt.Sprintf("statement type %s is not permitted; only SELECT is allowed", first))
		} else {
			reasons = append(reasons, "statement must be a single SELECT")
		}
	}

	// A separator implies a second statement unless it is the final token.
	leading := true
	for i, t := range toks {
		if t.kind == tokPunct && t.text == ";" {
			if i != len(toks)-1 {
				reasons = append(reasons, "multiple statements are not permitted")
				leading = true
			}
			continue
		}
		if leading && t.kind == tokWord {
			if _, ok := forbiddenLeading[strings.ToUpper(t.text)]; ok && i > 0 {
				reasons = append(reasons, fmt.Sprintf("statement type %s is not permitted; only SELECT is allowed", strings.ToUpper(t.text)))
			}
			leading = false
		}
	}
	return reasons
}

// checkBindings enforces the parameter-binding-only rule: every supplied
// value must travel as a named bind parameter, never concatenated into
// the SQL text.
func checkBindings(toks []token, sqlText string, params map[string]any) []string {
	var reasons []string
	bound := make(map[string]struct{})
	for _, name := range namedParams(toks) {
		bound[name] = struct{}{}
		if params == nil {
			reasons = append(reasons, fmt.Sprintf("bind parameter :%s has no supplied value", name))
			continue
		}
		if _, ok := params[name]; !ok {
			reasons = append(reasons, fmt.Sprintf("bind parameter :%s has no supplied value", name))
		}
	}
	for name, value := range params {
		if _, ok := bound[name]; !ok {
			reasons = append(reasons, fmt.Sprintf("supplied parameter %s does not appear as a bind parameter", name))
		}
		// A caller-controlled value embedded in a literal means the SQL
		// was built by string concatenation.
		if str, ok := value.(string); ok && len(str) >= 3 {
			for _, t := range toks {
				if t.kind == tokString && strings.Contains(t.text, str) {
					reasons = append(reasons, fmt.Sprintf("value of parameter %s appears inline in the SQL text", name))
					break
				}
			}
		}
	}
	return reasons
}

// checkAuthorization requires every target resource to match a QUERY
// permission pattern for EXECUTE or READ.
func (v *Validator) checkAuthorization(toks []token, in Input) []string {
	targets := []string{}
	if in.Resource != "" {
		targets = append(targets, in.Resource)
	} else {
		targets = tableNames(toks)
	}
	if len(targets) == 0 {
		return []string{"no target resource could be determined"}
	}
	var reasons []string
	for _, target := range targets {
		if !v.allowed(in.Permissions, target) {
			reasons = append(reasons, fmt.Sprintf("access denied: no permission covers resource %q", target))
		}
	}
	return reasons
}

func (v *Validator) allowed(perms []authz.Permission, resource string) bool {
	for _, p := range perms {
		if p.Covers(v.matcher, authz.ResourceQuery, authz.ActionExecute, resource) ||
			p.Covers(v.matcher, authz.ResourceQuery, authz.ActionRead, resource) {
			return true
		}
	}
	return false
}

func checkParamSpecs(params map[string]any, specs map[string]ParamSpec) []string {
	var reasons []string
	for name, spec := range specs {
		value, ok := params[name]
		if !ok {
			if spec.Required {
				reasons = append(reasons, fmt.Sprintf("parameter %s is required", name))
			}
			continue
		}
		reasons = append(reasons, spec.check(name, value)...)
	}
	return reasons
}

package query

import (
	"fmt"
	"strings"
)

// Rewrite converts named bind parameters (:name) to positional Postgres
// placeholders ($1..$N) and returns the argument list in placeholder
// order. Placeholders are spliced into the original text at the
// parameter byte offsets, so everything else (operators, spacing,
// literals) reaches the driver exactly as written. Repeated names reuse
// the same placeholder. Callers must have validated the statement
// first; an unknown name is still reported as an error as a last line
// of defense.
func Rewrite(sql string, params map[string]any) (string, []any, error) {
	position := make(map[string]int)
	var args []any
	var b strings.Builder
	last := 0
	for _, t := range lex(sql) {
		if t.kind != tokParam {
			continue
		}
		name := strings.TrimPrefix(t.text, ":")
		pos, ok := position[name]
		if !ok {
			value, supplied := params[name]
			if !supplied {
				return "", nil, fmt.Errorf("no value supplied for bind parameter :%s", name)
			}
			args = append(args, value)
			pos = len(args)
			position[name] = pos
		}
		b.WriteString(sql[last:t.start])
		fmt.Fprintf(&b, "$%d", pos)
		last = t.end
	}
	b.WriteString(sql[last:])
	return b.String(), args, nil
}

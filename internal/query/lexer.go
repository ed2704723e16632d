package query

import "strings"

// token is a lexed fragment of the SQL text: a bare word, a quoted
// string literal (with quotes), a named bind parameter (with colon), or
// a single punctuation rune. start and end are byte offsets into the
// source text so rewriting can splice replacements in place.
type token struct {
	text  string
	kind  tokenKind
	start int
	end   int
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokParam
	tokPunct
)

// lex splits SQL into tokens. Comments are dropped; string literals and
// quoted identifiers are kept opaque so keywords inside them are never
// misread as statements. This is deliberately shape-level, not a parser.
func lex(sql string) []token {
	var toks []token
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i += 2
			for i+1 < len(sql) && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
			if i > len(sql) {
				i = len(sql)
			}
		case c == '\'':
			start := i
			i++
			for i < len(sql) {
				if sql[i] == '\'' {
					if i+1 < len(sql) && sql[i+1] == '\'' { // escaped quote
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			toks = append(toks, token{text: sql[start:i], kind: tokString, start: start, end: i})
		case c == '"':
			start := i
			i++
			for i < len(sql) && sql[i] != '"' {
				i++
			}
			if i < len(sql) {
				i++
			}
			toks = append(toks, token{text: sql[start:i], kind: tokWord, start: start, end: i})
		case c == ':' && i+1 < len(sql) && isIdentByte(sql[i+1]):
			start := i
			i++
			for i < len(sql) && isIdentByte(sql[i]) {
				i++
			}
			toks = append(toks, token{text: sql[start:i], kind: tokParam, start: start, end: i})
		case isIdentByte(c):
			start := i
			for i < len(sql) && (isIdentByte(sql[i]) || sql[i] == '.') {
				i++
			}
			toks = append(toks, token{text: sql[start:i], kind: tokWord, start: start, end: i})
		default:
			toks = append(toks, token{text: string(c), kind: tokPunct, start: i, end: i + 1})
			i++
		}
	}
	return toks
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// namedParams returns the distinct bind parameter names in order of
// first appearance, without the leading colon.
func namedParams(toks []token) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, t := range toks {
		if t.kind != tokParam {
			continue
		}
		name := strings.TrimPrefix(t.text, ":")
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// tableNames extracts identifiers referenced after FROM and JOIN. Derived
// tables (subqueries) contribute through their own FROM clauses.
func tableNames(toks []token) []string {
	seen := make(map[string]struct{})
	var tables []string
	expect := false
	for _, t := range toks {
		if t.kind == tokWord {
			upper := strings.ToUpper(t.text)
			if upper == "FROM" || upper == "JOIN" {
				expect = true
				continue
			}
			if expect {
				name := strings.ToLower(t.text)
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					tables = append(tables, name)
				}
				expect = false
			}
			continue
		}
		if expect && t.kind == tokPunct && t.text == "(" {
			// derived table; its inner FROM is scanned in sequence
			expect = false
		}
	}
	return tables
}

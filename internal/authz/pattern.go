package authz

// PatternMatcher decides whether a requested resource name falls under a
// permission's resource pattern. New pattern syntaxes slot in behind this
// interface without touching resolver or validator control flow.
type PatternMatcher interface {
	Match(pattern, resource string) bool
}

// GlobMatcher matches glob-style patterns: '*' matches any run of
// characters (including separators), '?' matches exactly one character,
// everything else matches literally. Matching is case-sensitive.
type GlobMatcher struct{}

func (GlobMatcher) Match(pattern, resource string) bool {
	return globMatch(pattern, resource)
}

func globMatch(pattern, s string) bool {
	// Iterative backtracking over the last '*' seen.
	var (
		p, i  int
		starI int
	)
	starP := -1
	for i < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[i]):
			p++
			i++
		case p < len(pattern) && pattern[p] == '*':
			starP = p
			starI = i
			p++
		case starP >= 0:
			starI++
			i = starI
			p = starP + 1
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

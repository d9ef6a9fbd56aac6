// Package scope implements gitmem's file-path include/exclude pattern
// engine (spec.md §4.11), with identical matching semantics available as a
// Go predicate and as a parameterized SQL fragment, so a search query and
// an in-memory filter over the same Scope never disagree.
package scope

import "strings"

// Scope is an include/exclude pattern set. A pattern with no '*' is a
// prefix match; a pattern containing '*' is a wildcard match where '*'
// matches any substring and every other character matches literally.
type Scope struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// IsEmpty reports whether the scope has no patterns at all (matches everything).
func (s Scope) IsEmpty() bool {
	return len(s.Include) == 0 && len(s.Exclude) == 0
}

// Normalize strips a leading "./" or "/" from every pattern and drops
// duplicates, in place of the raw config/CLI input.
func Normalize(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = normalizeOne(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func normalizeOne(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}

// Matches reports whether path satisfies the scope: it matches at least one
// include pattern (or there are no include patterns, meaning "all files"),
// and it matches none of the exclude patterns.
func (s Scope) Matches(path string) bool {
	if len(s.Include) > 0 {
		included := false
		for _, p := range s.Include {
			if matchOne(p, path) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, p := range s.Exclude {
		if matchOne(p, path) {
			return false
		}
	}
	return true
}

func matchOne(pattern, path string) bool {
	if !strings.Contains(pattern, "*") {
		return strings.HasPrefix(path, pattern)
	}
	return wildcardMatch(pattern, path)
}

// wildcardMatch matches pattern against s where '*' matches any substring
// (including empty) and every other byte must match literally. Classic
// two-pointer glob matching with backtracking to the last '*'.
func wildcardMatch(pattern, s string) bool {
	p, t := 0, 0
	star, match := -1, 0

	for t < len(s) {
		switch {
		case p < len(pattern) && pattern[p] == s[t]:
			p++
			t++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			match = t
			p++
		case star != -1:
			p = star + 1
			match++
			t = match
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

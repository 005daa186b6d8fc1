package targeting

import "strings"

// MatchPagePattern reports whether a page path matches a glob-style pattern.
// '*' matches any run of characters (including none); all other characters
// match literally. Trailing slashes are ignored on both sides so that
// "/products/" and "/products" are the same page.
func MatchPagePattern(pattern, path string) bool {
	pattern = normalizePath(pattern)
	path = normalizePath(path)

	if pattern == "" {
		return false
	}
	return globMatch(pattern, path)
}

func normalizePath(p string) string {
	// Strip query string and fragment; targeting is path-based.
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// globMatch is an iterative wildcard matcher with backtracking on '*'.
// Linear in the path length for a single star, which covers the patterns the
// admin UI produces ("/products/*", "/collections/*/featured").
func globMatch(pattern, s string) bool {
	var pIdx, sIdx int
	starIdx, matchIdx := -1, 0

	for sIdx < len(s) {
		switch {
		case pIdx < len(pattern) && (pattern[pIdx] == s[sIdx]):
			pIdx++
			sIdx++
		case pIdx < len(pattern) && pattern[pIdx] == '*':
			starIdx = pIdx
			matchIdx = sIdx
			pIdx++
		case starIdx != -1:
			// Backtrack: let the last '*' absorb one more character.
			pIdx = starIdx + 1
			matchIdx++
			sIdx = matchIdx
		default:
			return false
		}
	}

	// Only trailing stars may remain in the pattern.
	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(pattern)
}

// matchesPageTargeting applies the include/exclude pattern sets.
// Exclude wins ties: a URL matching both an include and an exclude pattern is
// not targeted.
func matchesPageTargeting(rules PageTargeting, pageURL string) bool {
	for _, pattern := range rules.ExcludePages {
		if MatchPagePattern(pattern, pageURL) {
			return false
		}
	}

	included := false
	for _, pattern := range rules.Pages {
		if MatchPagePattern(pattern, pageURL) {
			included = true
			break
		}
	}
	if !included {
		for _, pattern := range rules.CustomPatterns {
			if MatchPagePattern(pattern, pageURL) {
				included = true
				break
			}
		}
	}
	return included
}

package targeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPagePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{name: "Should match an exact path", pattern: "/products", path: "/products", want: true},
		{name: "Should not match a different path", pattern: "/products", path: "/collections", want: false},
		{name: "Should ignore a trailing slash on the path", pattern: "/products", path: "/products/", want: true},
		{name: "Should ignore a trailing slash on the pattern", pattern: "/products/", path: "/products", want: true},
		{name: "Should strip the query string before matching", pattern: "/products", path: "/products?ref=email", want: true},
		{name: "Should strip the fragment before matching", pattern: "/products", path: "/products#reviews", want: true},
		{name: "Should match a trailing wildcard", pattern: "/products/*", path: "/products/shoes", want: true},
		{name: "Should match a wildcard across slashes", pattern: "/products/*", path: "/products/shoes/red", want: true},
		{name: "Should match a wildcard against nothing", pattern: "/products*", path: "/products", want: true},
		{name: "Should match a mid-pattern wildcard", pattern: "/collections/*/featured", path: "/collections/summer/featured", want: true},
		{name: "Should backtrack a mid-pattern wildcard", pattern: "/collections/*/featured", path: "/collections/a/b/featured", want: true},
		{name: "Should not match when the suffix differs", pattern: "/collections/*/featured", path: "/collections/summer/sale", want: false},
		{name: "Should match the root path", pattern: "/", path: "/", want: true},
		{name: "Should not match a subpage against the bare root", pattern: "/", path: "/products", want: false},
		{name: "Should never match an empty pattern", pattern: "", path: "/products", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MatchPagePattern(tt.pattern, tt.path))
		})
	}
}

func TestMatchesPageTargeting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rules PageTargeting
		path  string
		want  bool
	}{
		{
			name:  "Should match an include page",
			rules: PageTargeting{Pages: []string{"/checkout"}},
			path:  "/checkout",
			want:  true,
		},
		{
			name:  "Should match a custom pattern when pages miss",
			rules: PageTargeting{Pages: []string{"/checkout"}, CustomPatterns: []string{"/products/*"}},
			path:  "/products/shoes",
			want:  true,
		},
		{
			name:  "Should not match with no include patterns at all",
			rules: PageTargeting{},
			path:  "/products",
			want:  false,
		},
		{
			name: "Should let exclude win over include",
			rules: PageTargeting{
				Pages:        []string{"/products/*"},
				ExcludePages: []string{"/products/clearance/*"},
			},
			path: "/products/clearance/socks",
			want: false,
		},
		{
			name: "Should still match includes outside the exclusions",
			rules: PageTargeting{
				Pages:        []string{"/products/*"},
				ExcludePages: []string{"/products/clearance/*"},
			},
			path: "/products/shoes",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, matchesPageTargeting(tt.rules, tt.path))
		})
	}
}

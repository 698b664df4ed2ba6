package auth

import (
	"sort"
	"strings"
)

// Sensitivity classifies a request path.
type Sensitivity int

const (
	SensitivityPublic Sensitivity = iota
	SensitivityAuthenticated
	SensitivityPrivileged
)

func (s Sensitivity) String() string {
	switch s {
	case SensitivityAuthenticated:
		return "authenticated"
	case SensitivityPrivileged:
		return "privileged"
	default:
		return "public"
	}
}

// RouteRule maps a path prefix to a sensitivity.
type RouteRule struct {
	Prefix      string
	Sensitivity Sensitivity
}

// RoutePolicy is a static, read-only table of route rules. The longest
// matching prefix wins; paths matching no rule are public.
type RoutePolicy struct {
	rules []RouteRule
}

// NewRoutePolicy builds a policy from rules. Prefixes are normalized to a
// leading slash without a trailing one.
func NewRoutePolicy(rules ...RouteRule) *RoutePolicy {
	normalized := make([]RouteRule, 0, len(rules))
	for _, r := range rules {
		normalized = append(normalized, RouteRule{Prefix: normalizePath(r.Prefix), Sensitivity: r.Sensitivity})
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return len(normalized[i].Prefix) > len(normalized[j].Prefix)
	})
	return &RoutePolicy{rules: normalized}
}

// DefaultRoutePolicy returns the storefront route table.
func DefaultRoutePolicy() *RoutePolicy {
	return NewRoutePolicy(
		RouteRule{Prefix: "/admin", Sensitivity: SensitivityPrivileged},
		RouteRule{Prefix: "/api/admin", Sensitivity: SensitivityPrivileged},
		RouteRule{Prefix: "/api/users", Sensitivity: SensitivityPrivileged},

		RouteRule{Prefix: "/profile", Sensitivity: SensitivityAuthenticated},
		RouteRule{Prefix: "/cart", Sensitivity: SensitivityAuthenticated},
		RouteRule{Prefix: "/checkout", Sensitivity: SensitivityAuthenticated},
		RouteRule{Prefix: "/orders", Sensitivity: SensitivityAuthenticated},
		RouteRule{Prefix: "/api/auth/me", Sensitivity: SensitivityAuthenticated},
		RouteRule{Prefix: "/api/cart", Sensitivity: SensitivityAuthenticated},
		RouteRule{Prefix: "/api/checkout", Sensitivity: SensitivityAuthenticated},
		RouteRule{Prefix: "/api/orders", Sensitivity: SensitivityAuthenticated},
	)
}

// Classify returns the sensitivity of path.
func (p *RoutePolicy) Classify(path string) Sensitivity {
	path = normalizePath(path)
	for _, r := range p.rules {
		if matchesPrefix(path, r.Prefix) {
			return r.Sensitivity
		}
	}
	return SensitivityPublic
}

// Rules returns a copy of the rule table, longest prefix first.
func (p *RoutePolicy) Rules() []RouteRule {
	out := make([]RouteRule, len(p.rules))
	copy(out, p.rules)
	return out
}

// matchesPrefix matches whole segments so /administrator is not /admin.
func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return strings.ToLower(p)
}

package scope

import (
	"sort"
	"strings"
)

// Scope names a gateway capability a client may be granted.
type Scope string

const (
	Search      Scope = "search"
	ListSources Scope = "list_sources"
	GetInfo     Scope = "get_info"
)

// All returns every supported scope in canonical order.
func All() []Scope {
	return []Scope{Search, ListSources, GetInfo}
}

// Default is the scope set granted when a request names none.
func Default() []Scope {
	return All()
}

// Valid reports whether the scope is part of the supported set.
func Valid(s Scope) bool {
	switch s {
	case Search, ListSources, GetInfo:
		return true
	default:
		return false
	}
}

// Parse splits a space-delimited scope parameter into supported scopes.
// Unknown names are rejected rather than silently dropped.
func Parse(raw string) ([]Scope, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}

	fields := strings.Fields(raw)
	scopes := make([]Scope, 0, len(fields))
	seen := make(map[Scope]struct{}, len(fields))
	for _, field := range fields {
		s := Scope(field)
		if !Valid(s) {
			return nil, false
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		scopes = append(scopes, s)
	}
	return scopes, true
}

// Intersect returns the scopes present in both sets, in canonical order.
func Intersect(requested, granted []Scope) []Scope {
	grantedSet := make(map[Scope]struct{}, len(granted))
	for _, s := range granted {
		grantedSet[s] = struct{}{}
	}

	out := make([]Scope, 0, len(requested))
	for _, s := range requested {
		if _, ok := grantedSet[s]; ok {
			out = append(out, s)
		}
	}
	sortCanonical(out)
	return out
}

// Contains reports whether the set includes the scope.
func Contains(set []Scope, s Scope) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

// Join renders a scope set as a space-delimited parameter value.
func Join(set []Scope) string {
	parts := make([]string, 0, len(set))
	for _, s := range set {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, " ")
}

// Strings converts a scope set to its string slice form for storage.
func Strings(set []Scope) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		out = append(out, string(s))
	}
	return out
}

// FromStrings converts stored scope strings back to scopes, dropping
// anything no longer supported.
func FromStrings(values []string) []Scope {
	out := make([]Scope, 0, len(values))
	for _, value := range values {
		s := Scope(strings.TrimSpace(value))
		if Valid(s) {
			out = append(out, s)
		}
	}
	return out
}

func sortCanonical(set []Scope) {
	rank := map[Scope]int{Search: 0, ListSources: 1, GetInfo: 2}
	sort.SliceStable(set, func(i, j int) bool {
		return rank[set[i]] < rank[set[j]]
	})
}

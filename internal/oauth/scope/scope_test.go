package scope

import (
	"testing"
)

func TestParseAcceptsSupportedScopes(t *testing.T) {
	scopes, ok := Parse("search list_sources")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if len(scopes) != 2 || scopes[0] != Search || scopes[1] != ListSources {
		t.Fatalf("unexpected scopes: %v", scopes)
	}
}

func TestParseRejectsUnknownScope(t *testing.T) {
	if _, ok := Parse("search admin"); ok {
		t.Fatal("expected unknown scope to be rejected")
	}
}

func TestParseDeduplicates(t *testing.T) {
	scopes, ok := Parse("search search get_info")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if len(scopes) != 2 {
		t.Fatalf("expected duplicates removed, got %v", scopes)
	}
}

func TestParseEmptyIsValid(t *testing.T) {
	scopes, ok := Parse("  ")
	if !ok {
		t.Fatal("expected empty scope parameter to be valid")
	}
	if scopes != nil {
		t.Fatalf("expected nil scopes, got %v", scopes)
	}
}

func TestIntersect(t *testing.T) {
	got := Intersect([]Scope{GetInfo, Search}, []Scope{Search, ListSources, GetInfo})
	if len(got) != 2 || got[0] != Search || got[1] != GetInfo {
		t.Fatalf("unexpected intersection: %v", got)
	}

	if empty := Intersect([]Scope{Search}, []Scope{ListSources}); len(empty) != 0 {
		t.Fatalf("expected empty intersection, got %v", empty)
	}
}

func TestJoinAndFromStrings(t *testing.T) {
	if Join([]Scope{Search, GetInfo}) != "search get_info" {
		t.Fatalf("unexpected join output: %q", Join([]Scope{Search, GetInfo}))
	}

	scopes := FromStrings([]string{"search", "retired_scope", "get_info"})
	if len(scopes) != 2 || scopes[0] != Search || scopes[1] != GetInfo {
		t.Fatalf("unexpected scopes from strings: %v", scopes)
	}
}

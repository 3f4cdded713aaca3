package paths

import "testing"

func TestToCanonicalKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rawPath string
		root    string
		want    string
	}{
		{"project root maps to sentinel", "/home/user/proj", "/home/user/proj", "."},
		{"prefix stripped", "/home/user/proj/src/a.ts", "/home/user/proj", "src/a.ts"},
		{"trailing slash on root", "/home/user/proj/src/a.ts", "/home/user/proj/", "src/a.ts"},
		{"outside project passes through", "/etc/hosts", "/home/user/proj", "/etc/hosts"},
		{"similar prefix not stripped", "/home/user/proj2/a.ts", "/home/user/proj", "/home/user/proj2/a.ts"},
		{"already relative", "src/a.ts", "/home/user/proj", "src/a.ts"},
		{"empty root passes through", "/x/y.ts", "", "/x/y.ts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ToCanonicalKey(tt.rawPath, tt.root); got != tt.want {
				t.Errorf("ToCanonicalKey(%q, %q) = %q, want %q", tt.rawPath, tt.root, got, tt.want)
			}
		})
	}
}

func TestResolveWithFallback_ExactWinsOverFilename(t *testing.T) {
	t.Parallel()

	// A filename-only candidate appearing earlier in the collection must
	// not shadow an exact match.
	known := []string{"a/index.ts", "b/index.ts"}
	got, ok := ResolveWithFallback("b/index.ts", known)
	if !ok || got != "b/index.ts" {
		t.Fatalf("ResolveWithFallback = %q, %v; want %q, true", got, ok, "b/index.ts")
	}
}

func TestResolveWithFallback_SuffixMatch(t *testing.T) {
	t.Parallel()

	// A hook can send a path relative to a different root; the known key
	// that is a path-boundary suffix wins.
	known := []string{"src/core/engine.go", "src/core"}
	got, ok := ResolveWithFallback("/work/checkout/src/core/engine.go", known)
	if !ok || got != "src/core/engine.go" {
		t.Fatalf("ResolveWithFallback = %q, %v; want suffix match", got, ok)
	}
}

func TestResolveWithFallback_SuffixRespectsBoundary(t *testing.T) {
	t.Parallel()

	// "ore/engine.go" is the longer suffix of the query but crosses a path
	// segment boundary, so the shorter boundary-aligned key must win. The
	// partial-segment key would only be reachable through the filename
	// fallback, which never runs when a suffix match exists.
	known := []string{"ore/engine.go", "engine.go"}
	got, ok := ResolveWithFallback("/work/src/core/engine.go", known)
	if !ok || got != "engine.go" {
		t.Fatalf("ResolveWithFallback = %q, %v; want boundary-aligned suffix %q", got, ok, "engine.go")
	}
}

func TestResolveWithFallback_FilenameFallback(t *testing.T) {
	t.Parallel()

	known := []string{"src/util/helpers.ts"}
	got, ok := ResolveWithFallback("/elsewhere/helpers.ts", known)
	if !ok || got != "src/util/helpers.ts" {
		t.Fatalf("ResolveWithFallback = %q, %v; want filename fallback", got, ok)
	}
}

func TestResolveWithFallback_NoMatch(t *testing.T) {
	t.Parallel()

	if got, ok := ResolveWithFallback("unknown.go", []string{"a/b.ts"}); ok {
		t.Fatalf("expected no match, got %q", got)
	}
}

func TestNearestAncestorFolder(t *testing.T) {
	t.Parallel()

	folders := []string{".", "src", "src/core"}

	got, ok := NearestAncestorFolder("src/core/deep/file.go", folders)
	if !ok || got != "src/core" {
		t.Fatalf("NearestAncestorFolder = %q, %v; want src/core", got, ok)
	}

	got, ok = NearestAncestorFolder("lib/other.go", folders)
	if !ok || got != "." {
		t.Fatalf("NearestAncestorFolder fallback = %q, %v; want root", got, ok)
	}

	if got, ok := NearestAncestorFolder("lib/other.go", []string{"src"}); ok {
		t.Fatalf("expected no ancestor without registered root, got %q", got)
	}
}

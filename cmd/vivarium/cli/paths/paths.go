// Package paths maps raw file paths from hook payloads to canonical
// project-relative keys.
//
// Producers run in different working directories (and sometimes different
// roots) than the daemon, so a raw path may be absolute, relative to an
// unknown root, or already canonical. Resolution is pure; callers own all
// state.
package paths

import (
	"path"
	"strings"
)

// RootKey is the sentinel key for the project root node.
const RootKey = "."

// ToCanonicalKey converts rawPath to a project-relative key. The project
// root itself maps to RootKey. Paths outside projectRoot are passed through
// unchanged; callers decide whether to ignore them.
func ToCanonicalKey(rawPath, projectRoot string) string {
	if projectRoot == "" {
		return rawPath
	}
	root := strings.TrimSuffix(projectRoot, "/")
	if rawPath == root {
		return RootKey
	}
	if strings.HasPrefix(rawPath, root+"/") {
		return rawPath[len(root)+1:]
	}
	return rawPath
}

// ResolveWithFallback resolves p against the known canonical keys.
//
// Resolution order is fixed and load-bearing:
//  1. exact match
//  2. longest known key that is a path-boundary suffix of p (a hook may
//     send a path relative to a different root than the viewer)
//  3. filename-only match against the basename of every known key
//
// Exact matches must win over coincidental filename collisions (two
// index.ts files in sibling folders), so the order must not change.
func ResolveWithFallback(p string, known []string) (string, bool) {
	for _, k := range known {
		if k == p {
			return k, true
		}
	}

	best := ""
	for _, k := range known {
		if len(k) >= len(p) || !strings.HasSuffix(p, k) {
			continue
		}
		if p[len(p)-len(k)-1] != '/' {
			continue
		}
		if len(k) > len(best) {
			best = k
		}
	}
	if best != "" {
		return best, true
	}

	base := path.Base(p)
	for _, k := range known {
		if path.Base(k) == base {
			return k, true
		}
	}
	return "", false
}

// NearestAncestorFolder strips path segments from the right until a known
// folder key matches, finally falling back to RootKey if it is registered.
func NearestAncestorFolder(p string, knownFolders []string) (string, bool) {
	cur := p
	for {
		idx := strings.LastIndex(cur, "/")
		if idx < 0 {
			break
		}
		cur = cur[:idx]
		for _, k := range knownFolders {
			if k == cur {
				return k, true
			}
		}
	}
	for _, k := range knownFolders {
		if k == RootKey {
			return RootKey, true
		}
	}
	return "", false
}

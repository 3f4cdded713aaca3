// Package graph owns the hierarchical file/folder activity tree.
//
// Raw activity events become node creation and active-operation flags here.
// The tree is append-only with respect to events: nodes are materialized
// lazily (ancestors always before the children they contain) and never
// removed except by Reset.
package graph

import (
	"sort"
	"strings"
	"time"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/paths"
)

// Op is a file operation kind.
type Op string

// Operation kinds carried by activity events.
const (
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpSearch Op = "search"
)

// Phase marks whether an event opens or closes an operation.
type Phase string

// Operation phases.
const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// ActivityCount holds per-node monotonic operation counters. Counters are
// incremented on an operation's end event only.
type ActivityCount struct {
	Reads    int `json:"reads"`
	Writes   int `json:"writes"`
	Searches int `json:"searches"`
}

// LastActivity records the most recent operation touching a node.
type LastActivity struct {
	Type      Op        `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Node is one file or folder in the activity tree.
type Node struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	IsFolder        bool          `json:"isFolder"`
	Depth           int           `json:"depth"`
	Activity        ActivityCount `json:"activityCount"`
	ActiveOperation Op            `json:"activeOperation,omitempty"`
	LastActivity    *LastActivity `json:"lastActivity,omitempty"`
}

// Link connects a node to its direct parent.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Snapshot is an immutable point-in-time copy of the tree handed to
// observers.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Event is a normalized activity event applied to the tree.
type Event struct {
	Op        Op
	Phase     Phase
	Key       string // canonical project-relative key
	Timestamp time.Time
}

// Graph is the activity tree. Not safe for concurrent use; the owner
// serializes all access behind a single writer (see server.Engine).
type Graph struct {
	nodes map[string]*Node
}

// New returns a graph containing only the root node.
func New() *Graph {
	g := &Graph{}
	g.Reset()
	return g
}

// Reset drops every node except a freshly constructed root.
func (g *Graph) Reset() {
	g.nodes = map[string]*Node{
		paths.RootKey: {ID: paths.RootKey, Name: paths.RootKey, IsFolder: true, Depth: -1},
	}
}

// Len returns the number of nodes, root included.
func (g *Graph) Len() int { return len(g.nodes) }

// Keys returns every known node key. Used by the ingest boundary for path
// resolution.
func (g *Graph) Keys() []string {
	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FolderKeys returns every known folder key, root included.
func (g *Graph) FolderKeys() []string {
	var keys []string
	for k, n := range g.nodes {
		if n.IsFolder {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Record applies one activity event and reports whether the tree changed.
//
// Search events never create nodes: a search carries a pattern, not
// necessarily a real path, so it only mutates a node that already exists.
// File events materialize any missing ancestor folders (idempotently), then
// flip the leaf's active operation on start and clear it plus bump the
// matching counter on end.
//
// Ancestors mirror the leaf's active-operation transition as a plain
// overwrite, not a reference count: concurrent operations on sibling files
// can cause one end event to clear the folder flag while the sibling is
// still active. That matches the behavior viewers are calibrated to, so it
// is kept deliberately.
func (g *Graph) Record(ev Event) bool {
	if ev.Key == "" {
		return false
	}

	if ev.Op == OpSearch {
		node, ok := g.nodes[ev.Key]
		if !ok {
			return false
		}
		g.applyTransition(node, ev)
		return true
	}

	leaf := g.materialize(ev.Key)
	g.applyTransition(leaf, ev)
	return true
}

func (g *Graph) applyTransition(leaf *Node, ev Event) {
	switch ev.Phase {
	case PhaseStart:
		leaf.ActiveOperation = ev.Op
	case PhaseEnd:
		leaf.ActiveOperation = ""
		switch ev.Op {
		case OpRead:
			leaf.Activity.Reads++
		case OpWrite:
			leaf.Activity.Writes++
		case OpSearch:
			leaf.Activity.Searches++
		}
	}
	leaf.LastActivity = &LastActivity{Type: ev.Op, Timestamp: ev.Timestamp}

	// Mirror the transition on every ancestor folder up to the root.
	for _, anc := range g.ancestors(leaf.ID) {
		if ev.Phase == PhaseStart {
			anc.ActiveOperation = ev.Op
		} else {
			anc.ActiveOperation = ""
		}
	}
}

// materialize returns the node for key, creating it and any missing
// intermediate folders. Re-creating an existing node is a no-op.
func (g *Graph) materialize(key string) *Node {
	if key == paths.RootKey {
		return g.nodes[paths.RootKey]
	}
	segs := strings.Split(key, "/")
	id := ""
	for i, seg := range segs {
		if i == 0 {
			id = seg
		} else {
			id += "/" + seg
		}
		if _, ok := g.nodes[id]; ok {
			continue
		}
		g.nodes[id] = &Node{
			ID:       id,
			Name:     seg,
			IsFolder: i < len(segs)-1,
			Depth:    i,
		}
	}
	return g.nodes[key]
}

// ancestors returns the folder chain above key, nearest first, root last.
func (g *Graph) ancestors(key string) []*Node {
	var out []*Node
	cur := key
	for {
		idx := strings.LastIndex(cur, "/")
		if idx < 0 {
			break
		}
		cur = cur[:idx]
		if n, ok := g.nodes[cur]; ok {
			out = append(out, n)
		}
	}
	if key != paths.RootKey {
		out = append(out, g.nodes[paths.RootKey])
	}
	return out
}

// parentID returns the direct parent key of a non-root node.
func parentID(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return paths.RootKey
	}
	return key[:idx]
}

// Snapshot copies every node plus parent links. Produced fresh on demand;
// the tree is read-mostly so caching buys nothing.
func (g *Graph) Snapshot() Snapshot {
	snap := Snapshot{
		Nodes: make([]Node, 0, len(g.nodes)),
		Links: make([]Link, 0, len(g.nodes)-1),
	}
	keys := g.Keys()
	for _, k := range keys {
		n := *g.nodes[k]
		if n.LastActivity != nil {
			la := *n.LastActivity
			n.LastActivity = &la
		}
		snap.Nodes = append(snap.Nodes, n)
		if k != paths.RootKey {
			snap.Links = append(snap.Links, Link{Source: k, Target: parentID(k)})
		}
	}
	return snap
}

// RecentlyActive returns files whose last activity is within maxAge,
// grouped by parent folder, most recent first within each folder.
func (g *Graph) RecentlyActive(now time.Time, maxAge time.Duration) map[string][]string {
	type entry struct {
		name string
		at   time.Time
	}
	byFolder := make(map[string][]entry)
	for _, n := range g.nodes {
		if n.IsFolder || n.LastActivity == nil {
			continue
		}
		if now.Sub(n.LastActivity.Timestamp) > maxAge {
			continue
		}
		folder := parentID(n.ID)
		byFolder[folder] = append(byFolder[folder], entry{name: n.Name, at: n.LastActivity.Timestamp})
	}

	out := make(map[string][]string, len(byFolder))
	for folder, entries := range byFolder {
		sort.Slice(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.name
		}
		out[folder] = names
	}
	return out
}

package server

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/gitscore"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/graph"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/logging"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/paths"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/registry"
)

// recentEventLimit bounds the debug ring buffer.
const recentEventLimit = 100

// liveActivityWindow is how far back RecentlyActive looks when merging
// live files into the hot-folders view.
const liveActivityWindow = 5 * time.Minute

// RecentEvent is one ring-buffer entry exposed on the health endpoint.
type RecentEvent struct {
	At      time.Time `json:"at"`
	Family  string    `json:"family"`
	Type    string    `json:"type"`
	AgentID string    `json:"agentId,omitempty"`
	Path    string    `json:"path,omitempty"`
}

// Engine is the single writer over the activity graph and session roster.
//
// All mutations to both structures go through one mutex, preserving the
// single-writer property the state machines assume: no two mutations ever
// interleave. Persistence and git scoring stay off the hot path: file and
// git I/O happen outside the lock.
type Engine struct {
	mu    sync.Mutex
	graph *graph.Graph
	reg   *registry.Registry

	store *registry.Store
	git   *gitscore.Cache

	projectRoot string

	startedAt time.Time
	ingested  uint64
	rejected  uint64

	recent []RecentEvent
	next   int
}

// NewEngine wires the canonical state owned by the daemon.
func NewEngine(projectRoot string, store *registry.Store, git *gitscore.Cache) *Engine {
	return &Engine{
		graph:       graph.New(),
		reg:         registry.New(),
		store:       store,
		git:         git,
		projectRoot: projectRoot,
		startedAt:   time.Now(),
		recent:      make([]RecentEvent, 0, recentEventLimit),
	}
}

func eventTime(millis int64) time.Time {
	if millis <= 0 {
		return time.Now()
	}
	return time.UnixMilli(millis)
}

func parseActivityType(t string) (graph.Op, graph.Phase, bool) {
	op, phase, found := strings.Cut(t, "-")
	if !found {
		return "", "", false
	}
	var gop graph.Op
	switch op {
	case "read":
		gop = graph.OpRead
	case "write":
		gop = graph.OpWrite
	case "search":
		gop = graph.OpSearch
	default:
		return "", "", false
	}
	switch phase {
	case "start":
		return gop, graph.PhaseStart, true
	case "end":
		return gop, graph.PhaseEnd, true
	default:
		return "", "", false
	}
}

// ApplyActivity ingests one activity event. Returns false when the event
// was malformed and nothing changed.
func (e *Engine) ApplyActivity(ctx context.Context, ev ActivityEvent) bool {
	logCtx := logging.WithComponent(ctx, "ingest")

	op, phase, ok := parseActivityType(ev.Type)
	if !ok || ev.FilePath == "" {
		e.mu.Lock()
		e.rejected++
		e.mu.Unlock()
		logging.Debug(logCtx, "rejected activity event",
			slog.String("type", ev.Type),
			slog.String("file_path", ev.FilePath),
		)
		return false
	}
	now := eventTime(ev.Timestamp)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.remember(RecentEvent{At: now, Family: "activity", Type: ev.Type, AgentID: ev.AgentID, Path: ev.FilePath})
	e.ingested++

	if ev.AgentID != "" {
		if s := e.reg.Register(ctx, ev.AgentID, now, registry.RegisterMeta{}); s != nil {
			e.reg.Touch(ev.AgentID, now, registry.Delta{
				AddRead:   op == graph.OpRead && phase == graph.PhaseEnd,
				AddWrite:  op == graph.OpWrite && phase == graph.PhaseEnd,
				SkillName: ev.SkillName,
				MCPServer: ev.MCPServer,
			})
		}
	}

	key := e.resolveKey(ev.FilePath, op)
	if key != "" {
		e.graph.Record(graph.Event{Op: op, Phase: phase, Key: key, Timestamp: now})
	}
	return true
}

// resolveKey canonicalizes a raw event path. An absolute path that is not
// under the project root is resolved against known keys (exact, then
// suffix, then filename); if that fails too the event is outside the
// project and is ignored. Search patterns never go through fallback
// resolution — a pattern coincidentally matching a filename must not light
// up an unrelated node.
func (e *Engine) resolveKey(raw string, op graph.Op) string {
	key := paths.ToCanonicalKey(raw, e.projectRoot)
	if !strings.HasPrefix(key, "/") {
		return key
	}
	if op == graph.OpSearch {
		return ""
	}
	if resolved, ok := paths.ResolveWithFallback(key, e.graph.Keys()); ok {
		return resolved
	}
	return ""
}

// ApplyAgentEvent ingests one session/tool-state event.
func (e *Engine) ApplyAgentEvent(ctx context.Context, ev AgentEvent) bool {
	logCtx := logging.WithComponent(ctx, "ingest")
	now := eventTime(ev.Timestamp)

	switch ev.Type {
	case "thinking-start", "thinking-end", "agent-stop":
	default:
		e.mu.Lock()
		e.rejected++
		e.mu.Unlock()
		logging.Debug(logCtx, "rejected agent event", slog.String("type", ev.Type))
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.remember(RecentEvent{At: now, Family: "agent", Type: ev.Type, AgentID: ev.AgentID})
	e.ingested++

	meta := registry.RegisterMeta{
		AgentType:     ev.AgentType,
		AgentName:     ev.AgentName,
		AgentRole:     ev.AgentRole,
		ParentAgentID: ev.ParentAgentID,
		Model:         ev.Model,
	}

	switch ev.Type {
	case "thinking-start":
		if e.reg.Register(ctx, ev.AgentID, now, meta) == nil {
			return false
		}
		thinking := true
		e.reg.Touch(ev.AgentID, now, registry.Delta{
			Thinking:      &thinking,
			ToolName:      ev.ToolName,
			ToolStart:     ev.ToolName != "",
			SkillName:     ev.SkillName,
			MCPServer:     ev.MCPServer,
			AgentType:     ev.AgentType,
			AgentName:     ev.AgentName,
			AgentRole:     ev.AgentRole,
			ParentAgentID: ev.ParentAgentID,
			Model:         ev.Model,
		})
	case "thinking-end":
		if e.reg.Register(ctx, ev.AgentID, now, meta) == nil {
			return false
		}
		thinking := false
		e.reg.Touch(ev.AgentID, now, registry.Delta{
			Thinking: &thinking,
			ToolEnd:  true,
		})
	case "agent-stop":
		// Stop is informational; it never creates a session.
		e.reg.MarkStopped(ev.AgentID, parseStatus(ev.Status), now)
	}
	return true
}

func parseStatus(s string) registry.Status {
	switch s {
	case string(registry.StatusAborted):
		return registry.StatusAborted
	case string(registry.StatusError):
		return registry.StatusError
	default:
		return registry.StatusCompleted
	}
}

func (e *Engine) remember(ev RecentEvent) {
	if len(e.recent) < recentEventLimit {
		e.recent = append(e.recent, ev)
		return
	}
	e.recent[e.next] = ev
	e.next = (e.next + 1) % recentEventLimit
}

// RecentEvents returns the debug ring, oldest first.
func (e *Engine) RecentEvents() []RecentEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RecentEvent, 0, len(e.recent))
	out = append(out, e.recent[e.next:]...)
	out = append(out, e.recent[:e.next]...)
	return out
}

// GraphSnapshot returns a point-in-time copy of the activity tree.
func (e *Engine) GraphSnapshot() graph.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Snapshot()
}

// Roster returns a point-in-time copy of the session roster.
func (e *Engine) Roster() RosterSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RosterSnapshot{
		Agents:           e.reg.Snapshot(),
		ActiveSkills:     e.reg.ActiveSkills(),
		ActiveMCPServers: e.reg.ActiveMCPServers(),
	}
}

// ResetGraph drops the activity tree back to a bare root.
func (e *Engine) ResetGraph() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.Reset()
}

// Sweep evicts stale sessions and runs the waiting-for-input inference.
// Returns true when the roster changed.
func (e *Engine) Sweep(ctx context.Context, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	evicted := e.reg.SweepStale(ctx, now, registry.DefaultEvictionTimeout)
	waiting := e.reg.InferWaiting(now, registry.DefaultWaitingThreshold)
	return len(evicted) > 0 || waiting > 0
}

// Persist exports the roster under the lock and writes it outside.
func (e *Engine) Persist(ctx context.Context, now time.Time) {
	e.mu.Lock()
	state := e.reg.ExportState(now)
	e.mu.Unlock()

	if err := e.store.Save(state); err != nil {
		logging.Error(logging.WithComponent(ctx, "persist"), "failed to save roster state",
			slog.Any("error", err),
		)
	}
}

// Restore loads persisted sessions on process start, dropping entries
// already past the eviction timeout.
func (e *Engine) Restore(ctx context.Context, now time.Time) {
	state, err := e.store.Load()
	if err != nil {
		logging.Warn(logging.WithComponent(ctx, "persist"), "failed to load roster state",
			slog.Any("error", err),
		)
		return
	}
	if state == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reg.ImportState(ctx, *state, now, registry.DefaultEvictionTimeout)
}

// HotFolders merges the git edit-frequency ranking with folders that have
// live agent activity. Git scoring happens outside the engine lock.
func (e *Engine) HotFolders(ctx context.Context) []HotFolder {
	scores := e.git.Scores(ctx)

	e.mu.Lock()
	live := e.graph.RecentlyActive(time.Now(), liveActivityWindow)
	e.mu.Unlock()

	out := make([]HotFolder, 0, len(scores)+len(live))
	seen := make(map[string]int, len(scores))
	for _, fs := range scores {
		seen[fs.Folder] = len(out)
		out = append(out, HotFolder{
			Folder:      fs.Folder,
			Score:       fs.Score,
			RecentFiles: fs.RecentFiles,
			LiveFiles:   live[fs.Folder],
		})
	}

	var extra []string
	for folder := range live {
		if _, ok := seen[folder]; !ok {
			extra = append(extra, folder)
		}
	}
	sort.Strings(extra)
	for _, folder := range extra {
		out = append(out, HotFolder{Folder: folder, LiveFiles: live[folder]})
	}
	return out
}

// Health is the debug counter payload.
type Health struct {
	InstanceID  string        `json:"instanceId"`
	UptimeSecs  int64         `json:"uptimeSecs"`
	Sessions    int           `json:"sessions"`
	Nodes       int           `json:"nodes"`
	Observers   int           `json:"observers"`
	Ingested    uint64        `json:"ingested"`
	Rejected    uint64        `json:"rejected"`
	RecentCount int           `json:"recentCount"`
	Recent      []RecentEvent `json:"recent,omitempty"`
}

// HealthInfo returns current counters. Observer count is filled in by the
// HTTP layer, which owns the hub.
func (e *Engine) HealthInfo(instanceID string, includeRecent bool) Health {
	recent := e.RecentEvents()

	e.mu.Lock()
	defer e.mu.Unlock()
	h := Health{
		InstanceID:  instanceID,
		UptimeSecs:  int64(time.Since(e.startedAt).Seconds()),
		Sessions:    e.reg.Len(),
		Nodes:       e.graph.Len(),
		Ingested:    e.ingested,
		Rejected:    e.rejected,
		RecentCount: len(recent),
	}
	if includeRecent {
		h.Recent = recent
	}
	return h
}

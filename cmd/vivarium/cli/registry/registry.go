// Package registry owns the roster of live agent sessions.
//
// The registry enforces the lifecycle rules around session creation
// (identity validation, capacity, creation cooldown, per-source numbering,
// role derivation), activity updates, grace-period eviction, and the
// waiting-for-input heuristic. Every public operation has a defined
// "did nothing" outcome for bad input; nothing here panics or raises on a
// malformed event.
//
// The registry is not internally locked: all access is serialized by the
// single writer that owns it (see server.Engine).
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/agent"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/logging"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/validation"
)

// Lifecycle constants. MaxSessions is a hard cap on roster size;
// CreationCooldown is a global rate limit on session creation (a single
// last-creation timestamp, deliberately not a token bucket — it throttles
// creation bursts from spoofed ids, not per-agent activity volume).
const (
	MaxSessions      = 12
	CreationCooldown = 2 * time.Second

	// DefaultEvictionTimeout is the grace period after which an unseen
	// session is swept.
	DefaultEvictionTimeout = 5 * time.Minute

	// DefaultWaitingThreshold is how long a session must sit idle after
	// its last tool end before it is inferred to be waiting for input.
	DefaultWaitingThreshold = 30 * time.Second
)

// Status is an informational terminal-looking state set by agent-stop
// events. It self-clears once the session resumes activity.
type Status string

// Stop statuses reported by producers.
const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusError     Status = "error"
)

// Session is one live coding-agent process's state in the roster.
type Session struct {
	AgentID     string       `json:"agentId"`
	Source      agent.Source `json:"source"`
	DisplayName string       `json:"displayName"`
	Ordinal     int          `json:"ordinal"`
	Role        agent.Role   `json:"role"`

	AgentType  string `json:"agentType,omitempty"`
	AgentRole  string `json:"agentRole,omitempty"`
	CustomName string `json:"agentName,omitempty"`
	Model      string `json:"model,omitempty"`

	ParentAgentID string   `json:"parentAgentId,omitempty"`
	ChildAgentIDs []string `json:"childAgentIds"`

	OperationCount   int `json:"operationCount"`
	FileReads        int `json:"fileReads"`
	FileWrites       int `json:"fileWrites"`
	SkillInvocations int `json:"skillInvocations"`
	MCPCalls         int `json:"mcpCalls"`

	CurrentTool      string `json:"currentTool,omitempty"`
	CurrentSkill     string `json:"currentSkill,omitempty"`
	CurrentMCPServer string `json:"currentMcpServer,omitempty"`

	IsThinking      bool   `json:"isThinking"`
	WaitingForInput bool   `json:"waitingForInput"`
	Status          Status `json:"status,omitempty"`

	RegisteredAt time.Time `json:"registeredAt"`
	// LastActivity is the last event of any kind; drives eviction and the
	// waiting heuristic.
	LastActivity time.Time `json:"lastActivity"`
	// LastSeen is the last time the session was confirmed alive. Distinct
	// from LastActivity: a stop event bumps LastSeen without counting as
	// activity.
	LastSeen time.Time `json:"lastSeen"`

	LastToolStart time.Time `json:"lastToolStart,omitzero"`
	LastToolEnd   time.Time `json:"lastToolEnd,omitzero"`
}

// RegisterMeta is optional identity metadata supplied at registration.
type RegisterMeta struct {
	AgentType     string
	AgentName     string
	AgentRole     string
	ParentAgentID string
	Model         string
}

// Delta is a field-level update applied by Touch. Zero values mean
// "no change" for the respective field.
type Delta struct {
	ToolName  string
	ToolStart bool
	ToolEnd   bool

	Thinking *bool

	SkillName string
	MCPServer string
	MCPTool   string

	AddRead  bool
	AddWrite bool

	// Late-arriving identity metadata; triggers role re-derivation.
	AgentType     string
	AgentName     string
	AgentRole     string
	ParentAgentID string
	Model         string
}

// Registry is the session roster plus the process-wide active-skill and
// active-MCP-server sets.
type Registry struct {
	sessions         map[string]*Session
	activeSkills     map[string]struct{}
	activeMCPServers map[string]struct{}
	lastCreation     time.Time

	maxSessions int
	cooldown    time.Duration
}

// New returns an empty registry with the default capacity and cooldown.
func New() *Registry {
	return &Registry{
		sessions:         make(map[string]*Session),
		activeSkills:     make(map[string]struct{}),
		activeMCPServers: make(map[string]struct{}),
		maxSessions:      MaxSessions,
		cooldown:         CreationCooldown,
	}
}

// Len returns the roster size.
func (r *Registry) Len() int { return len(r.sessions) }

// Get returns the session for agentID, or nil.
func (r *Registry) Get(agentID string) *Session { return r.sessions[agentID] }

// Register creates (or idempotently returns) the session for agentID.
//
// Rejections are silent: a nil return means "ignore this event". The gates
// run in a fixed order — identity format, idempotent return, capacity,
// creation cooldown — so a replayed registration of a live session is never
// rate limited.
func (r *Registry) Register(ctx context.Context, agentID string, now time.Time, meta RegisterMeta) *Session {
	logCtx := logging.WithComponent(ctx, "registry")

	if err := validation.ValidateAgentID(agentID); err != nil {
		logging.Debug(logCtx, "rejected registration: invalid agent id",
			slog.String("agent_id", agentID),
			slog.Any("error", err),
		)
		return nil
	}

	if existing, ok := r.sessions[agentID]; ok {
		return existing
	}

	if len(r.sessions) >= r.maxSessions {
		logging.Warn(logCtx, "rejected registration: roster at capacity",
			slog.String("agent_id", agentID),
			slog.Int("capacity", r.maxSessions),
		)
		return nil
	}

	if !r.lastCreation.IsZero() && now.Sub(r.lastCreation) < r.cooldown {
		logging.Warn(logCtx, "rejected registration: creation cooldown active",
			slog.String("agent_id", agentID),
			slog.Duration("cooldown", r.cooldown),
		)
		return nil
	}

	source := agent.ParseSource(meta.AgentType)
	ordinal := r.nextOrdinal(source)
	s := &Session{
		AgentID:       agentID,
		Source:        source,
		Ordinal:       ordinal,
		Role:          agent.DeriveRole(meta.ParentAgentID, meta.AgentType+" "+meta.AgentRole, meta.AgentName),
		AgentType:     meta.AgentType,
		AgentRole:     meta.AgentRole,
		CustomName:    meta.AgentName,
		Model:         meta.Model,
		ParentAgentID: meta.ParentAgentID,
		ChildAgentIDs: []string{},
		RegisteredAt:  now,
		LastActivity:  now,
		LastSeen:      now,
	}
	s.DisplayName = displayName(s)
	r.sessions[agentID] = s
	r.lastCreation = now
	r.attachToParent(s)

	logging.Info(logCtx, "session registered",
		slog.String("agent_id", agentID),
		slog.String("display_name", s.DisplayName),
		slog.String("role", string(s.Role)),
		slog.Int("roster_size", len(r.sessions)),
	)
	return s
}

// nextOrdinal returns the smallest unused positive ordinal for source.
// Ordinals are reclaimed when sessions are evicted, so numbering is
// gap-filling by construction.
func (r *Registry) nextOrdinal(source agent.Source) int {
	used := make(map[int]bool)
	for _, s := range r.sessions {
		if s.Source == source {
			used[s.Ordinal] = true
		}
	}
	n := 1
	for used[n] {
		n++
	}
	return n
}

func displayName(s *Session) string {
	label := s.Source.Label()
	if s.CustomName != "" {
		label = s.CustomName
	}
	return fmt.Sprintf("%s %d", label, s.Ordinal)
}

func (r *Registry) attachToParent(s *Session) {
	if s.ParentAgentID == "" {
		return
	}
	parent, ok := r.sessions[s.ParentAgentID]
	if !ok {
		return
	}
	for _, id := range parent.ChildAgentIDs {
		if id == s.AgentID {
			return
		}
	}
	parent.ChildAgentIDs = append(parent.ChildAgentIDs, s.AgentID)
}

// Touch applies a field-level delta to an existing session. No-op when the
// session does not exist: creation only ever happens through Register.
func (r *Registry) Touch(agentID string, now time.Time, d Delta) {
	s, ok := r.sessions[agentID]
	if !ok {
		return
	}

	s.LastActivity = now
	s.LastSeen = now
	s.Status = "" // informational status self-clears on resumed activity

	if d.Thinking != nil {
		s.IsThinking = *d.Thinking
		if s.IsThinking {
			s.WaitingForInput = false
		}
	}

	if d.ToolStart {
		s.CurrentTool = d.ToolName
		s.OperationCount++
		s.LastToolStart = now
		s.WaitingForInput = false
	}
	if d.ToolEnd {
		s.CurrentTool = ""
		s.LastToolEnd = now
	}

	if d.AddRead {
		s.FileReads++
	}
	if d.AddWrite {
		s.FileWrites++
	}

	if d.SkillName != "" {
		s.CurrentSkill = d.SkillName
		s.SkillInvocations++
		r.activeSkills[d.SkillName] = struct{}{}
	}
	if d.MCPServer != "" {
		s.CurrentMCPServer = d.MCPServer
		s.MCPCalls++
		r.activeMCPServers[d.MCPServer] = struct{}{}
	}

	r.applyLateMeta(s, d)
}

// applyLateMeta fills in identity metadata that arrives after registration
// and re-derives the role when anything changed.
func (r *Registry) applyLateMeta(s *Session, d Delta) {
	changed := false
	if d.AgentType != "" && s.AgentType == "" {
		s.AgentType = d.AgentType
		if s.Source == agent.SourceUnknown {
			if src := agent.ParseSource(d.AgentType); src != agent.SourceUnknown {
				// The session changes numbering namespace with its
				// source, so the ordinal is reallocated.
				s.Source = src
				s.Ordinal = 0
				s.Ordinal = r.nextOrdinal(src)
			}
		}
		changed = true
	}
	if d.AgentRole != "" && s.AgentRole == "" {
		s.AgentRole = d.AgentRole
		changed = true
	}
	if d.AgentName != "" && s.CustomName == "" {
		s.CustomName = d.AgentName
		changed = true
	}
	if d.ParentAgentID != "" && s.ParentAgentID == "" {
		s.ParentAgentID = d.ParentAgentID
		r.attachToParent(s)
		changed = true
	}
	if d.Model != "" && s.Model == "" {
		s.Model = d.Model
	}
	if changed {
		// Re-derivation only ever adds information: the registration-time
		// role hint stays part of the probe.
		s.Role = agent.DeriveRole(s.ParentAgentID, s.AgentType+" "+s.AgentRole, s.CustomName)
		s.DisplayName = displayName(s)
	}
}

// MarkStopped records a terminal-looking status for a session. The session
// is not evicted; only the sweep removes sessions.
func (r *Registry) MarkStopped(agentID string, status Status, now time.Time) {
	s, ok := r.sessions[agentID]
	if !ok {
		return
	}
	s.Status = status
	s.IsThinking = false
	s.CurrentTool = ""
	s.LastSeen = now
}

// SweepStale evicts every session whose last activity is strictly older
// than timeout (a session exactly at the boundary survives). Evicted
// sessions are detached from their parent's child list, and skill/MCP tags
// no remaining session references are dropped from the active sets.
// Returns the evicted agent ids.
func (r *Registry) SweepStale(ctx context.Context, now time.Time, timeout time.Duration) []string {
	logCtx := logging.WithComponent(ctx, "registry")

	var evicted []string
	for id, s := range r.sessions {
		if now.Sub(s.LastActivity) > timeout {
			evicted = append(evicted, id)
			logging.Info(logCtx, "session evicted",
				slog.String("agent_id", id),
				slog.String("display_name", s.DisplayName),
				slog.Time("last_activity", s.LastActivity),
			)
		}
	}
	sort.Strings(evicted)

	for _, id := range evicted {
		s := r.sessions[id]
		delete(r.sessions, id)
		if parent, ok := r.sessions[s.ParentAgentID]; ok {
			parent.ChildAgentIDs = removeString(parent.ChildAgentIDs, id)
		}
	}

	if len(evicted) > 0 {
		r.pruneActiveSets()
	}
	return evicted
}

// pruneActiveSets drops skill/MCP tags that no remaining session references.
func (r *Registry) pruneActiveSets() {
	referencedSkills := make(map[string]struct{})
	referencedServers := make(map[string]struct{})
	for _, s := range r.sessions {
		if s.CurrentSkill != "" {
			referencedSkills[s.CurrentSkill] = struct{}{}
		}
		if s.CurrentMCPServer != "" {
			referencedServers[s.CurrentMCPServer] = struct{}{}
		}
	}
	for skill := range r.activeSkills {
		if _, ok := referencedSkills[skill]; !ok {
			delete(r.activeSkills, skill)
		}
	}
	for server := range r.activeMCPServers {
		if _, ok := referencedServers[server]; !ok {
			delete(r.activeMCPServers, server)
		}
	}
}

// InferWaiting flips WaitingForInput on sessions that are not thinking and
// have had no tool start within threshold of their last tool end. This is a
// polling heuristic (producers send no explicit "blocked" signal), run on
// the periodic sweep rather than per event. Returns the number of sessions
// that changed.
func (r *Registry) InferWaiting(now time.Time, threshold time.Duration) int {
	changed := 0
	for _, s := range r.sessions {
		if s.IsThinking || s.WaitingForInput || s.LastToolEnd.IsZero() {
			continue
		}
		if s.LastToolStart.After(s.LastToolEnd) {
			continue // a tool is running
		}
		if now.Sub(s.LastToolEnd) > threshold {
			s.WaitingForInput = true
			changed++
		}
	}
	return changed
}

// Snapshot returns a deep copy of the roster, ordered by source then
// ordinal so viewers see stable ordering.
func (r *Registry) Snapshot() []Session {
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		cp := *s
		cp.ChildAgentIDs = append([]string{}, s.ChildAgentIDs...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	return out
}

// ActiveSkills returns the process-wide active skill tags, sorted.
func (r *Registry) ActiveSkills() []string { return sortedKeys(r.activeSkills) }

// ActiveMCPServers returns the process-wide active MCP server tags, sorted.
func (r *Registry) ActiveMCPServers() []string { return sortedKeys(r.activeMCPServers) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

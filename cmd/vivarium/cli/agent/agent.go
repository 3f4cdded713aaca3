// Package agent holds producer-side metadata: which tool a session came
// from, how it is labeled in display names, and how its role is derived.
package agent

import "strings"

// Source identifies the producer tool that emitted an event.
type Source string

// Known producer kinds. Unknown is the fallback for producers that never
// identify themselves; their sessions still get tracked.
const (
	SourceClaude  Source = "claude"
	SourceCursor  Source = "cursor"
	SourceUnknown Source = "unknown"
)

// ParseSource maps a producer hint (the agentType field of a hook payload)
// to a Source. Hints are producer-controlled free text, so matching is
// loose.
func ParseSource(hint string) Source {
	h := strings.ToLower(hint)
	switch {
	case strings.Contains(h, "claude"):
		return SourceClaude
	case strings.Contains(h, "cursor"):
		return SourceCursor
	default:
		return SourceUnknown
	}
}

// Label returns the display-name prefix for a source.
func (s Source) Label() string {
	switch s {
	case SourceClaude:
		return "Claude"
	case SourceCursor:
		return "Cursor"
	default:
		return "Agent"
	}
}

// Role classifies a session within the roster.
type Role string

// Session roles. A session with a parent is always a sub-agent; a
// recognizable specialist type or name wins over main.
const (
	RoleMain       Role = "main"
	RoleSubAgent   Role = "sub-agent"
	RoleSpecialist Role = "specialist"
)

// specialistKeywords are agent type/name fragments that indicate a
// special-purpose agent rather than the primary coding session.
var specialistKeywords = []string{
	"architect",
	"reviewer",
	"review",
	"planner",
	"plan",
	"tester",
	"test-runner",
	"security",
	"docs",
	"explore",
	"research",
}

// DeriveRole derives a session's role from registration metadata.
// Re-derived when richer metadata arrives after registration.
func DeriveRole(parentAgentID, agentType, agentName string) Role {
	if parentAgentID != "" {
		return RoleSubAgent
	}
	probe := strings.ToLower(agentType + " " + agentName)
	for _, kw := range specialistKeywords {
		if strings.Contains(probe, kw) {
			return RoleSpecialist
		}
	}
	return RoleMain
}

package server

import (
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/event"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/registry"
)

// Wire aliases for the ingest payloads; see package event.
type (
	// ActivityEvent is the file-activity message family.
	ActivityEvent = event.Activity
	// AgentEvent is the session/tool-state message family.
	AgentEvent = event.Agent
)

// Snapshot kinds pushed to observers.
const (
	KindGraph  = "graph"
	KindAgents = "agents"
)

// RosterSnapshot is the agents payload pushed to observers and served on
// the read endpoint.
type RosterSnapshot struct {
	Agents           []registry.Session `json:"agents"`
	ActiveSkills     []string           `json:"activeSkills"`
	ActiveMCPServers []string           `json:"activeMcpServers"`
}

// HotFolder is one entry of the merged hot-folders view: git-history score
// plus files touched by live agent activity.
type HotFolder struct {
	Folder      string   `json:"folder"`
	Score       float64  `json:"score"`
	RecentFiles []string `json:"recentFiles,omitempty"`
	LiveFiles   []string `json:"liveFiles,omitempty"`
}

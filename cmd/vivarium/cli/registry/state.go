package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/jsonutil"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/logging"
)

// Roster persistence for crash restarts. The full roster plus the active
// skill/MCP sets is written as a single JSON document, overwritten
// atomically on each persistence tick.

// StateFileName is the roster state file written under the state directory.
const StateFileName = "sessions.json"

// PersistedState is the on-disk document layout.
type PersistedState struct {
	SavedAt          time.Time `json:"savedAt"`
	Sessions         []Session `json:"sessions"`
	ActiveSkills     []string  `json:"activeSkills"`
	ActiveMCPServers []string  `json:"activeMcpServers"`
}

// ExportState captures the roster for persistence. The export is a deep
// copy so the caller can write it to disk off the hot path.
func (r *Registry) ExportState(now time.Time) PersistedState {
	return PersistedState{
		SavedAt:          now,
		Sessions:         r.Snapshot(),
		ActiveSkills:     r.ActiveSkills(),
		ActiveMCPServers: r.ActiveMCPServers(),
	}
}

// ImportState restores sessions from a persisted document. Only sessions
// whose last activity is still within timeout are restored; older entries
// are silently dropped rather than resurrected as zombies. The active sets
// are restored intersected with what the surviving sessions reference.
// Returns the number of sessions restored.
func (r *Registry) ImportState(ctx context.Context, st PersistedState, now time.Time, timeout time.Duration) int {
	logCtx := logging.WithComponent(ctx, "registry")

	restored := 0
	for _, s := range st.Sessions {
		if now.Sub(s.LastActivity) > timeout {
			logging.Debug(logCtx, "dropping stale persisted session",
				slog.String("agent_id", s.AgentID),
				slog.Time("last_activity", s.LastActivity),
			)
			continue
		}
		if len(r.sessions) >= r.maxSessions {
			break
		}
		cp := s
		if cp.ChildAgentIDs == nil {
			cp.ChildAgentIDs = []string{}
		}
		r.sessions[cp.AgentID] = &cp
		restored++
	}

	// Child lists may reference sessions that were dropped as stale.
	for _, s := range r.sessions {
		kept := s.ChildAgentIDs[:0]
		for _, id := range s.ChildAgentIDs {
			if _, ok := r.sessions[id]; ok {
				kept = append(kept, id)
			}
		}
		s.ChildAgentIDs = kept
	}

	for _, skill := range st.ActiveSkills {
		r.activeSkills[skill] = struct{}{}
	}
	for _, server := range st.ActiveMCPServers {
		r.activeMCPServers[server] = struct{}{}
	}
	r.pruneActiveSets()

	if restored > 0 {
		logging.Info(logCtx, "restored persisted sessions",
			slog.Int("restored", restored),
			slog.Int("dropped", len(st.Sessions)-restored),
		)
	}
	return restored
}

// Store reads and writes the roster state file.
type Store struct {
	path string
}

// NewStore returns a store writing to StateFileName under dir.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, StateFileName)}
}

// Path returns the state file path.
func (st *Store) Path() string { return st.path }

// Save writes the document atomically: temp file, then rename.
func (st *Store) Save(state PersistedState) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := jsonutil.MarshalIndentWithNewline(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal roster state: %w", err)
	}

	tmpFile := st.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write roster state: %w", err)
	}
	if err := os.Rename(tmpFile, st.path); err != nil {
		return fmt.Errorf("failed to rename roster state file: %w", err)
	}
	return nil
}

// Load reads the document. Returns (nil, nil) when no state file exists —
// a fresh start is not an error condition.
func (st *Store) Load() (*PersistedState, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read roster state: %w", err)
	}

	var state PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse roster state: %w", err)
	}
	return &state, nil
}

package claudecode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/event"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/validation"
)

// AgentTypeName is the agentType hint sent for Claude Code sessions.
const AgentTypeName = "claude-code"

const maxHookInput = 1 << 20

// ParseHookPayload reads and validates a hook payload from stdin.
func ParseHookPayload(stdin io.Reader) (*HookPayload, error) {
	data, err := io.ReadAll(io.LimitReader(stdin, maxHookInput))
	if err != nil {
		return nil, fmt.Errorf("failed to read hook input: %w", err)
	}

	var p HookPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse hook input: %w", err)
	}
	if p.SessionID == "" {
		return nil, fmt.Errorf("missing session_id in hook input")
	}
	if err := validation.ValidateAgentID(p.SessionID); err != nil {
		return nil, fmt.Errorf("invalid session_id: %w", err)
	}
	return &p, nil
}

// toolOp maps a Claude Code tool name to an activity operation.
func toolOp(tool string) (string, bool) {
	switch tool {
	case "Read", "NotebookRead":
		return "read", true
	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		return "write", true
	case "Grep", "Glob":
		return "search", true
	default:
		return "", false
	}
}

// toolPath extracts the file path (or search pattern) from tool_input.
func toolPath(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var ti toolInputPath
	if err := json.Unmarshal(input, &ti); err != nil {
		return ""
	}
	if ti.FilePath != "" {
		return ti.FilePath
	}
	if ti.Path != "" {
		return ti.Path
	}
	return ti.Pattern
}

// Events maps one hook invocation to the daemon events it produces.
// Unknown hooks produce nothing.
func (p *HookPayload) Events(hookName string, now time.Time) ([]event.Agent, []event.Activity) {
	millis := now.UnixMilli()

	switch hookName {
	case HookNamePreToolUse:
		agents := []event.Agent{{
			Type:      "thinking-start",
			AgentID:   p.SessionID,
			Timestamp: millis,
			ToolName:  p.ToolName,
			ToolInput: p.ToolInput,
			AgentType: AgentTypeName,
		}}
		var acts []event.Activity
		if op, ok := toolOp(p.ToolName); ok {
			if path := toolPath(p.ToolInput); path != "" {
				acts = append(acts, event.Activity{
					Type:      op + "-start",
					FilePath:  path,
					AgentID:   p.SessionID,
					Timestamp: millis,
				})
			}
		}
		return agents, acts

	case HookNamePostToolUse:
		agents := []event.Agent{{
			Type:      "thinking-end",
			AgentID:   p.SessionID,
			Timestamp: millis,
			ToolName:  p.ToolName,
			AgentType: AgentTypeName,
		}}
		var acts []event.Activity
		if op, ok := toolOp(p.ToolName); ok {
			if path := toolPath(p.ToolInput); path != "" {
				acts = append(acts, event.Activity{
					Type:      op + "-end",
					FilePath:  path,
					AgentID:   p.SessionID,
					Timestamp: millis,
				})
			}
		}
		return agents, acts

	case HookNameStop:
		return []event.Agent{{
			Type:      "agent-stop",
			AgentID:   p.SessionID,
			Timestamp: millis,
			Status:    "completed",
			AgentType: AgentTypeName,
		}}, nil

	default:
		return nil, nil
	}
}

// Relay posts hook events to a running daemon. Failures are returned for
// logging but hook commands always exit zero — a missing daemon must never
// block the agent.
type Relay struct {
	baseURL string
	client  *http.Client
}

// NewRelay returns a relay for the daemon at baseURL.
func NewRelay(baseURL string) *Relay {
	return &Relay{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Second},
	}
}

// Deliver posts all events for one hook invocation.
func (r *Relay) Deliver(ctx context.Context, hookName string, p *HookPayload, now time.Time) error {
	agents, acts := p.Events(hookName, now)
	for _, ev := range agents {
		if err := r.post(ctx, "/api/agent", ev); err != nil {
			return err
		}
	}
	for _, ev := range acts {
		if err := r.post(ctx, "/api/activity", ev); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) post(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body close error is unactionable
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon rejected event: %s", resp.Status)
	}
	return nil
}

package claudecode

import "encoding/json"

// Hook names exposed as CLI subcommands under `vivarium hooks claude`.
const (
	HookNamePreToolUse  = "pre-tool-use"
	HookNamePostToolUse = "post-tool-use"
	HookNameStop        = "stop"
)

// Claude Code hook event names as they appear in settings.json and in the
// hook_event_name payload field.
const (
	eventPreToolUse  = "PreToolUse"
	eventPostToolUse = "PostToolUse"
	eventStop        = "Stop"
)

// SettingsFileName is the project-level Claude Code settings file.
const SettingsFileName = "settings.json"

// hookCommand is one command entry inside a matcher group.
type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

// hookMatcher groups commands under a tool-name matcher.
type hookMatcher struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []hookCommand `json:"hooks"`
}

// HookPayload is the JSON Claude Code writes to a hook's stdin. Only the
// fields the relay needs are declared; everything else passes through.
type HookPayload struct {
	SessionID      string          `json:"session_id"`
	Cwd            string          `json:"cwd,omitempty"`
	HookEventName  string          `json:"hook_event_name,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	StopHookActive bool            `json:"stop_hook_active,omitempty"`
}

// toolInputPath is the subset of tool_input carrying a file path or
// search pattern.
type toolInputPath struct {
	FilePath string `json:"file_path,omitempty"`
	Path     string `json:"path,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
}

// Package event defines the wire payloads posted by hook producers.
//
// Producers are untrusted shell scripts: decoding is lenient (unknown
// fields ignored) and every malformed value degrades to "ignore", never to
// a crash.
package event

import "encoding/json"

// Activity is the file-activity message family.
type Activity struct {
	Type      string `json:"type"` // read-start|read-end|write-start|write-end|search-start|search-end
	FilePath  string `json:"filePath"`
	AgentID   string `json:"agentId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // epoch millis; zero means "now"
	SkillName string `json:"skillName,omitempty"`
	MCPServer string `json:"mcpServer,omitempty"`
}

// Agent is the session/tool-state message family.
type Agent struct {
	Type          string          `json:"type"` // thinking-start|thinking-end|agent-stop
	AgentID       string          `json:"agentId"`
	Timestamp     int64           `json:"timestamp,omitempty"`
	ToolName      string          `json:"toolName,omitempty"`
	ToolInput     json.RawMessage `json:"toolInput,omitempty"`
	AgentType     string          `json:"agentType,omitempty"`
	Model         string          `json:"model,omitempty"`
	Duration      int64           `json:"duration,omitempty"`
	Status        string          `json:"status,omitempty"`
	AgentName     string          `json:"agentName,omitempty"`
	AgentRole     string          `json:"agentRole,omitempty"`
	ParentAgentID string          `json:"parentAgentId,omitempty"`
	SkillName     string          `json:"skillName,omitempty"`
	SkillCommand  string          `json:"skillCommand,omitempty"`
	MCPServer     string          `json:"mcpServer,omitempty"`
	MCPTool       string          `json:"mcpTool,omitempty"`
}

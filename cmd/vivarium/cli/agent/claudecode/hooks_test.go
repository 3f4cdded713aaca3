package claudecode

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readSettings(t *testing.T, projectRoot string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(settingsPath(projectRoot))
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("parse settings: %v", err)
	}
	return raw
}

func writeSettings(t *testing.T, projectRoot, content string) {
	t.Helper()
	path := settingsPath(projectRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
}

func TestInstallHooks_FreshProject(t *testing.T) {
	dir := t.TempDir()

	count, err := InstallHooks(dir, false, false)
	if err != nil {
		t.Fatalf("InstallHooks: %v", err)
	}
	if count != 3 {
		t.Errorf("installed %d hooks, want 3", count)
	}
	if !AreHooksInstalled(dir) {
		t.Error("AreHooksInstalled = false after install")
	}

	raw := readSettings(t, dir)
	var hooks map[string][]hookMatcher
	if err := json.Unmarshal(raw["hooks"], &hooks); err != nil {
		t.Fatalf("parse hooks: %v", err)
	}
	for _, ev := range managedEvents {
		matchers, ok := hooks[ev]
		if !ok || len(matchers) != 1 {
			t.Errorf("event %s: matchers = %v", ev, matchers)
			continue
		}
		if got := matchers[0].Hooks[0].Command; !isVivariumHook(got) {
			t.Errorf("event %s: command = %q, not recognized as ours", ev, got)
		}
	}
}

func TestInstallHooks_IsIdempotent(t *testing.T) {
	dir := t.TempDir()

	if _, err := InstallHooks(dir, false, false); err != nil {
		t.Fatalf("first install: %v", err)
	}
	count, err := InstallHooks(dir, false, false)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if count != 0 {
		t.Errorf("second install added %d hooks, want 0", count)
	}
}

func TestInstallHooks_PreservesForeignContent(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, `{
  "permissions": {"allow": ["Bash(ls:*)"]},
  "hooks": {
    "PreToolUse": [
      {"matcher": "Bash", "hooks": [{"type": "command", "command": "my-linter check"}]}
    ],
    "SessionStart": [
      {"hooks": [{"type": "command", "command": "my-banner"}]}
    ]
  }
}`)

	if _, err := InstallHooks(dir, false, false); err != nil {
		t.Fatalf("InstallHooks: %v", err)
	}
	if err := UninstallHooks(dir); err != nil {
		t.Fatalf("UninstallHooks: %v", err)
	}

	raw := readSettings(t, dir)
	if _, ok := raw["permissions"]; !ok {
		t.Error("unknown top-level key dropped on round-trip")
	}
	var hooks map[string][]hookMatcher
	if err := json.Unmarshal(raw["hooks"], &hooks); err != nil {
		t.Fatalf("parse hooks: %v", err)
	}
	pre := hooks["PreToolUse"]
	if len(pre) != 1 || pre[0].Hooks[0].Command != "my-linter check" {
		t.Errorf("foreign PreToolUse hook not preserved: %v", pre)
	}
	if _, ok := hooks["SessionStart"]; !ok {
		t.Error("foreign hook event dropped on round-trip")
	}
	if AreHooksInstalled(dir) {
		t.Error("AreHooksInstalled = true after uninstall")
	}
}

func TestUninstallHooks_RemovesHooksKeyWhenEmpty(t *testing.T) {
	dir := t.TempDir()

	if _, err := InstallHooks(dir, false, false); err != nil {
		t.Fatalf("InstallHooks: %v", err)
	}
	if err := UninstallHooks(dir); err != nil {
		t.Fatalf("UninstallHooks: %v", err)
	}

	raw := readSettings(t, dir)
	if _, ok := raw["hooks"]; ok {
		t.Error("empty hooks key left behind")
	}
}

func TestUninstallHooks_NoSettingsFile(t *testing.T) {
	if err := UninstallHooks(t.TempDir()); err != nil {
		t.Errorf("UninstallHooks on empty project: %v", err)
	}
}

func TestInstallHooks_ForceReplacesLocalDevVariant(t *testing.T) {
	dir := t.TempDir()

	if _, err := InstallHooks(dir, true, false); err != nil {
		t.Fatalf("local-dev install: %v", err)
	}
	count, err := InstallHooks(dir, false, true)
	if err != nil {
		t.Fatalf("forced install: %v", err)
	}
	if count != 3 {
		t.Errorf("forced install added %d hooks, want 3", count)
	}

	raw := readSettings(t, dir)
	var hooks map[string][]hookMatcher
	if err := json.Unmarshal(raw["hooks"], &hooks); err != nil {
		t.Fatalf("parse hooks: %v", err)
	}
	for _, ev := range managedEvents {
		for _, m := range hooks[ev] {
			for _, h := range m.Hooks {
				if got, want := h.Command, "vivarium hooks claude "; len(got) < len(want) || got[:len(want)] != want {
					t.Errorf("event %s: command = %q, want release variant", ev, got)
				}
			}
		}
	}
}

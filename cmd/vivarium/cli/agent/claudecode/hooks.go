// Package claudecode installs and relays Claude Code hooks.
//
// InstallHooks wires `vivarium hooks claude <verb>` commands into the
// project's .claude/settings.json; the relay side (relay.go) translates the
// hook stdin payloads into daemon events. Unknown settings keys and hook
// groups that are not ours are preserved on round-trip.
package claudecode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/jsonutil"
)

// vivariumHookPrefixes identify hook commands managed by vivarium.
var vivariumHookPrefixes = []string{
	"vivarium ",
	"go run ${CLAUDE_PROJECT_DIR}/cmd/vivarium/main.go ",
}

// managedEvents are the Claude Code hook events vivarium subscribes to.
var managedEvents = []string{eventPreToolUse, eventPostToolUse, eventStop}

func settingsPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".claude", SettingsFileName)
}

// InstallHooks adds vivarium hook entries to .claude/settings.json.
// If force is true, existing vivarium hooks are removed first.
// Returns the number of hook entries added.
func InstallHooks(projectRoot string, localDev, force bool) (int, error) {
	path := settingsPath(projectRoot)

	// Raw maps preserve unknown top-level fields and hook events.
	rawFile := map[string]json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // fixed path under project root
		if err := json.Unmarshal(data, &rawFile); err != nil {
			return 0, fmt.Errorf("failed to parse existing %s: %w", SettingsFileName, err)
		}
	}

	rawHooks := map[string]json.RawMessage{}
	if hooksRaw, ok := rawFile["hooks"]; ok {
		if err := json.Unmarshal(hooksRaw, &rawHooks); err != nil {
			return 0, fmt.Errorf("failed to parse hooks in %s: %w", SettingsFileName, err)
		}
	}

	cmdPrefix := "vivarium hooks claude "
	if localDev {
		cmdPrefix = "go run ${CLAUDE_PROJECT_DIR}/cmd/vivarium/main.go hooks claude "
	}
	verbs := map[string]string{
		eventPreToolUse:  cmdPrefix + HookNamePreToolUse,
		eventPostToolUse: cmdPrefix + HookNamePostToolUse,
		eventStop:        cmdPrefix + HookNameStop,
	}

	count := 0
	for _, ev := range managedEvents {
		var matchers []hookMatcher
		parseHookEvent(rawHooks, ev, &matchers)
		if force {
			matchers = removeVivariumHooks(matchers)
		}
		if !hookCommandExists(matchers, verbs[ev]) {
			matchers = append(matchers, hookMatcher{
				Matcher: "*",
				Hooks:   []hookCommand{{Type: "command", Command: verbs[ev]}},
			})
			count++
		}
		marshalHookEvent(rawHooks, ev, matchers)
	}

	if count == 0 {
		return 0, nil
	}

	hooksJSON, err := json.Marshal(rawHooks)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal hooks: %w", err)
	}
	rawFile["hooks"] = hooksJSON

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create .claude directory: %w", err)
	}
	output, err := jsonutil.MarshalIndentWithNewline(rawFile, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s: %w", SettingsFileName, err)
	}
	if err := os.WriteFile(path, output, 0o600); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", SettingsFileName, err)
	}
	return count, nil
}

// UninstallHooks removes vivarium hook entries. Unknown fields and foreign
// hooks are preserved on round-trip.
func UninstallHooks(projectRoot string) error {
	path := settingsPath(projectRoot)
	data, err := os.ReadFile(path) //nolint:gosec // fixed path under project root
	if err != nil {
		return nil //nolint:nilerr // No settings file means nothing to uninstall
	}

	var rawFile map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawFile); err != nil {
		return fmt.Errorf("failed to parse %s: %w", SettingsFileName, err)
	}
	rawHooks := map[string]json.RawMessage{}
	if hooksRaw, ok := rawFile["hooks"]; ok {
		if err := json.Unmarshal(hooksRaw, &rawHooks); err != nil {
			return fmt.Errorf("failed to parse hooks in %s: %w", SettingsFileName, err)
		}
	}

	for _, ev := range managedEvents {
		var matchers []hookMatcher
		parseHookEvent(rawHooks, ev, &matchers)
		marshalHookEvent(rawHooks, ev, removeVivariumHooks(matchers))
	}

	if len(rawHooks) > 0 {
		hooksJSON, err := json.Marshal(rawHooks)
		if err != nil {
			return fmt.Errorf("failed to marshal hooks: %w", err)
		}
		rawFile["hooks"] = hooksJSON
	} else {
		delete(rawFile, "hooks")
	}

	output, err := jsonutil.MarshalIndentWithNewline(rawFile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", SettingsFileName, err)
	}
	if err := os.WriteFile(path, output, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", SettingsFileName, err)
	}
	return nil
}

// AreHooksInstalled reports whether any vivarium hook entry is present.
func AreHooksInstalled(projectRoot string) bool {
	data, err := os.ReadFile(settingsPath(projectRoot)) //nolint:gosec // fixed path under project root
	if err != nil {
		return false
	}
	var rawFile map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawFile); err != nil {
		return false
	}
	rawHooks := map[string]json.RawMessage{}
	if hooksRaw, ok := rawFile["hooks"]; ok {
		if err := json.Unmarshal(hooksRaw, &rawHooks); err != nil {
			return false
		}
	}
	for _, ev := range managedEvents {
		var matchers []hookMatcher
		parseHookEvent(rawHooks, ev, &matchers)
		for _, m := range matchers {
			for _, h := range m.Hooks {
				if isVivariumHook(h.Command) {
					return true
				}
			}
		}
	}
	return false
}

// parseHookEvent parses one hook event's matcher list from rawHooks.
// Parse errors are ignored, leaving the target unchanged.
func parseHookEvent(rawHooks map[string]json.RawMessage, ev string, target *[]hookMatcher) {
	if data, ok := rawHooks[ev]; ok {
		//nolint:errcheck,gosec // Intentionally ignoring parse errors - leave target as nil/empty
		json.Unmarshal(data, target)
	}
}

// marshalHookEvent writes a matcher list back, dropping the key when empty.
func marshalHookEvent(rawHooks map[string]json.RawMessage, ev string, matchers []hookMatcher) {
	if len(matchers) == 0 {
		delete(rawHooks, ev)
		return
	}
	data, err := json.Marshal(matchers)
	if err != nil {
		return
	}
	rawHooks[ev] = data
}

func hookCommandExists(matchers []hookMatcher, command string) bool {
	for _, m := range matchers {
		for _, h := range m.Hooks {
			if h.Command == command {
				return true
			}
		}
	}
	return false
}

func isVivariumHook(command string) bool {
	for _, prefix := range vivariumHookPrefixes {
		if strings.HasPrefix(command, prefix) {
			return true
		}
	}
	return false
}

// removeVivariumHooks drops our commands, then any matcher group left
// empty.
func removeVivariumHooks(matchers []hookMatcher) []hookMatcher {
	result := make([]hookMatcher, 0, len(matchers))
	for _, m := range matchers {
		kept := make([]hookCommand, 0, len(m.Hooks))
		for _, h := range m.Hooks {
			if !isVivariumHook(h.Command) {
				kept = append(kept, h)
			}
		}
		if len(kept) > 0 {
			m.Hooks = kept
			result = append(result, m)
		}
	}
	return result
}

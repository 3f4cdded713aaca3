// Package settings loads daemon configuration from .vivarium/settings.json.
//
// Unknown keys are rejected so typos fail loudly instead of silently doing
// nothing. A missing file is not an error; defaults apply.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/jsonutil"
)

// SettingsDirName is the per-project configuration directory.
const SettingsDirName = ".vivarium"

// SettingsFileName is the configuration file inside SettingsDirName.
const SettingsFileName = "settings.json"

// Settings is the daemon configuration.
type Settings struct {
	// ListenAddr is the ingest/observer HTTP listen address.
	ListenAddr string `json:"listen_addr,omitempty"`
	// ProjectRoot is the absolute path events are canonicalized against.
	// Defaults to the directory the daemon is started in.
	ProjectRoot string `json:"project_root,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`
	// Telemetry enables anonymous usage telemetry. Off by default.
	Telemetry bool `json:"telemetry,omitempty"`
}

// Default returns the built-in configuration.
func Default() Settings {
	return Settings{
		ListenAddr: "127.0.0.1:4607",
		LogLevel:   "info",
	}
}

// Load reads settings from dir/.vivarium/settings.json, applying defaults
// for absent fields. A missing file yields the defaults.
func Load(dir string) (Settings, error) {
	s := Default()

	path := filepath.Join(dir, SettingsDirName, SettingsFileName)
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed from project dir + fixed path
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read settings: %w", err)
	}

	var loaded Settings
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&loaded); err != nil {
		return s, fmt.Errorf("failed to parse %s: %w", SettingsFileName, err)
	}

	if loaded.ListenAddr != "" {
		s.ListenAddr = loaded.ListenAddr
	}
	if loaded.ProjectRoot != "" {
		s.ProjectRoot = loaded.ProjectRoot
	}
	if loaded.LogLevel != "" {
		s.LogLevel = loaded.LogLevel
	}
	s.Telemetry = loaded.Telemetry
	return s, nil
}

// Save writes settings to dir/.vivarium/settings.json.
func Save(dir string, s Settings) error {
	settingsDir := filepath.Join(dir, SettingsDirName)
	if err := os.MkdirAll(settingsDir, 0o750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := jsonutil.MarshalIndentWithNewline(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	path := filepath.Join(settingsDir, SettingsFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// StateDir returns the directory roster state is persisted under.
func StateDir(dir string) string {
	return filepath.Join(dir, SettingsDirName)
}

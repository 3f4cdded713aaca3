package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ListenAddr != "127.0.0.1:4607" || s.LogLevel != "info" || s.Telemetry {
		t.Errorf("defaults = %+v", s)
	}
}

func TestLoad_PartialFileKeepsOtherDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, `{"listen_addr": "127.0.0.1:9999"}`)

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("listen addr = %q", s.ListenAddr)
	}
	if s.LogLevel != "info" {
		t.Errorf("log level = %q, want default kept", s.LogLevel)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, `{"listen_adr": "127.0.0.1:9999"}`)

	if _, err := Load(dir); err == nil {
		t.Error("want error for unknown key, got nil")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := Settings{
		ListenAddr:  "127.0.0.1:5000",
		ProjectRoot: "/work/repo",
		LogLevel:    "debug",
		Telemetry:   true,
	}
	if err := Save(dir, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func writeFile(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, SettingsDirName, SettingsFileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLogLevel(t *testing.T) {
	c := Default()
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", c.LogLevel, "info")
	}
}

func TestLoadFileMergesOntoBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "irve.yaml")
	contents := "images:\n  - a.elf\n  - b.elf\nlog_level: debug\nmonitor: true\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	base := Default()
	base.DebugPort = 1234

	merged, err := LoadFile(path, base)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(merged.ImagePaths) != 2 || merged.ImagePaths[0] != "a.elf" || merged.ImagePaths[1] != "b.elf" {
		t.Errorf("ImagePaths = %v, want [a.elf b.elf]", merged.ImagePaths)
	}
	if merged.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (file should override base's default)", merged.LogLevel)
	}
	if !merged.Monitor {
		t.Error("Monitor should be true from the file")
	}
	if merged.DebugPort != 1234 {
		t.Errorf("DebugPort = %d, want 1234 (base value preserved since file left it unset)", merged.DebugPort)
	}
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	_, err := LoadFile("/nonexistent/irve.yaml", Default())
	if err == nil {
		t.Fatal("expected an error reading a nonexistent config file")
	}
}

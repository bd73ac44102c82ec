package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "planspace.json", `{
		"listen": ":9090",
		"data_dir": "/var/lib/planspace",
		"result_wait_seconds": 1.5
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen == nil || *cfg.Listen != ":9090" {
		t.Errorf("listen = %v", cfg.Listen)
	}
	if cfg.DataDir == nil || *cfg.DataDir != "/var/lib/planspace" {
		t.Errorf("data_dir = %v", cfg.DataDir)
	}
	if got := cfg.ResultWait(3 * time.Second); got != 1500*time.Millisecond {
		t.Errorf("ResultWait = %v", got)
	}
	// absent keys stay nil
	if cfg.JournalPath != nil {
		t.Errorf("journal_path = %v, want nil", cfg.JournalPath)
	}
}

func TestLoadRejectsWrongExtension(t *testing.T) {
	path := writeConfig(t, "planspace.yaml", `listen: ":9090"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-json extension")
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := writeConfig(t, "broken.json", `{listen`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResultWaitDefaults(t *testing.T) {
	var cfg *Config
	if got := cfg.ResultWait(3 * time.Second); got != 3*time.Second {
		t.Errorf("nil config ResultWait = %v", got)
	}

	zero := 0.0
	cfg = &Config{ResultWaitSeconds: &zero}
	if got := cfg.ResultWait(3 * time.Second); got != 3*time.Second {
		t.Errorf("zero ResultWait = %v", got)
	}
}

func TestStringOr(t *testing.T) {
	v := "set"
	if got := StringOr(&v, "def"); got != "set" {
		t.Errorf("StringOr(&set) = %q", got)
	}
	if got := StringOr(nil, "def"); got != "def" {
		t.Errorf("StringOr(nil) = %q", got)
	}
	empty := ""
	if got := StringOr(&empty, "def"); got != "def" {
		t.Errorf("StringOr(&empty) = %q", got)
	}
}

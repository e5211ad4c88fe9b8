package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultKeepsAsymmetricLimits(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Query.TaskDefaultLimit != 100 {
		t.Fatalf("task default limit %d, want 100", cfg.Query.TaskDefaultLimit)
	}
	if cfg.Query.UserDefaultLimit != 0 {
		t.Fatalf("user default limit %d, want 0", cfg.Query.UserDefaultLimit)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\nlog:\n  level: debug\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" || cfg.Log.Level != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Server.BasePath != "/v0" || cfg.Query.TaskDefaultLimit != 100 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad level":     "log:\n  level: loud\n",
		"bad base path": "server:\n  base_path: v0\n",
		"negative":      "query:\n  task_default_limit: -1\n",
		"above max":     "query:\n  max_limit: 10\n",
	}
	for name, raw := range cases {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, FileName) {
		t.Fatalf("unexpected path %s", path)
	}
	if _, err := Write(dir, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if err := os.WriteFile(path, []byte("query:\n  user_default_limit: 25\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Query.UserDefaultLimit != 25 {
		t.Fatalf("user default limit %d, want 25", cfg.Query.UserDefaultLimit)
	}
	missing, err := LoadOptional(t.TempDir())
	if err != nil || missing.Server.Addr == "" {
		t.Fatalf("missing config should yield defaults: %v", err)
	}
}

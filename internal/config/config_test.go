package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Server.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "mockdb.yaml", `
server:
  host: 0.0.0.0
  port: 3000
  rate_limits:
    write_per_min: 60
database:
  path: /tmp/db.json
  watch: true
  lock_timeout: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Server.Host = "0.0.0.0"
	want.Server.Port = 3000
	want.Server.RateLimits.WritePerMin = 60
	want.Database = Database{Path: "/tmp/db.json", Watch: true, LockTimeout: 500 * time.Millisecond}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "weld.json", `{"server":{"host":"localhost","port":8081},"database":{"path":"db.json"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr() != "localhost:8081" || cfg.Database.Path != "db.json" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed", "server: [unclosed"},
		{"bad port", "server:\n  port: 70000\n"},
		{"empty path", "database:\n  path: \"\"\n"},
		{"negative limit", "server:\n  rate_limits:\n    read_per_min: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "c.yaml", tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

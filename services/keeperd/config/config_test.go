package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keeperd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "data_dir: /var/lib/vault\nowner: seed:owner\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9464" {
		t.Fatalf("unexpected listen %q", cfg.ListenAddress)
	}
	if cfg.Schedule.Delegate == "" || cfg.Schedule.Settle == "" {
		t.Fatalf("expected default schedules, got %+v", cfg.Schedule)
	}
	if cfg.Schedule.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Schedule.Timeout)
	}
	if cfg.IndexDSN == "" {
		t.Fatalf("expected default index dsn")
	}
}

func TestLoadParsesFields(t *testing.T) {
	path := writeConfig(t, `listen: 127.0.0.1:9100
node_config: ./vault.toml
owner: acct1example
index_dsn: file:events.db
schedule:
  delegate: "@every 5m"
  settle: "30 * * * * *"
  timeout: 5s
telemetry:
  endpoint: collector:4318
  traces: true
log:
  level: debug
  max_size_mb: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9100" || cfg.NodeConfig != "./vault.toml" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Schedule.Timeout != 5*time.Second || cfg.Schedule.Delegate != "@every 5m" {
		t.Fatalf("unexpected schedule %+v", cfg.Schedule)
	}
	if !cfg.Telemetry.Traces || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected telemetry/log %+v %+v", cfg.Telemetry, cfg.Log)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no source":     "owner: seed:owner\n",
		"no owner":      "data_dir: ./data\n",
		"bad schedule":  "data_dir: ./data\nowner: seed:o\nschedule:\n  settle: nonsense\n",
		"unknown field": "data_dir: ./data\nowner: seed:o\nbogus: 1\n",
		"bad sampling":  "data_dir: ./data\nowner: seed:o\ntelemetry:\n  sample_ratio: 2\n",
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndParseConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: ":8080"
  corsOrigins:
    - http://localhost:3000
    - https://transcripts.example.com
  rateLimit: 5
worker:
  workerCount: 4
  maxAttempts: 5
  baseDelay: 250ms
  queueDriver: redis
storage:
  jobDriver: postgres
  artifactDriver: s3
`)
	v, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg, err := ParseConfig(v)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.Server.Port != ":8080" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
	if len(cfg.Server.CorsOrigins) != 2 || cfg.Server.CorsOrigins[1] != "https://transcripts.example.com" {
		t.Fatalf("cors origins = %v", cfg.Server.CorsOrigins)
	}
	if cfg.Worker.WorkerCount != 4 || cfg.Worker.MaxAttempts != 5 {
		t.Fatalf("worker = %+v", cfg.Worker)
	}
	if cfg.Worker.BaseDelay != 250*time.Millisecond {
		t.Fatalf("base delay = %s", cfg.Worker.BaseDelay)
	}
	if cfg.Worker.QueueDriver != "redis" || cfg.Storage.JobDriver != "postgres" || cfg.Storage.ArtifactDriver != "s3" {
		t.Fatalf("drivers = %q %q %q", cfg.Worker.QueueDriver, cfg.Storage.JobDriver, cfg.Storage.ArtifactDriver)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	v, err := LoadConfig(writeConfig(t, "logger:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg, err := ParseConfig(v)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Logger.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logger.Level)
	}
	if cfg.Worker.MaxAttempts != 3 || cfg.Worker.BaseDelay != time.Second {
		t.Fatalf("retry defaults = %d %s", cfg.Worker.MaxAttempts, cfg.Worker.BaseDelay)
	}
	if cfg.Worker.QueueDriver != "memory" || cfg.Storage.JobDriver != "memory" || cfg.Storage.ArtifactDriver != "local" {
		t.Fatalf("driver defaults = %+v %+v", cfg.Worker, cfg.Storage)
	}
	if cfg.Executor.TranscriberBackend != "whisper" {
		t.Fatalf("backend = %q", cfg.Executor.TranscriberBackend)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

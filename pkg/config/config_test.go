package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/security"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

func TestLoadConfig_FileSizeLimit(t *testing.T) {
	data := strings.Repeat("x: value\n", 200000) // ~1.6MB
	_, err := LoadConfig(writeConfig(t, data))
	if err == nil {
		t.Fatal("expected error for large file")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected 'too large' error, got: %v", err)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
store: mongo
mongo:
  uri: mongodb://db:27017
  database: scuti
  timeout: 2s
session:
  history_limit: 20
  ttl: 12h
  cache_idle: 10m
prompt:
  seed_default_templates: false
  templates_file: /etc/scuti/templates.yaml
verbose_init: true
http_port: 9090
rate_limit:
  requests_per_second: 5
observability:
  exporter: stdout
  log_format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store != StoreMongo || cfg.TemplateBackend() != StoreMongo {
		t.Errorf("store = %s / %s", cfg.Store, cfg.TemplateBackend())
	}
	if cfg.Mongo.URI != "mongodb://db:27017" || cfg.Mongo.Timeout != 2*time.Second {
		t.Errorf("mongo = %+v", cfg.Mongo)
	}
	if cfg.Mongo.SessionsCollection != "coordination_sessions" {
		t.Errorf("default collection lost: %q", cfg.Mongo.SessionsCollection)
	}
	if cfg.Session.HistoryLimit != 20 || cfg.Session.TTL != 12*time.Hour || cfg.Session.CacheIdle != 10*time.Minute {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Session.SweepInterval != 5*time.Minute {
		t.Errorf("default sweep interval lost: %v", cfg.Session.SweepInterval)
	}
	if cfg.Prompt.SeedEnabled() {
		t.Error("seeding should be disabled")
	}
	if cfg.Prompt.CacheTTL != 30*time.Minute {
		t.Errorf("prompt cache ttl = %v", cfg.Prompt.CacheTTL)
	}
	if cfg.RateLimit.RequestsPerSecond != 5 || cfg.RateLimit.Burst != 40 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if !cfg.VerboseInit || cfg.HTTPPort != 9090 {
		t.Errorf("verbose=%v port=%d", cfg.VerboseInit, cfg.HTTPPort)
	}
	if tr := cfg.Observability.Tracing(); tr.ExporterType != "stdout" || tr.ServiceName == "" {
		t.Errorf("tracing = %+v", tr)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store != StoreMemory || cfg.TemplateBackend() != StoreMemory {
		t.Errorf("store = %s / %s", cfg.Store, cfg.TemplateBackend())
	}
	if !cfg.Prompt.SeedEnabled() {
		t.Error("seeding should default to enabled")
	}
	if cfg.Session.HistoryLimit != 50 {
		t.Errorf("history limit = %d", cfg.Session.HistoryLimit)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://env:27017")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("SEED_DEFAULT_TEMPLATES", "false")
	t.Setenv("VERBOSE_INIT", "1")
	t.Setenv("PORT", "7000")
	t.Setenv("LOG_FORMAT", "terminal")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mongo.URI != "mongodb://env:27017" || cfg.Redis.Addr != "redis:6380" {
		t.Errorf("addresses not overridden: %+v %+v", cfg.Mongo, cfg.Redis)
	}
	if cfg.Prompt.SeedEnabled() || !cfg.VerboseInit || cfg.HTTPPort != 7000 {
		t.Errorf("flags not overridden: %+v", cfg)
	}
	if cfg.Observability.LogFormat != "terminal" {
		t.Errorf("log format = %s", cfg.Observability.LogFormat)
	}
}

func TestLoadConfig_InvalidEnv(t *testing.T) {
	t.Setenv("PORT", "eighty")
	if _, err := LoadConfig(""); err == nil {
		t.Error("expected error for invalid PORT")
	}
}

func TestLoadConfig_NonexistentFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "store: memory\ninvalid yaml here: [[[\n"))
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty store", func(c *Config) { c.Store = "" }, false},
		{"unknown store", func(c *Config) { c.Store = "cassandra" }, true},
		{"unknown template store", func(c *Config) { c.TemplateStore = "redis" }, true},
		{"mongo without database", func(c *Config) { c.Store = StoreMongo; c.Mongo.Database = "" }, true},
		{"redis without addr", func(c *Config) { c.Store = StoreRedis; c.Redis.Addr = "" }, true},
		{"bad port", func(c *Config) { c.HTTPPort = 70000 }, true},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }, true},
		{"rate limit off", func(c *Config) { c.RateLimit = security.RateLimitConfig{} }, false},
		{"bad log format", func(c *Config) { c.Observability.LogFormat = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Store = StoreFile
	cfg.File.BaseDir = "/tmp/sessions"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Store != StoreFile || loaded.File.BaseDir != "/tmp/sessions" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
	if loaded.Session.TTL != 24*time.Hour {
		t.Errorf("session ttl = %v", loaded.Session.TTL)
	}
}

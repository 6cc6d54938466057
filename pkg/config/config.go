package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/internal/observability"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/prompt"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/security"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/session"
)

// maxConfigSize bounds the configuration file.
const maxConfigSize = 1 << 20

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
)

// Config represents the application configuration
type Config struct {
	// Store selects the session backend: memory, file, redis or mongo.
	Store string `yaml:"store"`

	// TemplateStore selects the template backend: memory or mongo. Empty
	// follows Store when it is mongo and memory otherwise.
	TemplateStore string `yaml:"template_store"`

	Mongo MongoConfig `yaml:"mongo"`
	Redis RedisConfig `yaml:"redis"`
	File  FileConfig  `yaml:"file"`

	Session session.Config `yaml:"session"`
	Prompt  prompt.Config  `yaml:"prompt"`

	// VerboseInit logs every initialization step.
	VerboseInit bool `yaml:"verbose_init"`

	// HTTPPort serves the API with the health and metrics endpoints.
	HTTPPort int `yaml:"http_port"`

	// RateLimit throttles API requests per client.
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`

	Observability ObservabilityConfig `yaml:"observability"`
}

// MongoConfig holds MongoDB settings shared by both stores.
type MongoConfig struct {
	URI                 string        `yaml:"uri"`
	Database            string        `yaml:"database"`
	SessionsCollection  string        `yaml:"sessions_collection"`
	TemplatesCollection string        `yaml:"templates_collection"`
	Timeout             time.Duration `yaml:"timeout"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	PoolSize int    `yaml:"pool_size"`
}

// FileConfig holds file backend settings.
type FileConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	// Exporter is the trace exporter: none, stdout or otlp.
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	Headers     string `yaml:"headers"`
	ServiceName string `yaml:"service_name"`
	// LogFormat is json, text or terminal.
	LogFormat string `yaml:"log_format"`
	Debug     bool   `yaml:"debug"`
}

// Tracing returns the tracer configuration.
func (o ObservabilityConfig) Tracing() observability.Config {
	return observability.Config{
		ServiceName:  o.ServiceName,
		ExporterType: o.Exporter,
		OTLPEndpoint: o.Endpoint,
		OTLPHeaders:  o.Headers,
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreMemory,
		Mongo: MongoConfig{
			URI:                 "mongodb://localhost:27017",
			Database:            "web_scuti",
			SessionsCollection:  "coordination_sessions",
			TemplatesCollection: "prompt_templates",
			Timeout:             5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "scuti:session:",
		},
		Session:  session.DefaultConfig(),
		Prompt:   prompt.Config{CacheTTL: 30 * time.Minute},
		HTTPPort: 8080,
		RateLimit: security.RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			ClientTTL:         10 * time.Minute,
		},
		Observability: ObservabilityConfig{
			Exporter:    "none",
			ServiceName: observability.DefaultServiceName,
			LogFormat:   "json",
		},
	}
}

// LoadConfig loads configuration from a YAML file over the defaults and
// applies environment overrides. An empty path uses the defaults only.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if info.Size() > maxConfigSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
		}
		data, err := os.ReadFile(path) // #nosec G304 - path is an operator supplied flag
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("MONGO_URI"); ok && v != "" {
		c.Mongo.URI = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Observability.LogFormat = v
	}
	if v, ok := lookup("SEED_DEFAULT_TEMPLATES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SEED_DEFAULT_TEMPLATES: %w", err)
		}
		c.Prompt.SeedDefaultTemplates = &b
	}
	if v, ok := lookup("VERBOSE_INIT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("VERBOSE_INIT: %w", err)
		}
		c.VerboseInit = b
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.HTTPPort = port
	}
	return nil
}

// TemplateBackend resolves the template store backend.
func (c *Config) TemplateBackend() string {
	if c.TemplateStore != "" {
		return c.TemplateStore
	}
	if c.Store == StoreMongo {
		return StoreMongo
	}
	return StoreMemory
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case StoreMemory, StoreFile, StoreRedis, StoreMongo:
	case "":
		c.Store = StoreMemory
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.TemplateBackend() {
	case StoreMemory, StoreMongo:
	default:
		return fmt.Errorf("unknown template store %q", c.TemplateStore)
	}

	if c.Store == StoreMongo || c.TemplateBackend() == StoreMongo {
		if c.Mongo.URI == "" {
			return errors.New("mongo.uri is required")
		}
		if c.Mongo.Database == "" {
			return errors.New("mongo.database is required")
		}
	}
	if c.Store == StoreRedis && c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d out of range", c.HTTPPort)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 || c.RateLimit.GlobalRequestsPerSecond < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	switch c.Observability.LogFormat {
	case "json", "text", "terminal":
	default:
		return fmt.Errorf("unknown log_format %q", c.Observability.LogFormat)
	}
	return nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

package session

import "time"

// Config holds session cache settings from YAML.
type Config struct {
	// HistoryLimit caps the interaction log of every session.
	// Default: 50.
	HistoryLimit int `yaml:"history_limit"`

	// TTL is the rolling lifetime of a session after its last activity.
	// Default: 24h.
	TTL time.Duration `yaml:"ttl"`

	// CacheIdle is how long a cached session is served without a store read
	// and how long an untouched entry survives the sweep.
	// Default: 30m.
	CacheIdle time.Duration `yaml:"cache_idle"`

	// SweepInterval is the period of the idle-eviction sweep.
	// Default: 5m.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:  50,
		TTL:           24 * time.Hour,
		CacheIdle:     30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// withDefaults replaces unset fields with their defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.CacheIdle <= 0 {
		c.CacheIdle = d.CacheIdle
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}

// Package config loads node configuration from YAML files and environment
// variables. The environment variables NATS_SERVERS (comma separated URLs)
// and NATS_TIMEOUT (Go duration or seconds) override file settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied to unset fields.
const (
	DefaultServer  = "nats://localhost:4222"
	DefaultTimeout = 30 * time.Second
)

// Config holds the settings of one node process.
type Config struct {
	NodeID     string        `mapstructure:"node_id"`
	Servers    []string      `mapstructure:"servers"`
	TimeoutRaw string        `mapstructure:"timeout"`
	LogLevel   string        `mapstructure:"log_level"`
	Codec      string        `mapstructure:"codec"`
	Metrics    MetricsConfig `mapstructure:"metrics"`

	// Timeout is parsed from TimeoutRaw by Load.
	Timeout time.Duration `mapstructure:"-"`
}

// MetricsConfig configures the prometheus endpoint of a node process.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads the configuration from the given YAML file, then applies
// environment overrides and defaults. An empty path skips the file and
// loads environment and defaults only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		v.AutomaticEnv()
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if env := os.Getenv("NATS_SERVERS"); env != "" {
		c.Servers = SplitServers(env)
	}
	if len(c.Servers) == 0 {
		c.Servers = []string{DefaultServer}
	}

	if env := os.Getenv("NATS_TIMEOUT"); env != "" {
		c.TimeoutRaw = env
	}
	timeout, err := ParseTimeout(c.TimeoutRaw, DefaultTimeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	c.Timeout = timeout

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Codec == "" {
		c.Codec = "json"
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	return nil
}

// SplitServers splits a comma separated server list, dropping empty entries.
func SplitServers(s string) []string {
	parts := strings.Split(s, ",")
	servers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			servers = append(servers, p)
		}
	}
	return servers
}

// ParseTimeout parses a timeout given as a Go duration ("30s", "500ms") or
// as seconds ("30", "0.5"). An empty string yields the fallback.
func ParseTimeout(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q as duration or seconds", raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

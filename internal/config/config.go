// Package config loads the mockdb configuration file.
//
// The file is YAML; since YAML is a superset of JSON a JSON file works too:
//
//	server:
//	  host: 127.0.0.1
//	  port: 8080
//	database:
//	  path: db.json
//	  watch: true
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the whole configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
}

// Server configures the HTTP request layer.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// MaxBodyBytes limits request bodies. 0 means unlimited.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

// RateLimits defines rate limiting per client IP (requests per minute).
// 0 means unlimited.
type RateLimits struct {
	ReadPerMin  int `yaml:"read_per_min"`
	WritePerMin int `yaml:"write_per_min"`
}

// Database locates and governs the backing file.
type Database struct {
	// Path is the JSON document file.
	Path string `yaml:"path"`

	// Watch reloads the document when the file is modified by another process.
	Watch bool `yaml:"watch"`

	// LockTimeout bounds how long to wait for the cross-process file lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Host:         "127.0.0.1",
			Port:         8080,
			MaxBodyBytes: 10 * 1024 * 1024, // 10 MiB
		},
		Database: Database{
			Path:        "db.json",
			LockTimeout: 3 * time.Second,
		},
	}
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Validate checks that the server values are usable.
func (s *Server) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.MaxBodyBytes < 0 {
		return errors.New("max_body_bytes must be non-negative")
	}
	if s.RateLimits.ReadPerMin < 0 {
		return errors.New("rate_limits.read_per_min must be non-negative")
	}
	if s.RateLimits.WritePerMin < 0 {
		return errors.New("rate_limits.write_per_min must be non-negative")
	}
	return nil
}

// Validate checks that the database values are usable.
func (d *Database) Validate() error {
	if d.Path == "" {
		return errors.New("path is required")
	}
	if d.LockTimeout < 0 {
		return errors.New("lock_timeout must be non-negative")
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// Load reads the configuration at path on top of Default.
// An empty path returns Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a CLI flag
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

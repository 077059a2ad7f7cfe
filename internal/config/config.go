// Package config loads service settings from a JSON file with environment
// overrides. Command-line flags are applied on top by the caller.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"

	DefaultPath = ".workforce/config.json"
)

type Config struct {
	Store           string `json:"store"`
	DBPath          string `json:"db_path"`
	RedisAddr       string `json:"redis_addr"`
	RedisKeyPrefix  string `json:"redis_key_prefix"`
	HTTPAddr        string `json:"http_addr"`
	OTLPEndpoint    string `json:"otlp_endpoint"`
	ServiceName     string `json:"service_name"`
	DefaultDeadline string `json:"default_deadline"`
}

func Default() *Config {
	return &Config{
		Store:           StoreMemory,
		DBPath:          filepath.Join(".workforce", "workforce.db"),
		RedisAddr:       "localhost:6379",
		RedisKeyPrefix:  "workforce:",
		HTTPAddr:        ":8080",
		ServiceName:     "workforce",
		DefaultDeadline: "24h",
	}
}

// Load reads path, fills unset fields with defaults and applies WORKFORCE_*
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	if err == nil {
		defer f.Close()
		var fileCfg Config
		if err := json.NewDecoder(f).Decode(&fileCfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
		cfg.merge(&fileCfg)
	}

	cfg.merge(fromEnv())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Store:        os.Getenv("WORKFORCE_STORE"),
		DBPath:       os.Getenv("WORKFORCE_DB_PATH"),
		RedisAddr:    os.Getenv("WORKFORCE_REDIS_ADDR"),
		HTTPAddr:     os.Getenv("WORKFORCE_HTTP_ADDR"),
		OTLPEndpoint: os.Getenv("WORKFORCE_OTLP_ENDPOINT"),
	}
}

// merge copies the non-empty fields of o into c.
func (c *Config) merge(o *Config) {
	if o.Store != "" {
		c.Store = o.Store
	}
	if o.DBPath != "" {
		c.DBPath = o.DBPath
	}
	if o.RedisAddr != "" {
		c.RedisAddr = o.RedisAddr
	}
	if o.RedisKeyPrefix != "" {
		c.RedisKeyPrefix = o.RedisKeyPrefix
	}
	if o.HTTPAddr != "" {
		c.HTTPAddr = o.HTTPAddr
	}
	if o.OTLPEndpoint != "" {
		c.OTLPEndpoint = o.OTLPEndpoint
	}
	if o.ServiceName != "" {
		c.ServiceName = o.ServiceName
	}
	if o.DefaultDeadline != "" {
		c.DefaultDeadline = o.DefaultDeadline
	}
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q (want memory, sqlite or redis)", c.Store)
	}
	if _, err := c.Deadline(); err != nil {
		return err
	}
	return nil
}

// Deadline parses DefaultDeadline.
func (c *Config) Deadline() (time.Duration, error) {
	d, err := time.ParseDuration(c.DefaultDeadline)
	if err != nil {
		return 0, fmt.Errorf("invalid default_deadline %q: %w", c.DefaultDeadline, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("default_deadline must be positive, got %s", d)
	}
	return d, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address             string   `yaml:"address"`
		ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
		CORSOrigins         []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	API struct {
		StaffAPIKey    string  `yaml:"staff_api_key"`
		RatePerSecond  float64 `yaml:"rate_per_second"`
		RateBurst      int     `yaml:"rate_burst"`
		MaxAdvanceDays int     `yaml:"max_advance_days"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Restaurant struct {
		ConfigPath           string `yaml:"config_path"`
		Timezone             string `yaml:"timezone"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"restaurant"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if _, err = cfg.Location(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/tablebook.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Restaurant.ConfigPath == "" {
		c.Restaurant.ConfigPath = "configs/restaurant.yaml"
	}
	if c.API.RatePerSecond <= 0 {
		c.API.RatePerSecond = 5
	}
	if c.API.RateBurst <= 0 {
		c.API.RateBurst = 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Location returns the restaurant time zone; empty means local time.
func (c *Config) Location() (*time.Location, error) {
	if c.Restaurant.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Restaurant.Timezone)
	if err != nil {
		return nil, fmt.Errorf("restaurant.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) WatchInterval() time.Duration {
	if c.Restaurant.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Restaurant.WatchIntervalSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

// MaxAdvance is how far ahead customers may book.
func (c *Config) MaxAdvance() time.Duration {
	if c.API.MaxAdvanceDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(c.API.MaxAdvanceDays) * 24 * time.Hour
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/pmbridge/internal/logger"
)

// Config is the top-level TOML structure for the pmbridge daemon.
//
// Example:
//
//	[group]
//	name = "myapp"
//	interpreter = "/usr/bin/python3"
//	workdir = "/srv/app"
//
//	[pm2]
//	bin = "pm2"
//	timeout = "30s"
//
//	[server]
//	listen = ":8080"
//	base_path = "/api"
//
//	[metrics]
//	enabled = true
//	listen = ":9090"
//
//	[history]
//	dsn = "sqlite:///var/lib/pmbridge/history.db"
type Config struct {
	Group   GroupConfig    `mapstructure:"group"`
	PM2     PM2Config      `mapstructure:"pm2"`
	Log     logger.Config  `mapstructure:"log"`
	Server  *ServerConfig  `mapstructure:"server"`
	Metrics *MetricsConfig `mapstructure:"metrics"`
	History *HistoryConfig `mapstructure:"history"`
}

// GroupConfig identifies the supervised group. All three fields are required:
// a group that does not know its interpreter or working directory cannot
// build a start instruction.
type GroupConfig struct {
	Name        string `mapstructure:"name"`
	Interpreter string `mapstructure:"interpreter"`
	WorkDir     string `mapstructure:"workdir"`
}

// PM2Config selects the pm2 binary and the per-command timeout.
type PM2Config struct {
	Bin     string        `mapstructure:"bin"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the HTTP API front-end.
type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// HistoryConfig selects an audit sink by DSN (sqlite, postgres, clickhouse,
// opensearch).
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Load parses a TOML config file and validates the required group fields.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Group.Name == "" {
		return fmt.Errorf("group.name is required")
	}
	if c.Group.Interpreter == "" {
		return fmt.Errorf("group.interpreter is required")
	}
	if c.Group.WorkDir == "" {
		return fmt.Errorf("group.workdir is required")
	}
	return nil
}

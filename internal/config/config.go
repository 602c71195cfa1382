package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config path is given. It may be absent.
const DefaultPath = ".localcal.yaml"

// Config holds the settings read from the YAML file and the environment.
type Config struct {
	DB       string   `yaml:"db"`
	Timezone string   `yaml:"timezone"`
	LogLevel string   `yaml:"logLevel"`
	Defaults Defaults `yaml:"defaults"`
}

// Defaults are applied to events added from the command line.
type Defaults struct {
	Category    string `yaml:"category"`
	Priority    string `yaml:"priority"`
	DurationMin int    `yaml:"durationMin"`
}

func defaults() Config {
	return Config{
		DB:       "calendar_db.json",
		LogLevel: "info",
		Defaults: Defaults{
			Category:    "general",
			Priority:    "normal",
			DurationMin: 60,
		},
	}
}

// Load reads the YAML config at path and applies environment overrides
// (CALENDAR_DB, CALENDAR_TIMEZONE, LOG_LEVEL). With an empty path a missing
// DefaultPath is not an error.
func Load(path string) (*Config, error) {
	useDefaultConf := path == ""
	if useDefaultConf {
		path = DefaultPath
	}

	conf := defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &conf); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && useDefaultConf:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	conf.applyEnv()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CALENDAR_DB"); v != "" {
		c.DB = v
	}
	if v := os.Getenv("CALENDAR_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("config: db path must not be empty")
	}
	if c.Defaults.DurationMin < 0 {
		return fmt.Errorf("config: defaults.durationMin must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. An empty value is the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	return loc, nil
}

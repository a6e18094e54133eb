// Package config loads server settings from an optional TOML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	OrganizationURL     string `toml:"organization_url"`
	Project             string `toml:"project"`
	PersonalAccessToken string `toml:"personal_access_token"`
	APIVersion          string `toml:"api_version"`

	ListenAddr  string `toml:"listen_addr"`
	AuthSecret  string `toml:"auth_secret"`
	DatabaseURL string `toml:"database_url"`

	MaxAttempts           int `toml:"max_attempts"`
	InitialDelayMillis    int `toml:"initial_delay_ms"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// Load reads the TOML file at path when it exists, expands ${VAR}
// references in string fields, and applies WORKBRIDGE_* environment
// overrides. A missing file is not an error; env vars alone can carry a
// full configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env-only configuration
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.expandEnv()
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) expandEnv() {
	c.OrganizationURL = os.Expand(c.OrganizationURL, envValue)
	c.Project = os.Expand(c.Project, envValue)
	c.PersonalAccessToken = os.Expand(c.PersonalAccessToken, envValue)
	c.AuthSecret = os.Expand(c.AuthSecret, envValue)
	c.DatabaseURL = os.Expand(c.DatabaseURL, envValue)
}

func envValue(name string) string {
	return os.Getenv(name)
}

func (c *Config) applyEnvOverrides() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString(&c.OrganizationURL, "WORKBRIDGE_ORG_URL")
	setString(&c.Project, "WORKBRIDGE_PROJECT")
	setString(&c.PersonalAccessToken, "WORKBRIDGE_PAT")
	setString(&c.APIVersion, "WORKBRIDGE_API_VERSION")
	setString(&c.ListenAddr, "WORKBRIDGE_LISTEN")
	setString(&c.AuthSecret, "WORKBRIDGE_AUTH_SECRET")
	setString(&c.DatabaseURL, "WORKBRIDGE_DATABASE_URL")
	setInt(&c.MaxAttempts, "WORKBRIDGE_MAX_ATTEMPTS")
	setInt(&c.InitialDelayMillis, "WORKBRIDGE_INITIAL_DELAY_MS")
	setInt(&c.RequestTimeoutSeconds, "WORKBRIDGE_REQUEST_TIMEOUT_SECONDS")
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelayMillis <= 0 {
		c.InitialDelayMillis = 1000
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 30
	}
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	if c.OrganizationURL == "" {
		return fmt.Errorf("organization_url is required (or WORKBRIDGE_ORG_URL)")
	}
	if c.Project == "" {
		return fmt.Errorf("project is required (or WORKBRIDGE_PROJECT)")
	}
	return nil
}

func (c *Config) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMillis) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

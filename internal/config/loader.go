package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes after expanding ${VAR} references.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// HTTPURL returns the REST base URL for the configured environment.
func (c *APIConfig) HTTPURL() string {
	if c.Env == "live" {
		return c.HTTPLive
	}
	return c.HTTPDemo
}

// ProxyURL parses the proxy setting. It returns nil when no proxy is set.
func (c *APIConfig) ProxyURL() (*url.URL, error) {
	if c.Proxy == "" {
		return nil, nil
	}
	u, err := url.Parse(c.Proxy)
	if err != nil {
		return nil, fmt.Errorf("api.proxy: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("api.proxy scheme must be http, https or socks5, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("api.proxy %q has no host", c.Proxy)
	}
	return u, nil
}

// AccountWSURL returns the account socket URL for the configured environment.
func (c *APIConfig) AccountWSURL() string {
	if c.Env == "live" {
		return c.WSLive
	}
	return c.WSDemo
}

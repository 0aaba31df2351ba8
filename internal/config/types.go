// Package config provides configuration management for DBDeck.
//
// Precedence (highest to lowest): environment variables (DBDECK_ prefix) >
// config file (dbdeck.yaml) > built-in defaults.
package config

import (
	"strings"
	"time"
)

// Config holds all server configuration options.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Prometheus PrometheusConfig `koanf:"prometheus"`
	LLM        LLMConfig        `koanf:"llm"`
	Verbose    bool             `koanf:"verbose"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// StoreConfig holds registry persistence settings.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// PrometheusConfig holds the metrics API endpoint settings.
type PrometheusConfig struct {
	BaseURL        string `koanf:"base_url"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// Timeout returns the query timeout as a duration.
func (c PrometheusConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NormalizedBaseURL strips UI path suffixes so the value always points at
// the API root. Dashboard deep links like ".../classic/graph" are a common
// copy-paste mistake.
func (c PrometheusConfig) NormalizedBaseURL() string {
	u := strings.TrimSuffix(c.BaseURL, "/")
	u = strings.TrimSuffix(u, "/classic/graph")
	return u
}

// LLMConfig holds settings for the SQL analysis model endpoint
// (OpenAI-compatible chat completions API).
type LLMConfig struct {
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	Model          string `koanf:"model"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	Enabled        bool   `koanf:"enabled"`
}

// Timeout returns the request timeout as a duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Default configuration values.
const (
	DefaultPort              = 8080
	DefaultStorePath         = ".dbdeck/registry.db"
	DefaultPrometheusBaseURL = "http://localhost:9090"
	DefaultPrometheusTimeout = 10
	DefaultLLMBaseURL        = "https://api.deepseek.com"
	DefaultLLMModel          = "deepseek-reasoner"
	DefaultLLMTimeout        = 120
)

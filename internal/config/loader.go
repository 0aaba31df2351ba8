package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "dbdeck.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "dbdeck.yml"

// Load loads configuration from defaults, an optional config file, and
// environment variables. cfgFile may be empty, in which case dbdeck.yaml
// / dbdeck.yml in the working directory are tried.
func Load(cfgFile string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"server.port":                DefaultPort,
		"store.path":                 DefaultStorePath,
		"prometheus.base_url":        DefaultPrometheusBaseURL,
		"prometheus.timeout_seconds": DefaultPrometheusTimeout,
		"llm.base_url":               DefaultLLMBaseURL,
		"llm.model":                  DefaultLLMModel,
		"llm.timeout_seconds":        DefaultLLMTimeout,
		"llm.enabled":                true,
		"verbose":                    false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configPath := findConfigFile(cfgFile)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	}

	// 3. Environment variables (DBDECK_ prefix)
	// Transform: DBDECK_PROMETHEUS_BASE_URL -> prometheus.base_url
	if err := k.Load(env.Provider("DBDECK_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "DBDECK_"))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}

// findConfigFile finds the config file to use.
// Priority: explicit path > dbdeck.yaml > dbdeck.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	if _, err := os.Stat(ConfigFileNameAlt); err == nil {
		return ConfigFileNameAlt
	}
	return ""
}

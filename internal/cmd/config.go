package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the client configuration file. Every field has an environment
// override so a packaged build can be pointed at a different backend without
// editing files.
type Config struct {
	API struct {
		BaseURL  string `yaml:"base_url"`
		TokenEnv string `yaml:"token_env"`
	} `yaml:"api"`
	Poll struct {
		IntervalMs int `yaml:"interval_ms"`
	} `yaml:"poll"`
	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`
}

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.API.BaseURL = getEnv("SCRUTINY_API_URL", config.API.BaseURL)
	if config.API.TokenEnv == "" {
		config.API.TokenEnv = "SCRUTINY_TOKEN"
	}
	config.Poll.IntervalMs = getEnvAsInt("SCRUTINY_POLL_INTERVAL_MS", config.Poll.IntervalMs)
	if config.History.Path == "" {
		config.History.Path = getEnv("SCRUTINY_HISTORY_PATH", "scrutiny-history.db")
	}

	return &config, nil
}

func (c *Config) pollInterval() time.Duration {
	if c.Poll.IntervalMs <= 0 {
		return 0 // poller default
	}
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MailboxConfig holds OAuth credentials for a single monitored mailbox.
// Each mailbox gets its own poller worker.
type MailboxConfig struct {
	Alias        string `yaml:"alias"`
	Address      string `yaml:"address"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
}

// Config holds all configuration for the ingestion service.
type Config struct {
	Mailboxes []MailboxConfig

	// OpenAI
	OpenAIAPIKey string
	OpenAIModel  string

	// Poller
	PollInterval    time.Duration
	OverlapMargin   time.Duration
	DefaultLookback time.Duration

	// Storage
	DatabaseURL string
	RedisURL    string

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Mailboxes []struct {
		Alias        string `yaml:"alias"`
		Address      string `yaml:"address"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RefreshToken string `yaml:"refresh_token"`
	} `yaml:"mailboxes"`
	OpenAI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		OpenAIAPIKey:    firstNonEmpty(raw.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:     firstNonEmpty(raw.OpenAI.Model, envOrDefault("OPENAI_MODEL", "gpt-4o-mini")),
		PollInterval:    envOrDefaultDuration("POLL_INTERVAL", 60*time.Second),
		OverlapMargin:   envOrDefaultDuration("OVERLAP_MARGIN", 5*time.Minute),
		DefaultLookback: envOrDefaultDuration("DEFAULT_LOOKBACK", time.Hour),
		DatabaseURL:     firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/quotesnap")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		Port:            envOrDefaultInt("PORT", 8080),
	}

	// The overlap margin is what guarantees consecutive poll windows
	// intersect; it must cover at least one full poll interval.
	if cfg.OverlapMargin < cfg.PollInterval {
		cfg.OverlapMargin = cfg.PollInterval
	}

	// Build mailbox configs
	for _, m := range raw.Mailboxes {
		mb := MailboxConfig{
			Alias:        m.Alias,
			Address:      m.Address,
			ClientID:     m.ClientID,
			ClientSecret: m.ClientSecret,
			RefreshToken: m.RefreshToken,
		}

		// Skip mailboxes with empty credentials (commented out in YAML)
		if mb.ClientID == "" || mb.ClientSecret == "" || mb.RefreshToken == "" {
			continue
		}

		if mb.Alias == "" {
			mb.Alias = mb.Address
		}

		cfg.Mailboxes = append(cfg.Mailboxes, mb)
	}

	if len(cfg.Mailboxes) == 0 {
		return nil, fmt.Errorf("no mailboxes configured — check config.yaml and environment variables")
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

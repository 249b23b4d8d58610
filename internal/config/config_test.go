/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}

	if cfg.Cache.NegativeTTL >= cfg.Cache.DomainTTL {
		t.Errorf("Expected negative TTL %v to be shorter than domain TTL %v",
			cfg.Cache.NegativeTTL, cfg.Cache.DomainTTL)
	}

	groups := cfg.Render.SectionGroups
	if len(groups["header-group"]) != 2 || groups["header-group"][0] != "announcement-bar" {
		t.Errorf("Unexpected header group %v", groups["header-group"])
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "defaults",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "empty platform domain",
			mutate:      func(c *Config) { c.Server.PlatformDomain = "" },
			expectError: true,
			errorMsg:    "domain is required",
		},
		{
			name:        "ip platform domain",
			mutate:      func(c *Config) { c.Server.PlatformDomain = "10.0.0.1" },
			expectError: true,
			errorMsg:    "not an IP address",
		},
		{
			name:        "database storage without dsn",
			mutate:      func(c *Config) { c.Storage.Type = "database" },
			expectError: true,
			errorMsg:    "database DSN is required",
		},
		{
			name:        "unknown storage",
			mutate:      func(c *Config) { c.Storage.Type = "mongo" },
			expectError: true,
			errorMsg:    "unsupported storage type",
		},
		{
			name:        "unknown cache",
			mutate:      func(c *Config) { c.Cache.Type = "memcached" },
			expectError: true,
			errorMsg:    "unsupported cache type",
		},
		{
			name:        "negative ttl not shorter than positive",
			mutate:      func(c *Config) { c.Cache.NegativeTTL = c.Cache.DomainTTL },
			expectError: true,
			errorMsg:    "negative TTL",
		},
		{
			name:        "empty section group",
			mutate:      func(c *Config) { c.Render.SectionGroups["aside-group"] = nil },
			expectError: true,
			errorMsg:    "section group aside-group",
		},
		{
			name: "rate limit without burst",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.Burst = 0
			},
			expectError: true,
			errorMsg:    "rate limit",
		},
		{
			name:        "zero dns timeout",
			mutate:      func(c *Config) { c.DNS.Timeout = 0 },
			expectError: true,
			errorMsg:    "DNS timeout",
		},
		{
			name:        "invalid dns edge target",
			mutate:      func(c *Config) { c.DNS.EdgeTarget = "edge_target.example.com" },
			expectError: true,
			errorMsg:    "invalid DNS edge target",
		},
		{
			name:        "dns edge target",
			mutate:      func(c *Config) { c.DNS.EdgeTarget = "edge.example.com" },
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestLoadFromYAMLAndEnv(t *testing.T) {
	tempDir := t.TempDir()

	yamlFile := filepath.Join(tempDir, "storefront.yaml")
	yamlContent := `
server:
  address: ":9090"
  platform_domain: "shops.example.com"
cache:
  domain_ttl: 10m
  negative_ttl: 1m
render:
  default_products_limit: 24
  section_groups:
    header-group: ["header"]
`
	if err := os.WriteFile(yamlFile, []byte(yamlContent), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	envFile := filepath.Join(tempDir, ".env")
	if err := os.WriteFile(envFile, []byte("STOREFRONT_LOG_LEVEL=debug\n"), 0600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	t.Cleanup(func() { os.Unsetenv("STOREFRONT_LOG_LEVEL") })
	t.Setenv("STOREFRONT_SERVER_ADDRESS", ":7070")
	t.Setenv("STOREFRONT_CACHE_NEGATIVE_TTL", "45s")
	t.Setenv("STOREFRONT_VALIDATION_REQUIRED_FILES", "layout/theme.liquid,templates/index.json")

	cfg, err := LoadFrom(yamlFile, envFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Address != ":7070" {
		t.Errorf("Expected env to override address, got %s", cfg.Server.Address)
	}
	if cfg.Server.PlatformDomain != "shops.example.com" {
		t.Errorf("Expected YAML platform domain, got %s", cfg.Server.PlatformDomain)
	}
	if cfg.Cache.DomainTTL != 10*time.Minute {
		t.Errorf("Expected domain TTL 10m, got %v", cfg.Cache.DomainTTL)
	}
	if cfg.Cache.NegativeTTL != 45*time.Second {
		t.Errorf("Expected negative TTL 45s, got %v", cfg.Cache.NegativeTTL)
	}
	if cfg.Render.DefaultProductsLimit != 24 {
		t.Errorf("Expected products limit 24, got %d", cfg.Render.DefaultProductsLimit)
	}
	if got := cfg.Render.SectionGroups["header-group"]; len(got) != 1 || got[0] != "header" {
		t.Errorf("Expected YAML section group override, got %v", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level from env file, got %s", cfg.Logging.Level)
	}
	if len(cfg.Validation.RequiredFiles) != 2 {
		t.Errorf("Expected 2 required files, got %v", cfg.Validation.RequiredFiles)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"), "")
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

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
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "STOREFRONT_"

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOG_"`
	Metrics    MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
	Storage    StorageConfig    `yaml:"storage" envPrefix:"STORAGE_"`
	Cache      CacheConfig      `yaml:"cache" envPrefix:"CACHE_"`
	Themes     ThemesConfig     `yaml:"themes" envPrefix:"THEMES_"`
	Render     RenderConfig     `yaml:"render" envPrefix:"RENDER_"`
	Validation ValidationConfig `yaml:"validation" envPrefix:"VALIDATION_"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Admin      AdminConfig      `yaml:"admin" envPrefix:"ADMIN_"`
	DNS        DNSConfig        `yaml:"dns" envPrefix:"DNS_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address        string        `yaml:"address" env:"ADDRESS"`
	PlatformDomain string        `yaml:"platform_domain" env:"PLATFORM_DOMAIN"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	MaxRequestSize int64         `yaml:"max_request_size" env:"MAX_REQUEST_SIZE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
	Backend string `yaml:"backend" env:"BACKEND"` // "prometheus" or "simple"
}

// StorageConfig selects and configures the data-access backend
type StorageConfig struct {
	Type     string         `yaml:"type" env:"TYPE"` // "memory" or "database"
	Database DatabaseConfig `yaml:"database" envPrefix:"DB_"`
	SeedFile string         `yaml:"seed_file" env:"SEED_FILE"`
}

// DatabaseConfig holds SQL database settings
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	DSN             string        `yaml:"dsn" env:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// CacheConfig holds cache backend settings and TTL policy
type CacheConfig struct {
	Type            string        `yaml:"type" env:"TYPE"` // "memory" or "redis"
	DomainTTL       time.Duration `yaml:"domain_ttl" env:"DOMAIN_TTL"`
	NegativeTTL     time.Duration `yaml:"negative_ttl" env:"NEGATIVE_TTL"`
	DataTTL         time.Duration `yaml:"data_ttl" env:"DATA_TTL"`
	SearchTTL       time.Duration `yaml:"search_ttl" env:"SEARCH_TTL"`
	MaxSize         int           `yaml:"max_size" env:"MAX_SIZE"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	Redis           RedisConfig   `yaml:"redis" envPrefix:"REDIS_"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Address   string `yaml:"address" env:"ADDRESS"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// ThemesConfig locates theme packages on disk
type ThemesConfig struct {
	RootDir      string `yaml:"root_dir" env:"ROOT_DIR"`
	DefaultTheme string `yaml:"default_theme" env:"DEFAULT_THEME"`
	Watch        bool   `yaml:"watch" env:"WATCH"`
}

// RenderConfig holds rendering defaults
type RenderConfig struct {
	DefaultProductsLimit    int                 `yaml:"default_products_limit" env:"DEFAULT_PRODUCTS_LIMIT"`
	DefaultCollectionsLimit int                 `yaml:"default_collections_limit" env:"DEFAULT_COLLECTIONS_LIMIT"`
	SearchLimit             int                 `yaml:"search_limit" env:"SEARCH_LIMIT"`
	ParallelSections        bool                `yaml:"parallel_sections" env:"PARALLEL_SECTIONS"`
	MaxParallelSections     int                 `yaml:"max_parallel_sections" env:"MAX_PARALLEL_SECTIONS"`
	SectionGroups           map[string][]string `yaml:"section_groups"`
}

// ValidationConfig holds theme package limits
type ValidationConfig struct {
	RequiredFiles     []string `yaml:"required_files" env:"REQUIRED_FILES" envSeparator:","`
	MaxFiles          int      `yaml:"max_files" env:"MAX_FILES"`
	MaxTotalSize      int64    `yaml:"max_total_size" env:"MAX_TOTAL_SIZE"`
	AllowedExtensions []string `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS" envSeparator:","`
}

// RateLimitConfig holds per-client rate limiting settings
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" env:"ENABLED"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RPS"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// AdminConfig holds admin API authentication settings
type AdminConfig struct {
	APIKey       string `yaml:"api_key" env:"API_KEY"`
	APIKeyHeader string `yaml:"api_key_header" env:"API_KEY_HEADER"`
}

// DNSConfig holds custom domain DNS check settings
type DNSConfig struct {
	// EdgeTarget is the host custom domains must CNAME to. Empty means
	// stores.<platform domain>.
	EdgeTarget string        `yaml:"edge_target" env:"EDGE_TARGET"`
	Resolvers  []string      `yaml:"resolvers" env:"RESOLVERS" envSeparator:","`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// DefaultSectionGroups maps a section group name to the sections it renders, in order
func DefaultSectionGroups() map[string][]string {
	return map[string][]string{
		"header-group": {"announcement-bar", "header"},
		"footer-group": {"footer"},
	}
}

// LoadFrom builds a configuration from defaults, an optional YAML file, an
// optional .env file and the process environment.
func LoadFrom(configFile, envFile string) (*Config, error) {
	cfg := Default()

	if err := loadFromYAML(cfg, configFile); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	if err := loadFromEnv(cfg, envFile); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8080",
			PlatformDomain: "myshop.local",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxRequestSize: 1024 * 1024, // 1MB
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Backend: "prometheus",
		},
		Storage: StorageConfig{
			Type: "memory",
			Database: DatabaseConfig{
				Driver:          "postgres",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Type:            "memory",
			DomainTTL:       5 * time.Minute,
			NegativeTTL:     30 * time.Second,
			DataTTL:         2 * time.Minute,
			SearchTTL:       time.Minute,
			MaxSize:         10000,
			CleanupInterval: time.Minute,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "storefront",
			},
		},
		Themes: ThemesConfig{
			RootDir:      "./themes",
			DefaultTheme: "default",
		},
		Render: RenderConfig{
			DefaultProductsLimit:    12,
			DefaultCollectionsLimit: 10,
			SearchLimit:             20,
			ParallelSections:        true,
			MaxParallelSections:     8,
			SectionGroups:           DefaultSectionGroups(),
		},
		Validation: ValidationConfig{
			RequiredFiles: []string{
				"layout/theme.liquid",
				"templates/index.json",
				"templates/product.json",
				"templates/collection.json",
			},
			MaxFiles:     500,
			MaxTotalSize: 50 * 1024 * 1024, // 50MB
			AllowedExtensions: []string{
				".liquid", ".json", ".css", ".js", ".scss",
				".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp",
				".woff", ".woff2", ".ttf", ".yaml", ".yml",
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Admin: AdminConfig{
			APIKeyHeader: "X-Admin-Key",
		},
		DNS: DNSConfig{
			Timeout:  5 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
	}
}

// loadFromYAML loads configuration from a YAML file
func loadFromYAML(cfg *Config, configFile string) error {
	// Only load config file if explicitly provided
	if configFile == "" {
		return nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config file %s: %w", configFile, err)
	}

	return nil
}

// loadFromEnv overrides configuration with environment variables. A .env
// file is optional and never overrides variables already set.
func loadFromEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}

// validate validates the configuration
func (c *Config) validate() error {
	if err := validateDomain(c.Server.PlatformDomain); err != nil {
		return fmt.Errorf("invalid platform domain: %w", err)
	}

	switch c.Storage.Type {
	case "memory":
	case "database":
		if c.Storage.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for database storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}

	if c.Cache.DomainTTL <= 0 {
		return fmt.Errorf("cache domain TTL must be positive")
	}
	if c.Cache.NegativeTTL <= 0 || c.Cache.NegativeTTL >= c.Cache.DomainTTL {
		return fmt.Errorf("cache negative TTL must be positive and shorter than domain TTL")
	}

	if c.Render.DefaultProductsLimit <= 0 || c.Render.DefaultCollectionsLimit <= 0 {
		return fmt.Errorf("default render limits must be positive")
	}

	for group, sections := range c.Render.SectionGroups {
		if len(sections) == 0 {
			return fmt.Errorf("section group %s has no sections", group)
		}
	}

	if c.Validation.MaxFiles <= 0 || c.Validation.MaxTotalSize <= 0 {
		return fmt.Errorf("theme validation limits must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests per second and burst")
	}

	if c.DNS.Timeout <= 0 || c.DNS.CacheTTL <= 0 {
		return fmt.Errorf("DNS timeout and cache TTL must be positive")
	}
	if c.DNS.EdgeTarget != "" {
		if err := validateDomain(c.DNS.EdgeTarget); err != nil {
			return fmt.Errorf("invalid DNS edge target: %w", err)
		}
	}

	return nil
}

var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)

// validateDomain validates a domain name
func validateDomain(domain string) error {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return fmt.Errorf("domain is required")
	}

	// Allow localhost for development
	if domain == "localhost" {
		return nil
	}

	if strings.Contains(domain, "_") {
		return fmt.Errorf("domain cannot contain underscores: %s", domain)
	}

	if len(domain) > 253 {
		return fmt.Errorf("domain too long (max 253 characters): %s", domain)
	}

	for _, label := range strings.Split(domain, ".") {
		if len(label) == 0 {
			return fmt.Errorf("empty label in domain: %s", domain)
		}
		if len(label) > 63 {
			return fmt.Errorf("label too long (max 63 characters) in domain: %s", domain)
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("label cannot start or end with hyphen in domain: %s", domain)
		}
	}

	if !domainRegex.MatchString(domain) {
		return fmt.Errorf("invalid domain format: %s", domain)
	}

	if net.ParseIP(domain) != nil {
		return fmt.Errorf("platform domain must be a host name, not an IP address: %s", domain)
	}

	return nil
}

// Package config loads and validates signalhub's configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"signalhub/internal/domain"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig           `toml:"server"`
	Models     map[string]ModelConfig `toml:"models"`
	Routing    RoutingConfig          `toml:"routing"`
	Cache      CacheConfig            `toml:"cache"`
	Escalation EscalationConfig       `toml:"escalation"`
	Ledger     LedgerConfig           `toml:"ledger"`
	Database   DatabaseConfig         `toml:"database"`
	Embedder   EmbedderConfig         `toml:"embedder"`
}

// ServerConfig contains server settings.
type ServerConfig struct {
	HTTPPort    int    `toml:"http_port"`
	MetricsPort int    `toml:"metrics_port"`
	BindAddress string `toml:"bind_address"`
}

// ModelConfig describes one model tier's pricing and limits.
type ModelConfig struct {
	ID               string  `toml:"id"`
	InputPricePer1M  float64 `toml:"input_price_per_1m"`
	OutputPricePer1M float64 `toml:"output_price_per_1m"`
	ContextWindow    int     `toml:"context_window"`
	MaxOutputTokens  int     `toml:"max_output_tokens"`
}

// RuleConfig configures one rule in the rule stack.
type RuleConfig struct {
	Name       string         `toml:"name"`
	Enabled    bool           `toml:"enabled"`
	Priority   int            `toml:"priority"`
	Parameters map[string]any `toml:"parameters"`
}

// RoutingConfig contains routing-engine settings.
type RoutingConfig struct {
	DefaultModel string       `toml:"default_model"`
	Rules        []RuleConfig `toml:"rules"`
}

// CacheConfig contains semantic-cache settings.
type CacheConfig struct {
	Enabled             bool          `toml:"enabled"`
	SimilarityThreshold float64       `toml:"similarity_threshold"`
	TTLHours            float64       `toml:"ttl_hours"`
	MaxEntries          int           `toml:"max_entries"`
	MaxMemoryMB         int           `toml:"max_memory_mb"`
	StorageBackend      string        `toml:"storage_backend"` // "memory" | "persistent"
	ContextAware        bool          `toml:"context_aware"`
	EvictionStrategy    string        `toml:"eviction_strategy"` // "lru" | "ttl" | "quality" | "composite"
	MaintenanceInterval time.Duration `toml:"maintenance_interval"`
}

// EscalationConfig contains escalation-layer settings.
type EscalationConfig struct {
	SessionDefaultDurationMinutes int  `toml:"session_default_duration_minutes"`
	InlineHintsEnabled            bool `toml:"inline_hints_enabled"`
}

// LedgerConfig contains cost-ledger settings.
type LedgerConfig struct {
	RetentionDays  int    `toml:"retention_days"`
	StoragePath    string `toml:"storage_path"`
	StorageBackend string `toml:"storage_backend"` // "memory" | "postgres"
	EncryptUserID  bool   `toml:"encrypt_user_id"`
	EncryptionKey  string `toml:"encryption_key"`
}

// DatabaseConfig contains database connection settings, used when either
// the ledger or the cache storage backend is "postgres"/"persistent".
type DatabaseConfig struct {
	DSN        string        `toml:"dsn"`
	Host       string        `toml:"host"`
	Port       int           `toml:"port"`
	User       string        `toml:"user"`
	Password   string        `toml:"password"`
	Database   string        `toml:"database"`
	SSLMode    string        `toml:"ssl_mode"`
	MaxConns   int           `toml:"max_conns"`
	MaxIdle    int           `toml:"max_idle"`
	ConnMaxAge time.Duration `toml:"conn_max_age"`
}

// GetDSN returns the DSN for the database.
func (d *DatabaseConfig) GetDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// EmbedderConfig contains embedder settings for the semantic cache.
type EmbedderConfig struct {
	Type      string `toml:"type"` // "openai", "ollama", "local"
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"`
	CacheSize int    `toml:"cache_size"`
}

// Default returns a fully-populated default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:    8080,
			MetricsPort: 9090,
			BindAddress: "0.0.0.0",
		},
		Models: map[string]ModelConfig{
			"small": {
				ID: "small", InputPricePer1M: 0.25, OutputPricePer1M: 1.25,
				ContextWindow: 200_000, MaxOutputTokens: 8192,
			},
			"medium": {
				ID: "medium", InputPricePer1M: 3.0, OutputPricePer1M: 15.0,
				ContextWindow: 200_000, MaxOutputTokens: 8192,
			},
			"large": {
				ID: "large", InputPricePer1M: 15.0, OutputPricePer1M: 75.0,
				ContextWindow: 200_000, MaxOutputTokens: 8192,
			},
		},
		Routing: RoutingConfig{
			DefaultModel: "medium",
			Rules: []RuleConfig{
				{Name: "task_type", Enabled: true, Priority: 100},
				{Name: "complexity_based", Enabled: true, Priority: 50},
				{Name: "length_based", Enabled: true, Priority: 10},
			},
		},
		Cache: CacheConfig{
			Enabled:             true,
			SimilarityThreshold: 0.92,
			TTLHours:            24,
			MaxEntries:          10_000,
			MaxMemoryMB:         256,
			StorageBackend:      "memory",
			ContextAware:        true,
			EvictionStrategy:    "composite",
			MaintenanceInterval: time.Hour,
		},
		Escalation: EscalationConfig{
			SessionDefaultDurationMinutes: 30,
			InlineHintsEnabled:            true,
		},
		Ledger: LedgerConfig{
			RetentionDays:  90,
			StorageBackend: "memory",
		},
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, User: "postgres", Password: "postgres",
			Database: "signalhub", SSLMode: "disable", MaxConns: 20, MaxIdle: 5,
			ConnMaxAge: 30 * time.Minute,
		},
		Embedder: EmbedderConfig{
			Type: "local", Dimension: 384, CacheSize: 1024,
		},
	}
}

// Load loads configuration from a TOML file, starting from Default() and
// layering SIGNAL_HUB_ environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, domain.NewError(domain.KindFatal, "config.Load", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values before any component is built;
// serving with a broken configuration is worse than refusing to start.
func (c *Config) Validate() error {
	fail := func(msg string) error {
		return domain.NewError(domain.KindFatal, "config.Validate", fmt.Errorf("%s", msg))
	}

	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fail(fmt.Sprintf("cache.similarity_threshold must be in [0,1], got %v", c.Cache.SimilarityThreshold))
	}
	if c.Cache.Enabled && c.Cache.TTLHours <= 0 {
		return fail(fmt.Sprintf("cache.ttl_hours must be > 0, got %v", c.Cache.TTLHours))
	}
	if c.Cache.Enabled && c.Cache.MaxEntries <= 0 {
		return fail(fmt.Sprintf("cache.max_entries must be > 0, got %d", c.Cache.MaxEntries))
	}
	switch c.Cache.EvictionStrategy {
	case "", "lru", "ttl", "quality", "composite":
	default:
		return fail(fmt.Sprintf("cache.eviction_strategy must be one of lru/ttl/quality/composite, got %q", c.Cache.EvictionStrategy))
	}
	switch c.Cache.StorageBackend {
	case "", "memory", "persistent":
	default:
		return fail(fmt.Sprintf("cache.storage_backend must be memory or persistent, got %q", c.Cache.StorageBackend))
	}

	if _, ok := domain.ParseTier(c.Routing.DefaultModel); !ok {
		return fail(fmt.Sprintf("routing.default_model must be small/medium/large, got %q", c.Routing.DefaultModel))
	}
	if c.Escalation.SessionDefaultDurationMinutes < 0 {
		return fail(fmt.Sprintf("escalation.session_default_duration_minutes must be >= 0, got %d", c.Escalation.SessionDefaultDurationMinutes))
	}
	switch c.Ledger.StorageBackend {
	case "", "memory", "postgres":
	default:
		return fail(fmt.Sprintf("ledger.storage_backend must be memory or postgres, got %q", c.Ledger.StorageBackend))
	}
	if c.Ledger.RetentionDays < 0 {
		return fail(fmt.Sprintf("ledger.retention_days must be >= 0, got %d", c.Ledger.RetentionDays))
	}
	return nil
}

// applyEnvOverrides applies SIGNAL_HUB_-prefixed environment variables on
// top of whatever Default()/Load() already populated.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SIGNAL_HUB_ROUTING_DEFAULT_MODEL"); v != "" {
		c.Routing.DefaultModel = v
	}
	if v := os.Getenv("SIGNAL_HUB_CACHE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Cache.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("SIGNAL_HUB_CACHE_TTL_HOURS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Cache.TTLHours = f
		}
	}
	if v := os.Getenv("SIGNAL_HUB_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("SIGNAL_HUB_CACHE_STORAGE_BACKEND"); v != "" {
		c.Cache.StorageBackend = v
	}
	if v := os.Getenv("SIGNAL_HUB_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SIGNAL_HUB_ESCALATION_SESSION_DEFAULT_DURATION_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Escalation.SessionDefaultDurationMinutes = n
		}
	}
	if v := os.Getenv("SIGNAL_HUB_ESCALATION_INLINE_HINTS_ENABLED"); v != "" {
		c.Escalation.InlineHintsEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SIGNAL_HUB_LEDGER_STORAGE_BACKEND"); v != "" {
		c.Ledger.StorageBackend = v
	}
	if v := os.Getenv("SIGNAL_HUB_LEDGER_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ledger.RetentionDays = n
		}
	}
	if v := os.Getenv("SIGNAL_HUB_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("SIGNAL_HUB_DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Database.Port = n
		}
	}
	if v := os.Getenv("SIGNAL_HUB_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("SIGNAL_HUB_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("SIGNAL_HUB_DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("SIGNAL_HUB_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = n
		}
	}
	if v := os.Getenv("SIGNAL_HUB_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("SIGNAL_HUB_EMBEDDER_TYPE"); v != "" {
		c.Embedder.Type = v
	}
	if v := os.Getenv("SIGNAL_HUB_EMBEDDER_BASE_URL"); v != "" {
		c.Embedder.BaseURL = v
	}
	if v := os.Getenv("SIGNAL_HUB_EMBEDDER_API_KEY"); v != "" {
		c.Embedder.APIKey = v
	}
	if v := os.Getenv("SIGNAL_HUB_LEDGER_ENCRYPTION_KEY"); v != "" {
		c.Ledger.EncryptionKey = v
		c.Ledger.EncryptUserID = true
	}
}

// TierConfigs returns the configured models as a map keyed by domain.ModelTier,
// validating that all three required tiers are present.
func (c *Config) TierConfigs() (map[domain.ModelTier]ModelConfig, error) {
	out := make(map[domain.ModelTier]ModelConfig, 3)
	for _, tier := range domain.AllTiers() {
		mc, ok := c.Models[string(tier)]
		if !ok {
			return nil, domain.NewError(domain.KindFatal, "config.TierConfigs",
				fmt.Errorf("missing pricing configuration for tier %q", tier))
		}
		out[tier] = mc
	}
	return out, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/domain"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "medium", cfg.Routing.DefaultModel)
	assert.Equal(t, 0.92, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, "memory", cfg.Ledger.StorageBackend)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Cache.MaxEntries, cfg.Cache.MaxEntries)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[routing]
default_model = "small"

[cache]
similarity_threshold = 0.8
ttl_hours = 48.0
max_entries = 500
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "small", cfg.Routing.DefaultModel)
	assert.Equal(t, 0.8, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, 48.0, cfg.Cache.TTLHours)
	assert.Equal(t, 500, cfg.Cache.MaxEntries)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SIGNAL_HUB_ROUTING_DEFAULT_MODEL", "large")
	t.Setenv("SIGNAL_HUB_CACHE_SIMILARITY_THRESHOLD", "0.95")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "large", cfg.Routing.DefaultModel)
	assert.Equal(t, 0.95, cfg.Cache.SimilarityThreshold)
}

func TestValidate_RejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"similarity threshold above one", func(c *Config) { c.Cache.SimilarityThreshold = 1.5 }},
		{"negative similarity threshold", func(c *Config) { c.Cache.SimilarityThreshold = -0.1 }},
		{"zero ttl with cache enabled", func(c *Config) { c.Cache.TTLHours = 0 }},
		{"zero max entries with cache enabled", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"unknown eviction strategy", func(c *Config) { c.Cache.EvictionStrategy = "random" }},
		{"unknown cache backend", func(c *Config) { c.Cache.StorageBackend = "redis" }},
		{"unknown default model", func(c *Config) { c.Routing.DefaultModel = "xl" }},
		{"unknown ledger backend", func(c *Config) { c.Ledger.StorageBackend = "sqlite" }},
		{"negative retention days", func(c *Config) { c.Ledger.RetentionDays = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, domain.KindFatal, domain.KindOf(err))
		})
	}
}

func TestValidate_DisabledCacheSkipsCacheChecks(t *testing.T) {
	cfg := Default()
	cfg.Cache.Enabled = false
	cfg.Cache.TTLHours = 0
	cfg.Cache.MaxEntries = 0
	require.NoError(t, cfg.Validate())
}

func TestTierConfigs_RequiresAllTiers(t *testing.T) {
	cfg := Default()
	delete(cfg.Models, "medium")
	_, err := cfg.TierConfigs()
	require.Error(t, err)
	assert.Equal(t, domain.KindFatal, domain.KindOf(err))
}

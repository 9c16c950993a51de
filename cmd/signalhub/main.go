// Package main is the entry point for the SignalHub server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"signalhub/internal/cache/eviction"
	"signalhub/internal/cache/manager"
	"signalhub/internal/cache/semantic"
	"signalhub/internal/cache/storage"
	"signalhub/internal/config"
	"signalhub/internal/costs"
	"signalhub/internal/crypto"
	"signalhub/internal/domain"
	"signalhub/internal/embedclient"
	httpserver "signalhub/internal/http"
	"signalhub/internal/mcp"
	"signalhub/internal/provider"
	"signalhub/internal/routing/engine"
	"signalhub/internal/routing/escalation"
	"signalhub/internal/routing/rules"
	"signalhub/internal/storage/postgres"
)

const (
	dispatcherMinWorkers = 4
	dispatcherMaxWorkers = 16
	dispatcherQueueSize  = 256
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting signalhub", "http_port", cfg.Server.HTTPPort)

	calc, err := buildCalculator(cfg)
	if err != nil {
		slog.Error("failed to build cost calculator", "error", err)
		os.Exit(1)
	}

	ledger, closeLedger := buildLedger(cfg, calc)
	defer closeLedger()

	cache, cacheMgr, closeCache := buildCache(cfg)
	defer closeCache()

	ruleStack := rules.BuildDefaultStack(ruleSpecs(cfg))

	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()
	sessions := escalation.NewSessionStore(time.Duration(cfg.Escalation.SessionDefaultDurationMinutes) * time.Minute)
	sessions.StartCleanup(sessionCtx, time.Minute)
	escLayer := escalation.New(sessions, cfg.Escalation.InlineHintsEnabled)

	availability := buildAvailability()

	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	dispatcher := engine.NewDispatcher(dispatcherMinWorkers, dispatcherMaxWorkers, dispatcherQueueSize)
	dispatcher.Start(dispatcherCtx)

	eng := engine.New(engine.Config{
		DefaultModel:    domain.ModelTier(cfg.Routing.DefaultModel),
		ProviderTimeout: 30 * time.Second,
		RetryMaxElapsed: 15 * time.Second,
	}, escLayer, ruleStack, cache, calc, ledger, availability, dispatcher)

	mcpServer := mcp.NewServer(eng, sessions, calc, mcp.NullRetriever{})

	metrics := httpserver.NewMetrics(nil)
	srv := httpserver.NewServer(mcpServer, metrics)
	srv.AttachStats(httpserver.StatsSources{
		Engine:  eng,
		Cache:   cache,
		Manager: cacheMgr,
		Ledger:  ledger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Ledger.RetentionDays > 0 {
		go runLedgerRetention(ctx, ledger, cfg.Ledger.RetentionDays)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort),
		Handler: srv.Handler(),
	}

	go func() {
		slog.Info("mcp http server listening", "addr", httpSrv.Addr,
			"routes", []string{"/tools", "/tools/call", "/rpc", "/metrics", "/health", "/ready", "/stats", "/cache/evict"})
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
	}
	slog.Info("signalhub stopped")
}

func buildCalculator(cfg *config.Config) (*costs.Calculator, error) {
	tiers, err := cfg.TierConfigs()
	if err != nil {
		return nil, err
	}
	return costs.NewCalculator(costs.NewPricingTable(tiers)), nil
}

// buildLedger wires the cost ledger per ledger.storage_backend,
// encrypting user_id on the postgres backend when ledger.encrypt_user_id is
// set and an encryption key is configured.
func buildLedger(cfg *config.Config, calc *costs.Calculator) (costs.Ledger, func()) {
	risk := costs.NewRiskScorer(costs.DefaultRiskWeights(), costs.DefaultRiskThresholds())

	if cfg.Ledger.StorageBackend != "postgres" {
		slog.Info("cost ledger: using in-memory backend")
		return costs.NewMemoryLedger(calc, risk), func() {}
	}

	db, err := postgres.NewDB(&cfg.Database, cfg.Database.GetDSN())
	if err != nil {
		slog.Error("cost ledger: failed to connect to postgres, falling back to memory", "error", err)
		return costs.NewMemoryLedger(calc, risk), func() {}
	}
	if err := postgres.RunSchemaFromFile(db.DB, "migrations/001_schema.sql"); err != nil {
		slog.Warn("cost ledger: schema application issue", "error", err)
	}

	var encryptor *crypto.FieldCipher
	if cfg.Ledger.EncryptUserID && cfg.Ledger.EncryptionKey != "" {
		enc, err := crypto.NewFieldCipherFromString(cfg.Ledger.EncryptionKey)
		if err != nil {
			slog.Warn("cost ledger: failed to initialize encryption, user_id will be stored in plain text", "error", err)
		} else {
			encryptor = enc
			slog.Info("cost ledger: user_id encryption enabled", "key_id", enc.KeyID())
		}
	}

	slog.Info("cost ledger: using postgres backend")
	return costs.NewPostgresLedger(db.GetDB(), calc, risk, encryptor), func() { db.Close() }
}

// buildCache wires the semantic cache over its storage and
// manager layers per cache.enabled/cache.storage_backend. A nil
// *semantic.Cache disables the cache lookup/store steps in the Routing
// Engine.
func buildCache(cfg *config.Config) (*semantic.Cache, *manager.Manager, func()) {
	noop := func() {}
	if !cfg.Cache.Enabled {
		slog.Info("semantic cache: disabled")
		return nil, nil, noop
	}

	var store storage.Storage
	var closeFn func()
	switch cfg.Cache.StorageBackend {
	case "persistent":
		db, err := postgres.NewDB(&cfg.Database, cfg.Database.GetDSN())
		if err != nil {
			slog.Error("semantic cache: failed to connect to postgres, falling back to memory", "error", err)
			store = storage.NewMemoryStorage(cfg.Cache.MaxEntries)
			closeFn = noop
		} else {
			if err := postgres.RunSchemaFromFile(db.DB, "migrations/001_schema.sql"); err != nil {
				slog.Warn("semantic cache: schema application issue", "error", err)
			}
			store = storage.NewPostgresStorage(db.GetDB(), cfg.Cache.MaxEntries)
			closeFn = func() { db.Close() }
		}
	default:
		store = storage.NewMemoryStorage(cfg.Cache.MaxEntries)
		closeFn = noop
	}

	policy := eviction.NewCompositePolicy()
	mgrCfg := manager.Config{MaxEntries: cfg.Cache.MaxEntries, Interval: cfg.Cache.MaintenanceInterval}
	mgr := manager.New(store, policy, mgrCfg)
	mgrCtx, cancelMgr := context.WithCancel(context.Background())
	if err := mgr.Start(mgrCtx, mgrCfg); err != nil {
		slog.Warn("cache manager: failed to start maintenance", "error", err)
	}

	embedder := buildEmbedder(cfg)
	cachedEmbedder := semantic.NewCachingEmbedder(embedder, cfg.Embedder.CacheSize)

	cache := semantic.New(store, cachedEmbedder, mgr, semantic.Config{
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		TTLHours:            cfg.Cache.TTLHours,
		MaxEntries:          cfg.Cache.MaxEntries,
	})

	slog.Info("semantic cache: enabled", "backend", cfg.Cache.StorageBackend, "embedder", cfg.Embedder.Type)
	return cache, mgr, func() { cancelMgr(); closeFn() }
}

// runLedgerRetention prunes ledger records past the configured retention
// window once a day until ctx is cancelled.
func runLedgerRetention(ctx context.Context, ledger costs.Ledger, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			removed, err := ledger.Prune(ctx, cutoff)
			if err != nil {
				slog.Warn("ledger retention prune failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("ledger retention prune complete", "removed", removed, "cutoff", cutoff)
			}
		}
	}
}

// buildEmbedder selects the embedder per embedder.type, defaulting to the
// dependency-free local embedder when unset or unrecognised.
func buildEmbedder(cfg *config.Config) semantic.Embedder {
	switch cfg.Embedder.Type {
	case "openai":
		return embedclient.NewOpenAIEmbedder(cfg.Embedder.APIKey, cfg.Embedder.Model, 30*time.Second)
	case "ollama":
		return embedclient.NewOllamaEmbedder(cfg.Embedder.BaseURL, cfg.Embedder.Model, 30*time.Second)
	default:
		return embedclient.NewLocalEmbedder(cfg.Embedder.Dimension)
	}
}

// buildAvailability wires one Provider per model tier from
// SIGNAL_HUB_PROVIDER_<TIER>_OPENAI_API_KEY environment variables, falling
// back to a local Ollama instance for any tier without OpenAI credentials.
func buildAvailability() *engine.AvailabilityProber {
	providers := make(map[domain.ModelTier]provider.Provider, len(domain.AllTiers()))
	for _, tier := range domain.AllTiers() {
		providers[tier] = resolveProvider(tier)
	}
	return engine.NewAvailabilityProber(providers)
}

func resolveProvider(tier domain.ModelTier) provider.Provider {
	envPrefix := "SIGNAL_HUB_PROVIDER_" + strings.ToUpper(string(tier))
	if apiKey := os.Getenv(envPrefix + "_OPENAI_API_KEY"); apiKey != "" {
		return provider.NewOpenAIProvider(apiKey, os.Getenv(envPrefix+"_OPENAI_BASE_URL"), 30*time.Second)
	}
	slog.Info("provider: no credentials configured, defaulting to local ollama", "tier", tier)
	return provider.NewOllamaProvider(os.Getenv("SIGNAL_HUB_OLLAMA_BASE_URL"), 30*time.Second)
}

func ruleSpecs(cfg *config.Config) []rules.RuleSpec {
	specs := make([]rules.RuleSpec, 0, len(cfg.Routing.Rules))
	for _, rc := range cfg.Routing.Rules {
		specs = append(specs, rules.RuleSpec{Name: rc.Name, Enabled: rc.Enabled, Priority: rc.Priority})
	}
	return specs
}

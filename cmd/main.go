package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nickberens360/portfolio-chat/internal/cache"
	"github.com/nickberens360/portfolio-chat/internal/config"
	"github.com/nickberens360/portfolio-chat/internal/illustrations"
	"github.com/nickberens360/portfolio-chat/internal/llm"
	"github.com/nickberens360/portfolio-chat/internal/logging"
	"github.com/nickberens360/portfolio-chat/internal/metrics"
	"github.com/nickberens360/portfolio-chat/internal/retriever"
	"github.com/nickberens360/portfolio-chat/internal/server"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "PORTFOLIO", "environment variable prefix")
	)
	flag.Parse()

	// Provider API keys usually live in a local .env during development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	responseCache := buildResponseCache(logger.With(slog.String("agent", "cache_factory")), cfg.Cache)
	if responseCache != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := responseCache.Close(shutdownCtx); err != nil {
				logger.Error("cache shutdown failed", slog.Any("error", err))
			}
		}()
	}

	// A missing passage store degrades the chat path instead of aborting
	// startup; diagnostics endpoints stay available either way.
	var contextRetriever llm.Retriever
	if store, err := retriever.Load(cfg.Retriever.PassagesFile); err != nil {
		logger.Error("passage store unavailable",
			slog.String("path", cfg.Retriever.PassagesFile),
			slog.Any("error", err))
	} else {
		logger.Info("passage store loaded", slog.Int("passages", store.Len()))
		contextRetriever = store
	}

	catalog, err := illustrations.NewCatalog(cfg.Search.CatalogFile, cfg.Search.ScoreThreshold, cfg.Search.MaxResults)
	if err != nil {
		logger.Error("illustration catalog unavailable",
			slog.String("path", cfg.Search.CatalogFile),
			slog.Any("error", err))
		catalog = nil
	} else {
		logger.Info("illustration catalog loaded", slog.Int("records", catalog.Len()))
		watcher, err := catalog.Watch(ctx, func(err error) {
			logger.Error("catalog watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("catalog watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	pool := llm.NewPool(logger, cfg.LLM.Providers, llm.NewOpenAI)
	orch, err := llm.NewOrchestrator(logger, pool, llm.Options{
		Cache:      responseCache,
		Retriever:  contextRetriever,
		Metrics:    metricsRecorder,
		Primary:    cfg.LLM.Primary,
		Persona:    cfg.LLM.Persona,
		MaxRetries: cfg.LLM.MaxRetries,
		TopK:       cfg.Retriever.TopK,
	})
	if err != nil {
		logger.Error("unable to construct orchestrator", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := server.NewHandlers(logger, cfg, orch, pool, catalog, responseCache, metricsRecorder)
	srv, err := server.New(cfg, logger, server.NewRouter(handlers))
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildResponseCache returns nil when caching is disabled. A valkey backend
// that cannot be reached falls back to the in-process cache so the service
// still starts.
func buildResponseCache(logger *slog.Logger, cfg config.CacheConfig) cache.ResponseCache {
	if !cfg.Enabled {
		logger.Info("response cache disabled")
		return nil
	}

	switch cfg.Backend {
	case "", "memory":
		logger.Info("using in-memory response cache",
			slog.Int("max_entries", cfg.MaxEntries),
			slog.Duration("ttl", cfg.TTL))
		return cache.NewMemory(cfg.TTL, cfg.MaxEntries)
	case "valkey":
		backend, err := cache.NewValkey(cache.ValkeyConfig{
			Address:  cfg.Valkey.Address,
			Username: cfg.Valkey.Username,
			Password: cfg.Valkey.Password,
			DB:       cfg.Valkey.DB,
		}, cfg.TTL)
		if err != nil {
			logger.Warn("valkey cache unavailable, falling back to memory",
				slog.String("address", cfg.Valkey.Address),
				slog.Any("error", err))
			return cache.NewMemory(cfg.TTL, cfg.MaxEntries)
		}
		logger.Info("using valkey response cache", slog.String("address", cfg.Valkey.Address))
		return backend
	default:
		logger.Warn("unknown cache backend, falling back to memory",
			slog.String("backend", cfg.Backend))
		return cache.NewMemory(cfg.TTL, cfg.MaxEntries)
	}
}

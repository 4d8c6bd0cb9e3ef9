package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	ktoml "github.com/knadh/koanf/parsers/toml"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective configuration snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.cors.allowedorigins":         "server.cors.allowedOrigins",
			"server.ratelimit.requestsperminute": "server.ratelimit.requestsPerMinute",
			"llm.maxretries":                     "llm.maxRetries",
			"cache.maxentries":                   "cache.maxEntries",
			"retriever.passagesfile":             "retriever.passagesFile",
			"retriever.topk":                     "retriever.topK",
			"retriever.embeddingmodel":           "retriever.embeddingModel",
			"search.catalogfile":                 "search.catalogFile",
			"search.scorethreshold":              "search.scoreThreshold",
			"search.maxresults":                  "search.maxResults",
		}
		providerSuffix := map[string]string{
			"baseurl":        "baseURL",
			"apikeyenv":      "apiKeyEnv",
			"retrydelay":     "retryDelay",
			"requesttimeout": "requestTimeout",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (CACHE__MAXENTRIES -> cache.maxEntries).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			// Provider names are operator-chosen, so camel-case restoration only
			// applies to the trailing field segment.
			if strings.HasPrefix(lower, "llm.providers.") {
				if idx := strings.LastIndex(lower, "."); idx >= 0 {
					if mapped, ok := providerSuffix[lower[idx+1:]]; ok {
						return lower[:idx+1] + mapped
					}
				}
			}
			// Single underscores are removed so MAX_RETRIES collapses into
			// maxretries when callers skip double underscores for nesting.
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return kyaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return ktoml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported config format %s", filepath.Ext(path))
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	providers := make(map[string]any, len(cfg.LLM.Providers))
	for name, p := range cfg.LLM.Providers {
		providers[name] = map[string]any{
			"model":          p.Model,
			"baseURL":        p.BaseURL,
			"apiKeyEnv":      p.APIKeyEnv,
			"retryDelay":     p.RetryDelay.String(),
			"requestTimeout": p.RequestTimeout.String(),
		}
	}
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
			"cors": map[string]any{
				"allowedOrigins": cfg.Server.CORS.AllowedOrigins,
			},
			"ratelimit": map[string]any{
				"requestsPerMinute": cfg.Server.RateLimit.RequestsPerMinute,
			},
		},
		"llm": map[string]any{
			"primary":    cfg.LLM.Primary,
			"persona":    cfg.LLM.Persona,
			"maxRetries": cfg.LLM.MaxRetries,
			"providers":  providers,
		},
		"cache": map[string]any{
			"enabled":    cfg.Cache.Enabled,
			"backend":    cfg.Cache.Backend,
			"ttl":        cfg.Cache.TTL.String(),
			"maxEntries": cfg.Cache.MaxEntries,
			"valkey": map[string]any{
				"address":  cfg.Cache.Valkey.Address,
				"username": cfg.Cache.Valkey.Username,
				"password": cfg.Cache.Valkey.Password,
				"db":       cfg.Cache.Valkey.DB,
			},
		},
		"retriever": map[string]any{
			"passagesFile":   cfg.Retriever.PassagesFile,
			"topK":           cfg.Retriever.TopK,
			"embeddingModel": cfg.Retriever.EmbeddingModel,
		},
		"search": map[string]any{
			"catalogFile":    cfg.Search.CatalogFile,
			"scoreThreshold": cfg.Search.ScoreThreshold,
			"maxResults":     cfg.Search.MaxResults,
		},
		"chunking": map[string]any{
			"size":    cfg.Chunking.Size,
			"overlap": cfg.Chunking.Overlap,
		},
	}
}

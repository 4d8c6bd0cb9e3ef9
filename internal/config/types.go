package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every option the chatbot backend understands.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	LLM       LLMConfig       `koanf:"llm"`
	Cache     CacheConfig     `koanf:"cache"`
	Retriever RetrieverConfig `koanf:"retriever"`
	Search    SearchConfig    `koanf:"search"`
	Chunking  ChunkingConfig  `koanf:"chunking"`
}

// ServerConfig collects the bootstrap knobs owned by the HTTP lifecycle.
type ServerConfig struct {
	Listen    ListenConfig    `koanf:"listen"`
	Logging   LoggingConfig   `koanf:"logging"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowedOrigins"`
}

// RateLimitConfig caps per-client request volume on /query.
type RateLimitConfig struct {
	RequestsPerMinute int `koanf:"requestsPerMinute"`
}

// LLMConfig describes the chat-model pool and the failover policy driving it.
type LLMConfig struct {
	// Primary names the provider tried first; the remaining providers are
	// tried in construction order when it fails.
	Primary    string                    `koanf:"primary"`
	Persona    string                    `koanf:"persona"`
	MaxRetries int                       `koanf:"maxRetries"`
	Providers  map[string]ProviderConfig `koanf:"providers"`
}

// ProviderConfig configures one OpenAI-compatible chat provider.
type ProviderConfig struct {
	Model          string        `koanf:"model"`
	BaseURL        string        `koanf:"baseURL"`
	APIKeyEnv      string        `koanf:"apiKeyEnv"`
	RetryDelay     time.Duration `koanf:"retryDelay"`
	RequestTimeout time.Duration `koanf:"requestTimeout"`
}

// CacheConfig controls the response cache shared across requests.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Backend    string        `koanf:"backend"`
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"maxEntries"`
	Valkey     ValkeyConfig  `koanf:"valkey"`
}

// ValkeyConfig holds connection settings for the shared cache backend.
type ValkeyConfig struct {
	Address  string `koanf:"address"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// RetrieverConfig points at the pre-chunked passage store. EmbeddingModel is
// accepted for compatibility with the document-indexing pipeline; the server
// only reports it.
type RetrieverConfig struct {
	PassagesFile   string `koanf:"passagesFile"`
	TopK           int    `koanf:"topK"`
	EmbeddingModel string `koanf:"embeddingModel"`
}

// SearchConfig tunes the illustration catalog search.
type SearchConfig struct {
	CatalogFile    string `koanf:"catalogFile"`
	ScoreThreshold int    `koanf:"scoreThreshold"`
	MaxResults     int    `koanf:"maxResults"`
}

// ChunkingConfig is accepted for compatibility with the document-indexing
// pipeline that produces the passage store; the server only reports it.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// DefaultConfig returns the baseline configuration applied before file and
// environment overrides.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen:    ListenConfig{Address: "0.0.0.0", Port: 8000},
			Logging:   LoggingConfig{Level: "info", Format: "json"},
			CORS:      CORSConfig{AllowedOrigins: []string{"*"}},
			RateLimit: RateLimitConfig{RequestsPerMinute: 5},
		},
		LLM: LLMConfig{
			Primary:    "openai",
			Persona:    "Nick Berens",
			MaxRetries: 1,
			Providers: map[string]ProviderConfig{
				"openai": {
					Model:          "gpt-4o-mini",
					APIKeyEnv:      "OPENAI_API_KEY",
					RetryDelay:     2 * time.Second,
					RequestTimeout: 30 * time.Second,
				},
				"openrouter": {
					Model:          "meta-llama/llama-3.1-8b-instruct",
					BaseURL:        "https://openrouter.ai/api/v1",
					APIKeyEnv:      "OPENROUTER_API_KEY",
					RetryDelay:     5 * time.Second,
					RequestTimeout: 30 * time.Second,
				},
			},
		},
		Cache: CacheConfig{
			Enabled:    true,
			Backend:    "memory",
			TTL:        time.Hour,
			MaxEntries: 100,
		},
		Retriever: RetrieverConfig{PassagesFile: "data/passages.json", TopK: 4, EmbeddingModel: "text-embedding-3-small"},
		Search:    SearchConfig{CatalogFile: "public/illustrations.json", ScoreThreshold: 55, MaxResults: 10},
		Chunking:  ChunkingConfig{Size: 1000, Overlap: 200},
	}
}

// Validate rejects configurations the runtime cannot act on.
func (c Config) Validate() error {
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.Server.Listen.Port)
	}
	if c.Server.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("config: ratelimit requestsPerMinute must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("config: llm maxRetries must not be negative")
	}
	if len(c.LLM.Providers) == 0 {
		return errors.New("config: at least one llm provider required")
	}
	if _, ok := c.LLM.Providers[c.LLM.Primary]; !ok {
		return fmt.Errorf("config: llm primary %q is not a configured provider", c.LLM.Primary)
	}
	for name, p := range c.LLM.Providers {
		if strings.TrimSpace(p.Model) == "" {
			return fmt.Errorf("config: llm provider %q needs a model", name)
		}
		if p.RetryDelay < 0 {
			return fmt.Errorf("config: llm provider %q retryDelay must not be negative", name)
		}
	}
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return errors.New("config: cache ttl must be positive when caching is enabled")
		}
		if c.Cache.MaxEntries <= 0 {
			return errors.New("config: cache maxEntries must be positive when caching is enabled")
		}
		switch strings.ToLower(strings.TrimSpace(c.Cache.Backend)) {
		case "", "memory":
		case "valkey":
			if c.Cache.Valkey.Address == "" {
				return errors.New("config: cache valkey address required")
			}
		default:
			return fmt.Errorf("config: unsupported cache backend %q", c.Cache.Backend)
		}
	}
	if c.Retriever.TopK <= 0 {
		return errors.New("config: retriever topK must be positive")
	}
	if c.Search.ScoreThreshold < 0 || c.Search.ScoreThreshold > 100 {
		return fmt.Errorf("config: search scoreThreshold %d out of range", c.Search.ScoreThreshold)
	}
	if c.Search.MaxResults <= 0 {
		return errors.New("config: search maxResults must be positive")
	}
	return nil
}

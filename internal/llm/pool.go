package llm

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nickberens360/portfolio-chat/internal/config"
)

// ErrNoModelsAvailable signals that every configured provider failed
// construction, so no request can ever succeed.
var ErrNoModelsAvailable = errors.New("llm: no models available")

// Handle pairs a provider name with its client and retry policy. A nil
// Provider marks a model whose construction failed; callers skip it for the
// lifetime of the process.
type Handle struct {
	Name       string
	Provider   Provider
	RetryDelay time.Duration
}

// Factory builds one provider client from its configuration.
type Factory func(name string, cfg config.ProviderConfig) (Provider, error)

// ModelStatus reports one model's availability for the diagnostics endpoint.
type ModelStatus struct {
	Available bool   `json:"available"`
	Model     string `json:"model"`
}

// Pool lazily constructs the configured chat-model clients. Construction runs
// at most once; afterwards the handles are read-only shared state.
type Pool struct {
	logger  *slog.Logger
	configs map[string]config.ProviderConfig
	factory Factory

	once    sync.Once
	handles []Handle
	err     error
}

// NewPool prepares a pool; clients are not constructed until the first
// Handles call.
func NewPool(logger *slog.Logger, configs map[string]config.ProviderConfig, factory Factory) *Pool {
	return &Pool{
		logger:  logger.With(slog.String("agent", "model_pool")),
		configs: configs,
		factory: factory,
	}
}

// Handles constructs the clients on first use and returns them in
// construction order. It returns ErrNoModelsAvailable when every construction
// failed.
func (p *Pool) Handles() ([]Handle, error) {
	p.once.Do(p.build)
	return p.handles, p.err
}

// build attempts each provider independently, in sorted-name order. The order
// here is fixed and deliberately independent of which provider is primary:
// construction order is not usage priority.
func (p *Pool) build() {
	names := make([]string, 0, len(p.configs))
	for name := range p.configs {
		names = append(names, name)
	}
	sort.Strings(names)

	available := 0
	for _, name := range names {
		cfg := p.configs[name]
		provider, err := p.factory(name, cfg)
		if err != nil {
			p.logger.Warn("model construction failed",
				slog.String("model", name),
				slog.Any("error", err))
			provider = nil
		} else {
			available++
			p.logger.Info("model ready",
				slog.String("model", name),
				slog.String("target", cfg.Model))
		}
		p.handles = append(p.handles, Handle{Name: name, Provider: provider, RetryDelay: cfg.RetryDelay})
	}

	if available == 0 {
		p.err = ErrNoModelsAvailable
	}
}

// Priority returns the handles with the named primary first and the rest in
// construction order.
func (p *Pool) Priority(primary string) []Handle {
	handles, err := p.Handles()
	if err != nil {
		return nil
	}
	ordered := make([]Handle, 0, len(handles))
	for _, h := range handles {
		if h.Name == primary {
			ordered = append(ordered, h)
			break
		}
	}
	for _, h := range handles {
		if h.Name != primary {
			ordered = append(ordered, h)
		}
	}
	return ordered
}

// Status reports per-model availability. Construction is triggered on demand
// so the diagnostics endpoint reflects real handle state.
func (p *Pool) Status() map[string]ModelStatus {
	handles, _ := p.Handles()
	status := make(map[string]ModelStatus, len(handles))
	for _, h := range handles {
		status[h.Name] = ModelStatus{
			Available: h.Provider != nil,
			Model:     p.configs[h.Name].Model,
		}
	}
	return status
}

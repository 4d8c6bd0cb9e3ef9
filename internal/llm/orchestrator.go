package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/nickberens360/portfolio-chat/internal/cache"
	"github.com/nickberens360/portfolio-chat/internal/metrics"
)

// Retriever is the semantic-search capability the orchestrator consumes. The
// document pipeline behind it is an external collaborator.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}

// FallbackModel is the provenance value reported when no model produced an
// answer.
const FallbackModel = "fallback"

// CacheModel is the provenance value reported for answers served from cache.
const CacheModel = "cache"

// User-facing degraded-service messages. Model failures never surface as
// errors to the HTTP layer; they collapse into one of these.
const (
	msgNoRetriever = "Sorry, my knowledge base isn't available right now. Please try again in a little while."
	msgNoModels    = "Sorry, the assistant is temporarily unavailable. Please try again in a little while."
	msgAllFailed   = "I'm experiencing technical difficulties right now. Please try again in a moment."
)

// Answer carries the final text plus provenance for the HTTP layer.
type Answer struct {
	Text      string
	ModelUsed string
	FromCache bool
}

// Options bundles the orchestrator's collaborators and policy knobs.
type Options struct {
	// Cache may be nil when response caching is disabled.
	Cache cache.ResponseCache
	// Retriever may be nil when the document pipeline failed to initialize;
	// every request then receives the degraded-service message.
	Retriever Retriever
	Metrics   *metrics.Recorder
	// Primary names the provider tried first.
	Primary string
	Persona string
	// MaxRetries bounds additional attempts per model after a rate limit.
	MaxRetries int
	TopK       int
	// Sleep is injected for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Orchestrator drives the model pool in priority order with per-model
// retry/backoff, consulting and populating the response cache.
type Orchestrator struct {
	logger     *slog.Logger
	pool       *Pool
	cache      cache.ResponseCache
	retriever  Retriever
	metrics    *metrics.Recorder
	prompts    *PromptSet
	primary    string
	maxRetries int
	topK       int
	sleep      func(time.Duration)
}

// NewOrchestrator wires the fallback orchestrator. The pool is required; the
// cache and retriever are optional collaborators.
func NewOrchestrator(logger *slog.Logger, pool *Pool, opts Options) (*Orchestrator, error) {
	prompts, err := NewPromptSet(opts.Persona)
	if err != nil {
		return nil, err
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 4
	}
	return &Orchestrator{
		logger:     logger.With(slog.String("agent", "orchestrator")),
		pool:       pool,
		cache:      opts.Cache,
		retriever:  opts.Retriever,
		metrics:    opts.Metrics,
		prompts:    prompts,
		primary:    opts.Primary,
		maxRetries: opts.MaxRetries,
		topK:       topK,
		sleep:      sleep,
	}, nil
}

// Ready reports whether the retriever collaborator is wired.
func (o *Orchestrator) Ready() bool {
	return o != nil && o.retriever != nil
}

// Answer produces a reply for the question given the conversation so far. It
// never returns an error: every failure path collapses into a user-facing
// message with FallbackModel provenance.
func (o *Orchestrator) Answer(ctx context.Context, history []ChatMessage, question string) Answer {
	if o.retriever == nil {
		return Answer{Text: msgNoRetriever, ModelUsed: FallbackModel}
	}

	key := o.cacheKey(question, history)
	if key != "" {
		cached, ok, err := o.cache.Get(ctx, key)
		switch {
		case err != nil:
			o.metrics.ObserveCache("get", metrics.CacheError)
			o.logger.Warn("cache lookup failed", slog.Any("error", err))
		case ok:
			o.metrics.ObserveCache("get", metrics.CacheHit)
			return Answer{Text: cached, ModelUsed: CacheModel, FromCache: true}
		default:
			o.metrics.ObserveCache("get", metrics.CacheMiss)
		}
	}

	if _, err := o.pool.Handles(); err != nil {
		o.logger.Error("no chat models available", slog.Any("error", err))
		return Answer{Text: msgNoModels, ModelUsed: FallbackModel}
	}

	for _, handle := range o.pool.Priority(o.primary) {
		if handle.Provider == nil {
			continue
		}
		delay := backoff.NewConstantBackOff(handle.RetryDelay)

	attempts:
		for attempt := 0; attempt <= o.maxRetries; attempt++ {
			text, genErr := o.generate(ctx, handle.Provider, history, question)
			if genErr == nil {
				o.metrics.ObserveAttempt(handle.Name, metrics.AttemptSuccess)
				o.store(ctx, key, text)
				return Answer{Text: text, ModelUsed: handle.Name}
			}

			switch Classify(genErr) {
			case OutcomeRateLimited:
				o.metrics.ObserveAttempt(handle.Name, metrics.AttemptRateLimited)
				if attempt < o.maxRetries {
					o.logger.Warn("model rate limited, retrying",
						slog.String("model", handle.Name),
						slog.Int("attempt", attempt),
						slog.Duration("delay", handle.RetryDelay))
					o.sleep(delay.NextBackOff())
					continue
				}
				o.logger.Warn("model rate limited, retries exhausted",
					slog.String("model", handle.Name),
					slog.Any("error", genErr))
			case OutcomeFatal:
				o.metrics.ObserveAttempt(handle.Name, metrics.AttemptFatal)
				o.logger.Error("model misconfigured, skipping",
					slog.String("model", handle.Name),
					slog.Any("error", genErr))
			default:
				o.metrics.ObserveAttempt(handle.Name, metrics.AttemptTransient)
				o.logger.Warn("model attempt failed",
					slog.String("model", handle.Name),
					slog.Any("error", genErr))
			}
			break attempts
		}
	}

	o.logger.Error("all models exhausted", slog.String("question_prefix", prefix(question, 48)))
	return Answer{Text: msgAllFailed, ModelUsed: FallbackModel}
}

// generate runs the history-aware retrieval chain: rewrite the question into
// a standalone form when history exists, retrieve context, then ask the model
// for the final answer with the context embedded in the system prompt.
func (o *Orchestrator) generate(ctx context.Context, provider Provider, history []ChatMessage, question string) (string, error) {
	query := question
	if len(history) > 0 {
		standalone, err := provider.Complete(ctx, o.prompts.Contextualize(), history, question)
		if err != nil {
			return "", err
		}
		if trimmed := strings.TrimSpace(standalone); trimmed != "" {
			query = trimmed
		}
	}

	passages, err := o.retriever.Retrieve(ctx, query, o.topK)
	if err != nil {
		return "", fmt.Errorf("llm: retrieve context: %w", err)
	}

	system, err := o.prompts.Answer(passages)
	if err != nil {
		return "", err
	}
	return provider.Complete(ctx, system, history, question)
}

// cacheKey returns "" when caching is disabled. The fingerprint covers the
// raw question and the last two history messages.
func (o *Orchestrator) cacheKey(question string, history []ChatMessage) string {
	if o.cache == nil {
		return ""
	}
	recent := history
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}
	texts := make([]string, len(recent))
	for i, m := range recent {
		texts[i] = m.Text
	}
	return cache.KeyFor(question, texts)
}

func (o *Orchestrator) store(ctx context.Context, key, text string) {
	if key == "" {
		return
	}
	if err := o.cache.Put(ctx, key, text); err != nil {
		o.metrics.ObserveCache("put", metrics.CacheError)
		o.logger.Warn("cache store failed", slog.Any("error", err))
		return
	}
	o.metrics.ObserveCache("put", metrics.CacheStored)
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nickberens360/portfolio-chat/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticProvider struct {
	name string
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Complete(context.Context, string, []ChatMessage, string) (string, error) {
	return "", errors.New("not implemented")
}

func poolConfigs() map[string]config.ProviderConfig {
	return map[string]config.ProviderConfig{
		"openai":     {Model: "gpt-4o-mini", RetryDelay: 2 * time.Second},
		"openrouter": {Model: "llama-3.1", RetryDelay: 5 * time.Second},
	}
}

func TestPoolConstructionIsIndependentPerModel(t *testing.T) {
	factory := func(name string, _ config.ProviderConfig) (Provider, error) {
		if name == "openai" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return &staticProvider{name: name}, nil
	}

	pool := NewPool(discardLogger(), poolConfigs(), factory)
	handles, err := pool.Handles()
	require.NoError(t, err)
	require.Len(t, handles, 2)

	// Sorted construction order, regardless of primary.
	require.Equal(t, "openai", handles[0].Name)
	require.Nil(t, handles[0].Provider)
	require.Equal(t, "openrouter", handles[1].Name)
	require.NotNil(t, handles[1].Provider)
	require.Equal(t, 5*time.Second, handles[1].RetryDelay)
}

func TestPoolAllFailedSignalsNoModels(t *testing.T) {
	factory := func(name string, _ config.ProviderConfig) (Provider, error) {
		return nil, errors.New("key missing")
	}

	pool := NewPool(discardLogger(), poolConfigs(), factory)
	_, err := pool.Handles()
	require.ErrorIs(t, err, ErrNoModelsAvailable)
}

func TestPoolConstructsOnce(t *testing.T) {
	calls := 0
	factory := func(name string, _ config.ProviderConfig) (Provider, error) {
		calls++
		return &staticProvider{name: name}, nil
	}

	pool := NewPool(discardLogger(), poolConfigs(), factory)
	_, err := pool.Handles()
	require.NoError(t, err)
	_, err = pool.Handles()
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestPoolPriorityPutsPrimaryFirst(t *testing.T) {
	factory := func(name string, _ config.ProviderConfig) (Provider, error) {
		return &staticProvider{name: name}, nil
	}

	pool := NewPool(discardLogger(), poolConfigs(), factory)

	ordered := pool.Priority("openrouter")
	require.Len(t, ordered, 2)
	require.Equal(t, "openrouter", ordered[0].Name)
	require.Equal(t, "openai", ordered[1].Name)

	ordered = pool.Priority("openai")
	require.Equal(t, "openai", ordered[0].Name)
	require.Equal(t, "openrouter", ordered[1].Name)
}

func TestPoolStatus(t *testing.T) {
	factory := func(name string, _ config.ProviderConfig) (Provider, error) {
		if name == "openrouter" {
			return nil, errors.New("key missing")
		}
		return &staticProvider{name: name}, nil
	}

	pool := NewPool(discardLogger(), poolConfigs(), factory)
	status := pool.Status()
	require.True(t, status["openai"].Available)
	require.Equal(t, "gpt-4o-mini", status["openai"].Model)
	require.False(t, status["openrouter"].Available)
}

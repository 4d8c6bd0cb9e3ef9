package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds connection settings for the shared cache backend.
type ValkeyConfig struct {
	Address  string
	Username string
	Password string
	DB       int
}

// valkeyCache delegates expiry to server-side PX TTLs. Entry-count capping is
// not enforced here; shared deployments size the keyspace via the server's own
// eviction policy.
type valkeyCache struct {
	client valkey.Client
	ttl    time.Duration
}

// NewValkey connects to a valkey/redis-compatible server and verifies the
// connection with a ping before returning.
func NewValkey(cfg ValkeyConfig, ttl time.Duration) (ResponseCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("cache: valkey address required")
	}
	if ttl <= 0 {
		return nil, errors.New("cache: valkey ttl required")
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: valkey ping: %w", err)
	}

	return &valkeyCache{client: client, ttl: ttl}, nil
}

func (c *valkeyCache) Get(ctx context.Context, key string) (string, bool, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache: valkey get: %w", err)
	}
	value, err := resp.ToString()
	if err != nil {
		return "", false, fmt.Errorf("cache: valkey value: %w", err)
	}
	return value, true, nil
}

func (c *valkeyCache) Put(ctx context.Context, key, response string) error {
	cmd := c.client.B().Set().Key(key).Value(response).Px(c.ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache: valkey set: %w", err)
	}
	return nil
}

func (c *valkeyCache) Size(ctx context.Context) (int64, error) {
	size, err := c.client.Do(ctx, c.client.B().Dbsize().Build()).ToInt64()
	if err != nil {
		return 0, fmt.Errorf("cache: valkey dbsize: %w", err)
	}
	return size, nil
}

func (c *valkeyCache) Close(context.Context) error {
	c.client.Close()
	return nil
}

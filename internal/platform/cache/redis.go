package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the startup connectivity check.
const pingTimeout = 5 * time.Second

// Options configures the shared Redis client used for locks and event fan-out.
type Options struct {
	Addr        string
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// New connects to Redis and verifies the server answers a PING.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("platform/cache: redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		PoolSize:    opts.PoolSize,
		DialTimeout: opts.DialTimeout,
		ReadTimeout: opts.ReadTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

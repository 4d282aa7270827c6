// Package ticker implements the navbar news ticker: a single shared
// key-value slot holding the most recent activity line, backed by Redis
// when configured and by process memory otherwise.
package ticker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoNews is returned by Latest when nothing has been published yet.
var ErrNoNews = errors.New("ticker: no news")

// Broadcaster is the key-value broadcast channel for the news ticker.
// It carries navbar news only, never session state.
type Broadcaster interface {
	// Publish overwrites the current news line.
	Publish(ctx context.Context, message string) error
	// Latest returns the current news line, or ErrNoNews.
	Latest(ctx context.Context) (string, error)
}

// newsKey is the slot the ticker writes under (below the configured prefix).
const newsKey = "navbar_news"

// RedisBroadcaster stores the news line in Redis so every app instance
// serves the same ticker.
type RedisBroadcaster struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configures the Redis broadcaster.
type Options struct {
	// URL is the Redis connection URL (e.g. redis://localhost:6379/0).
	URL string
	// Prefix is prepended to the news key (e.g. "bookcafe:").
	Prefix string
	// TTL bounds how long a news line survives without a newer one.
	TTL time.Duration
	// ConnectTimeout is the timeout for the initial ping.
	ConnectTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Prefix:         "bookcafe:",
		TTL:            time.Hour,
		ConnectTimeout: 5 * time.Second,
	}
}

// NewRedisBroadcaster connects to Redis and verifies the connection.
func NewRedisBroadcaster(opts Options) (*RedisBroadcaster, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisBroadcaster{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
	}, nil
}

// Publish implements Broadcaster.
func (b *RedisBroadcaster) Publish(ctx context.Context, message string) error {
	return b.client.Set(ctx, b.prefix+newsKey, message, b.ttl).Err()
}

// Latest implements Broadcaster.
func (b *RedisBroadcaster) Latest(ctx context.Context) (string, error) {
	val, err := b.client.Get(ctx, b.prefix+newsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoNews
		}
		return "", err
	}
	return val, nil
}

// Close closes the Redis connection.
func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}

// MemoryBroadcaster keeps the news line in process memory. Used when no
// Redis URL is configured; single-instance deployments lose nothing.
type MemoryBroadcaster struct {
	mu   sync.RWMutex
	news string
	set  bool
}

// NewMemoryBroadcaster creates an empty in-memory broadcaster.
func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{}
}

// Publish implements Broadcaster.
func (b *MemoryBroadcaster) Publish(_ context.Context, message string) error {
	b.mu.Lock()
	b.news = message
	b.set = true
	b.mu.Unlock()
	return nil
}

// Latest implements Broadcaster.
func (b *MemoryBroadcaster) Latest(_ context.Context) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.set {
		return "", ErrNoNews
	}
	return b.news, nil
}

var (
	_ Broadcaster = (*RedisBroadcaster)(nil)
	_ Broadcaster = (*MemoryBroadcaster)(nil)
)

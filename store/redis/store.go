package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/cluster"
	"github.com/flaneurtv/redisjq/dlq"
	"github.com/flaneurtv/redisjq/job"
)

// Compile-time interface checks.
var (
	_ job.Store     = (*Store)(nil)
	_ dlq.Store     = (*Store)(nil)
	_ cluster.Store = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeyPrefix namespaces every key. Several independent job systems can
// share one Redis database under different prefixes.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keys = keys{prefix: prefix} }
}

// WithClock replaces the clock used for lease expiry and timestamps.
// All clients of one database should use comparable clocks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
	keys   keys
	now    func() time.Time
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		keys:   keys{prefix: defaultPrefix},
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Prefix returns the key prefix in use.
func (s *Store) Prefix() string { return s.keys.prefix }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// wrapErr annotates a Redis failure. Replies from the server keep their
// type; connection-level failures and timeouts are marked as
// redisjq.ErrStoreUnavailable. Context cancellation passes through.
func wrapErr(op string, err error) error {
	var serverErr goredis.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("redisjq/redis: %s: %w", op, err)
	case errors.As(err, &serverErr):
		return fmt.Errorf("redisjq/redis: %s: %w", op, err)
	default:
		return fmt.Errorf("redisjq/redis: %s: %w: %w", op, redisjq.ErrStoreUnavailable, err)
	}
}

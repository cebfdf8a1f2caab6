package redisjq

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration shared by the engine, the lease sweeper and
// the worker pool.
type Config struct {
	// RedisAddr is the address of the shared Redis instance.
	RedisAddr string

	// KeyPrefix namespaces every key written to the store. Use a hash tag
	// such as "{redisjq}:" when running against Redis Cluster.
	KeyPrefix string

	// Concurrency is the number of worker goroutines in a pool.
	Concurrency int

	// Queues is the list of queues a worker pool polls.
	Queues []string

	// PollInterval is how long an idle worker waits between polls.
	PollInterval time.Duration

	// DefaultLease is the lease granted when a caller does not pass one.
	DefaultLease time.Duration

	// HeartbeatInterval is how often a pool extends leases of running jobs.
	// Zero disables heartbeats.
	HeartbeatInterval time.Duration

	// SweepInterval is how often expired leases are reclaimed. Zero
	// disables the periodic sweeper.
	SweepInterval time.Duration

	// SweepBatch caps the number of expired leases handled per queue per sweep.
	SweepBatch int

	// LazyReclaim makes every dispatch reclaim expired leases of its queue
	// before selecting a job.
	LazyReclaim bool

	// MaxAttempts is the default attempt budget of a job. Zero means unlimited.
	MaxAttempts int

	// MaxPending caps pending jobs per queue. Zero means unlimited.
	MaxPending int

	// CompletedRetention keeps acknowledged jobs for this long so their ids
	// stay reserved. Zero deletes the record on ack.
	CompletedRetention time.Duration

	// IdleExpiry is how long an idle worker stays registered without
	// reporting again.
	IdleExpiry time.Duration

	// HandlerTimeout bounds a single handler run. Zero leaves runs
	// unbounded.
	HandlerTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown of a worker pool.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RedisAddr:          "localhost:6379",
		KeyPrefix:          "redisjq:",
		Concurrency:        4,
		Queues:             []string{"default"},
		PollInterval:       time.Second,
		DefaultLease:       30 * time.Second,
		HeartbeatInterval:  10 * time.Second,
		SweepInterval:      3 * time.Second,
		SweepBatch:         100,
		LazyReclaim:        true,
		MaxAttempts:        5,
		CompletedRetention: 24 * time.Hour,
		IdleExpiry:         9 * time.Second,
		ShutdownTimeout:    30 * time.Second,
	}
}

// FromEnv overlays REDISJQ_* environment variables onto cfg. Malformed
// values are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("REDISJQ_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDISJQ_KEY_PREFIX"); v != "" {
		cfg.KeyPrefix = v
	}
	if v := os.Getenv("REDISJQ_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("REDISJQ_QUEUES"); v != "" {
		cfg.Queues = nil
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Queues = append(cfg.Queues, p)
			}
		}
	}
	envDuration("REDISJQ_POLL_INTERVAL", &cfg.PollInterval)
	envDuration("REDISJQ_DEFAULT_LEASE", &cfg.DefaultLease)
	envDuration("REDISJQ_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval)
	envDuration("REDISJQ_SWEEP_INTERVAL", &cfg.SweepInterval)
	envDuration("REDISJQ_COMPLETED_RETENTION", &cfg.CompletedRetention)
	envDuration("REDISJQ_IDLE_EXPIRY", &cfg.IdleExpiry)
	envDuration("REDISJQ_HANDLER_TIMEOUT", &cfg.HandlerTimeout)
	envDuration("REDISJQ_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	if v := os.Getenv("REDISJQ_SWEEP_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SweepBatch = n
		}
	}
	if v := os.Getenv("REDISJQ_LAZY_RECLAIM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LazyReclaim = b
		}
	}
	if v := os.Getenv("REDISJQ_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("REDISJQ_MAX_PENDING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPending = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

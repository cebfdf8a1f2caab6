// Package store defines the aggregate persistence interface. Each subsystem
// (job, dlq, cluster) defines its own store interface and the composite
// Store composes them all. Backends: Redis and Memory.
package store

import (
	"context"

	"github.com/flaneurtv/redisjq/cluster"
	"github.com/flaneurtv/redisjq/dlq"
	"github.com/flaneurtv/redisjq/job"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem store.
type Store interface {
	job.Store
	dlq.Store
	cluster.Store

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store.
	Close() error
}

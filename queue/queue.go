package queue

import (
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// Config limits how fast a local worker pool takes jobs from one queue.
// These limits are per process; the store itself never throttles dispatch.
type Config struct {
	// Name is the queue the limits apply to.
	Name string

	// MaxConcurrency caps jobs of this queue running at once in the pool.
	// Zero leaves only the pool-wide concurrency.
	MaxConcurrency int

	// RateLimit is the sustained number of dispatches per second. Zero
	// disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is set.
	RateBurst int
}

// Stats is a point-in-time view of one queue's local limits.
type Stats struct {
	Name           string  `json:"name"`
	Active         int     `json:"active"`
	MaxConcurrency int     `json:"max_concurrency"`
	RateLimit      float64 `json:"rate_limit"`
}

type gate struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

func newGate(cfg Config) *gate {
	g := &gate{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return g
}

// Manager gates dispatch per queue. Queues without a Config are tracked
// but never refused. It is safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	gates map[string]*gate
}

// NewManager creates a Manager with the given queue limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{gates: make(map[string]*gate, len(configs))}
	for _, cfg := range configs {
		m.gates[cfg.Name] = newGate(cfg)
	}
	return m
}

// Acquire reports whether a job of queue may be dispatched now. On true
// it takes a concurrency slot that the caller must give back with Release.
// Concurrency is checked before the rate limiter so a refused call never
// spends a token.
func (m *Manager) Acquire(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.gate(queue)
	if g.config.MaxConcurrency > 0 && g.active >= g.config.MaxConcurrency {
		return false
	}
	if g.limiter != nil && !g.limiter.Allow() {
		return false
	}
	g.active++
	return true
}

// Release gives back a slot taken by Acquire.
func (m *Manager) Release(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g := m.gates[queue]; g != nil && g.active > 0 {
		g.active--
	}
}

// SetQueueConfig replaces the limits of a queue, keeping its active count.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := newGate(cfg)
	if old := m.gates[cfg.Name]; old != nil {
		g.active = old.active
	}
	m.gates[cfg.Name] = g
}

// ActiveCount returns the number of slots held on queue.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g := m.gates[queue]; g != nil {
		return g.active
	}
	return 0
}

// Stats returns the state of every known queue, sorted by name.
func (m *Manager) Stats() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Stats, 0, len(m.gates))
	for name, g := range m.gates {
		out = append(out, Stats{
			Name:           name,
			Active:         g.active,
			MaxConcurrency: g.config.MaxConcurrency,
			RateLimit:      g.config.RateLimit,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// gate returns the gate of queue, creating an unlimited one. Callers hold mu.
func (m *Manager) gate(queue string) *gate {
	g, ok := m.gates[queue]
	if !ok {
		g = newGate(Config{Name: queue})
		m.gates[queue] = g
	}
	return g
}

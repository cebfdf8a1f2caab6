package job

import (
	"context"
	"sort"
	"sync"
)

// HandlerFunc consumes a dispatched job. Returning nil acknowledges it;
// returning an error negatively acknowledges it.
type HandlerFunc func(ctx context.Context, j *Job) error

// Registry maps queue names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	fallback HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers h for jobs dispatched from queue.
func (r *Registry) Handle(queue string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[queue] = h
}

// HandleDefault registers h for queues without a dedicated handler.
func (r *Registry) HandleDefault(h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Get returns the handler for queue, falling back to the default handler.
func (r *Registry) Get(queue string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[queue]; ok {
		return h, true
	}
	return r.fallback, r.fallback != nil
}

// Queues returns the queues with a dedicated handler, sorted.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether no handler, dedicated or default, is registered.
func (r *Registry) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers) == 0 && r.fallback == nil
}

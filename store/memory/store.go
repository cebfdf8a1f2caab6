package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/cluster"
	"github.com/flaneurtv/redisjq/dlq"
	"github.com/flaneurtv/redisjq/job"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store     = (*Store)(nil)
	_ dlq.Store     = (*Store)(nil)
	_ cluster.Store = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithClock replaces the clock used for lease expiry and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Store) { m.now = now }
}

// Store is a fully in-memory implementation of store.Store. A single mutex
// makes every operation atomic. Intended for tests and single-process use.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	seq    int64
	jobs   map[string]*record
	queues map[string]*queueState

	// retained indexes done records kept after ack until their expireAt.
	retained map[string]struct{}
}

type record struct {
	job       *job.Job
	seq       int64
	notBefore time.Time // set while delayed
	expireAt  time.Time // set on retained done records
}

type queueState struct {
	pending map[string]struct{}
	leased  map[string]struct{}
	delayed map[string]struct{}
	dead    map[string]struct{}
	idle    map[string]time.Time

	// used is set once the queue received a job.
	used bool

	// wake is closed and replaced whenever a job becomes pending.
	wake chan struct{}
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	m := &Store{
		now:      time.Now,
		jobs:     make(map[string]*record),
		queues:   make(map[string]*queueState),
		retained: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ──────────────────────────────────────────────────
// Lifecycle: Ping / Close
// ──────────────────────────────────────────────────

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Internal helpers (callers hold mu)
// ──────────────────────────────────────────────────

func (m *Store) queue(name string) *queueState {
	q, ok := m.queues[name]
	if !ok {
		q = &queueState{
			pending: make(map[string]struct{}),
			leased:  make(map[string]struct{}),
			delayed: make(map[string]struct{}),
			dead:    make(map[string]struct{}),
			idle:    make(map[string]time.Time),
			wake:    make(chan struct{}),
		}
		m.queues[name] = q
	}
	return q
}

// lookup returns the record of id, dropping retained done records whose
// retention has passed.
func (m *Store) lookup(id string, now time.Time) (*record, bool) {
	r, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	if !r.expireAt.IsZero() && !now.Before(r.expireAt) {
		delete(m.jobs, id)
		delete(m.retained, id)
		return nil, false
	}
	return r, true
}

// evictRetained drops every done record whose retention has passed.
func (m *Store) evictRetained(now time.Time) {
	for id := range m.retained {
		r, ok := m.jobs[id]
		if !ok || r.expireAt.IsZero() {
			delete(m.retained, id)
			continue
		}
		if !now.Before(r.expireAt) {
			delete(m.jobs, id)
			delete(m.retained, id)
		}
	}
}

func (m *Store) makePending(r *record, now time.Time) {
	q := m.queue(r.job.Queue)
	r.job.State = job.StatePending
	r.job.UpdatedAt = now
	r.notBefore = time.Time{}
	q.pending[r.job.ID] = struct{}{}
	close(q.wake)
	q.wake = make(chan struct{})
}

func (m *Store) bury(r *record, state job.State, now time.Time) {
	q := m.queue(r.job.Queue)
	r.job.State = state
	r.job.DeadAt = &now
	r.job.UpdatedAt = now
	q.dead[r.job.ID] = struct{}{}
}

func clearLease(j *job.Job) {
	j.LeaseExpiry = nil
	j.LeaseToken = ""
}

// checkLease reports why r cannot be acted on under token at now.
func checkLease(id string, r *record, ok bool, token string, now time.Time) error {
	if !ok {
		return &redisjq.NotLeasedError{ID: id, Reason: "no such job"}
	}
	j := r.job
	if j.State != job.StateLeased {
		return &redisjq.NotLeasedError{ID: id, State: string(j.State)}
	}
	if !j.Leased(now) {
		return &redisjq.NotLeasedError{ID: id, State: string(j.State), Reason: "lease expired"}
	}
	if token != "" && j.LeaseToken != token {
		return &redisjq.NotLeasedError{ID: id, State: string(j.State), Reason: "lease held by another consumer"}
	}
	return nil
}

func (m *Store) promote(q *queueState, now time.Time) {
	for id := range q.delayed {
		r := m.jobs[id]
		if r == nil {
			delete(q.delayed, id)
			continue
		}
		if !r.notBefore.After(now) {
			delete(q.delayed, id)
			m.makePending(r, now)
		}
	}
}

func (m *Store) reclaim(queue string, now time.Time, limit int) job.SweepResult {
	q := m.queue(queue)
	expired := make([]*record, 0)
	for id := range q.leased {
		r := m.jobs[id]
		if r == nil {
			delete(q.leased, id)
			continue
		}
		if !r.job.LeaseExpiry.After(now) {
			expired = append(expired, r)
		}
	}
	sortByExpiry(expired)
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	var res job.SweepResult
	for _, r := range expired {
		delete(q.leased, r.job.ID)
		clearLease(r.job)
		r.job.LastError = "lease expired"
		if r.job.AttemptsLeft() {
			m.makePending(r, now)
			res.Requeued = append(res.Requeued, r.job.ID)
		} else {
			m.bury(r, job.StateDead, now)
			res.Dead = append(res.Dead, r.job.ID)
		}
	}
	return res
}

func sortByExpiry(rs []*record) {
	sort.Slice(rs, func(i, k int) bool {
		a, b := rs[i].job.LeaseExpiry, rs[k].job.LeaseExpiry
		if !a.Equal(*b) {
			return a.Before(*b)
		}
		return rs[i].seq < rs[k].seq
	})
}

func sortByDispatchOrder(rs []*record) {
	sort.Slice(rs, func(i, k int) bool {
		if rs[i].job.Priority != rs[k].job.Priority {
			return rs[i].job.Priority < rs[k].job.Priority
		}
		return rs[i].seq < rs[k].seq
	})
}

func sortByDeath(rs []*record) {
	sort.Slice(rs, func(i, k int) bool {
		a, b := rs[i].job.DeadAt, rs[k].job.DeadAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.Before(*b)
		}
		return rs[i].job.ID < rs[k].job.ID
	})
}

func (m *Store) records(ids map[string]struct{}) []*record {
	out := make([]*record, 0, len(ids))
	for id := range ids {
		if r, ok := m.jobs[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func paginate(rs []*record, opts job.ListOpts) []*job.Job {
	if opts.Offset > 0 {
		if opts.Offset >= len(rs) {
			return nil
		}
		rs = rs[opts.Offset:]
	}
	if opts.Limit > 0 && len(rs) > opts.Limit {
		rs = rs[:opts.Limit]
	}
	out := make([]*job.Job, len(rs))
	for i, r := range rs {
		out[i] = r.job.Clone()
	}
	return out
}

// millis truncates t to the millisecond precision the Redis backend keeps.
func millis(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

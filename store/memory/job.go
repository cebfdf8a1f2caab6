package memory

import (
	"context"
	"sort"
	"time"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/job"
)

// PushJobs admits every job of the batch or none of them.
func (m *Store) PushJobs(_ context.Context, jobs []*job.Job, opts job.PushOpts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := millis(m.now())
	m.evictRetained(now)
	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if _, ok := m.lookup(j.ID, now); ok {
			return &redisjq.DuplicateIDError{ID: j.ID}
		}
		if _, ok := seen[j.ID]; ok {
			return &redisjq.DuplicateIDError{ID: j.ID}
		}
		seen[j.ID] = struct{}{}
	}
	if opts.MaxPending > 0 {
		adds := make(map[string]int)
		for _, j := range jobs {
			adds[j.Queue]++
		}
		for name, n := range adds {
			pending := 0
			if q, ok := m.queues[name]; ok {
				pending = len(q.pending)
			}
			if pending+n > opts.MaxPending {
				return &redisjq.CapacityError{Queue: name, Limit: opts.MaxPending}
			}
		}
	}

	for _, j := range jobs {
		m.seq++
		cp := j.Clone()
		cp.Attempts = 0
		cp.EnqueuedAt = now
		clearLease(cp)
		r := &record{job: cp, seq: m.seq}
		m.jobs[j.ID] = r
		m.queue(j.Queue).used = true
		m.makePending(r, now)

		j.State = job.StatePending
		j.EnqueuedAt = now
		j.UpdatedAt = now
	}
	return nil
}

// LeaseJob claims the pending job with the smallest (priority, admission).
func (m *Store) LeaseJob(_ context.Context, queue string, lease time.Duration, opts job.LeaseOpts) (*job.Job, job.SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := millis(m.now())
	q := m.queue(queue)
	m.promote(q, now)
	var reclaimed job.SweepResult
	if opts.Reclaim > 0 {
		reclaimed = m.reclaim(queue, now, opts.Reclaim)
	}

	var head *record
	for id := range q.pending {
		r := m.jobs[id]
		if r == nil {
			delete(q.pending, id)
			continue
		}
		if head == nil || r.job.Priority < head.job.Priority ||
			(r.job.Priority == head.job.Priority && r.seq < head.seq) {
			head = r
		}
	}
	if head == nil {
		return nil, reclaimed, nil
	}

	exp := millis(now.Add(lease))
	delete(q.pending, head.job.ID)
	q.leased[head.job.ID] = struct{}{}
	head.job.State = job.StateLeased
	head.job.LeaseExpiry = &exp
	head.job.LeaseToken = opts.Token
	head.job.Attempts++
	head.job.UpdatedAt = now
	return head.job.Clone(), reclaimed, nil
}

// AckJob completes a live lease.
func (m *Store) AckJob(_ context.Context, jobID, token string, opts job.AckOpts) (job.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := millis(m.now())
	r, ok := m.lookup(jobID, now)
	if err := checkLease(jobID, r, ok, token, now); err != nil {
		return job.Receipt{}, err
	}

	rc := job.Receipt{Queue: r.job.Queue, State: job.StateDone}
	delete(m.queue(r.job.Queue).leased, jobID)
	if opts.Retain <= 0 {
		delete(m.jobs, jobID)
		return rc, nil
	}
	clearLease(r.job)
	r.job.State = job.StateDone
	r.job.CompletedAt = &now
	r.job.UpdatedAt = now
	r.expireAt = now.Add(opts.Retain)
	m.retained[jobID] = struct{}{}
	return rc, nil
}

// NackJob releases a live lease.
func (m *Store) NackJob(_ context.Context, jobID, token string, opts job.NackOpts) (job.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := millis(m.now())
	r, ok := m.lookup(jobID, now)
	if err := checkLease(jobID, r, ok, token, now); err != nil {
		return job.Receipt{}, err
	}

	q := m.queue(r.job.Queue)
	delete(q.leased, jobID)
	clearLease(r.job)
	r.job.LastError = opts.Error

	switch {
	case !opts.Requeue:
		m.bury(r, job.StateFailed, now)
	case !r.job.AttemptsLeft():
		m.bury(r, job.StateDead, now)
	case opts.Delay > 0:
		r.job.State = job.StatePending
		r.job.UpdatedAt = now
		r.notBefore = millis(now.Add(opts.Delay))
		q.delayed[jobID] = struct{}{}
	default:
		m.makePending(r, now)
	}
	return job.Receipt{Queue: r.job.Queue, State: r.job.State}, nil
}

// ExtendLease renews a live lease.
func (m *Store) ExtendLease(_ context.Context, jobID, token string, d time.Duration, progress int) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := millis(m.now())
	r, ok := m.lookup(jobID, now)
	if err := checkLease(jobID, r, ok, token, now); err != nil {
		return time.Time{}, err
	}

	exp := millis(now.Add(d))
	r.job.LeaseExpiry = &exp
	r.job.UpdatedAt = now
	if progress >= 0 {
		r.job.Progress = progress
	}
	return exp, nil
}

// ScanExpiredLeases lists leased jobs whose expiry has passed.
func (m *Store) ScanExpiredLeases(_ context.Context, queue string, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := millis(m.now())
	var expired []*record
	for _, r := range m.records(m.queue(queue).leased) {
		if !r.job.LeaseExpiry.After(now) {
			expired = append(expired, r)
		}
	}
	sortByExpiry(expired)
	return paginate(expired, job.ListOpts{Limit: limit}), nil
}

// RequeueExpired moves expired leases back to pending or to dead.
func (m *Store) RequeueExpired(_ context.Context, queue string, limit int) (job.SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := millis(m.now())
	m.evictRetained(now)
	return m.reclaim(queue, now, limit), nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.lookup(jobID, millis(m.now()))
	if !ok {
		return nil, redisjq.ErrJobNotFound
	}
	return r.job.Clone(), nil
}

// ListJobs returns jobs of a queue in the given state.
func (m *Store) ListJobs(_ context.Context, queue string, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[queue]
	if !ok {
		return nil, nil
	}
	var rs []*record
	switch state {
	case job.StatePending:
		rs = m.records(q.pending)
		sortByDispatchOrder(rs)
	case job.StateLeased:
		rs = m.records(q.leased)
		sortByExpiry(rs)
	case job.StateFailed, job.StateDead:
		rs = m.records(q.dead)
		sortByDeath(rs)
	default:
		return nil, nil
	}
	return paginate(rs, opts), nil
}

// CountJobs returns the per-state counts of a queue.
func (m *Store) CountJobs(_ context.Context, queue string) (job.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[queue]
	if !ok {
		return job.Counts{}, nil
	}
	return job.Counts{
		Pending: int64(len(q.pending)),
		Delayed: int64(len(q.delayed)),
		Leased:  int64(len(q.leased)),
		Dead:    int64(len(q.dead)),
	}, nil
}

// Queues returns every queue that has received a job, sorted.
func (m *Store) Queues(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.queues))
	for name, q := range m.queues {
		if q.used {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// WaitForJob blocks until a job becomes pending on queue.
func (m *Store) WaitForJob(ctx context.Context, queue string, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	m.mu.Lock()
	wake := m.queue(queue).wake
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-wake:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/job"
)

// PushJobs admits the batch with a single script run.
func (s *Store) PushJobs(ctx context.Context, jobs []*job.Job, opts job.PushOpts) error {
	if len(jobs) == 0 {
		return nil
	}
	now := s.now()
	args := make([]any, 0, 4+len(jobs)*5)
	args = append(args, s.keys.prefix, millis(now), opts.MaxPending, len(jobs))
	for _, j := range jobs {
		args = append(args, j.ID, j.Queue, formatFloat(j.Priority), j.Command, j.MaxAttempts)
	}

	res, err := enqueueScript.Run(ctx, s.client, []string{s.keys.seq()}, args...).StringSlice()
	if err != nil {
		return wrapErr("push jobs", err)
	}
	switch res[0] {
	case "dup":
		return &redisjq.DuplicateIDError{ID: res[1]}
	case "full":
		return &redisjq.CapacityError{Queue: res[1], Limit: opts.MaxPending}
	}

	for _, j := range jobs {
		j.State = job.StatePending
		j.EnqueuedAt = now.UTC().Truncate(time.Millisecond)
		j.UpdatedAt = j.EnqueuedAt
	}
	return nil
}

// LeaseJob claims the head of the queue.
func (s *Store) LeaseJob(ctx context.Context, queue string, lease time.Duration, opts job.LeaseOpts) (*job.Job, job.SweepResult, error) {
	now := s.now()
	res, err := leaseScript.Run(ctx, s.client, []string{s.keys.pending(queue)},
		s.keys.prefix, queue, millis(now), millis(now.Add(lease)), opts.Token, opts.Reclaim,
	).Slice()
	if err != nil {
		return nil, job.SweepResult{}, wrapErr("lease job", err)
	}

	reclaimed := job.SweepResult{Requeued: toStrings(res[2]), Dead: toStrings(res[3])}
	if !reclaimed.Empty() {
		s.logger.Debug("reclaimed expired leases",
			slog.String("queue", queue),
			slog.Int("requeued", len(reclaimed.Requeued)),
			slog.Int("dead", len(reclaimed.Dead)),
		)
	}

	if res[0] != "leased" {
		return nil, reclaimed, nil
	}
	j, err := jobFromFields(pairsToMap(res[1]))
	return j, reclaimed, err
}

// AckJob completes a live lease.
func (s *Store) AckJob(ctx context.Context, jobID, token string, opts job.AckOpts) (job.Receipt, error) {
	res, err := ackScript.Run(ctx, s.client, []string{s.keys.job(jobID)},
		s.keys.prefix, jobID, token, millis(s.now()), opts.Retain.Milliseconds(),
	).StringSlice()
	if err != nil {
		return job.Receipt{}, wrapErr("ack job", err)
	}
	return receipt(jobID, res)
}

// NackJob releases a live lease and reports where the job went.
func (s *Store) NackJob(ctx context.Context, jobID, token string, opts job.NackOpts) (job.Receipt, error) {
	now := s.now()
	readyAt := "0"
	if opts.Delay > 0 {
		readyAt = millis(now.Add(opts.Delay))
	}
	requeue := "0"
	if opts.Requeue {
		requeue = "1"
	}

	res, err := nackScript.Run(ctx, s.client, []string{s.keys.job(jobID)},
		s.keys.prefix, jobID, token, millis(now), requeue, readyAt, opts.Error,
	).StringSlice()
	if err != nil {
		return job.Receipt{}, wrapErr("nack job", err)
	}
	return receipt(jobID, res)
}

// ExtendLease renews a live lease.
func (s *Store) ExtendLease(ctx context.Context, jobID, token string, d time.Duration, progress int) (time.Time, error) {
	now := s.now()
	res, err := extendScript.Run(ctx, s.client, []string{s.keys.job(jobID)},
		s.keys.prefix, jobID, token, millis(now), millis(now.Add(d)), progress,
	).StringSlice()
	if err != nil {
		return time.Time{}, wrapErr("extend lease", err)
	}
	if err := leaseResult(jobID, res); err != nil {
		return time.Time{}, err
	}
	return parseMillis(res[1]), nil
}

// ScanExpiredLeases lists leased jobs whose expiry has passed.
func (s *Store) ScanExpiredLeases(ctx context.Context, queue string, limit int) ([]*job.Job, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keys.leased(queue), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   millis(s.now()),
		Count: int64(limitOrAll(limit)),
	}).Result()
	if err != nil {
		return nil, wrapErr("scan expired leases", err)
	}
	return s.getJobs(ctx, ids)
}

// RequeueExpired moves expired leases back to pending or to dead.
func (s *Store) RequeueExpired(ctx context.Context, queue string, limit int) (job.SweepResult, error) {
	res, err := reclaimScript.Run(ctx, s.client, []string{s.keys.leased(queue)},
		s.keys.prefix, queue, millis(s.now()), limitOrAll(limit),
	).Slice()
	if err != nil {
		return job.SweepResult{}, wrapErr("requeue expired", err)
	}
	return job.SweepResult{Requeued: toStrings(res[0]), Dead: toStrings(res[1])}, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	fields, err := s.client.HGetAll(ctx, s.keys.job(jobID)).Result()
	if err != nil {
		return nil, wrapErr("get job", err)
	}
	if len(fields) == 0 {
		return nil, redisjq.ErrJobNotFound
	}
	return jobFromFields(fields)
}

// ListJobs returns jobs of a queue in the given state.
func (s *Store) ListJobs(ctx context.Context, queue string, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	var key string
	switch state {
	case job.StatePending:
		key = s.keys.pending(queue)
	case job.StateLeased:
		key = s.keys.leased(queue)
	case job.StateFailed, job.StateDead:
		key = s.keys.dead(queue)
	default:
		// Done records are not indexed.
		return nil, nil
	}

	start := int64(opts.Offset)
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}
	members, err := s.client.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrapErr("list jobs", err)
	}

	ids := members
	if state == job.StatePending {
		ids = make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, memberID(m))
		}
	}
	return s.getJobs(ctx, ids)
}

// CountJobs returns the per-state counts of a queue.
func (s *Store) CountJobs(ctx context.Context, queue string) (job.Counts, error) {
	pipe := s.client.Pipeline()
	pending := pipe.ZCard(ctx, s.keys.pending(queue))
	delayed := pipe.ZCard(ctx, s.keys.delayed(queue))
	leased := pipe.ZCard(ctx, s.keys.leased(queue))
	dead := pipe.ZCard(ctx, s.keys.dead(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return job.Counts{}, wrapErr("count jobs", err)
	}
	return job.Counts{
		Pending: pending.Val(),
		Delayed: delayed.Val(),
		Leased:  leased.Val(),
		Dead:    dead.Val(),
	}, nil
}

// Queues returns every queue that has received a job, sorted.
func (s *Store) Queues(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.keys.queues()).Result()
	if err != nil {
		return nil, wrapErr("queues", err)
	}
	sort.Strings(names)
	return names, nil
}

// waitSlice bounds one BLPOP. The client does not abort a blocking read
// when ctx is cancelled, so a wait is cut into slices with a ctx check in
// between. It is also the BLPOP resolution of older servers.
const waitSlice = time.Second

// WaitForJob blocks on the queue's notify list until a push, timeout or
// the end of ctx, whichever comes first, give or take one waitSlice.
func (s *Store) WaitForJob(ctx context.Context, queue string, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.client.BLPop(ctx, min(waitSlice, time.Until(deadline)), s.keys.notify(queue)).Err()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, goredis.Nil):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return wrapErr("wait for job", err)
		}
		if !time.Now().Before(deadline) {
			return nil
		}
	}
}

// getJobs fetches several job hashes in one round trip, skipping ids whose
// record has vanished in between.
func (s *Store) getJobs(ctx context.Context, ids []string) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.job(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, wrapErr("get jobs", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		j, err := jobFromFields(fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// receipt reads {"ok", state, queue} or a lease failure.
func receipt(jobID string, res []string) (job.Receipt, error) {
	if err := leaseResult(jobID, res); err != nil {
		return job.Receipt{}, err
	}
	rc := job.Receipt{State: job.State(res[1])}
	if len(res) > 2 {
		rc.Queue = res[2]
	}
	return rc, nil
}

// leaseResult maps a script's lease precondition failure to an error.
func leaseResult(jobID string, res []string) error {
	if res[0] == "ok" {
		return nil
	}
	state := ""
	if len(res) > 1 {
		state = res[1]
	}
	switch res[0] {
	case "missing":
		return &redisjq.NotLeasedError{ID: jobID, Reason: "no such job"}
	case "expired":
		return &redisjq.NotLeasedError{ID: jobID, State: state, Reason: "lease expired"}
	case "token":
		return &redisjq.NotLeasedError{ID: jobID, State: state, Reason: "lease held by another consumer"}
	default:
		return &redisjq.NotLeasedError{ID: jobID, State: state}
	}
}

// ──────────────────────────────────────────────────
// Hash <-> Job conversion
// ──────────────────────────────────────────────────

func jobFromFields(m map[string]string) (*job.Job, error) {
	prio, err := strconv.ParseFloat(m["priority"], 64)
	if err != nil {
		return nil, fmt.Errorf("redisjq/redis: job %q: bad priority %q: %w", m["id"], m["priority"], err)
	}
	j := &job.Job{
		ID:          m["id"],
		Queue:       m["queue"],
		Priority:    prio,
		Command:     m["command"],
		State:       job.State(m["state"]),
		Attempts:    atoi(m["attempts"]),
		MaxAttempts: atoi(m["max_attempts"]),
		LeaseToken:  m["lease_token"],
		Progress:    atoi(m["progress"]),
		LastError:   m["last_error"],
		EnqueuedAt:  parseMillis(m["enqueued_at"]),
		UpdatedAt:   parseMillis(m["updated_at"]),
		LeaseExpiry: optMillis(m["lease_expiry"]),
		CompletedAt: optMillis(m["completed_at"]),
		DeadAt:      optMillis(m["dead_at"]),
	}
	return j, nil
}

// memberID strips the "%016d:" admission sequence from a queue member.
func memberID(member string) string {
	if i := strings.IndexByte(member, ':'); i >= 0 {
		return member[i+1:]
	}
	return member
}

func pairsToMap(v any) map[string]string {
	flat := toStrings(v)
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		m[flat[i]] = flat[i+1]
	}
	return m
}

func toStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch x := it.(type) {
		case string:
			out = append(out, x)
		case int64:
			out = append(out, strconv.FormatInt(x, 10))
		}
	}
	return out
}

func millis(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func parseMillis(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}

func optMillis(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseMillis(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

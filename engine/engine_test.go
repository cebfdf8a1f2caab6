package engine_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/backoff"
	"github.com/flaneurtv/redisjq/engine"
	"github.com/flaneurtv/redisjq/job"
	"github.com/flaneurtv/redisjq/store/memory"
	"github.com/flaneurtv/redisjq/store/storetest"
)

const e2eJobID = "B81B43B3-EF87-455B-9D0B-1FA754AFF65A"

func newEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store, *storetest.Clock) {
	t.Helper()
	clock := storetest.NewClock()
	s := memory.New(memory.WithClock(clock.Now))
	eng, err := engine.New(s, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng, s, clock
}

func mustAdd(t *testing.T, eng *engine.Engine, payload string) {
	t.Helper()
	ok, err := eng.AddJob(context.Background(), []byte(payload))
	if err != nil || !ok {
		t.Fatalf("AddJob = %v, %v", ok, err)
	}
}

func mustDispatch(t *testing.T, eng *engine.Engine, queue string, lease time.Duration) *job.Job {
	t.Helper()
	j, err := eng.DispatchJob(context.Background(), queue, lease)
	if err != nil {
		t.Fatalf("DispatchJob: %v", err)
	}
	if j == nil {
		t.Fatalf("DispatchJob(%q) returned no job", queue)
	}
	return j
}

// ──────────────────────────────────────────────────
// Enqueue → dispatch → ack
// ──────────────────────────────────────────────────

func TestEngine_EndToEnd(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	ok, err := eng.AddJob(ctx, []byte(`{"jobs":[{"id":"`+e2eJobID+`","queue_name":"test1","priority":"1","command":"ls -l"}]}`))
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if !ok {
		t.Fatal("AddJob = false, want true")
	}

	j := mustDispatch(t, eng, "test1", 30*time.Second)
	if j.ID != e2eJobID {
		t.Errorf("ID = %q, want %q", j.ID, e2eJobID)
	}
	if j.Command != "ls -l" {
		t.Errorf("Command = %q, want %q", j.Command, "ls -l")
	}
	if j.State != job.StateLeased {
		t.Errorf("State = %s, want leased", j.State)
	}
	if j.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", j.Attempts)
	}

	ok, err = eng.AckJob(ctx, j.ID)
	if err != nil || !ok {
		t.Fatalf("AckJob = %v, %v", ok, err)
	}

	next, err := eng.DispatchJob(ctx, "test1", 30*time.Second)
	if err != nil {
		t.Fatalf("DispatchJob: %v", err)
	}
	if next != nil {
		t.Errorf("DispatchJob on empty queue = %+v, want nil", next)
	}
}

func TestEngine_AddJob_InvalidBatchAdmitsNothing(t *testing.T) {
	eng, s, _ := newEngine(t)
	ctx := context.Background()

	ok, err := eng.AddJob(ctx, []byte(`{"jobs":[
		{"id":"good","queue_name":"q","priority":"1","command":"true"},
		{"id":"bad","queue_name":"q","priority":"high","command":"true"}
	]}`))
	if ok {
		t.Error("AddJob = true, want false")
	}
	if !errors.Is(err, redisjq.ErrInvalidPriority) {
		t.Errorf("err = %v, want ErrInvalidPriority", err)
	}
	var batchErr *job.BatchValidationError
	if !errors.As(err, &batchErr) {
		t.Fatalf("err = %T, want *job.BatchValidationError", err)
	}

	counts, err := s.CountJobs(ctx, "q")
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if counts.Pending != 0 {
		t.Errorf("pending = %d, want 0", counts.Pending)
	}
	if _, err := s.GetJob(ctx, "good"); !errors.Is(err, redisjq.ErrJobNotFound) {
		t.Errorf("GetJob(good) err = %v, want ErrJobNotFound", err)
	}
}

func TestEngine_AddJob_DuplicateID(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"dup","queue_name":"q","priority":"1","command":"a"}]}`)

	ok, err := eng.AddJob(ctx, []byte(`{"jobs":[
		{"id":"fresh","queue_name":"q","priority":"1","command":"b"},
		{"id":"dup","queue_name":"q","priority":"1","command":"c"}
	]}`))
	if ok {
		t.Error("AddJob = true, want false")
	}
	if !errors.Is(err, redisjq.ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
	if _, err := eng.GetJob(ctx, "fresh"); !errors.Is(err, redisjq.ErrJobNotFound) {
		t.Errorf("fresh was admitted despite the rejected batch: %v", err)
	}
}

func TestEngine_Enqueue_DuplicateIDInBatch(t *testing.T) {
	eng, s, _ := newEngine(t)
	ctx := context.Background()

	err := eng.Enqueue(ctx,
		job.New("q", "a", job.WithID("x")),
		job.New("q", "b", job.WithID("x")),
	)
	if !errors.Is(err, redisjq.ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
	var batchErr *job.BatchValidationError
	if !errors.As(err, &batchErr) {
		t.Errorf("err = %T, want *job.BatchValidationError", err)
	}
	if _, err := eng.GetJob(ctx, "x"); !errors.Is(err, redisjq.ErrJobNotFound) {
		t.Errorf("GetJob(x) err = %v, want ErrJobNotFound", err)
	}
	if counts, _ := s.CountJobs(ctx, "q"); counts != (job.Counts{}) {
		t.Errorf("counts = %+v, want zero", counts)
	}
}

func TestEngine_Enqueue_Validates(t *testing.T) {
	tests := []struct {
		name    string
		jobs    []*job.Job
		wantErr error
	}{
		{"empty queue", []*job.Job{job.New("", "x")}, redisjq.ErrSchema},
		{"NaN priority", []*job.Job{job.New("q", "x", job.WithPriority(math.NaN()))}, redisjq.ErrInvalidPriority},
		{"infinite priority", []*job.Job{job.New("q", "x", job.WithPriority(math.Inf(-1)))}, redisjq.ErrInvalidPriority},
		{"negative attempts", []*job.Job{job.New("q", "x", job.WithMaxAttempts(-5))}, redisjq.ErrValidation},
		{"one bad among good", []*job.Job{job.New("q", "ok"), job.New("q", "x", job.WithPriority(math.NaN()))}, redisjq.ErrInvalidPriority},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, s, _ := newEngine(t)
			ctx := context.Background()

			err := eng.Enqueue(ctx, tt.jobs...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			var batchErr *job.BatchValidationError
			if !errors.As(err, &batchErr) {
				t.Errorf("err = %T, want *job.BatchValidationError", err)
			}
			if counts, _ := s.CountJobs(ctx, "q"); counts != (job.Counts{}) {
				t.Errorf("counts = %+v, want zero", counts)
			}
			for _, j := range tt.jobs {
				if j.ID != "" {
					t.Errorf("rejected job was assigned id %q", j.ID)
				}
			}
		})
	}
}

func TestEngine_AddJob_GeneratesIDAndDefaults(t *testing.T) {
	cfg := redisjq.DefaultConfig()
	cfg.MaxAttempts = 7
	eng, _, _ := newEngine(t, engine.WithConfig(cfg))

	mustAdd(t, eng, `{"jobs":[{"queue_name":"q","priority":2.5,"command":"x"}]}`)

	j := mustDispatch(t, eng, "q", time.Minute)
	if len(j.ID) < 5 || j.ID[:4] != "job_" {
		t.Errorf("generated ID = %q, want job_ prefix", j.ID)
	}
	if j.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", j.MaxAttempts)
	}
	if j.Priority != 2.5 {
		t.Errorf("Priority = %v, want 2.5", j.Priority)
	}
}

func TestEngine_Capacity(t *testing.T) {
	cfg := redisjq.DefaultConfig()
	cfg.MaxPending = 1
	eng, _, _ := newEngine(t, engine.WithConfig(cfg))

	mustAdd(t, eng, `{"jobs":[{"id":"a","queue_name":"q","priority":"1","command":"x"}]}`)
	ok, err := eng.AddJob(context.Background(), []byte(`{"jobs":[{"id":"b","queue_name":"q","priority":"1","command":"x"}]}`))
	if ok || !errors.Is(err, redisjq.ErrCapacity) {
		t.Errorf("AddJob = %v, %v, want false, ErrCapacity", ok, err)
	}
}

// ──────────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────────

func TestEngine_PriorityOrder(t *testing.T) {
	eng, _, _ := newEngine(t)

	for _, p := range []string{"3", "1", "2"} {
		mustAdd(t, eng, `{"jobs":[{"id":"p`+p+`","queue_name":"q","priority":"`+p+`","command":"x"}]}`)
	}

	for _, want := range []string{"p1", "p2", "p3"} {
		j := mustDispatch(t, eng, "q", time.Minute)
		if j.ID != want {
			t.Errorf("dispatched %s, want %s", j.ID, want)
		}
	}
}

func TestEngine_ConcurrentDispatchNeverDuplicates(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	const n = 100
	jobs := make([]*job.Job, n)
	for i := range jobs {
		jobs[i] = job.New("q", "x", job.WithID(fmt.Sprintf("j%03d", i)))
	}
	if err := eng.Enqueue(ctx, jobs...); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := eng.DispatchJob(ctx, "q", time.Minute)
				if err != nil {
					t.Errorf("DispatchJob: %v", err)
					return
				}
				if j == nil {
					return
				}
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("dispatched %d distinct jobs, want %d", len(seen), n)
	}
	for jobID, c := range seen {
		if c != 1 {
			t.Errorf("job %s dispatched %d times", jobID, c)
		}
	}
}

func TestEngine_DispatchJobWait_WakesOnPush(t *testing.T) {
	s := memory.New()
	eng, err := engine.New(s)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = eng.AddJob(ctx, []byte(`{"jobs":[{"id":"late","queue_name":"w","priority":"1","command":"x"}]}`))
	}()

	start := time.Now()
	j, err := eng.DispatchJobWait(ctx, "w", time.Minute, 5*time.Second)
	if err != nil {
		t.Fatalf("DispatchJobWait: %v", err)
	}
	if j == nil || j.ID != "late" {
		t.Fatalf("DispatchJobWait = %v, want late", j)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("waited %v, expected to wake on push", elapsed)
	}
}

func TestEngine_DispatchJobWait_Timeout(t *testing.T) {
	s := memory.New()
	eng, err := engine.New(s)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	j, err := eng.DispatchJobWait(context.Background(), "empty", time.Minute, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("DispatchJobWait: %v", err)
	}
	if j != nil {
		t.Errorf("DispatchJobWait = %v, want nil", j)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.DispatchJobWait(ctx, "empty", time.Minute, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled wait err = %v, want context.Canceled", err)
	}
}

// ──────────────────────────────────────────────────
// Recovery
// ──────────────────────────────────────────────────

func TestEngine_LeaseExpiryRequeuesOnce(t *testing.T) {
	cfg := redisjq.DefaultConfig()
	cfg.LazyReclaim = false
	eng, _, clock := newEngine(t, engine.WithConfig(cfg))
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"e1","queue_name":"q","priority":"1","command":"x"}]}`)
	first := mustDispatch(t, eng, "q", time.Second)

	if j, _ := eng.DispatchJob(ctx, "q", time.Second); j != nil {
		t.Fatalf("leased job visible to dispatch: %v", j)
	}

	clock.Advance(2 * time.Second)
	res, err := eng.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Requeued != 1 || res.Dead != 0 {
		t.Errorf("Sweep = %+v, want 1 requeued", res)
	}

	again := mustDispatch(t, eng, "q", time.Second)
	if again.ID != first.ID {
		t.Errorf("redispatched %s, want %s", again.ID, first.ID)
	}
	if again.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", again.Attempts)
	}
	if j, _ := eng.DispatchJob(ctx, "q", time.Second); j != nil {
		t.Errorf("job dispatched twice after one expiry: %v", j)
	}
}

func TestEngine_LeaseExpiryExhaustsAttempts(t *testing.T) {
	cfg := redisjq.DefaultConfig()
	cfg.MaxAttempts = 1
	eng, _, clock := newEngine(t, engine.WithConfig(cfg))
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"d1","queue_name":"q","priority":"1","command":"x"}]}`)
	mustDispatch(t, eng, "q", time.Second)

	clock.Advance(2 * time.Second)
	res, err := eng.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Dead != 1 {
		t.Errorf("Sweep = %+v, want 1 dead", res)
	}
	n, err := eng.DLQ().Count(ctx, "q")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("dead letters = %d, want 1", n)
	}
}

func TestEngine_LazyReclaim(t *testing.T) {
	eng, _, clock := newEngine(t)

	mustAdd(t, eng, `{"jobs":[{"id":"l1","queue_name":"q","priority":"1","command":"x"}]}`)
	mustDispatch(t, eng, "q", time.Second)
	clock.Advance(2 * time.Second)

	j := mustDispatch(t, eng, "q", time.Second)
	if j.ID != "l1" || j.Attempts != 2 {
		t.Errorf("lazy reclaim dispatched %s (attempts %d), want l1 (2)", j.ID, j.Attempts)
	}
}

func TestEngine_LazyReclaimEmitsEvents(t *testing.T) {
	rec := &recordingExt{}
	eng, _, clock := newEngine(t, engine.WithExtension(rec))

	mustAdd(t, eng, `{"jobs":[
		{"id":"r","queue_name":"q","priority":"1","command":"x","max_attempts":3},
		{"id":"d","queue_name":"q","priority":"2","command":"x","max_attempts":1}
	]}`)
	mustDispatch(t, eng, "q", time.Second)
	mustDispatch(t, eng, "q", time.Second)
	clock.Advance(2 * time.Second)

	j := mustDispatch(t, eng, "q", time.Second)
	if j.ID != "r" {
		t.Fatalf("dispatched %s, want r", j.ID)
	}

	got := rec.snapshot()
	var requeued, dead bool
	for _, ev := range got {
		switch ev {
		case "requeued:r":
			requeued = true
		case "dead:d":
			dead = true
		}
	}
	if !requeued || !dead {
		t.Errorf("events = %v, want requeued:r and dead:d", got)
	}
}

// ──────────────────────────────────────────────────
// Completion
// ──────────────────────────────────────────────────

func TestEngine_DoubleAckFails(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"a1","queue_name":"q","priority":"1","command":"x"}]}`)
	j := mustDispatch(t, eng, "q", time.Minute)

	if ok, err := eng.AckJob(ctx, j.ID); err != nil || !ok {
		t.Fatalf("first AckJob = %v, %v", ok, err)
	}

	ok, err := eng.AckJob(ctx, j.ID)
	if ok {
		t.Error("second AckJob = true, want false")
	}
	var nle *redisjq.NotLeasedError
	if !errors.As(err, &nle) {
		t.Fatalf("second AckJob err = %v, want *NotLeasedError", err)
	}
	if nle.State != string(job.StateDone) {
		t.Errorf("NotLeasedError.State = %q, want %q", nle.State, job.StateDone)
	}

	got, err := eng.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateDone {
		t.Errorf("State = %s, want done", got.State)
	}
	if next, _ := eng.DispatchJob(ctx, "q", time.Minute); next != nil {
		t.Errorf("acked job resurrected: %v", next)
	}
}

func TestEngine_AckUnknownJob(t *testing.T) {
	eng, _, _ := newEngine(t)
	ok, err := eng.AckJob(context.Background(), "nope")
	if ok || !errors.Is(err, redisjq.ErrNotLeased) {
		t.Errorf("AckJob = %v, %v, want false, ErrNotLeased", ok, err)
	}
}

func TestEngine_StaleTokenRejected(t *testing.T) {
	eng, _, clock := newEngine(t)
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"s1","queue_name":"q","priority":"1","command":"x"}]}`)
	stale := mustDispatch(t, eng, "q", time.Second)
	clock.Advance(2 * time.Second)
	fresh := mustDispatch(t, eng, "q", time.Minute)

	if fresh.LeaseToken == stale.LeaseToken {
		t.Fatal("redispatch reused the lease token")
	}
	if err := eng.AckLease(ctx, stale.ID, stale.LeaseToken); !errors.Is(err, redisjq.ErrNotLeased) {
		t.Errorf("stale AckLease err = %v, want ErrNotLeased", err)
	}
	if err := eng.AckLease(ctx, fresh.ID, fresh.LeaseToken); err != nil {
		t.Errorf("fresh AckLease: %v", err)
	}
}

func TestEngine_NackRequeueThenDead(t *testing.T) {
	cfg := redisjq.DefaultConfig()
	cfg.MaxAttempts = 2
	eng, _, _ := newEngine(t, engine.WithConfig(cfg))
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"n1","queue_name":"q","priority":"1","command":"x"}]}`)

	j := mustDispatch(t, eng, "q", time.Minute)
	if ok, err := eng.NackJob(ctx, j.ID, true); err != nil || !ok {
		t.Fatalf("NackJob = %v, %v", ok, err)
	}
	got, _ := eng.GetJob(ctx, j.ID)
	if got.State != job.StatePending {
		t.Errorf("after first nack: State = %s, want pending", got.State)
	}

	j = mustDispatch(t, eng, "q", time.Minute)
	state, err := eng.NackLease(ctx, j.ID, j.LeaseToken, true, "still broken")
	if err != nil {
		t.Fatalf("NackLease: %v", err)
	}
	if state != job.StateDead {
		t.Errorf("after second nack: state = %s, want dead", state)
	}
	got, _ = eng.GetJob(ctx, j.ID)
	if got.LastError != "still broken" {
		t.Errorf("LastError = %q, want %q", got.LastError, "still broken")
	}
}

func TestEngine_NackWithoutRequeueFails(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"f1","queue_name":"q","priority":"1","command":"x"}]}`)
	j := mustDispatch(t, eng, "q", time.Minute)

	if ok, err := eng.NackJob(ctx, j.ID, false); err != nil || !ok {
		t.Fatalf("NackJob = %v, %v", ok, err)
	}
	got, _ := eng.GetJob(ctx, j.ID)
	if got.State != job.StateFailed {
		t.Errorf("State = %s, want failed", got.State)
	}

	if err := eng.DLQ().Replay(ctx, j.ID); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	again := mustDispatch(t, eng, "q", time.Minute)
	if again.ID != j.ID || again.Attempts != 1 {
		t.Errorf("replayed dispatch = %s (attempts %d), want %s (1)", again.ID, again.Attempts, j.ID)
	}
}

func TestEngine_NackBackoffDelaysRedispatch(t *testing.T) {
	eng, _, clock := newEngine(t, engine.WithBackoff(backoff.NewConstant(time.Minute)))
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"b1","queue_name":"q","priority":"1","command":"x"}]}`)
	j := mustDispatch(t, eng, "q", time.Minute)

	state, err := eng.NackLease(ctx, j.ID, j.LeaseToken, true, "retry later")
	if err != nil {
		t.Fatalf("NackLease: %v", err)
	}
	if state != job.StatePending {
		t.Errorf("state = %s, want pending", state)
	}
	if next, _ := eng.DispatchJob(ctx, "q", time.Minute); next != nil {
		t.Fatalf("delayed job dispatched early: %v", next)
	}

	clock.Advance(2 * time.Minute)
	again := mustDispatch(t, eng, "q", time.Minute)
	if again.ID != "b1" {
		t.Errorf("dispatched %s, want b1", again.ID)
	}
}

func TestEngine_ExtendAndProgress(t *testing.T) {
	eng, _, clock := newEngine(t)
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"x1","queue_name":"q","priority":"1","command":"x"}]}`)
	j := mustDispatch(t, eng, "q", time.Second)

	exp, err := eng.ExtendLease(ctx, j.ID, j.LeaseToken, time.Hour)
	if err != nil {
		t.Fatalf("ExtendLease: %v", err)
	}
	if want := clock.Now().Add(time.Hour); !exp.Equal(want) {
		t.Errorf("expiry = %v, want %v", exp, want)
	}

	if _, err := eng.ReportProgress(ctx, j.ID, j.LeaseToken, 40); err != nil {
		t.Fatalf("ReportProgress: %v", err)
	}
	got, _ := eng.GetJob(ctx, j.ID)
	if got.Progress != 40 {
		t.Errorf("Progress = %d, want 40", got.Progress)
	}

	if _, err := eng.ReportProgress(ctx, j.ID, j.LeaseToken, -1); !errors.Is(err, redisjq.ErrValidation) {
		t.Errorf("negative progress err = %v, want ErrValidation", err)
	}
	if _, err := eng.ExtendLease(ctx, j.ID, "wrong", time.Hour); !errors.Is(err, redisjq.ErrNotLeased) {
		t.Errorf("ExtendLease with wrong token err = %v, want ErrNotLeased", err)
	}
}

// ──────────────────────────────────────────────────
// Extensions
// ──────────────────────────────────────────────────

type recordingExt struct {
	mu     sync.Mutex
	events []string
	queues []string
}

func (r *recordingExt) Name() string { return "recorder" }

func (r *recordingExt) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingExt) OnJobEnqueued(_ context.Context, j *job.Job) error {
	r.add("enqueued:" + j.ID)
	return nil
}

func (r *recordingExt) OnJobLeased(_ context.Context, j *job.Job) error {
	r.add("leased:" + j.ID)
	return nil
}

func (r *recordingExt) OnJobAcked(_ context.Context, j *job.Job, _ time.Duration) error {
	r.add("acked:" + j.ID)
	r.addQueue(j.Queue)
	return nil
}

func (r *recordingExt) OnJobNacked(_ context.Context, j *job.Job, state job.State, _ string) error {
	r.add("nacked:" + j.ID + ":" + string(state))
	r.addQueue(j.Queue)
	return nil
}

func (r *recordingExt) OnJobRequeued(_ context.Context, _, jobID string) error {
	r.add("requeued:" + jobID)
	return nil
}

func (r *recordingExt) OnJobDead(_ context.Context, _, jobID string) error {
	r.add("dead:" + jobID)
	return nil
}

func (r *recordingExt) addQueue(q string) {
	r.mu.Lock()
	r.queues = append(r.queues, q)
	r.mu.Unlock()
}

func (r *recordingExt) queueSnapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queues...)
}

func (r *recordingExt) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestEngine_ExtensionEvents(t *testing.T) {
	rec := &recordingExt{}
	cfg := redisjq.DefaultConfig()
	cfg.LazyReclaim = false
	eng, _, clock := newEngine(t, engine.WithConfig(cfg), engine.WithExtension(rec))
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[{"id":"e","queue_name":"q","priority":"1","command":"x"}]}`)
	j := mustDispatch(t, eng, "q", time.Second)
	clock.Advance(2 * time.Second)
	if _, err := eng.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	j = mustDispatch(t, eng, "q", time.Minute)
	if _, err := eng.NackLease(ctx, j.ID, j.LeaseToken, true, "x"); err != nil {
		t.Fatalf("NackLease: %v", err)
	}
	j = mustDispatch(t, eng, "q", time.Minute)
	if err := eng.Complete(ctx, j); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	want := []string{
		"enqueued:e",
		"leased:e",
		"requeued:e",
		"leased:e",
		"nacked:e:pending",
		"leased:e",
		"acked:e",
	}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEngine_AckNackByIDCarryQueue(t *testing.T) {
	rec := &recordingExt{}
	eng, _, _ := newEngine(t, engine.WithExtension(rec))
	ctx := context.Background()

	mustAdd(t, eng, `{"jobs":[
		{"id":"a","queue_name":"emails","priority":"1","command":"x"},
		{"id":"n","queue_name":"emails","priority":"2","command":"x"},
		{"id":"l","queue_name":"emails","priority":"3","command":"x"}
	]}`)
	for range 3 {
		mustDispatch(t, eng, "emails", time.Minute)
	}

	if ok, err := eng.AckJob(ctx, "a"); err != nil || !ok {
		t.Fatalf("AckJob = %v, %v", ok, err)
	}
	if ok, err := eng.NackJob(ctx, "n", false); err != nil || !ok {
		t.Fatalf("NackJob = %v, %v", ok, err)
	}
	if _, err := eng.NackLease(ctx, "l", "", true, "retry"); err != nil {
		t.Fatalf("NackLease: %v", err)
	}

	got := rec.queueSnapshot()
	if len(got) != 3 {
		t.Fatalf("ack/nack events = %d, want 3", len(got))
	}
	for i, q := range got {
		if q != "emails" {
			t.Errorf("event %d queue = %q, want emails", i, q)
		}
	}
}

// ──────────────────────────────────────────────────
// Worker pool
// ──────────────────────────────────────────────────

func TestEngine_PoolProcessesJobs(t *testing.T) {
	cfg := redisjq.DefaultConfig()
	cfg.Queues = []string{"test1"}
	cfg.Concurrency = 2
	cfg.PollInterval = 10 * time.Millisecond
	cfg.SweepInterval = 0

	s := memory.New()
	eng, err := engine.New(s, engine.WithConfig(cfg), engine.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	var processed atomic.Int32
	eng.Handle("test1", func(_ context.Context, j *job.Job) error {
		if j.Command == "fail" {
			return errors.New("boom")
		}
		processed.Add(1)
		return nil
	})

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := eng.Stop(stopCtx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}()

	mustAdd(t, eng, `{"jobs":[
		{"id":"ok1","queue_name":"test1","priority":"1","command":"echo 1"},
		{"id":"ok2","queue_name":"test1","priority":"2","command":"echo 2"}
	]}`)

	deadline := time.Now().Add(5 * time.Second)
	for processed.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("processed %d jobs, want 2", processed.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, jobID := range []string{"ok1", "ok2"} {
		deadline := time.Now().Add(2 * time.Second)
		for {
			j, err := eng.GetJob(ctx, jobID)
			if err != nil {
				t.Fatalf("GetJob(%s): %v", jobID, err)
			}
			if j.State == job.StateDone {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("%s state = %s, want done", jobID, j.State)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestEngine_HandlerTimeout(t *testing.T) {
	cfg := redisjq.DefaultConfig()
	cfg.Queues = []string{"slow"}
	cfg.Concurrency = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.SweepInterval = 0
	cfg.MaxAttempts = 1
	cfg.HandlerTimeout = 20 * time.Millisecond

	eng, err := engine.New(memory.New(), engine.WithConfig(cfg))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	eng.Handle("slow", func(ctx context.Context, _ *job.Job) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		_ = eng.Stop(stopCtx)
	}()

	mustAdd(t, eng, `{"jobs":[{"id":"sleepy","queue_name":"slow","priority":"1","command":"sleep 60"}]}`)

	deadline := time.Now().Add(3 * time.Second)
	for {
		j, err := eng.GetJob(ctx, "sleepy")
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if j.State == job.StateDead {
			if j.LastError != context.DeadlineExceeded.Error() {
				t.Errorf("LastError = %q, want %q", j.LastError, context.DeadlineExceeded.Error())
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want dead", j.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew_NilStore(t *testing.T) {
	if _, err := engine.New(nil); !errors.Is(err, redisjq.ErrNoStore) {
		t.Errorf("New(nil) err = %v, want ErrNoStore", err)
	}
}

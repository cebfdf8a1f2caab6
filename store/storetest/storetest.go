// Package storetest is a conformance suite for store.Store backends. Each
// backend's tests call [Run] with a factory; the suite checks admission,
// dispatch order, lease handling, dead-lettering and the idle registry.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/dlq"
	"github.com/flaneurtv/redisjq/job"
	"github.com/flaneurtv/redisjq/store"
)

// Clock is a manually advanced clock shared by a store and its test.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock set to a fixed millisecond-aligned instant.
func NewClock() *Clock {
	return &Clock{t: time.UnixMilli(1_700_000_000_000).UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Factory returns an empty store reading time from clock.
type Factory func(t *testing.T, clock *Clock) store.Store

const lease = 30 * time.Second

// Run executes the suite against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store, c *Clock)
	}{
		{"PushAndGet", testPushAndGet},
		{"PushDuplicateRejectsBatch", testPushDuplicate},
		{"PushDuplicateInBatch", testPushDuplicateInBatch},
		{"PushCapacity", testPushCapacity},
		{"LeaseOrder", testLeaseOrder},
		{"LeaseEmpty", testLeaseEmpty},
		{"LeaseFields", testLeaseFields},
		{"Ack", testAck},
		{"AckRetain", testAckRetain},
		{"AckExpired", testAckExpired},
		{"AckWrongToken", testAckWrongToken},
		{"NackRequeue", testNackRequeue},
		{"NackExhausted", testNackExhausted},
		{"NackFailed", testNackFailed},
		{"NackDelay", testNackDelay},
		{"ExtendLease", testExtendLease},
		{"RequeueExpired", testRequeueExpired},
		{"LazyReclaim", testLazyReclaim},
		{"ListCountQueues", testListCountQueues},
		{"DeadLetters", testDeadLetters},
		{"IdleRegistry", testIdleRegistry},
		{"WaitForJob", testWaitForJob},
		{"ConcurrentLease", testConcurrentLease},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClock()
			tt.fn(t, newStore(t, c), c)
		})
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func newJob(id, queue string, priority float64, maxAttempts int) *job.Job {
	return job.New(queue, "cmd "+id,
		job.WithID(id),
		job.WithPriority(priority),
		job.WithMaxAttempts(maxAttempts),
	)
}

func push(t *testing.T, s store.Store, jobs ...*job.Job) {
	t.Helper()
	if err := s.PushJobs(context.Background(), jobs, job.PushOpts{}); err != nil {
		t.Fatalf("PushJobs: %v", err)
	}
}

func mustLease(t *testing.T, s store.Store, queue, token string) *job.Job {
	t.Helper()
	j, _, err := s.LeaseJob(context.Background(), queue, lease, job.LeaseOpts{Token: token})
	if err != nil {
		t.Fatalf("LeaseJob: %v", err)
	}
	if j == nil {
		t.Fatalf("LeaseJob(%q) = nil, want a job", queue)
	}
	return j
}

func mustState(t *testing.T, s store.Store, id string, want job.State) *job.Job {
	t.Helper()
	j, err := s.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob(%q): %v", id, err)
	}
	if j.State != want {
		t.Fatalf("job %q state = %q, want %q", id, j.State, want)
	}
	return j
}

func ack(ctx context.Context, s store.Store, id, token string) error {
	_, err := s.AckJob(ctx, id, token, job.AckOpts{})
	return err
}

func wantNotLeased(t *testing.T, err error, reason string) {
	t.Helper()
	var nl *redisjq.NotLeasedError
	if !errors.As(err, &nl) {
		t.Fatalf("error = %v, want *NotLeasedError", err)
	}
	if !errors.Is(err, redisjq.ErrNotLeased) {
		t.Errorf("errors.Is(%v, ErrNotLeased) = false", err)
	}
	if reason != "" && nl.Reason != reason {
		t.Errorf("Reason = %q, want %q", nl.Reason, reason)
	}
}

// ──────────────────────────────────────────────────
// Admission
// ──────────────────────────────────────────────────

func testPushAndGet(t *testing.T, s store.Store, c *Clock) {
	ctx := context.Background()
	in := newJob("B81B43B3-EF87-455B-9D0B-1FA754AFF65A", "test1", 1, 5)
	in.Command = "ls -l"
	push(t, s, in)

	got := mustState(t, s, in.ID, job.StatePending)
	if got.Queue != "test1" || got.Priority != 1 || got.Command != "ls -l" {
		t.Errorf("stored = (%q, %v, %q), want (test1, 1, ls -l)", got.Queue, got.Priority, got.Command)
	}
	if got.Attempts != 0 || got.MaxAttempts != 5 {
		t.Errorf("attempts = %d/%d, want 0/5", got.Attempts, got.MaxAttempts)
	}
	if !got.EnqueuedAt.Equal(c.Now()) {
		t.Errorf("EnqueuedAt = %v, want %v", got.EnqueuedAt, c.Now())
	}
	if got.LeaseExpiry != nil {
		t.Errorf("LeaseExpiry = %v, want nil", got.LeaseExpiry)
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, redisjq.ErrJobNotFound) {
		t.Errorf("GetJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

func testPushDuplicate(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 0))

	err := s.PushJobs(ctx, []*job.Job{newJob("b", "q", 1, 0), newJob("a", "q", 1, 0)}, job.PushOpts{})
	var dup *redisjq.DuplicateIDError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want *DuplicateIDError", err)
	}
	if dup.ID != "a" {
		t.Errorf("DuplicateIDError.ID = %q, want a", dup.ID)
	}
	if _, err := s.GetJob(ctx, "b"); !errors.Is(err, redisjq.ErrJobNotFound) {
		t.Errorf("job b admitted from a rejected batch: %v", err)
	}
}

func testPushDuplicateInBatch(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	batch := []*job.Job{newJob("x", "q", 1, 0), newJob("y", "q", 2, 0), newJob("x", "q", 3, 0)}

	err := s.PushJobs(ctx, batch, job.PushOpts{})
	var dup *redisjq.DuplicateIDError
	if !errors.As(err, &dup) || dup.ID != "x" {
		t.Fatalf("error = %v, want *DuplicateIDError for x", err)
	}
	for _, id := range []string{"x", "y"} {
		if _, err := s.GetJob(ctx, id); !errors.Is(err, redisjq.ErrJobNotFound) {
			t.Errorf("job %s admitted from a rejected batch: %v", id, err)
		}
	}
	if counts, _ := s.CountJobs(ctx, "q"); counts != (job.Counts{}) {
		t.Errorf("counts after rejected batch = %+v, want zero", counts)
	}
}

func testPushCapacity(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	opts := job.PushOpts{MaxPending: 2}
	if err := s.PushJobs(ctx, []*job.Job{newJob("a", "q", 1, 0)}, opts); err != nil {
		t.Fatalf("PushJobs: %v", err)
	}
	err := s.PushJobs(ctx, []*job.Job{newJob("b", "q", 1, 0), newJob("c", "q", 1, 0)}, opts)
	if !errors.Is(err, redisjq.ErrCapacity) {
		t.Fatalf("error = %v, want ErrCapacity", err)
	}
	counts, _ := s.CountJobs(ctx, "q")
	if counts.Pending != 1 {
		t.Errorf("Pending = %d, want 1", counts.Pending)
	}
	if err := s.PushJobs(ctx, []*job.Job{newJob("d", "other", 1, 0)}, opts); err != nil {
		t.Errorf("other queue rejected: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────────

func testLeaseOrder(t *testing.T, s store.Store, _ *Clock) {
	push(t, s,
		newJob("p3", "q", 3, 0),
		newJob("p1", "q", 1, 0),
		newJob("p2a", "q", 2, 0),
		newJob("p2b", "q", 2, 0),
		newJob("neg", "q", -0.5, 0),
	)
	push(t, s, newJob("p2c", "q", 2, 0))

	want := []string{"neg", "p1", "p2a", "p2b", "p2c", "p3"}
	for i, id := range want {
		if got := mustLease(t, s, "q", "t").ID; got != id {
			t.Fatalf("lease %d = %q, want %q", i, got, id)
		}
	}
}

func testLeaseEmpty(t *testing.T, s store.Store, _ *Clock) {
	push(t, s, newJob("a", "other", 1, 0))
	j, _, err := s.LeaseJob(context.Background(), "q", lease, job.LeaseOpts{})
	if err != nil {
		t.Fatalf("LeaseJob: %v", err)
	}
	if j != nil {
		t.Fatalf("LeaseJob on empty queue = %q, want nil", j.ID)
	}
}

func testLeaseFields(t *testing.T, s store.Store, c *Clock) {
	push(t, s, newJob("a", "q", 1, 3))
	j := mustLease(t, s, "q", "tok-1")

	if j.State != job.StateLeased {
		t.Errorf("State = %q, want leased", j.State)
	}
	if j.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", j.Attempts)
	}
	if j.LeaseToken != "tok-1" {
		t.Errorf("LeaseToken = %q, want tok-1", j.LeaseToken)
	}
	if j.LeaseExpiry == nil || !j.LeaseExpiry.Equal(c.Now().Add(lease)) {
		t.Errorf("LeaseExpiry = %v, want %v", j.LeaseExpiry, c.Now().Add(lease))
	}
	stored := mustState(t, s, "a", job.StateLeased)
	if stored.Attempts != 1 {
		t.Errorf("stored Attempts = %d, want 1", stored.Attempts)
	}
}

// ──────────────────────────────────────────────────
// Ack / Nack / Extend
// ──────────────────────────────────────────────────

func testAck(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 0))
	j := mustLease(t, s, "q", "tok")

	rc, err := s.AckJob(ctx, j.ID, "tok", job.AckOpts{})
	if err != nil {
		t.Fatalf("AckJob: %v", err)
	}
	if rc != (job.Receipt{Queue: "q", State: job.StateDone}) {
		t.Errorf("AckJob receipt = %+v, want {q done}", rc)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, redisjq.ErrJobNotFound) {
		t.Errorf("GetJob after ack = %v, want ErrJobNotFound", err)
	}
	wantNotLeased(t, ack(ctx, s, j.ID, "tok"), "")
	counts, _ := s.CountJobs(ctx, "q")
	if counts != (job.Counts{}) {
		t.Errorf("counts after ack = %+v, want zero", counts)
	}
}

func testAckRetain(t *testing.T, s store.Store, c *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 0))
	mustLease(t, s, "q", "tok")

	if _, err := s.AckJob(ctx, "a", "", job.AckOpts{Retain: time.Hour}); err != nil {
		t.Fatalf("AckJob: %v", err)
	}
	done := mustState(t, s, "a", job.StateDone)
	if done.CompletedAt == nil || !done.CompletedAt.Equal(c.Now()) {
		t.Errorf("CompletedAt = %v, want %v", done.CompletedAt, c.Now())
	}
	if done.LeaseExpiry != nil {
		t.Errorf("LeaseExpiry = %v, want nil", done.LeaseExpiry)
	}
	err := s.PushJobs(ctx, []*job.Job{newJob("a", "q", 1, 0)}, job.PushOpts{})
	if !errors.Is(err, redisjq.ErrDuplicateID) {
		t.Errorf("re-push of retained id error = %v, want ErrDuplicateID", err)
	}
	wantNotLeased(t, ack(ctx, s, "a", ""), "")
}

func testAckExpired(t *testing.T, s store.Store, c *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 0))
	mustLease(t, s, "q", "tok")

	c.Advance(lease)
	wantNotLeased(t, ack(ctx, s, "a", "tok"), "lease expired")
	mustState(t, s, "a", job.StateLeased)
}

func testAckWrongToken(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 0))
	mustLease(t, s, "q", "mine")

	wantNotLeased(t, ack(ctx, s, "a", "theirs"), "lease held by another consumer")
	if err := ack(ctx, s, "a", "mine"); err != nil {
		t.Fatalf("AckJob with the right token: %v", err)
	}
}

func testNackRequeue(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 3), newJob("b", "q", 1, 3))
	mustLease(t, s, "q", "tok")

	rc, err := s.NackJob(ctx, "a", "tok", job.NackOpts{Requeue: true, Error: "boom"})
	if err != nil {
		t.Fatalf("NackJob: %v", err)
	}
	if rc != (job.Receipt{Queue: "q", State: job.StatePending}) {
		t.Fatalf("NackJob receipt = %+v, want {q pending}", rc)
	}
	stored := mustState(t, s, "a", job.StatePending)
	if stored.LastError != "boom" || stored.LeaseExpiry != nil || stored.LeaseToken != "" {
		t.Errorf("requeued job = (%q, %v, %q), want (boom, nil, \"\")", stored.LastError, stored.LeaseExpiry, stored.LeaseToken)
	}

	// The requeued job keeps its admission position ahead of b.
	again := mustLease(t, s, "q", "tok2")
	if again.ID != "a" || again.Attempts != 2 {
		t.Errorf("re-lease = (%q, %d), want (a, 2)", again.ID, again.Attempts)
	}
	wantNotLeased(t, func() error {
		_, err := s.NackJob(ctx, "a", "tok", job.NackOpts{Requeue: true})
		return err
	}(), "lease held by another consumer")
}

func testNackExhausted(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 1))
	mustLease(t, s, "q", "tok")

	rc, err := s.NackJob(ctx, "a", "tok", job.NackOpts{Requeue: true, Error: "boom"})
	if err != nil {
		t.Fatalf("NackJob: %v", err)
	}
	if rc != (job.Receipt{Queue: "q", State: job.StateDead}) {
		t.Fatalf("NackJob receipt = %+v, want {q dead}", rc)
	}
	dead := mustState(t, s, "a", job.StateDead)
	if dead.DeadAt == nil {
		t.Error("DeadAt not set")
	}
	if n, _ := s.CountDead(ctx, "q"); n != 1 {
		t.Errorf("CountDead = %d, want 1", n)
	}
}

func testNackFailed(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 0))
	mustLease(t, s, "q", "tok")

	rc, err := s.NackJob(ctx, "a", "tok", job.NackOpts{Error: "bad input"})
	if err != nil {
		t.Fatalf("NackJob: %v", err)
	}
	if rc != (job.Receipt{Queue: "q", State: job.StateFailed}) {
		t.Fatalf("NackJob receipt = %+v, want {q failed}", rc)
	}
	failed := mustState(t, s, "a", job.StateFailed)
	if failed.LastError != "bad input" {
		t.Errorf("LastError = %q, want %q", failed.LastError, "bad input")
	}
	dead, _ := s.ListDead(ctx, "q", dlq.ListOpts{})
	if len(dead) != 1 || dead[0].ID != "a" {
		t.Errorf("ListDead = %v, want [a]", ids(dead))
	}
}

func testNackDelay(t *testing.T, s store.Store, c *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 0))
	mustLease(t, s, "q", "tok")

	if _, err := s.NackJob(ctx, "a", "tok", job.NackOpts{Requeue: true, Delay: 5 * time.Second}); err != nil {
		t.Fatalf("NackJob: %v", err)
	}
	counts, _ := s.CountJobs(ctx, "q")
	if counts.Delayed != 1 || counts.Pending != 0 {
		t.Errorf("counts = %+v, want 1 delayed", counts)
	}
	if j, _, _ := s.LeaseJob(ctx, "q", lease, job.LeaseOpts{}); j != nil {
		t.Fatalf("delayed job leased early")
	}

	c.Advance(5 * time.Second)
	if got := mustLease(t, s, "q", "tok2"); got.ID != "a" {
		t.Errorf("leased %q, want a", got.ID)
	}
}

func testExtendLease(t *testing.T, s store.Store, c *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 0))
	mustLease(t, s, "q", "tok")

	c.Advance(20 * time.Second)
	exp, err := s.ExtendLease(ctx, "a", "tok", time.Minute, 40)
	if err != nil {
		t.Fatalf("ExtendLease: %v", err)
	}
	if !exp.Equal(c.Now().Add(time.Minute)) {
		t.Errorf("expiry = %v, want %v", exp, c.Now().Add(time.Minute))
	}
	got := mustState(t, s, "a", job.StateLeased)
	if got.Progress != 40 {
		t.Errorf("Progress = %d, want 40", got.Progress)
	}

	// Past the original expiry but inside the extension.
	c.Advance(20 * time.Second)
	if res, _ := s.RequeueExpired(ctx, "q", 0); len(res.Requeued) != 0 {
		t.Errorf("extended lease reclaimed: %v", res.Requeued)
	}
	if _, err := s.ExtendLease(ctx, "a", "tok", time.Minute, -1); err != nil {
		t.Fatalf("second ExtendLease: %v", err)
	}
	if got := mustState(t, s, "a", job.StateLeased); got.Progress != 40 {
		t.Errorf("Progress after -1 = %d, want 40", got.Progress)
	}
	if err := ack(ctx, s, "a", "tok"); err != nil {
		t.Fatalf("AckJob: %v", err)
	}
	_, err = s.ExtendLease(ctx, "a", "tok", time.Minute, -1)
	wantNotLeased(t, err, "")
}

// ──────────────────────────────────────────────────
// Recovery
// ──────────────────────────────────────────────────

func testRequeueExpired(t *testing.T, s store.Store, c *Clock) {
	ctx := context.Background()
	push(t, s, newJob("once", "q", 1, 1), newJob("many", "q", 2, 0))
	mustLease(t, s, "q", "t1")
	mustLease(t, s, "q", "t2")

	if exp, _ := s.ScanExpiredLeases(ctx, "q", 0); len(exp) != 0 {
		t.Fatalf("ScanExpiredLeases before expiry = %v", ids(exp))
	}
	c.Advance(lease)
	exp, err := s.ScanExpiredLeases(ctx, "q", 0)
	if err != nil {
		t.Fatalf("ScanExpiredLeases: %v", err)
	}
	if len(exp) != 2 {
		t.Fatalf("ScanExpiredLeases = %v, want 2 jobs", ids(exp))
	}

	res, err := s.RequeueExpired(ctx, "q", 0)
	if err != nil {
		t.Fatalf("RequeueExpired: %v", err)
	}
	if len(res.Requeued) != 1 || res.Requeued[0] != "many" {
		t.Errorf("Requeued = %v, want [many]", res.Requeued)
	}
	if len(res.Dead) != 1 || res.Dead[0] != "once" {
		t.Errorf("Dead = %v, want [once]", res.Dead)
	}
	requeued := mustState(t, s, "many", job.StatePending)
	if requeued.LastError != "lease expired" {
		t.Errorf("LastError = %q, want %q", requeued.LastError, "lease expired")
	}
	mustState(t, s, "once", job.StateDead)

	if res, _ := s.RequeueExpired(ctx, "q", 0); len(res.Requeued)+len(res.Dead) != 0 {
		t.Errorf("second sweep moved %+v", res)
	}
}

func testLazyReclaim(t *testing.T, s store.Store, c *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 0))
	mustLease(t, s, "q", "t1")
	c.Advance(lease + time.Millisecond)

	j, reclaimed, err := s.LeaseJob(ctx, "q", lease, job.LeaseOpts{Token: "t2", Reclaim: 10})
	if err != nil {
		t.Fatalf("LeaseJob: %v", err)
	}
	if j == nil || j.ID != "a" || j.Attempts != 2 || j.LeaseToken != "t2" {
		t.Fatalf("lazy reclaim lease = %+v, want a with 2 attempts", j)
	}
	if len(reclaimed.Requeued) != 1 || reclaimed.Requeued[0] != "a" || len(reclaimed.Dead) != 0 {
		t.Errorf("reclaimed = %+v, want Requeued [a]", reclaimed)
	}

	// An exhausted job reclaimed during dispatch is reported as dead.
	push(t, s, newJob("b", "q2", 1, 1))
	mustLease(t, s, "q2", "t1")
	c.Advance(lease + time.Millisecond)
	j, reclaimed, err = s.LeaseJob(ctx, "q2", lease, job.LeaseOpts{Reclaim: 10})
	if err != nil {
		t.Fatalf("LeaseJob: %v", err)
	}
	if j != nil {
		t.Errorf("leased %q from a queue whose only job died", j.ID)
	}
	if len(reclaimed.Dead) != 1 || reclaimed.Dead[0] != "b" || len(reclaimed.Requeued) != 0 {
		t.Errorf("reclaimed = %+v, want Dead [b]", reclaimed)
	}
}

// ──────────────────────────────────────────────────
// Inspection
// ──────────────────────────────────────────────────

func testListCountQueues(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q1", 2, 0), newJob("b", "q1", 1, 0), newJob("c", "q1", 3, 0), newJob("d", "q2", 1, 0))
	mustLease(t, s, "q1", "tok")

	pending, err := s.ListJobs(ctx, "q1", job.StatePending, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if got := ids(pending); fmt.Sprint(got) != "[a c]" {
		t.Errorf("pending = %v, want [a c]", got)
	}
	page, _ := s.ListJobs(ctx, "q1", job.StatePending, job.ListOpts{Limit: 1, Offset: 1})
	if got := ids(page); fmt.Sprint(got) != "[c]" {
		t.Errorf("page = %v, want [c]", got)
	}
	leased, _ := s.ListJobs(ctx, "q1", job.StateLeased, job.ListOpts{})
	if got := ids(leased); fmt.Sprint(got) != "[b]" {
		t.Errorf("leased = %v, want [b]", got)
	}

	counts, err := s.CountJobs(ctx, "q1")
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if counts != (job.Counts{Pending: 2, Leased: 1}) {
		t.Errorf("counts = %+v, want pending 2 leased 1", counts)
	}

	queues, err := s.Queues(ctx)
	if err != nil {
		t.Fatalf("Queues: %v", err)
	}
	if fmt.Sprint(queues) != "[q1 q2]" {
		t.Errorf("Queues = %v, want [q1 q2]", queues)
	}
}

func testDeadLetters(t *testing.T, s store.Store, c *Clock) {
	ctx := context.Background()
	push(t, s, newJob("a", "q", 1, 1), newJob("b", "q", 2, 1), newJob("live", "q", 3, 0))
	for _, id := range []string{"a", "b"} {
		mustLease(t, s, "q", "tok")
		if _, err := s.NackJob(ctx, id, "tok", job.NackOpts{Requeue: true}); err != nil {
			t.Fatalf("NackJob(%s): %v", id, err)
		}
		c.Advance(time.Minute)
	}

	if err := s.ReplayDead(ctx, "live"); !errors.Is(err, redisjq.ErrNotDeadLettered) {
		t.Errorf("ReplayDead(pending) = %v, want ErrNotDeadLettered", err)
	}
	if err := s.ReplayDead(ctx, "missing"); !errors.Is(err, redisjq.ErrJobNotFound) {
		t.Errorf("ReplayDead(missing) = %v, want ErrJobNotFound", err)
	}

	if err := s.ReplayDead(ctx, "a"); err != nil {
		t.Fatalf("ReplayDead: %v", err)
	}
	replayed := mustState(t, s, "a", job.StatePending)
	if replayed.Attempts != 0 || replayed.DeadAt != nil {
		t.Errorf("replayed = (%d, %v), want (0, nil)", replayed.Attempts, replayed.DeadAt)
	}
	if got := mustLease(t, s, "q", "tok"); got.ID != "a" {
		t.Errorf("lease after replay = %q, want a", got.ID)
	}

	n, err := s.PurgeDead(ctx, "q", c.Now().Add(-2*time.Minute), 0)
	if err != nil {
		t.Fatalf("PurgeDead: %v", err)
	}
	if n != 0 {
		t.Errorf("PurgeDead before b died removed %d", n)
	}
	if n, _ = s.PurgeDead(ctx, "q", c.Now(), 0); n != 1 {
		t.Errorf("PurgeDead removed %d, want 1", n)
	}
	if _, err := s.GetJob(ctx, "b"); !errors.Is(err, redisjq.ErrJobNotFound) {
		t.Errorf("purged job still readable: %v", err)
	}
}

func testIdleRegistry(t *testing.T, s store.Store, c *Clock) {
	ctx := context.Background()
	if err := s.MarkIdle(ctx, "q", "w1"); err != nil {
		t.Fatalf("MarkIdle: %v", err)
	}
	c.Advance(10 * time.Second)
	_ = s.MarkIdle(ctx, "q", "w2")
	_ = s.MarkIdle(ctx, "q", "w3")
	_ = s.ClearIdle(ctx, "q", "w3")

	active, err := s.ListIdle(ctx, "q", c.Now().Add(-9*time.Second))
	if err != nil {
		t.Fatalf("ListIdle: %v", err)
	}
	if len(active) != 1 || active[0].ID != "w2" {
		t.Fatalf("ListIdle = %+v, want [w2]", active)
	}
	if !active[0].LastSeen.Equal(c.Now()) {
		t.Errorf("LastSeen = %v, want %v", active[0].LastSeen, c.Now())
	}

	n, err := s.PurgeIdle(ctx, "q", c.Now().Add(-9*time.Second))
	if err != nil {
		t.Fatalf("PurgeIdle: %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeIdle = %d, want 1", n)
	}
}

func testWaitForJob(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.PushJobs(ctx, []*job.Job{newJob("a", "q", 1, 0)}, job.PushOpts{})
	}()

	start := time.Now()
	if err := s.WaitForJob(ctx, "q", 10*time.Second); err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	if waited := time.Since(start); waited > 5*time.Second {
		t.Errorf("WaitForJob returned after %v, want wake-up on push", waited)
	}
	if err := s.WaitForJob(ctx, "q", 0); err != nil {
		t.Errorf("WaitForJob(0) = %v", err)
	}
}

func testConcurrentLease(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	const total = 100
	batch := make([]*job.Job, total)
	for i := range batch {
		batch[i] = newJob(fmt.Sprintf("j%03d", i), "q", float64(i%5), 0)
	}
	push(t, s, batch...)

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for {
				j, _, err := s.LeaseJob(ctx, "q", lease, job.LeaseOpts{Token: fmt.Sprint(w)})
				if err != nil {
					t.Errorf("LeaseJob: %v", err)
					return
				}
				if j == nil {
					return
				}
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(seen) != total {
		t.Errorf("leased %d distinct jobs, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s leased %d times", id, n)
		}
	}
}

func ids(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

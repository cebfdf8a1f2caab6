package job

import (
	"time"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting in its queue for dispatch.
	StatePending State = "pending"
	// StateLeased means a consumer holds a lease on the job.
	StateLeased State = "leased"
	// StateDone means the job was acknowledged.
	StateDone State = "done"
	// StateFailed means the job was rejected by a consumer without requeue.
	StateFailed State = "failed"
	// StateDead means the job used up its attempts.
	StateDead State = "dead"
)

// Valid reports whether s is one of the five job states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateLeased, StateDone, StateFailed, StateDead:
		return true
	}
	return false
}

// Terminal reports whether s is a dead-letter state.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateDead
}

// Job is one unit of work. Command is opaque: it is stored and delivered
// but never parsed.
type Job struct {
	ID          string     `json:"id"                     msgpack:"id"`
	Queue       string     `json:"queue_name"             msgpack:"queue_name"`
	Priority    float64    `json:"priority,string"        msgpack:"priority"`
	Command     string     `json:"command"                msgpack:"command"`
	State       State      `json:"state"                  msgpack:"state"`
	Attempts    int        `json:"attempt_count"          msgpack:"attempt_count"`
	MaxAttempts int        `json:"max_attempts"           msgpack:"max_attempts"`
	LeaseExpiry *time.Time `json:"lease_expiry,omitempty" msgpack:"lease_expiry,omitempty"`
	LeaseToken  string     `json:"lease_token,omitempty"  msgpack:"lease_token,omitempty"`
	Progress    int        `json:"progress,omitempty"     msgpack:"progress,omitempty"`
	LastError   string     `json:"last_error,omitempty"   msgpack:"last_error,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"            msgpack:"enqueued_at"`
	UpdatedAt   time.Time  `json:"updated_at"             msgpack:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" msgpack:"completed_at,omitempty"`
	DeadAt      *time.Time `json:"dead_at,omitempty"      msgpack:"dead_at,omitempty"`
}

// New builds a pending job. Options override the zero id, priority and
// attempt budget; a job without an id gets one generated at admission.
func New(queue, command string, opts ...Option) *Job {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Job{
		ID:          o.ID,
		Queue:       queue,
		Priority:    o.Priority,
		Command:     command,
		State:       StatePending,
		MaxAttempts: o.MaxAttempts,
	}
}

// Leased reports whether the job holds a lease that is still valid at now.
func (j *Job) Leased(now time.Time) bool {
	return j.State == StateLeased && j.LeaseExpiry != nil && j.LeaseExpiry.After(now)
}

// AttemptsLeft reports whether another dispatch is allowed.
func (j *Job) AttemptsLeft() bool {
	return j.MaxAttempts == 0 || j.Attempts < j.MaxAttempts
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	cp := *j
	cp.LeaseExpiry = cloneTime(j.LeaseExpiry)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	cp.DeadAt = cloneTime(j.DeadAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

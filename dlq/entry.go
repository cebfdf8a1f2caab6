package dlq

import (
	"time"

	"github.com/flaneurtv/redisjq/job"
)

// Entry is the operator view of a job that ended in the dead letter set,
// either rejected by a consumer (failed) or out of attempts (dead).
type Entry struct {
	JobID       string    `json:"job_id"`
	Queue       string    `json:"queue"`
	Command     string    `json:"command"`
	Priority    float64   `json:"priority"`
	State       job.State `json:"state"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	FailedAt    time.Time `json:"failed_at"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// EntryFromJob builds an Entry from a dead-lettered job record.
func EntryFromJob(j *job.Job) *Entry {
	e := &Entry{
		JobID:       j.ID,
		Queue:       j.Queue,
		Command:     j.Command,
		Priority:    j.Priority,
		State:       j.State,
		Error:       j.LastError,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		EnqueuedAt:  j.EnqueuedAt,
	}
	if j.DeadAt != nil {
		e.FailedAt = *j.DeadAt
	}
	return e
}

package job

// UseDefaultAttempts marks a job whose attempt budget is taken from the
// engine configuration at admission.
const UseDefaultAttempts = -1

// Options configures a job built with New.
type Options struct {
	// ID is the caller-supplied id. Empty means generate one at admission.
	ID string

	// Priority determines dispatch ordering. Lower values are dispatched first.
	Priority float64

	// MaxAttempts is the attempt budget. Zero means unlimited,
	// UseDefaultAttempts means the engine default.
	MaxAttempts int
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: UseDefaultAttempts,
	}
}

// Option is a functional option for New.
type Option func(*Options)

// WithID sets the job id.
func WithID(id string) Option {
	return func(o *Options) {
		o.ID = id
	}
}

// WithPriority sets the job priority. Lower values are dispatched first.
func WithPriority(p float64) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithMaxAttempts sets the attempt budget. Zero means unlimited.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

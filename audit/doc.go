// Package audit is an extension that turns job lifecycle events into
// structured audit records and hands them to a [Recorder].
//
// Severities follow the outcome: info for admissions, leases and acks,
// warning for requeues, critical for jobs that end failed or dead.
//
//	eng, _ := engine.New(s, engine.WithExtension(
//	    audit.New(audit.RecorderFunc(func(ctx context.Context, r *audit.Record) error {
//	        return trail.Append(ctx, r)
//	    }), audit.WithActions(audit.ActionJobFailed, audit.ActionJobDead)),
//	))
//
// [SlogRecorder] writes records to a *slog.Logger; the redisjq command
// uses it for its --audit flag.
package audit

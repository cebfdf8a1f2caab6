// Package ext defines the extension system.
//
// Extensions are notified of job lifecycle events and can react to them:
// recording metrics, writing audit logs, emitting webhooks. Each lifecycle
// hook is a separate interface so extensions opt in only to the events
// they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobAcked(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s done in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobEnqueued]: job was admitted to its queue
//   - [JobLeased]: job was dispatched to a consumer
//   - [JobAcked]: consumer acknowledged the job
//   - [JobNacked]: consumer released the job (requeued, failed or dead)
//   - [JobRequeued]: an expired lease went back to pending
//   - [JobDead]: an expired lease had no attempts left
//   - [Shutdown]: the engine is stopping
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never interrupt the job pipeline.
package ext

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/flaneurtv/redisjq/job"
)

// Logging writes one record per handler run: info when it succeeded,
// warn with the error when it did not.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)

		attrs := jobAttrs(j,
			slog.Int("attempt", j.Attempts),
			slog.Duration("elapsed", time.Since(start)),
		)
		if err != nil {
			logger.LogAttrs(ctx, slog.LevelWarn, "job handler failed",
				append(attrs, slog.String("error", err.Error()))...)
			return err
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "job handled", attrs...)
		return nil
	}
}

func jobAttrs(j *job.Job, extra ...slog.Attr) []slog.Attr {
	return append([]slog.Attr{
		slog.String("job_id", j.ID),
		slog.String("queue", j.Queue),
	}, extra...)
}

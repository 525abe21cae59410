package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/ook-lab/docqueue/item"
)

// Logging returns middleware that logs item start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, w *item.WorkItem, next Handler) error {
		logger.Info("item processing started",
			slog.String("kind", w.Kind),
			slog.String("item_id", w.ID.String()),
			slog.String("workspace", w.Workspace),
			slog.Int("attempt", w.AttemptCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("item processing failed",
				slog.String("kind", w.Kind),
				slog.String("item_id", w.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("item processing completed",
				slog.String("kind", w.Kind),
				slog.String("item_id", w.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}

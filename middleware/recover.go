package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ook-lab/docqueue/item"
)

// Recover returns middleware that recovers from panics in the processor chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, w *item.WorkItem, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("item processor panicked",
					slog.String("kind", w.Kind),
					slog.String("item_id", w.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic processing item %s: %v", w.ID, r)
			}
		}()
		return next(ctx)
	}
}

package middleware

import (
	"context"
	"time"

	"github.com/ook-lab/docqueue/item"
)

// Timeout returns middleware that enforces a per-item processing deadline.
// A context.WithTimeout wraps the handler call; when the deadline is
// exceeded the context is cancelled and the processor should return
// context.DeadlineExceeded. A non-positive duration disables the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *item.WorkItem, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}

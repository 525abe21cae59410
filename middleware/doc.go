// Package middleware provides composable middleware for item processing.
//
// A [Middleware] is a function that wraps an item processor. Middleware are
// composed into a chain using [Chain] and applied before each item is
// processed. They are applied right-to-left: the first middleware in the
// slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs kind, workspace, duration, and outcome per attempt
//   - [Recover] — catches panics and converts them to errors
//   - [Timeout] — cancels the processing context after a configured duration
//   - [Tracing] — wraps processing in an OpenTelemetry span
//   - [Metrics] — records per-item duration and attempt counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, w *item.WorkItem, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware

// Package throttle enforces per-workspace claim limits.
//
// Workspaces are the isolation unit for queued work. Use [Config] to cap
// how fast and how wide a single workspace may consume the runner:
//
//	throttle.Config{
//	    Workspace:      "acme",
//	    MaxConcurrency: 5,      // max 5 concurrent items for acme
//	    RateLimit:      10,     // max 10 claims/s from acme's backlog
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// [Manager] checks limits at claim time. It uses a token-bucket rate
// limiter (golang.org/x/time/rate) and an active-count gate for
// concurrency limits.
//
//	m := throttle.NewManager(configs...)
//	if m.Acquire(workspace) {
//	    defer m.Release(workspace)
//	    // process the item
//	}
//
// Workspaces without a [Config] have no limits beyond the runner-wide
// concurrency.
package throttle

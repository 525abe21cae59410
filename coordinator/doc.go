// Package coordinator is the service layer of the queue: the operations
// workers and operators call, over any store backend.
//
// The coordinator validates inputs (empty owner tokens and workspaces are
// hard errors, not silent no-ops), stamps new entities, links the retry
// lineage of the execution ledger, and logs. It deliberately contains no
// queue semantics of its own: atomic claims, owner checks, and the
// promote guard are store invariants and hold no matter who calls the
// store.
//
// A typical worker interaction:
//
//	w, err := coord.Claim(ctx, "tenant-a", token, time.Minute)
//	exec, err := coord.BeginExecution(ctx, w.ID, coordinator.BeginOptions{...})
//	// ... process ...
//	err = coord.CompleteExecution(ctx, exec.ID, result)
//	err = coord.Promote(ctx, w.ID, exec.ID)
//	ok, err := coord.Acknowledge(ctx, w.ID, token)
package coordinator

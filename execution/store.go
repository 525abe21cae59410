package execution

import (
	"context"

	"github.com/ook-lab/docqueue/id"
)

// Store defines the persistence contract for the execution ledger.
//
// The ledger is append-only: rows are inserted, completed exactly once,
// and never deleted. Failed executions are evidence, not garbage.
type Store interface {
	// CreateExecution appends a new execution row.
	CreateExecution(ctx context.Context, e *Execution) error

	// GetExecution retrieves an execution by ID.
	GetExecution(ctx context.Context, execID id.ExecutionID) (*Execution, error)

	// CompleteExecution applies a terminal result to a non-terminal
	// execution. Completing an already-terminal execution returns
	// docqueue.ErrExecutionTerminal and leaves the row untouched.
	CompleteExecution(ctx context.Context, execID id.ExecutionID, res Result) error

	// PromoteExecution points the item's active execution at the given
	// execution. The guard is enforced in the same statement: the
	// execution must belong to the item and be succeeded, otherwise
	// nothing changes and a specific error is returned.
	PromoteExecution(ctx context.Context, itemID id.ItemID, execID id.ExecutionID) error

	// ListExecutions returns all executions for an item, oldest first.
	ListExecutions(ctx context.Context, itemID id.ItemID) ([]*Execution, error)

	// LatestExecution returns the most recent execution for an item, or
	// (nil, nil) when the item has none.
	LatestExecution(ctx context.Context, itemID id.ItemID) (*Execution, error)
}

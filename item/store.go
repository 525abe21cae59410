package item

import (
	"context"
	"time"

	"github.com/ook-lab/docqueue/id"
)

// ListOpts controls pagination and filtering for item list queries.
type ListOpts struct {
	// Limit is the maximum number of items to return. Zero means no limit.
	Limit int
	// Offset is the number of items to skip.
	Offset int
	// Workspace filters by workspace. Empty means all workspaces.
	Workspace string
}

// StatusCounts maps each status to the number of items in it.
type StatusCounts map[Status]int64

// Total returns the sum across all statuses.
func (c StatusCounts) Total() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

// Store defines the persistence contract for work items.
//
// The mutating lease operations (HeartbeatItem, AcknowledgeItem, FailItem)
// are owner-checked: they take effect only if the given owner token still
// holds the lease, and report the outcome as a boolean. Losing ownership
// is an expected race, not an error. An empty owner token is rejected
// outright, since it would turn every ownership check into a match
// against unleased rows.
type Store interface {
	// CreateItem persists a new work item in pending status.
	CreateItem(ctx context.Context, w *WorkItem) error

	// GetItem retrieves a work item by ID.
	GetItem(ctx context.Context, itemID id.ItemID) (*WorkItem, error)

	// EnqueueItems transitions pending items in the workspace to queued
	// and returns the IDs actually transitioned. When ids is non-empty
	// only those items are considered (limit is ignored); items that are
	// not pending, or that belong to a different workspace, are skipped.
	// With no ids the limit must be positive.
	EnqueueItems(ctx context.Context, workspace string, limit int, ids []id.ItemID) ([]id.ItemID, error)

	// ClaimItem atomically claims the oldest eligible item in the
	// workspace: queued items, plus processing items whose lease has
	// expired. The claim sets status to processing, installs the lease,
	// and increments the attempt count, all in a single statement.
	// Returns (nil, nil) when no item is eligible.
	ClaimItem(ctx context.Context, workspace, owner string, lease time.Duration) (*WorkItem, error)

	// HeartbeatItem extends the lease on a processing item. Returns
	// false when the owner no longer holds the lease.
	HeartbeatItem(ctx context.Context, itemID id.ItemID, owner string, lease time.Duration) (bool, error)

	// AcknowledgeItem marks a processing item completed and clears the
	// lease. Returns false when the owner no longer holds the lease,
	// leaving the item untouched.
	AcknowledgeItem(ctx context.Context, itemID id.ItemID, owner string) (bool, error)

	// FailItem records a failed attempt. With retry the item returns to
	// pending for a later re-enqueue; without it the item becomes failed
	// terminally. Either way the lease is cleared and the reason stored.
	// Returns false when the owner no longer holds the lease.
	FailItem(ctx context.Context, itemID id.ItemID, owner, reason string, retry bool) (bool, error)

	// DrainWorkspace moves all queued items in the workspace back to
	// pending, without touching processing items or their leases.
	// Returns the number of items moved.
	DrainWorkspace(ctx context.Context, workspace string) (int64, error)

	// ListItemsByStatus returns items matching the given status, oldest
	// first.
	ListItemsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*WorkItem, error)

	// CountItemsByStatus returns per-status counts for the workspace.
	// Statuses with no items are absent from the map.
	CountItemsByStatus(ctx context.Context, workspace string) (StatusCounts, error)
}

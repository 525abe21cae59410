package item

import (
	"time"

	"github.com/ook-lab/docqueue"
	"github.com/ook-lab/docqueue/id"
)

// Status represents the lifecycle state of a work item.
type Status string

const (
	// StatusPending means the item exists but has not been released to
	// workers yet.
	StatusPending Status = "pending"
	// StatusQueued means the item is eligible for claiming.
	StatusQueued Status = "queued"
	// StatusProcessing means a worker holds a lease on the item.
	StatusProcessing Status = "processing"
	// StatusCompleted means the item finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the item failed terminally and was not re-queued.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// WorkItem is one unit of document-processing work flowing through the
// queue. The lease columns (LeaseOwner, LeaseUntil) are only meaningful
// while Status is processing; everywhere else they are cleared.
type WorkItem struct {
	docqueue.Entity

	ID        id.ItemID `json:"id"`
	Workspace string    `json:"workspace"`
	Kind      string    `json:"kind"`
	Payload   []byte    `json:"payload,omitempty"`
	Status    Status    `json:"status"`

	// LeaseOwner is the opaque bearer token of the worker that claimed
	// the item. Ownership is proven by presenting the same token; there
	// is no worker registry to check it against.
	LeaseOwner string     `json:"lease_owner,omitempty"`
	LeaseUntil *time.Time `json:"lease_until,omitempty"`

	AttemptCount    int        `json:"attempt_count"`
	LastWorker      string     `json:"last_worker,omitempty"`
	LastErrorReason string     `json:"last_error_reason,omitempty"`
	LastAttemptAt   *time.Time `json:"last_attempt_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`

	// ActiveExecutionID points at the execution whose output is the
	// item's current result. Nil until the first successful attempt is
	// promoted.
	ActiveExecutionID id.ExecutionID `json:"active_execution_id,omitempty"`
}

// Leased reports whether the item currently carries a lease.
func (w *WorkItem) Leased() bool {
	return w.LeaseOwner != "" && w.LeaseUntil != nil
}

// LeaseExpired reports whether the item's lease has lapsed at the given
// instant. An item with no lease is not expired.
func (w *WorkItem) LeaseExpired(now time.Time) bool {
	return w.LeaseUntil != nil && w.LeaseUntil.Before(now)
}

// Terminal reports whether the item is in a terminal status.
func (w *WorkItem) Terminal() bool {
	return w.Status == StatusCompleted || w.Status == StatusFailed
}

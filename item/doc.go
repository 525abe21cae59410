// Package item defines the work item entity, its status machine, and the
// store interface.
//
// # Work Item Entity
//
// A [WorkItem] represents one unit of document-processing work. It embeds
// [docqueue.Entity] for timestamps, carries an opaque payload, and
// progresses through a status machine:
//
//	pending → queued → processing → completed
//	pending → queued → processing → pending (fail with retry)
//	pending → queued → processing → failed  (fail terminal)
//	queued  → pending (drain)
//
// A processing item with an expired lease is eligible for claiming again
// without any intermediate transition: lease expiry is the only crash
// recovery mechanism.
//
// Fields of note:
//   - Workspace: the partition every queue operation is scoped to
//   - LeaseOwner / LeaseUntil: the claim lease, set only while processing
//   - AttemptCount: incremented on every claim, including re-claims of
//     expired leases; there is no retry ceiling
//   - ActiveExecutionID: the execution whose output is the current result
//
// # Store
//
// [Store] is the persistence contract. Backends live under store/ and are
// interchangeable; the claim operation must be a single atomic statement
// on every backend.
package item

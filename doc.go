// Package docqueue provides a lease-based work-queue coordinator for
// document-processing pipelines, built on a shared relational store.
//
// Docqueue is designed as a library, not a service. Import it, configure a
// store, register processors for your item kinds, and run a worker. All
// coordination happens through the store: there is no broker, no leader, and
// no worker-to-worker communication. Crash recovery is lease expiry and
// nothing else.
//
// # Quick Start
//
//	svc, err := docqueue.New(
//	    docqueue.WithStore(pgStore),
//	    docqueue.WithConcurrency(8),
//	    docqueue.WithWorkspaces("tenant-a"),
//	)
//
// # Architecture
//
// Two tables carry all state: work items (the queue, including the lease
// columns) and executions (an append-only attempt ledger). Workers claim
// items with a single atomic UPDATE, prove liveness by extending their
// lease, and record every processing attempt as an execution row that is
// never updated destructively.
//
// All entity IDs use TypeID, type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package docqueue

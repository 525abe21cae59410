// Package store defines the aggregate persistence interface. The item
// queue and the execution ledger each define their own store interface;
// the composite Store composes both. Backends: Postgres (pgx), Bun, and
// Memory.
package store

import (
	"context"

	"github.com/ook-lab/docqueue/execution"
	"github.com/ook-lab/docqueue/item"
)

// Store is the aggregate persistence interface.
// A single backend (postgres, bun, memory) implements both subsystem
// stores so that the claim, lease, and ledger operations observe one
// consistent database.
type Store interface {
	item.Store
	execution.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

package docqueue

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("docqueue: no store configured")
	ErrStoreClosed     = errors.New("docqueue: store closed")
	ErrMigrationFailed = errors.New("docqueue: migration failed")

	// Not found errors.
	ErrItemNotFound      = errors.New("docqueue: work item not found")
	ErrExecutionNotFound = errors.New("docqueue: execution not found")

	// Conflict errors.
	ErrItemAlreadyExists      = errors.New("docqueue: work item already exists")
	ErrExecutionAlreadyExists = errors.New("docqueue: execution already exists")

	// Caller-misuse errors. An empty owner token would turn every
	// ownership check into a false positive, so it is rejected loudly
	// instead of treated as "no longer owner".
	ErrMissingOwnerToken = errors.New("docqueue: owner token must not be empty")
	ErrMissingWorkspace  = errors.New("docqueue: workspace must not be empty")
	ErrMissingKind       = errors.New("docqueue: item kind must not be empty")
	ErrInvalidLimit      = errors.New("docqueue: enqueue limit must be positive")

	// Ledger errors.
	ErrExecutionTerminal   = errors.New("docqueue: execution already terminal")
	ErrNotTerminalStatus   = errors.New("docqueue: completion requires a terminal status")
	ErrPromoteNotSucceeded = errors.New("docqueue: cannot promote a non-succeeded execution")
	ErrPromoteWrongItem    = errors.New("docqueue: execution belongs to a different work item")
)

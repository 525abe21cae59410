package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ook-lab/docqueue"
	"github.com/ook-lab/docqueue/execution"
	"github.com/ook-lab/docqueue/id"
	"github.com/ook-lab/docqueue/item"
	"github.com/ook-lab/docqueue/store"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithDefaultLease sets the lease duration used when Claim is called
// with a non-positive duration.
func WithDefaultLease(d time.Duration) Option {
	return func(c *Coordinator) { c.defaultLease = d }
}

// Coordinator is the service layer over the store: it validates inputs,
// stamps entities, links retry lineage, and logs. All queue semantics
// (atomic claim, owner checks, promote guard) live in the store; the
// coordinator never works around them.
type Coordinator struct {
	store        store.Store
	logger       *slog.Logger
	defaultLease time.Duration
}

// New creates a Coordinator over the given store.
func New(s store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        s,
		logger:       slog.Default(),
		defaultLease: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ──────────────────────────────────────────────────
// Queue operations
// ──────────────────────────────────────────────────

// CreateItem registers a new work item in pending status.
func (c *Coordinator) CreateItem(ctx context.Context, workspace, kind string, payload []byte) (*item.WorkItem, error) {
	if workspace == "" {
		return nil, docqueue.ErrMissingWorkspace
	}
	if kind == "" {
		return nil, docqueue.ErrMissingKind
	}

	w := &item.WorkItem{
		Entity:    docqueue.NewEntity(),
		ID:        id.NewItemID(),
		Workspace: workspace,
		Kind:      kind,
		Payload:   payload,
		Status:    item.StatusPending,
	}
	if err := c.store.CreateItem(ctx, w); err != nil {
		return nil, err
	}

	c.logger.Debug("work item created",
		slog.String("item_id", w.ID.String()),
		slog.String("workspace", workspace),
		slog.String("kind", kind),
	)
	return w, nil
}

// Item retrieves a work item by ID.
func (c *Coordinator) Item(ctx context.Context, itemID id.ItemID) (*item.WorkItem, error) {
	return c.store.GetItem(ctx, itemID)
}

// Enqueue releases pending items in the workspace for claiming. With no
// explicit ids, up to limit oldest pending items are released and the
// limit must be positive; with ids, only those items are considered and
// non-pending or foreign ids are skipped. Returns the IDs actually
// released.
func (c *Coordinator) Enqueue(ctx context.Context, workspace string, limit int, ids ...id.ItemID) ([]id.ItemID, error) {
	if workspace == "" {
		return nil, docqueue.ErrMissingWorkspace
	}
	if len(ids) == 0 && limit <= 0 {
		return nil, docqueue.ErrInvalidLimit
	}

	moved, err := c.store.EnqueueItems(ctx, workspace, limit, ids)
	if err != nil {
		return nil, err
	}
	if len(moved) > 0 {
		c.logger.Info("items enqueued",
			slog.String("workspace", workspace),
			slog.Int("count", len(moved)),
		)
	}
	return moved, nil
}

// Claim atomically claims the oldest eligible item in the workspace for
// the given owner token. A non-positive lease falls back to the default.
// Returns (nil, nil) when no work is available.
func (c *Coordinator) Claim(ctx context.Context, workspace, owner string, lease time.Duration) (*item.WorkItem, error) {
	if workspace == "" {
		return nil, docqueue.ErrMissingWorkspace
	}
	if owner == "" {
		return nil, docqueue.ErrMissingOwnerToken
	}
	if lease <= 0 {
		lease = c.defaultLease
	}

	w, err := c.store.ClaimItem(ctx, workspace, owner, lease)
	if err != nil {
		return nil, err
	}
	if w != nil {
		c.logger.Debug("item claimed",
			slog.String("item_id", w.ID.String()),
			slog.String("workspace", workspace),
			slog.String("owner", owner),
			slog.Int("attempt", w.AttemptCount),
		)
	}
	return w, nil
}

// Heartbeat extends the lease on a claimed item. A false return means
// the owner no longer holds the lease and must stop reporting results.
func (c *Coordinator) Heartbeat(ctx context.Context, itemID id.ItemID, owner string, lease time.Duration) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}
	if lease <= 0 {
		lease = c.defaultLease
	}

	ok, err := c.store.HeartbeatItem(ctx, itemID, owner, lease)
	if err != nil {
		return false, err
	}
	if !ok {
		c.logger.Warn("heartbeat lost ownership",
			slog.String("item_id", itemID.String()),
			slog.String("owner", owner),
		)
	}
	return ok, nil
}

// Acknowledge marks a claimed item completed. A false return means the
// lease was lost; the item is untouched and the outcome discarded.
func (c *Coordinator) Acknowledge(ctx context.Context, itemID id.ItemID, owner string) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	ok, err := c.store.AcknowledgeItem(ctx, itemID, owner)
	if err != nil {
		return false, err
	}
	if ok {
		c.logger.Info("item completed",
			slog.String("item_id", itemID.String()),
			slog.String("owner", owner),
		)
	} else {
		c.logger.Warn("acknowledge lost ownership",
			slog.String("item_id", itemID.String()),
			slog.String("owner", owner),
		)
	}
	return ok, nil
}

// Fail records a failed attempt. With retry the item returns to pending;
// otherwise it becomes terminally failed. Either way nothing is deleted.
func (c *Coordinator) Fail(ctx context.Context, itemID id.ItemID, owner, reason string, retry bool) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	ok, err := c.store.FailItem(ctx, itemID, owner, reason, retry)
	if err != nil {
		return false, err
	}
	if ok {
		c.logger.Info("item failed",
			slog.String("item_id", itemID.String()),
			slog.String("owner", owner),
			slog.String("reason", reason),
			slog.Bool("retry", retry),
		)
	} else {
		c.logger.Warn("fail lost ownership",
			slog.String("item_id", itemID.String()),
			slog.String("owner", owner),
		)
	}
	return ok, nil
}

// Drain moves all queued items in the workspace back to pending. Items
// already processing keep their leases and finish normally.
func (c *Coordinator) Drain(ctx context.Context, workspace string) (int64, error) {
	if workspace == "" {
		return 0, docqueue.ErrMissingWorkspace
	}

	n, err := c.store.DrainWorkspace(ctx, workspace)
	if err != nil {
		return 0, err
	}
	c.logger.Info("workspace drained",
		slog.String("workspace", workspace),
		slog.Int64("moved", n),
	)
	return n, nil
}

// Stats returns per-status item counts for the workspace.
func (c *Coordinator) Stats(ctx context.Context, workspace string) (item.StatusCounts, error) {
	if workspace == "" {
		return nil, docqueue.ErrMissingWorkspace
	}
	return c.store.CountItemsByStatus(ctx, workspace)
}

// ──────────────────────────────────────────────────
// Execution ledger operations
// ──────────────────────────────────────────────────

// BeginOptions carries the provenance recorded on a new execution.
type BeginOptions struct {
	InputHash    string
	ModelVersion string
	PromptHash   string
}

// BeginExecution appends a running execution for the item. If the item
// already has executions the new one links to the most recent via
// RetryOf, so every re-attempt extends the chain.
func (c *Coordinator) BeginExecution(ctx context.Context, itemID id.ItemID, opts BeginOptions) (*execution.Execution, error) {
	if _, err := c.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}

	prev, err := c.store.LatestExecution(ctx, itemID)
	if err != nil {
		return nil, err
	}

	e := &execution.Execution{
		ID:           id.NewExecutionID(),
		ItemID:       itemID,
		Status:       execution.StatusRunning,
		InputHash:    opts.InputHash,
		ModelVersion: opts.ModelVersion,
		PromptHash:   opts.PromptHash,
		CreatedAt:    time.Now().UTC(),
	}
	if prev != nil {
		e.RetryOf = prev.ID
	}

	if err := c.store.CreateExecution(ctx, e); err != nil {
		return nil, err
	}

	c.logger.Debug("execution started",
		slog.String("execution_id", e.ID.String()),
		slog.String("item_id", itemID.String()),
		slog.String("retry_of", e.RetryOf.String()),
	)
	return e, nil
}

// CompleteExecution applies a terminal result to an execution. The
// ledger is append-only: completing twice fails and changes nothing.
func (c *Coordinator) CompleteExecution(ctx context.Context, execID id.ExecutionID, res execution.Result) error {
	if !res.Status.Terminal() {
		return docqueue.ErrNotTerminalStatus
	}
	return c.store.CompleteExecution(ctx, execID, res)
}

// Promote points the item's active execution at the given execution.
// Only a succeeded execution of the same item can be promoted.
func (c *Coordinator) Promote(ctx context.Context, itemID id.ItemID, execID id.ExecutionID) error {
	if err := c.store.PromoteExecution(ctx, itemID, execID); err != nil {
		return err
	}
	c.logger.Info("execution promoted",
		slog.String("item_id", itemID.String()),
		slog.String("execution_id", execID.String()),
	)
	return nil
}

// Executions returns the item's full attempt history, oldest first.
func (c *Coordinator) Executions(ctx context.Context, itemID id.ItemID) ([]*execution.Execution, error) {
	return c.store.ListExecutions(ctx, itemID)
}

// Lineage walks the RetryOf chain from the given execution back to the
// first attempt and returns it oldest first, ending at the given
// execution.
func (c *Coordinator) Lineage(ctx context.Context, execID id.ExecutionID) ([]*execution.Execution, error) {
	var chain []*execution.Execution
	seen := make(map[string]struct{})

	cur := execID
	for !cur.IsNil() {
		if _, dup := seen[cur.String()]; dup {
			break
		}
		seen[cur.String()] = struct{}{}

		e, err := c.store.GetExecution(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, e)
		cur = e.RetryOf
	}

	// Reverse into chronological order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

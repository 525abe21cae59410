package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ook-lab/docqueue"
	"github.com/ook-lab/docqueue/execution"
	"github.com/ook-lab/docqueue/id"
	"github.com/ook-lab/docqueue/item"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ item.Store      = (*Store)(nil)
	_ execution.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	items      map[string]*item.WorkItem
	executions map[string]*execution.Execution

	// now is the clock; swapped in tests to simulate lease expiry.
	now func() time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		items:      make(map[string]*item.WorkItem),
		executions: make(map[string]*execution.Execution),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Item Store
// ──────────────────────────────────────────────────

// CreateItem persists a new work item in pending status.
func (m *Store) CreateItem(_ context.Context, w *item.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	if _, exists := m.items[key]; exists {
		return docqueue.ErrItemAlreadyExists
	}
	cp := *w
	if cp.Status == "" {
		cp.Status = item.StatusPending
	}
	m.items[key] = &cp
	return nil
}

// GetItem retrieves a work item by ID.
func (m *Store) GetItem(_ context.Context, itemID id.ItemID) (*item.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.items[itemID.String()]
	if !ok {
		return nil, docqueue.ErrItemNotFound
	}
	cp := *w
	return &cp, nil
}

// EnqueueItems transitions pending items in the workspace to queued.
func (m *Store) EnqueueItems(_ context.Context, workspace string, limit int, ids []id.ItemID) ([]id.ItemID, error) {
	if len(ids) == 0 && limit <= 0 {
		return nil, docqueue.ErrInvalidLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if len(ids) > 0 {
		var moved []id.ItemID
		for _, itemID := range ids {
			w, ok := m.items[itemID.String()]
			if !ok || w.Workspace != workspace || w.Status != item.StatusPending {
				continue
			}
			w.Status = item.StatusQueued
			w.UpdatedAt = now
			moved = append(moved, w.ID)
		}
		return moved, nil
	}

	candidates := make([]*item.WorkItem, 0, len(m.items))
	for _, w := range m.items {
		if w.Workspace == workspace && w.Status == item.StatusPending {
			candidates = append(candidates, w)
		}
	}

	// Oldest first, so the release order matches the claim order.
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	moved := make([]id.ItemID, len(candidates))
	for i, w := range candidates {
		w.Status = item.StatusQueued
		w.UpdatedAt = now
		moved[i] = w.ID
	}
	return moved, nil
}

// ClaimItem atomically claims the oldest eligible item in the workspace.
// Eligible means queued, or processing with an expired lease. Returns
// (nil, nil) when nothing is eligible.
func (m *Store) ClaimItem(_ context.Context, workspace, owner string, lease time.Duration) (*item.WorkItem, error) {
	if owner == "" {
		return nil, docqueue.ErrMissingOwnerToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	var oldest *item.WorkItem
	for _, w := range m.items {
		if w.Workspace != workspace {
			continue
		}
		eligible := w.Status == item.StatusQueued ||
			(w.Status == item.StatusProcessing && w.LeaseExpired(now))
		if !eligible {
			continue
		}
		if oldest == nil || w.CreatedAt.Before(oldest.CreatedAt) {
			oldest = w
		}
	}
	if oldest == nil {
		return nil, nil
	}

	until := now.Add(lease)
	oldest.Status = item.StatusProcessing
	oldest.LeaseOwner = owner
	oldest.LeaseUntil = &until
	oldest.AttemptCount++
	oldest.LastWorker = owner
	oldest.LastAttemptAt = &now
	oldest.UpdatedAt = now

	// Return a copy so callers can mutate without racing with the store.
	cp := *oldest
	return &cp, nil
}

// HeartbeatItem extends the lease if the owner still holds it.
func (m *Store) HeartbeatItem(_ context.Context, itemID id.ItemID, owner string, lease time.Duration) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.items[itemID.String()]
	if !ok {
		return false, docqueue.ErrItemNotFound
	}
	if w.Status != item.StatusProcessing || w.LeaseOwner != owner {
		return false, nil
	}

	now := m.now()
	until := now.Add(lease)
	w.LeaseUntil = &until
	w.UpdatedAt = now
	return true, nil
}

// AcknowledgeItem completes an item if the owner still holds the lease.
func (m *Store) AcknowledgeItem(_ context.Context, itemID id.ItemID, owner string) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.items[itemID.String()]
	if !ok {
		return false, docqueue.ErrItemNotFound
	}
	if w.Status != item.StatusProcessing || w.LeaseOwner != owner {
		return false, nil
	}

	now := m.now()
	w.Status = item.StatusCompleted
	w.LeaseOwner = ""
	w.LeaseUntil = nil
	w.CompletedAt = &now
	w.UpdatedAt = now
	return true, nil
}

// FailItem records a failed attempt if the owner still holds the lease.
func (m *Store) FailItem(_ context.Context, itemID id.ItemID, owner, reason string, retry bool) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.items[itemID.String()]
	if !ok {
		return false, docqueue.ErrItemNotFound
	}
	if w.Status != item.StatusProcessing || w.LeaseOwner != owner {
		return false, nil
	}

	now := m.now()
	if retry {
		w.Status = item.StatusPending
	} else {
		w.Status = item.StatusFailed
		w.FailedAt = &now
	}
	w.LeaseOwner = ""
	w.LeaseUntil = nil
	w.LastErrorReason = reason
	w.LastAttemptAt = &now
	w.UpdatedAt = now
	return true, nil
}

// DrainWorkspace moves all queued items in the workspace back to pending.
func (m *Store) DrainWorkspace(_ context.Context, workspace string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var count int64
	for _, w := range m.items {
		if w.Workspace == workspace && w.Status == item.StatusQueued {
			w.Status = item.StatusPending
			w.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

// ListItemsByStatus returns items matching the given status.
func (m *Store) ListItemsByStatus(_ context.Context, status item.Status, opts item.ListOpts) ([]*item.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*item.WorkItem, 0, len(m.items))
	for _, w := range m.items {
		if w.Status != status {
			continue
		}
		if opts.Workspace != "" && w.Workspace != opts.Workspace {
			continue
		}
		cp := *w
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountItemsByStatus returns per-status counts for the workspace.
func (m *Store) CountItemsByStatus(_ context.Context, workspace string) (item.StatusCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(item.StatusCounts)
	for _, w := range m.items {
		if w.Workspace != workspace {
			continue
		}
		counts[w.Status]++
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Execution Store
// ──────────────────────────────────────────────────

// CreateExecution appends a new execution row.
func (m *Store) CreateExecution(_ context.Context, e *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, exists := m.executions[key]; exists {
		return docqueue.ErrExecutionAlreadyExists
	}
	if _, ok := m.items[e.ItemID.String()]; !ok {
		return docqueue.ErrItemNotFound
	}
	cp := *e
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.executions[key] = &cp
	return nil
}

// GetExecution retrieves an execution by ID.
func (m *Store) GetExecution(_ context.Context, execID id.ExecutionID) (*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.executions[execID.String()]
	if !ok {
		return nil, docqueue.ErrExecutionNotFound
	}
	cp := *e
	return &cp, nil
}

// CompleteExecution applies a terminal result to a non-terminal execution.
func (m *Store) CompleteExecution(_ context.Context, execID id.ExecutionID, res execution.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.executions[execID.String()]
	if !ok {
		return docqueue.ErrExecutionNotFound
	}
	if e.Status.Terminal() {
		return docqueue.ErrExecutionTerminal
	}
	if !res.Status.Terminal() {
		return docqueue.ErrNotTerminalStatus
	}

	now := m.now()
	e.Status = res.Status
	e.ResultData = res.ResultData
	e.ErrorCode = res.ErrorCode
	e.ErrorMessage = res.ErrorMessage
	e.DurationMS = res.DurationMS
	e.CompletedAt = &now
	return nil
}

// PromoteExecution points the item's active execution at the given
// execution, enforcing the succeeded-and-same-item guard.
func (m *Store) PromoteExecution(_ context.Context, itemID id.ItemID, execID id.ExecutionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.executions[execID.String()]
	if !ok {
		return docqueue.ErrExecutionNotFound
	}
	if e.ItemID.String() != itemID.String() {
		return docqueue.ErrPromoteWrongItem
	}
	if e.Status != execution.StatusSucceeded {
		return docqueue.ErrPromoteNotSucceeded
	}

	w, ok := m.items[itemID.String()]
	if !ok {
		return docqueue.ErrItemNotFound
	}
	w.ActiveExecutionID = execID
	w.UpdatedAt = m.now()
	return nil
}

// ListExecutions returns all executions for an item, oldest first.
func (m *Store) ListExecutions(_ context.Context, itemID id.ItemID) ([]*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*execution.Execution
	for _, e := range m.executions {
		if e.ItemID.String() != itemID.String() {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// LatestExecution returns the most recent execution for an item.
func (m *Store) LatestExecution(_ context.Context, itemID id.ItemID) (*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *execution.Execution
	for _, e := range m.executions {
		if e.ItemID.String() != itemID.String() {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

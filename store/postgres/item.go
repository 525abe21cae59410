package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ook-lab/docqueue"
	"github.com/ook-lab/docqueue/id"
	"github.com/ook-lab/docqueue/item"
)

const itemColumns = `
	id, workspace, kind, payload, status,
	lease_owner, lease_until,
	attempt_count, last_worker, last_error_reason,
	last_attempt_at, completed_at, failed_at,
	active_execution_id, created_at, updated_at`

// CreateItem persists a new work item in pending status.
func (s *Store) CreateItem(ctx context.Context, w *item.WorkItem) error {
	status := w.Status
	if status == "" {
		status = item.StatusPending
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO docqueue_items (
			id, workspace, kind, payload, status,
			lease_owner, lease_until,
			attempt_count, last_worker, last_error_reason,
			last_attempt_at, completed_at, failed_at,
			active_execution_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15, $16
		)`,
		w.ID.String(), w.Workspace, w.Kind, w.Payload, string(status),
		nullIfEmpty(w.LeaseOwner), w.LeaseUntil,
		w.AttemptCount, w.LastWorker, w.LastErrorReason,
		w.LastAttemptAt, w.CompletedAt, w.FailedAt,
		w.ActiveExecutionID, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return docqueue.ErrItemAlreadyExists
		}
		return fmt.Errorf("docqueue/postgres: create item: %w", err)
	}
	return nil
}

// GetItem retrieves a work item by ID.
func (s *Store) GetItem(ctx context.Context, itemID id.ItemID) (*item.WorkItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM docqueue_items WHERE id = $1`,
		itemID.String(),
	)

	w, err := scanItem(row)
	if err != nil {
		if isNoRows(err) {
			return nil, docqueue.ErrItemNotFound
		}
		return nil, fmt.Errorf("docqueue/postgres: get item: %w", err)
	}
	return w, nil
}

// EnqueueItems transitions pending items in the workspace to queued.
// SKIP LOCKED keeps concurrent sweepers from double-selecting rows.
func (s *Store) EnqueueItems(ctx context.Context, workspace string, limit int, ids []id.ItemID) ([]id.ItemID, error) {
	if len(ids) == 0 && limit <= 0 {
		return nil, docqueue.ErrInvalidLimit
	}

	var (
		rows pgx.Rows
		err  error
	)

	if len(ids) > 0 {
		idStrs := make([]string, len(ids))
		for i, itemID := range ids {
			idStrs[i] = itemID.String()
		}
		rows, err = s.pool.Query(ctx, `
			UPDATE docqueue_items
			SET status = 'queued', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM docqueue_items
				WHERE workspace = $1
				  AND status = 'pending'
				  AND id = ANY($2)
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id`,
			workspace, idStrs,
		)
	} else {
		rows, err = s.pool.Query(ctx, `
			UPDATE docqueue_items
			SET status = 'queued', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM docqueue_items
				WHERE workspace = $1
				  AND status = 'pending'
				ORDER BY created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING id`,
			workspace, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("docqueue/postgres: enqueue items: %w", err)
	}
	defer rows.Close()

	var moved []id.ItemID
	for rows.Next() {
		var idStr string
		if scanErr := rows.Scan(&idStr); scanErr != nil {
			return nil, fmt.Errorf("docqueue/postgres: scan enqueued id: %w", scanErr)
		}
		parsed, parseErr := id.ParseItemID(idStr)
		if parseErr != nil {
			return nil, fmt.Errorf("docqueue/postgres: parse item id %q: %w", idStr, parseErr)
		}
		moved = append(moved, parsed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docqueue/postgres: iterate enqueued ids: %w", err)
	}
	return moved, nil
}

// ClaimItem atomically claims the oldest eligible item in the workspace.
// The whole claim is a single UPDATE: row selection (queued, or
// processing with an expired lease), the status flip, the lease install,
// and the attempt increment commit together or not at all. FOR UPDATE
// SKIP LOCKED makes concurrent claimers pick disjoint rows instead of
// queueing on the same one.
func (s *Store) ClaimItem(ctx context.Context, workspace, owner string, lease time.Duration) (*item.WorkItem, error) {
	if owner == "" {
		return nil, docqueue.ErrMissingOwnerToken
	}

	row := s.pool.QueryRow(ctx, `
		WITH eligible AS (
			SELECT id FROM docqueue_items
			WHERE workspace = $1
			  AND (
				status = 'queued'
				OR (status = 'processing' AND lease_until < NOW())
			  )
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE docqueue_items i
		SET status = 'processing',
		    lease_owner = $2,
		    lease_until = NOW() + make_interval(secs => $3),
		    attempt_count = attempt_count + 1,
		    last_worker = $2,
		    last_attempt_at = NOW(),
		    updated_at = NOW()
		FROM eligible
		WHERE i.id = eligible.id
		RETURNING `+prefixColumns("i")+``,
		workspace, owner, lease.Seconds(),
	)

	w, err := scanItem(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("docqueue/postgres: claim item: %w", err)
	}
	return w, nil
}

// HeartbeatItem extends the lease on a processing item. The owner check
// is part of the WHERE clause; zero rows affected means the lease was
// lost, which is reported as false rather than an error.
func (s *Store) HeartbeatItem(ctx context.Context, itemID id.ItemID, owner string, lease time.Duration) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE docqueue_items
		SET lease_until = NOW() + make_interval(secs => $3),
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'processing'
		  AND lease_owner = $2`,
		itemID.String(), owner, lease.Seconds(),
	)
	if err != nil {
		return false, fmt.Errorf("docqueue/postgres: heartbeat item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AcknowledgeItem marks a processing item completed and clears the lease,
// if the owner still holds it.
func (s *Store) AcknowledgeItem(ctx context.Context, itemID id.ItemID, owner string) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE docqueue_items
		SET status = 'completed',
		    lease_owner = NULL,
		    lease_until = NULL,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'processing'
		  AND lease_owner = $2`,
		itemID.String(), owner,
	)
	if err != nil {
		return false, fmt.Errorf("docqueue/postgres: acknowledge item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailItem records a failed attempt, if the owner still holds the lease.
// With retry the item returns to pending; otherwise it is terminally
// failed. The row is never deleted.
func (s *Store) FailItem(ctx context.Context, itemID id.ItemID, owner, reason string, retry bool) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE docqueue_items
		SET status = CASE WHEN $4 THEN 'pending' ELSE 'failed' END,
		    failed_at = CASE WHEN $4 THEN failed_at ELSE NOW() END,
		    lease_owner = NULL,
		    lease_until = NULL,
		    last_error_reason = $3,
		    last_attempt_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'processing'
		  AND lease_owner = $2`,
		itemID.String(), owner, reason, retry,
	)
	if err != nil {
		return false, fmt.Errorf("docqueue/postgres: fail item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DrainWorkspace moves all queued items in the workspace back to pending.
func (s *Store) DrainWorkspace(ctx context.Context, workspace string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE docqueue_items
		SET status = 'pending', updated_at = NOW()
		WHERE workspace = $1
		  AND status = 'queued'`,
		workspace,
	)
	if err != nil {
		return 0, fmt.Errorf("docqueue/postgres: drain workspace: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListItemsByStatus returns items matching the given status.
func (s *Store) ListItemsByStatus(ctx context.Context, status item.Status, opts item.ListOpts) ([]*item.WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM docqueue_items WHERE status = $1`
	args := []interface{}{string(status)}
	argIdx := 2

	if opts.Workspace != "" {
		query += fmt.Sprintf(" AND workspace = $%d", argIdx)
		args = append(args, opts.Workspace)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("docqueue/postgres: list items by status: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// CountItemsByStatus returns per-status counts for the workspace.
func (s *Store) CountItemsByStatus(ctx context.Context, workspace string) (item.StatusCounts, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM docqueue_items
		WHERE workspace = $1
		GROUP BY status`,
		workspace,
	)
	if err != nil {
		return nil, fmt.Errorf("docqueue/postgres: count items by status: %w", err)
	}
	defer rows.Close()

	counts := make(item.StatusCounts)
	for rows.Next() {
		var (
			statusStr string
			n         int64
		)
		if scanErr := rows.Scan(&statusStr, &n); scanErr != nil {
			return nil, fmt.Errorf("docqueue/postgres: scan status count: %w", scanErr)
		}
		counts[item.Status(statusStr)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docqueue/postgres: iterate status counts: %w", err)
	}
	return counts, nil
}

// scanItem scans a single work item row.
func scanItem(row pgx.Row) (*item.WorkItem, error) {
	var (
		w          item.WorkItem
		idStr      string
		statusStr  string
		leaseOwner *string
	)
	err := row.Scan(
		&idStr, &w.Workspace, &w.Kind, &w.Payload, &statusStr,
		&leaseOwner, &w.LeaseUntil,
		&w.AttemptCount, &w.LastWorker, &w.LastErrorReason,
		&w.LastAttemptAt, &w.CompletedAt, &w.FailedAt,
		&w.ActiveExecutionID, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Status = item.Status(statusStr)
	if leaseOwner != nil {
		w.LeaseOwner = *leaseOwner
	}

	parsedID, parseErr := id.ParseItemID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("docqueue/postgres: parse item id %q: %w", idStr, parseErr)
	}
	w.ID = parsedID

	return &w, nil
}

// collectItems collects all work items from query rows.
func collectItems(rows pgx.Rows) ([]*item.WorkItem, error) {
	var items []*item.WorkItem
	for rows.Next() {
		w, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("docqueue/postgres: scan item row: %w", err)
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docqueue/postgres: iterate item rows: %w", err)
	}
	return items, nil
}

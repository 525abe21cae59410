package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/ook-lab/docqueue"
	"github.com/ook-lab/docqueue/id"
	"github.com/ook-lab/docqueue/item"
)

// ── Work item operations ──────────────────────────────────────────

func (s *Store) CreateItem(ctx context.Context, w *item.WorkItem) error {
	model := toItemModel(w)

	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return docqueue.ErrItemAlreadyExists
		}
		return fmt.Errorf("docqueue/bun: create item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, itemID id.ItemID) (*item.WorkItem, error) {
	model := new(itemModel)

	err := s.db.NewSelect().
		Model(model).
		Where("id = ?", itemID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, docqueue.ErrItemNotFound
		}
		return nil, fmt.Errorf("docqueue/bun: get item: %w", err)
	}

	return fromItemModel(model)
}

func (s *Store) EnqueueItems(ctx context.Context, workspace string, limit int, ids []id.ItemID) ([]id.ItemID, error) {
	if len(ids) == 0 && limit <= 0 {
		return nil, docqueue.ErrInvalidLimit
	}

	var enqueued []string
	var err error

	if len(ids) > 0 {
		idStrs := make([]string, len(ids))
		for i, itemID := range ids {
			idStrs[i] = itemID.String()
		}
		err = s.db.NewRaw(`
			UPDATE docqueue_items SET status = 'queued', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM docqueue_items
				WHERE workspace = ? AND status = 'pending' AND id = ANY(?)
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id
		`, workspace, pgdialect.Array(idStrs)).Scan(ctx, &enqueued)
	} else {
		err = s.db.NewRaw(`
			UPDATE docqueue_items SET status = 'queued', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM docqueue_items
				WHERE workspace = ? AND status = 'pending'
				ORDER BY created_at ASC
				LIMIT ?
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id
		`, workspace, limit).Scan(ctx, &enqueued)
	}
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("docqueue/bun: enqueue items: %w", err)
	}

	out := make([]id.ItemID, 0, len(enqueued))
	for _, raw := range enqueued {
		parsed, parseErr := id.ParseItemID(raw)
		if parseErr != nil {
			return nil, fmt.Errorf("docqueue/bun: parse item id %q: %w", raw, parseErr)
		}
		out = append(out, parsed)
	}
	return out, nil
}

func (s *Store) ClaimItem(ctx context.Context, workspace, owner string, lease time.Duration) (*item.WorkItem, error) {
	if owner == "" {
		return nil, docqueue.ErrMissingOwnerToken
	}

	model := new(itemModel)

	// Single atomic statement: pick the oldest eligible row without
	// blocking on rows other claimers hold, then take the lease.
	err := s.db.NewRaw(`
		WITH eligible AS (
			SELECT id FROM docqueue_items
			WHERE workspace = ?
			  AND (status = 'queued' OR (status = 'processing' AND lease_until < NOW()))
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE docqueue_items i SET
			status = 'processing',
			lease_owner = ?,
			lease_until = NOW() + make_interval(secs => ?),
			attempt_count = i.attempt_count + 1,
			last_worker = ?,
			last_attempt_at = NOW(),
			updated_at = NOW()
		FROM eligible
		WHERE i.id = eligible.id
		RETURNING i.*
	`, workspace, owner, lease.Seconds(), owner).Scan(ctx, model)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("docqueue/bun: claim item: %w", err)
	}

	return fromItemModel(model)
}

func (s *Store) HeartbeatItem(ctx context.Context, itemID id.ItemID, owner string, lease time.Duration) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	res, err := s.db.NewRaw(`
		UPDATE docqueue_items SET
			lease_until = NOW() + make_interval(secs => ?),
			updated_at = NOW()
		WHERE id = ? AND status = 'processing' AND lease_owner = ?
	`, lease.Seconds(), itemID.String(), owner).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("docqueue/bun: heartbeat item: %w", err)
	}

	affected, _ := res.RowsAffected() //nolint:errcheck // pgdriver supports RowsAffected
	return affected > 0, nil
}

func (s *Store) AcknowledgeItem(ctx context.Context, itemID id.ItemID, owner string) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	res, err := s.db.NewUpdate().
		Model((*itemModel)(nil)).
		Set("status = 'completed'").
		Set("lease_owner = NULL").
		Set("lease_until = NULL").
		Set("completed_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", itemID.String()).
		Where("status = 'processing'").
		Where("lease_owner = ?", owner).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("docqueue/bun: acknowledge item: %w", err)
	}

	affected, _ := res.RowsAffected() //nolint:errcheck // pgdriver supports RowsAffected
	return affected > 0, nil
}

func (s *Store) FailItem(ctx context.Context, itemID id.ItemID, owner, reason string, retry bool) (bool, error) {
	if owner == "" {
		return false, docqueue.ErrMissingOwnerToken
	}

	res, err := s.db.NewRaw(`
		UPDATE docqueue_items SET
			status = CASE WHEN ? THEN 'pending' ELSE 'failed' END,
			lease_owner = NULL,
			lease_until = NULL,
			last_error_reason = ?,
			failed_at = CASE WHEN ? THEN failed_at ELSE NOW() END,
			updated_at = NOW()
		WHERE id = ? AND status = 'processing' AND lease_owner = ?
	`, retry, reason, retry, itemID.String(), owner).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("docqueue/bun: fail item: %w", err)
	}

	affected, _ := res.RowsAffected() //nolint:errcheck // pgdriver supports RowsAffected
	return affected > 0, nil
}

func (s *Store) DrainWorkspace(ctx context.Context, workspace string) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*itemModel)(nil)).
		Set("status = 'pending'").
		Set("updated_at = NOW()").
		Where("workspace = ?", workspace).
		Where("status = 'queued'").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("docqueue/bun: drain workspace: %w", err)
	}

	affected, _ := res.RowsAffected() //nolint:errcheck // pgdriver supports RowsAffected
	return affected, nil
}

func (s *Store) ListItemsByStatus(ctx context.Context, status item.Status, opts item.ListOpts) ([]*item.WorkItem, error) {
	var models []itemModel

	q := s.db.NewSelect().
		Model(&models).
		Where("status = ?", string(status)).
		OrderExpr("created_at ASC")

	if opts.Workspace != "" {
		q = q.Where("workspace = ?", opts.Workspace)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("docqueue/bun: list items: %w", err)
	}

	items := make([]*item.WorkItem, 0, len(models))
	for i := range models {
		w, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, nil
}

func (s *Store) CountItemsByStatus(ctx context.Context, workspace string) (item.StatusCounts, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int64  `bun:"count"`
	}

	q := s.db.NewSelect().
		Model((*itemModel)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("status")

	if workspace != "" {
		q = q.Where("workspace = ?", workspace)
	}

	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("docqueue/bun: count items: %w", err)
	}

	counts := make(item.StatusCounts, len(rows))
	for _, row := range rows {
		counts[item.Status(row.Status)] = row.Count
	}
	return counts, nil
}

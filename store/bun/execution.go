package bunstore

import (
	"context"
	"fmt"

	"github.com/ook-lab/docqueue"
	"github.com/ook-lab/docqueue/execution"
	"github.com/ook-lab/docqueue/id"
)

// ── Execution ledger operations ───────────────────────────────────

func (s *Store) CreateExecution(ctx context.Context, e *execution.Execution) error {
	model := toExecutionModel(e)

	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return docqueue.ErrExecutionAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return docqueue.ErrItemNotFound
		}
		return fmt.Errorf("docqueue/bun: create execution: %w", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, execID id.ExecutionID) (*execution.Execution, error) {
	model := new(executionModel)

	err := s.db.NewSelect().
		Model(model).
		Where("id = ?", execID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, docqueue.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("docqueue/bun: get execution: %w", err)
	}

	return fromExecutionModel(model)
}

func (s *Store) CompleteExecution(ctx context.Context, execID id.ExecutionID, result execution.Result) error {
	if !result.Status.Terminal() {
		return docqueue.ErrNotTerminalStatus
	}

	res, err := s.db.NewUpdate().
		Model((*executionModel)(nil)).
		Set("status = ?", string(result.Status)).
		Set("result_data = ?", result.ResultData).
		Set("error_code = ?", result.ErrorCode).
		Set("error_message = ?", result.ErrorMessage).
		Set("processing_duration_ms = ?", result.DurationMS).
		Set("completed_at = NOW()").
		Where("id = ?", execID.String()).
		Where("status IN ('queued', 'running')").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("docqueue/bun: complete execution: %w", err)
	}

	affected, _ := res.RowsAffected() //nolint:errcheck // pgdriver supports RowsAffected
	if affected == 0 {
		// Distinguish a missing row from an already-terminal one.
		if _, getErr := s.GetExecution(ctx, execID); getErr != nil {
			return getErr
		}
		return docqueue.ErrExecutionTerminal
	}
	return nil
}

func (s *Store) PromoteExecution(ctx context.Context, itemID id.ItemID, execID id.ExecutionID) error {
	res, err := s.db.NewRaw(`
		UPDATE docqueue_items i SET
			active_execution_id = e.id,
			updated_at = NOW()
		FROM docqueue_executions e
		WHERE i.id = ? AND e.id = ? AND e.item_id = i.id AND e.status = 'succeeded'
	`, itemID.String(), execID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("docqueue/bun: promote execution: %w", err)
	}

	affected, _ := res.RowsAffected() //nolint:errcheck // pgdriver supports RowsAffected
	if affected > 0 {
		return nil
	}

	// No row updated: work out which guard refused the promotion.
	e, getErr := s.GetExecution(ctx, execID)
	if getErr != nil {
		return getErr
	}
	if e.ItemID.String() != itemID.String() {
		return docqueue.ErrPromoteWrongItem
	}
	if e.Status != execution.StatusSucceeded {
		return docqueue.ErrPromoteNotSucceeded
	}
	return docqueue.ErrItemNotFound
}

func (s *Store) ListExecutions(ctx context.Context, itemID id.ItemID) ([]*execution.Execution, error) {
	var models []executionModel

	err := s.db.NewSelect().
		Model(&models).
		Where("item_id = ?", itemID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("docqueue/bun: list executions: %w", err)
	}

	executions := make([]*execution.Execution, 0, len(models))
	for i := range models {
		e, convErr := fromExecutionModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		executions = append(executions, e)
	}
	return executions, nil
}

func (s *Store) LatestExecution(ctx context.Context, itemID id.ItemID) (*execution.Execution, error) {
	model := new(executionModel)

	err := s.db.NewSelect().
		Model(model).
		Where("item_id = ?", itemID.String()).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("docqueue/bun: latest execution: %w", err)
	}

	return fromExecutionModel(model)
}

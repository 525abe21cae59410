package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ook-lab/docqueue"
	"github.com/ook-lab/docqueue/execution"
	"github.com/ook-lab/docqueue/id"
)

const executionColumns = `
	id, item_id, status,
	input_hash, model_version, prompt_hash,
	retry_of_execution_id,
	error_code, error_message, result_data,
	processing_duration_ms, created_at, completed_at`

// CreateExecution appends a new execution row.
func (s *Store) CreateExecution(ctx context.Context, e *execution.Execution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO docqueue_executions (
			id, item_id, status,
			input_hash, model_version, prompt_hash,
			retry_of_execution_id,
			error_code, error_message, result_data,
			processing_duration_ms, created_at, completed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7,
			$8, $9, $10,
			$11, $12, $13
		)`,
		e.ID.String(), e.ItemID.String(), string(e.Status),
		e.InputHash, e.ModelVersion, e.PromptHash,
		e.RetryOf,
		e.ErrorCode, e.ErrorMessage, e.ResultData,
		e.DurationMS, e.CreatedAt, e.CompletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return docqueue.ErrExecutionAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return docqueue.ErrItemNotFound
		}
		return fmt.Errorf("docqueue/postgres: create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, execID id.ExecutionID) (*execution.Execution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM docqueue_executions WHERE id = $1`,
		execID.String(),
	)

	e, err := scanExecution(row)
	if err != nil {
		if isNoRows(err) {
			return nil, docqueue.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("docqueue/postgres: get execution: %w", err)
	}
	return e, nil
}

// CompleteExecution applies a terminal result to a non-terminal
// execution. The status guard rides in the WHERE clause so a lost race
// cannot overwrite a finished attempt.
func (s *Store) CompleteExecution(ctx context.Context, execID id.ExecutionID, res execution.Result) error {
	if !res.Status.Terminal() {
		return docqueue.ErrNotTerminalStatus
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE docqueue_executions
		SET status = $2,
		    result_data = $3,
		    error_code = $4,
		    error_message = $5,
		    processing_duration_ms = $6,
		    completed_at = NOW()
		WHERE id = $1
		  AND status IN ('queued', 'running')`,
		execID.String(), string(res.Status),
		res.ResultData, res.ErrorCode, res.ErrorMessage,
		res.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("docqueue/postgres: complete execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "missing" from "already terminal".
		if _, getErr := s.GetExecution(ctx, execID); getErr != nil {
			return getErr
		}
		return docqueue.ErrExecutionTerminal
	}
	return nil
}

// PromoteExecution points the item's active execution at the given
// execution. The guard (same item, succeeded) is part of the UPDATE
// itself; when it refuses, the specific reason is diagnosed afterwards.
func (s *Store) PromoteExecution(ctx context.Context, itemID id.ItemID, execID id.ExecutionID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE docqueue_items i
		SET active_execution_id = e.id,
		    updated_at = NOW()
		FROM docqueue_executions e
		WHERE i.id = $1
		  AND e.id = $2
		  AND e.item_id = i.id
		  AND e.status = 'succeeded'`,
		itemID.String(), execID.String(),
	)
	if err != nil {
		return fmt.Errorf("docqueue/postgres: promote execution: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

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

// ListExecutions returns all executions for an item, oldest first.
func (s *Store) ListExecutions(ctx context.Context, itemID id.ItemID) ([]*execution.Execution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+`
		 FROM docqueue_executions
		 WHERE item_id = $1
		 ORDER BY created_at ASC`,
		itemID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("docqueue/postgres: list executions: %w", err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// LatestExecution returns the most recent execution for an item, or
// (nil, nil) when the item has none.
func (s *Store) LatestExecution(ctx context.Context, itemID id.ItemID) (*execution.Execution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+`
		 FROM docqueue_executions
		 WHERE item_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		itemID.String(),
	)

	e, err := scanExecution(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("docqueue/postgres: latest execution: %w", err)
	}
	return e, nil
}

// scanExecution scans a single execution row.
func scanExecution(row pgx.Row) (*execution.Execution, error) {
	var (
		e         execution.Execution
		idStr     string
		itemStr   string
		statusStr string
	)
	err := row.Scan(
		&idStr, &itemStr, &statusStr,
		&e.InputHash, &e.ModelVersion, &e.PromptHash,
		&e.RetryOf,
		&e.ErrorCode, &e.ErrorMessage, &e.ResultData,
		&e.DurationMS, &e.CreatedAt, &e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = execution.Status(statusStr)

	parsedID, parseErr := id.ParseExecutionID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("docqueue/postgres: parse execution id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedItem, parseErr := id.ParseItemID(itemStr)
	if parseErr != nil {
		return nil, fmt.Errorf("docqueue/postgres: parse item id %q: %w", itemStr, parseErr)
	}
	e.ItemID = parsedItem

	return &e, nil
}

// collectExecutions collects all executions from query rows.
func collectExecutions(rows pgx.Rows) ([]*execution.Execution, error) {
	var execs []*execution.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("docqueue/postgres: scan execution row: %w", err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docqueue/postgres: iterate execution rows: %w", err)
	}
	return execs, nil
}

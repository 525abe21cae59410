package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/ook-lab/docqueue"
	"github.com/ook-lab/docqueue/execution"
	"github.com/ook-lab/docqueue/id"
	"github.com/ook-lab/docqueue/item"
)

// ── Work item model ───────────────────────────────────────────────

type itemModel struct {
	bun.BaseModel `bun:"table:docqueue_items"`

	ID                string     `bun:"id,pk"`
	Workspace         string     `bun:"workspace,notnull"`
	Kind              string     `bun:"kind,notnull"`
	Payload           []byte     `bun:"payload,type:bytea"`
	Status            string     `bun:"status,notnull,default:'pending'"`
	LeaseOwner        *string    `bun:"lease_owner"`
	LeaseUntil        *time.Time `bun:"lease_until"`
	AttemptCount      int        `bun:"attempt_count,notnull,default:0"`
	LastWorker        string     `bun:"last_worker,notnull,default:''"`
	LastErrorReason   string     `bun:"last_error_reason,notnull,default:''"`
	LastAttemptAt     *time.Time `bun:"last_attempt_at"`
	CompletedAt       *time.Time `bun:"completed_at"`
	FailedAt          *time.Time `bun:"failed_at"`
	ActiveExecutionID *string    `bun:"active_execution_id"`
	CreatedAt         time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toItemModel(w *item.WorkItem) *itemModel {
	m := &itemModel{
		ID:              w.ID.String(),
		Workspace:       w.Workspace,
		Kind:            w.Kind,
		Payload:         w.Payload,
		Status:          string(w.Status),
		LeaseUntil:      w.LeaseUntil,
		AttemptCount:    w.AttemptCount,
		LastWorker:      w.LastWorker,
		LastErrorReason: w.LastErrorReason,
		LastAttemptAt:   w.LastAttemptAt,
		CompletedAt:     w.CompletedAt,
		FailedAt:        w.FailedAt,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
	if w.LeaseOwner != "" {
		m.LeaseOwner = &w.LeaseOwner
	}
	if !w.ActiveExecutionID.IsNil() {
		active := w.ActiveExecutionID.String()
		m.ActiveExecutionID = &active
	}
	return m
}

func fromItemModel(m *itemModel) (*item.WorkItem, error) {
	parsedID, err := id.ParseItemID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("docqueue/bun: parse item id %q: %w", m.ID, err)
	}

	w := &item.WorkItem{
		Entity: docqueue.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              parsedID,
		Workspace:       m.Workspace,
		Kind:            m.Kind,
		Payload:         m.Payload,
		Status:          item.Status(m.Status),
		LeaseUntil:      m.LeaseUntil,
		AttemptCount:    m.AttemptCount,
		LastWorker:      m.LastWorker,
		LastErrorReason: m.LastErrorReason,
		LastAttemptAt:   m.LastAttemptAt,
		CompletedAt:     m.CompletedAt,
		FailedAt:        m.FailedAt,
	}

	if m.LeaseOwner != nil {
		w.LeaseOwner = *m.LeaseOwner
	}
	if m.ActiveExecutionID != nil {
		parsedActive, activeErr := id.ParseExecutionID(*m.ActiveExecutionID)
		if activeErr != nil {
			return nil, fmt.Errorf("docqueue/bun: parse execution id %q: %w", *m.ActiveExecutionID, activeErr)
		}
		w.ActiveExecutionID = parsedActive
	}

	return w, nil
}

// ── Execution model ───────────────────────────────────────────────

type executionModel struct {
	bun.BaseModel `bun:"table:docqueue_executions"`

	ID           string     `bun:"id,pk"`
	ItemID       string     `bun:"item_id,notnull"`
	Status       string     `bun:"status,notnull,default:'running'"`
	InputHash    string     `bun:"input_hash,notnull,default:''"`
	ModelVersion string     `bun:"model_version,notnull,default:''"`
	PromptHash   string     `bun:"prompt_hash,notnull,default:''"`
	RetryOf      *string    `bun:"retry_of_execution_id"`
	ErrorCode    string     `bun:"error_code,notnull,default:''"`
	ErrorMessage string     `bun:"error_message,notnull,default:''"`
	ResultData   []byte     `bun:"result_data,type:bytea"`
	DurationMS   int64      `bun:"processing_duration_ms,notnull,default:0"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	CompletedAt  *time.Time `bun:"completed_at"`
}

func toExecutionModel(e *execution.Execution) *executionModel {
	m := &executionModel{
		ID:           e.ID.String(),
		ItemID:       e.ItemID.String(),
		Status:       string(e.Status),
		InputHash:    e.InputHash,
		ModelVersion: e.ModelVersion,
		PromptHash:   e.PromptHash,
		ErrorCode:    e.ErrorCode,
		ErrorMessage: e.ErrorMessage,
		ResultData:   e.ResultData,
		DurationMS:   e.DurationMS,
		CreatedAt:    e.CreatedAt,
		CompletedAt:  e.CompletedAt,
	}
	if !e.RetryOf.IsNil() {
		retryOf := e.RetryOf.String()
		m.RetryOf = &retryOf
	}
	return m
}

func fromExecutionModel(m *executionModel) (*execution.Execution, error) {
	parsedID, err := id.ParseExecutionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("docqueue/bun: parse execution id %q: %w", m.ID, err)
	}

	parsedItem, err := id.ParseItemID(m.ItemID)
	if err != nil {
		return nil, fmt.Errorf("docqueue/bun: parse item id %q: %w", m.ItemID, err)
	}

	e := &execution.Execution{
		ID:           parsedID,
		ItemID:       parsedItem,
		Status:       execution.Status(m.Status),
		InputHash:    m.InputHash,
		ModelVersion: m.ModelVersion,
		PromptHash:   m.PromptHash,
		ErrorCode:    m.ErrorCode,
		ErrorMessage: m.ErrorMessage,
		ResultData:   m.ResultData,
		DurationMS:   m.DurationMS,
		CreatedAt:    m.CreatedAt,
		CompletedAt:  m.CompletedAt,
	}

	if m.RetryOf != nil {
		parsedRetry, retryErr := id.ParseExecutionID(*m.RetryOf)
		if retryErr != nil {
			return nil, fmt.Errorf("docqueue/bun: parse execution id %q: %w", *m.RetryOf, retryErr)
		}
		e.RetryOf = parsedRetry
	}

	return e, nil
}

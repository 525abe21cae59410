package execution

import (
	"time"

	"github.com/ook-lab/docqueue/id"
)

// Status represents the lifecycle state of an execution.
type Status string

const (
	// StatusQueued means the execution was recorded before processing
	// started.
	StatusQueued Status = "queued"
	// StatusRunning means the attempt is in flight.
	StatusRunning Status = "running"
	// StatusSucceeded means the attempt produced a usable result.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the attempt errored.
	StatusFailed Status = "failed"
	// StatusCanceled means the attempt was abandoned before finishing.
	StatusCanceled Status = "canceled"
)

// Terminal reports whether s is a final status. Terminal executions are
// frozen: the ledger is append-only and a finished attempt is never
// rewritten.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Execution is one row of the attempt ledger: a single processing attempt
// of a work item, with enough provenance to reproduce or audit it.
type Execution struct {
	ID     id.ExecutionID `json:"id"`
	ItemID id.ItemID      `json:"item_id"`
	Status Status         `json:"status"`

	// Provenance.
	InputHash    string `json:"input_hash,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`
	PromptHash   string `json:"prompt_hash,omitempty"`

	// RetryOf links this attempt to the one it retries, forming a chain
	// back to the first attempt. Nil for the first attempt.
	RetryOf id.ExecutionID `json:"retry_of_execution_id,omitempty"`

	// Outcome.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ResultData   []byte `json:"result_data,omitempty"`
	DurationMS   int64  `json:"processing_duration_ms"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Result carries the terminal outcome applied by CompleteExecution.
type Result struct {
	// Status must be a terminal status.
	Status       Status
	ResultData   []byte
	ErrorCode    string
	ErrorMessage string
	DurationMS   int64
}

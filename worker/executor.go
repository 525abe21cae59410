// Package worker provides the processing engine: an Executor that runs a
// single claimed item through middleware and its processor while keeping
// the execution ledger, and a Runner that manages concurrent claim loops
// with lease heartbeats.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ook-lab/docqueue/coordinator"
	"github.com/ook-lab/docqueue/execution"
	"github.com/ook-lab/docqueue/item"
	"github.com/ook-lab/docqueue/middleware"
	"github.com/ook-lab/docqueue/payload"
)

// Executor runs one claimed item end to end: it appends an execution to
// the ledger, invokes the processor through the middleware chain, records
// the terminal result, and settles the item with the coordinator.
type Executor struct {
	coord    *coordinator.Coordinator
	registry *Registry
	codec    payload.Codec
	mw       middleware.Middleware
	retry    RetryPolicy
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	coord *coordinator.Coordinator,
	registry *Registry,
	codec payload.Codec,
	retry RetryPolicy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if codec == nil {
		codec = payload.GetCodec("")
	}
	if retry == nil {
		retry = RetryAlways
	}
	return &Executor{
		coord:    coord,
		registry: registry,
		codec:    codec,
		mw:       middleware.Chain(mws...),
		retry:    retry,
		logger:   logger,
	}
}

// Execute processes a claimed item under the given owner token.
// On success: the execution is completed, promoted, and the item
// acknowledged. On failure: the execution is completed as failed and the
// item is failed with the retry policy's verdict. A lost lease at settle
// time discards the outcome without error.
func (e *Executor) Execute(ctx context.Context, w *item.WorkItem, owner string) error {
	proc, ok := e.registry.Get(w.Kind)
	if !ok {
		// No processor will ever handle this kind on this runner; park
		// the item instead of spinning on it.
		reason := fmt.Sprintf("no processor registered for kind %q", w.Kind)
		if _, failErr := e.coord.Fail(ctx, w.ID, owner, reason, false); failErr != nil {
			return failErr
		}
		return nil
	}

	prov := proc.Provenance()
	exec, err := e.coord.BeginExecution(ctx, w.ID, coordinator.BeginOptions{
		InputHash:    hashPayload(w.Payload),
		ModelVersion: prov.ModelVersion,
		PromptHash:   prov.PromptHash,
	})
	if err != nil {
		return err
	}

	start := time.Now()

	var env *payload.Envelope
	terminal := func(ctx context.Context) error {
		var procErr error
		env, procErr = proc.Process(ctx, w)
		return procErr
	}

	procErr := e.mw(ctx, w, terminal)
	elapsed := time.Since(start)

	if procErr != nil {
		return e.settleFailure(ctx, w, exec, owner, procErr, elapsed)
	}
	return e.settleSuccess(ctx, w, exec, owner, env, elapsed)
}

func (e *Executor) settleSuccess(
	ctx context.Context,
	w *item.WorkItem,
	exec *execution.Execution,
	owner string,
	env *payload.Envelope,
	elapsed time.Duration,
) error {
	var resultData []byte
	if env != nil {
		encoded, encErr := e.codec.Encode(env)
		if encErr != nil {
			return e.settleFailure(ctx, w, exec, owner, fmt.Errorf("encode result: %w", encErr), elapsed)
		}
		resultData = encoded
	}

	if err := e.coord.CompleteExecution(ctx, exec.ID, execution.Result{
		Status:     execution.StatusSucceeded,
		ResultData: resultData,
		DurationMS: elapsed.Milliseconds(),
	}); err != nil {
		return err
	}

	if err := e.coord.Promote(ctx, w.ID, exec.ID); err != nil {
		return err
	}

	acked, err := e.coord.Acknowledge(ctx, w.ID, owner)
	if err != nil {
		return err
	}
	if !acked {
		e.logger.Warn("lease lost before acknowledge, outcome discarded",
			slog.String("item_id", w.ID.String()),
			slog.String("execution_id", exec.ID.String()),
		)
	}
	return nil
}

func (e *Executor) settleFailure(
	ctx context.Context,
	w *item.WorkItem,
	exec *execution.Execution,
	owner string,
	procErr error,
	elapsed time.Duration,
) error {
	if err := e.coord.CompleteExecution(ctx, exec.ID, execution.Result{
		Status:       execution.StatusFailed,
		ErrorMessage: procErr.Error(),
		DurationMS:   elapsed.Milliseconds(),
	}); err != nil {
		return err
	}

	retry := e.retry(w, procErr)
	failed, err := e.coord.Fail(ctx, w.ID, owner, procErr.Error(), retry)
	if err != nil {
		return err
	}
	if !failed {
		e.logger.Warn("lease lost before fail, outcome discarded",
			slog.String("item_id", w.ID.String()),
			slog.String("execution_id", exec.ID.String()),
		)
	}
	return nil
}

func hashPayload(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

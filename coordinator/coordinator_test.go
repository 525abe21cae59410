package coordinator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ook-lab/docqueue"
	"github.com/ook-lab/docqueue/coordinator"
	"github.com/ook-lab/docqueue/execution"
	"github.com/ook-lab/docqueue/id"
	"github.com/ook-lab/docqueue/item"
	"github.com/ook-lab/docqueue/store/memory"
)

func newCoordinator() *coordinator.Coordinator {
	return coordinator.New(memory.New())
}

func TestValidation(t *testing.T) {
	t.Parallel()
	c := newCoordinator()
	ctx := context.Background()

	tests := []struct {
		name    string
		fn      func() error
		wantErr error
	}{
		{
			name: "create without workspace",
			fn: func() error {
				_, err := c.CreateItem(ctx, "", "ocr", nil)
				return err
			},
			wantErr: docqueue.ErrMissingWorkspace,
		},
		{
			name: "create without kind",
			fn: func() error {
				_, err := c.CreateItem(ctx, "ws1", "", nil)
				return err
			},
			wantErr: docqueue.ErrMissingKind,
		},
		{
			name: "claim without owner token",
			fn: func() error {
				_, err := c.Claim(ctx, "ws1", "", time.Minute)
				return err
			},
			wantErr: docqueue.ErrMissingOwnerToken,
		},
		{
			name: "heartbeat without owner token",
			fn: func() error {
				_, err := c.Heartbeat(ctx, id.NewItemID(), "", time.Minute)
				return err
			},
			wantErr: docqueue.ErrMissingOwnerToken,
		},
		{
			name: "acknowledge without owner token",
			fn: func() error {
				_, err := c.Acknowledge(ctx, id.NewItemID(), "")
				return err
			},
			wantErr: docqueue.ErrMissingOwnerToken,
		},
		{
			name: "fail without owner token",
			fn: func() error {
				_, err := c.Fail(ctx, id.NewItemID(), "", "reason", true)
				return err
			},
			wantErr: docqueue.ErrMissingOwnerToken,
		},
		{
			name: "enqueue with zero limit and no ids",
			fn: func() error {
				_, err := c.Enqueue(ctx, "ws1", 0)
				return err
			},
			wantErr: docqueue.ErrInvalidLimit,
		},
		{
			name: "enqueue with negative limit and no ids",
			fn: func() error {
				_, err := c.Enqueue(ctx, "ws1", -5)
				return err
			},
			wantErr: docqueue.ErrInvalidLimit,
		},
		{
			name: "drain without workspace",
			fn: func() error {
				_, err := c.Drain(ctx, "")
				return err
			},
			wantErr: docqueue.ErrMissingWorkspace,
		},
		{
			name: "stats without workspace",
			fn: func() error {
				_, err := c.Stats(ctx, "")
				return err
			},
			wantErr: docqueue.ErrMissingWorkspace,
		},
		{
			name: "complete with non-terminal status",
			fn: func() error {
				return c.CompleteExecution(ctx, id.NewExecutionID(), execution.Result{
					Status: execution.StatusRunning,
				})
			},
			wantErr: docqueue.ErrNotTerminalStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryLineage(t *testing.T) {
	t.Parallel()
	c := newCoordinator()
	ctx := context.Background()

	w, err := c.CreateItem(ctx, "ws1", "extract", []byte(`{"doc":"a"}`))
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	// N failed attempts, then one success: the ledger must hold N+1
	// executions chained by RetryOf.
	const failures = 3
	var execs []*execution.Execution
	for i := range failures + 1 {
		if _, err := c.Enqueue(ctx, "ws1", 1); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		claimed, err := c.Claim(ctx, "ws1", "worker-a", time.Minute)
		if err != nil || claimed == nil {
			t.Fatalf("Claim attempt %d: %v %v", i, claimed, err)
		}
		if claimed.AttemptCount != i+1 {
			t.Fatalf("attempt count = %d, want %d", claimed.AttemptCount, i+1)
		}

		e, err := c.BeginExecution(ctx, w.ID, coordinator.BeginOptions{
			InputHash:    "sha256:doc-a",
			ModelVersion: "extractor-v2",
		})
		if err != nil {
			t.Fatalf("BeginExecution: %v", err)
		}
		execs = append(execs, e)

		if i < failures {
			if err := c.CompleteExecution(ctx, e.ID, execution.Result{
				Status:       execution.StatusFailed,
				ErrorCode:    "timeout",
				ErrorMessage: "model did not respond",
			}); err != nil {
				t.Fatalf("CompleteExecution: %v", err)
			}
			ok, err := c.Fail(ctx, w.ID, "worker-a", "model did not respond", true)
			if err != nil || !ok {
				t.Fatalf("Fail: ok=%v err=%v", ok, err)
			}
		} else {
			if err := c.CompleteExecution(ctx, e.ID, execution.Result{
				Status:     execution.StatusSucceeded,
				ResultData: []byte(`{"fields":{}}`),
				DurationMS: 900,
			}); err != nil {
				t.Fatalf("CompleteExecution: %v", err)
			}
			if err := c.Promote(ctx, w.ID, e.ID); err != nil {
				t.Fatalf("Promote: %v", err)
			}
			ok, err := c.Acknowledge(ctx, w.ID, "worker-a")
			if err != nil || !ok {
				t.Fatalf("Acknowledge: ok=%v err=%v", ok, err)
			}
		}
	}

	history, err := c.Executions(ctx, w.ID)
	if err != nil {
		t.Fatalf("Executions: %v", err)
	}
	if len(history) != failures+1 {
		t.Fatalf("ledger has %d executions, want %d", len(history), failures+1)
	}

	// RetryOf chain: first unlinked, each subsequent linked to its
	// predecessor.
	if !history[0].RetryOf.IsNil() {
		t.Fatal("first execution must not have RetryOf")
	}
	for i := 1; i < len(history); i++ {
		if history[i].RetryOf.String() != history[i-1].ID.String() {
			t.Fatalf("execution %d RetryOf = %s, want %s", i, history[i].RetryOf, history[i-1].ID)
		}
	}

	// Lineage from the final execution walks back to the first.
	lineage, err := c.Lineage(ctx, execs[failures].ID)
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	if len(lineage) != failures+1 {
		t.Fatalf("lineage length = %d, want %d", len(lineage), failures+1)
	}
	for i := range lineage {
		if lineage[i].ID.String() != execs[i].ID.String() {
			t.Fatalf("lineage[%d] = %s, want %s", i, lineage[i].ID, execs[i].ID)
		}
	}

	final, err := c.Item(ctx, w.ID)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if final.Status != item.StatusCompleted {
		t.Fatalf("final status = %q, want completed", final.Status)
	}
	if final.ActiveExecutionID.String() != execs[failures].ID.String() {
		t.Fatalf("active execution = %s, want %s", final.ActiveExecutionID, execs[failures].ID)
	}
	if final.AttemptCount != failures+1 {
		t.Fatalf("attempt count = %d, want %d", final.AttemptCount, failures+1)
	}
}

// TestFullScenario exercises the whole coordination protocol end to end:
// create, enqueue, parallel claims, heartbeat, a worker crash recovered
// by lease expiry, a stale owner rejected, and promotion of the final
// result.
func TestFullScenario(t *testing.T) {
	t.Parallel()
	c := newCoordinator()
	ctx := context.Background()

	item1, err := c.CreateItem(ctx, "tenant-a", "extract", []byte(`{"doc":1}`))
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	// Ensure distinct created_at ordering.
	time.Sleep(time.Millisecond)
	item2, err := c.CreateItem(ctx, "tenant-a", "extract", []byte(`{"doc":2}`))
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	stats, err := c.Stats(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[item.StatusPending] != 2 {
		t.Fatalf("pending = %d, want 2", stats[item.StatusPending])
	}

	moved, err := c.Enqueue(ctx, "tenant-a", 10)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(moved) != 2 {
		t.Fatalf("enqueued %d, want 2", len(moved))
	}

	// Two workers claim in parallel; FIFO gives the older item first.
	a, err := c.Claim(ctx, "tenant-a", "wkr-alpha", time.Minute)
	if err != nil || a == nil {
		t.Fatalf("alpha claim: %v %v", a, err)
	}
	if a.ID.String() != item1.ID.String() {
		t.Fatalf("alpha claimed %s, want oldest %s", a.ID, item1.ID)
	}
	b, err := c.Claim(ctx, "tenant-a", "wkr-beta", 50*time.Millisecond)
	if err != nil || b == nil {
		t.Fatalf("beta claim: %v %v", b, err)
	}
	if b.ID.String() != item2.ID.String() {
		t.Fatalf("beta claimed %s, want %s", b.ID, item2.ID)
	}

	// Alpha finishes item1 cleanly.
	execA, err := c.BeginExecution(ctx, a.ID, coordinator.BeginOptions{InputHash: "sha256:doc1"})
	if err != nil {
		t.Fatalf("BeginExecution: %v", err)
	}
	ok, err := c.Heartbeat(ctx, a.ID, "wkr-alpha", time.Minute)
	if err != nil || !ok {
		t.Fatalf("alpha heartbeat: ok=%v err=%v", ok, err)
	}
	if err := c.CompleteExecution(ctx, execA.ID, execution.Result{
		Status:     execution.StatusSucceeded,
		ResultData: []byte(`{"ok":true}`),
	}); err != nil {
		t.Fatalf("CompleteExecution: %v", err)
	}
	if err := c.Promote(ctx, a.ID, execA.ID); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	ok, err = c.Acknowledge(ctx, a.ID, "wkr-alpha")
	if err != nil || !ok {
		t.Fatalf("alpha acknowledge: ok=%v err=%v", ok, err)
	}

	// Beta starts an execution, then crashes (never reports back).
	execB1, err := c.BeginExecution(ctx, b.ID, coordinator.BeginOptions{InputHash: "sha256:doc2"})
	if err != nil {
		t.Fatalf("BeginExecution: %v", err)
	}

	// Wait out beta's lease; expiry is the only recovery signal.
	time.Sleep(80 * time.Millisecond)

	g, err := c.Claim(ctx, "tenant-a", "wkr-gamma", time.Minute)
	if err != nil || g == nil {
		t.Fatalf("gamma claim after expiry: %v %v", g, err)
	}
	if g.ID.String() != item2.ID.String() {
		t.Fatalf("gamma claimed %s, want %s", g.ID, item2.ID)
	}
	if g.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", g.AttemptCount)
	}

	// Beta comes back from the dead: every bookkeeping call is refused.
	ok, err = c.Heartbeat(ctx, b.ID, "wkr-beta", time.Minute)
	if err != nil {
		t.Fatalf("beta heartbeat: %v", err)
	}
	if ok {
		t.Fatal("stale beta heartbeat must report lost ownership")
	}
	ok, err = c.Acknowledge(ctx, b.ID, "wkr-beta")
	if err != nil {
		t.Fatalf("beta acknowledge: %v", err)
	}
	if ok {
		t.Fatal("stale beta acknowledge must be a no-op")
	}

	// Gamma's attempt links to beta's abandoned execution.
	execB2, err := c.BeginExecution(ctx, g.ID, coordinator.BeginOptions{InputHash: "sha256:doc2"})
	if err != nil {
		t.Fatalf("BeginExecution: %v", err)
	}
	if execB2.RetryOf.String() != execB1.ID.String() {
		t.Fatalf("RetryOf = %s, want %s", execB2.RetryOf, execB1.ID)
	}

	if err := c.CompleteExecution(ctx, execB2.ID, execution.Result{
		Status:     execution.StatusSucceeded,
		ResultData: []byte(`{"ok":true}`),
	}); err != nil {
		t.Fatalf("CompleteExecution: %v", err)
	}
	if err := c.Promote(ctx, g.ID, execB2.ID); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	ok, err = c.Acknowledge(ctx, g.ID, "wkr-gamma")
	if err != nil || !ok {
		t.Fatalf("gamma acknowledge: ok=%v err=%v", ok, err)
	}

	// Final state: both items completed, active pointers set, full
	// history preserved.
	stats, err = c.Stats(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[item.StatusCompleted] != 2 {
		t.Fatalf("completed = %d, want 2: %v", stats[item.StatusCompleted], stats)
	}

	final2, err := c.Item(ctx, item2.ID)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if final2.ActiveExecutionID.String() != execB2.ID.String() {
		t.Fatalf("active = %s, want %s", final2.ActiveExecutionID, execB2.ID)
	}
	history, err := c.Executions(ctx, item2.ID)
	if err != nil {
		t.Fatalf("Executions: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("item2 has %d executions, want 2", len(history))
	}
}

func TestPromoteGuardThroughCoordinator(t *testing.T) {
	t.Parallel()
	c := newCoordinator()
	ctx := context.Background()

	w, err := c.CreateItem(ctx, "ws1", "ocr", nil)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	e, err := c.BeginExecution(ctx, w.ID, coordinator.BeginOptions{})
	if err != nil {
		t.Fatalf("BeginExecution: %v", err)
	}

	// Still running: promotion refused.
	if err := c.Promote(ctx, w.ID, e.ID); !errors.Is(err, docqueue.ErrPromoteNotSucceeded) {
		t.Fatalf("expected ErrPromoteNotSucceeded, got %v", err)
	}

	if err := c.CompleteExecution(ctx, e.ID, execution.Result{
		Status:       execution.StatusFailed,
		ErrorCode:    "bad_input",
		ErrorMessage: "unreadable scan",
	}); err != nil {
		t.Fatalf("CompleteExecution: %v", err)
	}

	// Failed: still refused. "Active but failed" is unrepresentable.
	if err := c.Promote(ctx, w.ID, e.ID); !errors.Is(err, docqueue.ErrPromoteNotSucceeded) {
		t.Fatalf("expected ErrPromoteNotSucceeded, got %v", err)
	}

	got, err := c.Item(ctx, w.ID)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if !got.ActiveExecutionID.IsNil() {
		t.Fatal("active pointer must remain nil after refused promotions")
	}
}

package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ook-lab/docqueue/backoff"
	"github.com/ook-lab/docqueue/coordinator"
	"github.com/ook-lab/docqueue/id"
)

// Throttle controls per-workspace claim limits. The runner calls Acquire
// before claiming from a workspace and Release after the item settles.
type Throttle interface {
	// Acquire returns true if a claim from the workspace may proceed.
	Acquire(workspace string) bool
	// Release decrements the active count for the workspace.
	Release(workspace string)
}

// Runner manages a set of concurrent claim loops that pull items from
// the coordinator and execute them. All claims made by one Runner carry
// the same owner token, and a heartbeat loop keeps the leases of active
// items alive. When a heartbeat reports lost ownership the item's
// processing context is cancelled.
type Runner struct {
	coord       *coordinator.Coordinator
	executor    *Executor
	owner       string
	workspaces  []string
	concurrency int
	lease       time.Duration

	heartbeatInterval time.Duration
	idle              backoff.Strategy
	throttle          Throttle
	logger            *slog.Logger

	stopCh   chan struct{}
	group    *errgroup.Group
	mu       sync.Mutex
	running  bool
	active   map[string]context.CancelFunc
	activeMu sync.Mutex
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerConcurrency sets the number of concurrent claim loops.
func WithRunnerConcurrency(n int) RunnerOption {
	return func(r *Runner) { r.concurrency = n }
}

// WithRunnerWorkspaces sets the workspaces the runner will poll.
func WithRunnerWorkspaces(workspaces ...string) RunnerOption {
	return func(r *Runner) { r.workspaces = workspaces }
}

// WithRunnerLease sets the lease duration requested on each claim.
func WithRunnerLease(d time.Duration) RunnerOption {
	return func(r *Runner) { r.lease = d }
}

// WithHeartbeatInterval sets how often the runner extends leases for
// active items. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.heartbeatInterval = d }
}

// WithIdleBackoff sets the strategy for pacing polls when no work is
// claimable.
func WithIdleBackoff(s backoff.Strategy) RunnerOption {
	return func(r *Runner) { r.idle = s }
}

// WithThrottle sets the per-workspace throttle.
func WithThrottle(t Throttle) RunnerOption {
	return func(r *Runner) { r.throttle = t }
}

// NewRunner creates a runner over the coordinator and executor. The
// owner token is minted once per runner; it identifies every lease this
// runner holds.
func NewRunner(coord *coordinator.Coordinator, executor *Executor, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		coord:             coord,
		executor:          executor,
		owner:             id.NewWorkerID().String(),
		workspaces:        []string{"default"},
		concurrency:       4,
		lease:             60 * time.Second,
		heartbeatInterval: 20 * time.Second,
		idle:              backoff.NewConstant(time.Second),
		logger:            logger,
		stopCh:            make(chan struct{}),
		active:            make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Owner returns the runner's lease owner token.
func (r *Runner) Owner() string { return r.owner }

// Start launches the claim loops. It returns immediately. A runner
// stopped with Stop can be started again.
func (r *Runner) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true

	// Fresh stop channel per start, so a stopped runner can be started
	// again. The loops hold the channel they were launched with.
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh

	r.logger.Info("runner starting",
		slog.String("owner", r.owner),
		slog.Int("concurrency", r.concurrency),
		slog.Any("workspaces", r.workspaces),
	)

	r.group = new(errgroup.Group)
	for range r.concurrency {
		r.group.Go(func() error {
			r.claimLoop(stopCh)
			return nil
		})
	}

	if r.heartbeatInterval > 0 {
		r.group.Go(func() error {
			r.heartbeatLoop(stopCh)
			return nil
		})
	}

	return nil
}

// Stop signals all loops to stop and waits for them to finish. If the
// context expires first, the contexts of active items are cancelled and
// their leases left to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopCh := r.stopCh
	r.mu.Unlock()

	r.logger.Info("runner stopping", slog.String("owner", r.owner))

	close(stopCh)

	done := make(chan struct{})
	go func() {
		_ = r.group.Wait() //nolint:errcheck // loops never return errors
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("runner stopped gracefully")
	case <-ctx.Done():
		r.logger.Warn("runner shutdown timed out, cancelling active items")
		r.cancelActive()
		<-done
	}

	return nil
}

// claimLoop cycles over the workspaces claiming and executing one item
// at a time.
func (r *Runner) claimLoop(stopCh <-chan struct{}) {
	idleAttempt := 0

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		claimed := false
		for _, workspace := range r.workspaces {
			if r.throttle != nil && !r.throttle.Acquire(workspace) {
				continue
			}
			if r.processOne(workspace) {
				claimed = true
			}
			if r.throttle != nil {
				r.throttle.Release(workspace)
			}
		}

		if claimed {
			idleAttempt = 0
			continue
		}
		idleAttempt++
		r.sleep(r.idle.Delay(idleAttempt), stopCh)
	}
}

// processOne claims and executes a single item from the workspace.
// Returns false when nothing was claimable.
func (r *Runner) processOne(workspace string) bool {
	w, err := r.coord.Claim(context.Background(), workspace, r.owner, r.lease)
	if err != nil {
		r.logger.Error("claim error",
			slog.String("workspace", workspace),
			slog.String("error", err.Error()),
		)
		return false
	}
	if w == nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.track(w.ID.String(), cancel)

	if execErr := r.executor.Execute(ctx, w, r.owner); execErr != nil {
		r.logger.Error("item execution error",
			slog.String("item_id", w.ID.String()),
			slog.String("error", execErr.Error()),
		)
	}

	r.untrack(w.ID.String())
	cancel()
	return true
}

// heartbeatLoop periodically extends leases for all active items.
func (r *Runner) heartbeatLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.sendHeartbeats()
		}
	}
}

func (r *Runner) sendHeartbeats() {
	r.activeMu.Lock()
	itemIDs := make([]string, 0, len(r.active))
	for itemID := range r.active {
		itemIDs = append(itemIDs, itemID)
	}
	r.activeMu.Unlock()

	for _, itemIDStr := range itemIDs {
		parsedID, parseErr := id.ParseItemID(itemIDStr)
		if parseErr != nil {
			r.logger.Warn("heartbeat: invalid item id", slog.String("item_id", itemIDStr))
			continue
		}

		ok, err := r.coord.Heartbeat(context.Background(), parsedID, r.owner, r.lease)
		if err != nil {
			r.logger.Warn("heartbeat failed",
				slog.String("item_id", itemIDStr),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			// Another owner holds the item now; stop working on it.
			r.logger.Warn("heartbeat lost ownership, cancelling item",
				slog.String("item_id", itemIDStr),
			)
			r.cancelItem(itemIDStr)
		}
	}
}

func (r *Runner) sleep(d time.Duration, stopCh <-chan struct{}) {
	select {
	case <-time.After(d):
	case <-stopCh:
	}
}

func (r *Runner) track(itemID string, cancel context.CancelFunc) {
	r.activeMu.Lock()
	r.active[itemID] = cancel
	r.activeMu.Unlock()
}

func (r *Runner) untrack(itemID string) {
	r.activeMu.Lock()
	delete(r.active, itemID)
	r.activeMu.Unlock()
}

func (r *Runner) cancelItem(itemID string) {
	r.activeMu.Lock()
	cancel, ok := r.active[itemID]
	r.activeMu.Unlock()
	if ok {
		cancel()
	}
}

func (r *Runner) cancelActive() {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	for itemID, cancel := range r.active {
		r.logger.Warn("cancelling active item", slog.String("item_id", itemID))
		cancel()
	}
}

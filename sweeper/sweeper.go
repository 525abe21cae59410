// Package sweeper periodically releases pending items for claiming.
//
// Producers create items in pending status; nothing is claimable until
// the items are enqueued. The sweeper runs that step on a cron schedule
// so backlogs drain without a manual enqueue call, and logs per-status
// counts on each sweep for visibility.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/ook-lab/docqueue/id"
	"github.com/ook-lab/docqueue/item"
)

// Coordinator is the surface the sweeper needs. *coordinator.Coordinator
// satisfies it.
type Coordinator interface {
	Enqueue(ctx context.Context, workspace string, limit int, ids ...id.ItemID) ([]id.ItemID, error)
	Stats(ctx context.Context, workspace string) (item.StatusCounts, error)
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithBatchLimit caps how many items one sweep releases per workspace.
func WithBatchLimit(n int) Option {
	return func(s *Sweeper) { s.batchLimit = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// Sweeper enqueues pending items on a schedule.
type Sweeper struct {
	coord      Coordinator
	workspaces []string
	schedule   cronlib.Schedule
	batchLimit int
	logger     *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a Sweeper firing on the given cron expression (standard
// 5-field syntax or descriptors like "@every 30s") over the listed
// workspaces.
func New(coord Coordinator, scheduleExpr string, workspaces []string, opts ...Option) (*Sweeper, error) {
	sched, err := ParseSchedule(scheduleExpr)
	if err != nil {
		return nil, fmt.Errorf("docqueue/sweeper: parse schedule %q: %w", scheduleExpr, err)
	}

	s := &Sweeper{
		coord:      coord,
		workspaces: workspaces,
		schedule:   sched,
		batchLimit: 100,
		logger:     slog.Default(),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the sweep loop. It returns immediately.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	// Fresh stop channel per start, so a stopped sweeper can be
	// started again.
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stopCh)

	s.logger.Info("sweeper started",
		slog.Any("workspaces", s.workspaces),
		slog.Int("batch_limit", s.batchLimit),
	)
	return nil
}

// Stop signals the sweep loop to stop and waits for it to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
	return nil
}

func (s *Sweeper) loop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx := context.Background()

	for _, workspace := range s.workspaces {
		moved, err := s.coord.Enqueue(ctx, workspace, s.batchLimit)
		if err != nil {
			s.logger.Error("sweep enqueue error",
				slog.String("workspace", workspace),
				slog.String("error", err.Error()),
			)
			continue
		}

		counts, err := s.coord.Stats(ctx, workspace)
		if err != nil {
			s.logger.Error("sweep stats error",
				slog.String("workspace", workspace),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.logger.Info("sweep completed",
			slog.String("workspace", workspace),
			slog.Int("released", len(moved)),
			slog.Int64("pending", counts[item.StatusPending]),
			slog.Int64("queued", counts[item.StatusQueued]),
			slog.Int64("processing", counts[item.StatusProcessing]),
			slog.Int64("completed", counts[item.StatusCompleted]),
			slog.Int64("failed", counts[item.StatusFailed]),
		)
	}
}

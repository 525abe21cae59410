package sweeper_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ook-lab/docqueue/coordinator"
	"github.com/ook-lab/docqueue/id"
	"github.com/ook-lab/docqueue/item"
	"github.com/ook-lab/docqueue/store/memory"
	"github.com/ook-lab/docqueue/sweeper"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	valid := []string{"*/5 * * * *", "@every 30s", "@hourly"}
	for _, expr := range valid {
		if _, err := sweeper.ParseSchedule(expr); err != nil {
			t.Errorf("ParseSchedule(%q) unexpected error: %v", expr, err)
		}
	}

	if _, err := sweeper.ParseSchedule("not a schedule"); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	t.Parallel()

	coord := coordinator.New(memory.New())
	if _, err := sweeper.New(coord, "bogus", []string{"ws-1"}); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}

func TestSweeper_ReleasesPendingItems(t *testing.T) {
	t.Parallel()

	coord := coordinator.New(memory.New(), coordinator.WithLogger(slog.Default()))
	ctx := context.Background()

	for range 3 {
		if _, err := coord.CreateItem(ctx, "ws-1", "document.extract", []byte(`{}`)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	s, err := sweeper.New(coord, "@every 20ms", []string{"ws-1"},
		sweeper.WithBatchLimit(10),
		sweeper.WithLogger(slog.Default()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err = s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = s.Stop(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		counts, statsErr := coord.Stats(ctx, "ws-1")
		if statsErr != nil {
			t.Fatalf("stats: %v", statsErr)
		}
		if counts[item.StatusQueued] == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for sweep to release items")
}

// countingCoordinator records sweep calls per workspace.
type countingCoordinator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingCoordinator) Enqueue(_ context.Context, workspace string, _ int, _ ...id.ItemID) ([]id.ItemID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[workspace]++
	return nil, nil
}

func (c *countingCoordinator) Stats(_ context.Context, _ string) (item.StatusCounts, error) {
	return item.StatusCounts{}, nil
}

func (c *countingCoordinator) count(workspace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[workspace]
}

func TestSweeper_CoversAllWorkspaces(t *testing.T) {
	t.Parallel()

	fake := &countingCoordinator{}
	s, err := sweeper.New(fake, "@every 20ms", []string{"ws-1", "ws-2"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx := context.Background()
	if err = s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fake.count("ws-1") > 0 && fake.count("ws-2") > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err = s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop twice is a no-op.
	if err = s.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if fake.count("ws-1") == 0 || fake.count("ws-2") == 0 {
		t.Fatalf("expected sweeps in both workspaces, got %v", fake.calls)
	}
}

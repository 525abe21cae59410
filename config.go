package docqueue

import "time"

// Config holds configuration for the Service.
type Config struct {
	// Concurrency is the maximum number of work items processed
	// concurrently by a single worker runner.
	Concurrency int

	// Workspaces is the list of workspaces this service will claim from.
	Workspaces []string

	// LeaseDuration is how long a claim remains valid without a heartbeat.
	LeaseDuration time.Duration

	// HeartbeatInterval is how often in-flight items extend their lease.
	// It must be comfortably shorter than LeaseDuration.
	HeartbeatInterval time.Duration

	// PollInterval is the base interval for polling when no work is
	// available. Runners back off from this value while idle.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		Workspaces:        []string{"default"},
		LeaseDuration:     60 * time.Second,
		HeartbeatInterval: 20 * time.Second,
		PollInterval:      1 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

package throttle

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-workspace behaviour such as rate limiting and concurrency.
type Config struct {
	// Workspace is the workspace identifier (must match the item's
	// Workspace field).
	Workspace string

	// MaxConcurrency limits how many items from this workspace may be
	// processed simultaneously by the local runner. Zero means no
	// workspace-specific limit (runner-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained claims per second for this
	// workspace. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// workspaceState tracks runtime state for a single workspace.
type workspaceState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-workspace rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	workspaces map[string]*workspaceState
}

// NewManager creates a Manager with the given workspace configurations.
// Workspaces not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		workspaces: make(map[string]*workspaceState, len(configs)),
	}
	for _, cfg := range configs {
		m.workspaces[cfg.Workspace] = newWorkspaceState(cfg)
	}
	return m
}

func newWorkspaceState(cfg Config) *workspaceState {
	ws := &workspaceState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ws.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ws
}

// Acquire checks rate limits and concurrency for the given workspace.
// If a claim is allowed to proceed it increments the active counter and
// returns true. The caller MUST call Release when the item settles.
func (m *Manager) Acquire(workspace string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws := m.workspaces[workspace]
	if ws != nil {
		if ws.limiter != nil && !ws.limiter.Allow() {
			return false
		}
		if ws.config.MaxConcurrency > 0 && ws.active >= ws.config.MaxConcurrency {
			return false
		}
		ws.active++
	}

	return true
}

// Release decrements the active item count for the workspace.
func (m *Manager) Release(workspace string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ws := m.workspaces[workspace]; ws != nil && ws.active > 0 {
		ws.active--
	}
}

// SetConfig dynamically updates (or creates) a workspace configuration.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.workspaces[cfg.Workspace]
	ws := newWorkspaceState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ws.active = existing.active
	}
	m.workspaces[cfg.Workspace] = ws
}

// ActiveCount returns the current number of active items for a workspace.
func (m *Manager) ActiveCount(workspace string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws := m.workspaces[workspace]; ws != nil {
		return ws.active
	}
	return 0
}

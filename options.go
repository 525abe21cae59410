package docqueue

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Service.
type Option func(*Service) error

// Storer is the minimal store interface held by the Service.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds the item
// and execution stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runnerLifecycle is an internal interface for worker runner lifecycle.
type runnerLifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Service is the top-level handle for a docqueue deployment: it owns the
// store connection, the worker runner, and the optional sweeper.
//
// Create one with New() and functional options. The Service holds its
// subsystem components via internal interfaces to avoid import cycles;
// the concrete runner is attached with SetRunner.
type Service struct {
	config  Config
	logger  *slog.Logger
	store   Storer
	runner  runnerLifecycle
	sweeper runnerLifecycle

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Service with the given options.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Logger returns the service's logger.
func (s *Service) Logger() *slog.Logger { return s.logger }

// Store returns the service's store.
func (s *Service) Store() Storer { return s.store }

// Config returns a copy of the service's configuration.
func (s *Service) Config() Config { return s.config }

// SetRunner attaches the worker runner.
func (s *Service) SetRunner(r runnerLifecycle) { s.runner = r }

// SetSweeper attaches the enqueue sweeper.
func (s *Service) SetSweeper(sw runnerLifecycle) { s.sweeper = sw }

// Start begins claiming and processing work items.
func (s *Service) Start(ctx context.Context) error {
	if s.store == nil {
		return ErrNoStore
	}
	if s.runner != nil {
		if err := s.runner.Start(ctx); err != nil {
			return err
		}
	}
	if s.sweeper != nil {
		if err := s.sweeper.Start(ctx); err != nil {
			return err
		}
	}
	s.started = true
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop(ctx context.Context) error {
	if s.sweeper != nil && s.started {
		if err := s.sweeper.Stop(ctx); err != nil {
			s.logger.Error("sweeper stop error", "error", err)
		}
	}
	if s.runner != nil && s.started {
		if err := s.runner.Stop(ctx); err != nil {
			s.logger.Error("runner stop error", "error", err)
		}
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// WithConcurrency sets the maximum number of concurrent item processors.
func WithConcurrency(n int) Option {
	return func(s *Service) error {
		s.config.Concurrency = n
		return nil
	}
}

// WithWorkspaces sets the workspaces the service will claim from.
func WithWorkspaces(workspaces ...string) Option {
	return func(s *Service) error {
		s.config.Workspaces = workspaces
		return nil
	}
}

// WithLeaseDuration sets the lease duration applied to claims.
func WithLeaseDuration(d time.Duration) Option {
	return func(s *Service) error {
		s.config.LeaseDuration = d
		return nil
	}
}

// WithLogger sets the structured logger for the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the service.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds the item and execution store interfaces.
func WithStore(st Storer) Option {
	return func(s *Service) error {
		s.store = st
		return nil
	}
}

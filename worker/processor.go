package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ook-lab/docqueue/item"
	"github.com/ook-lab/docqueue/payload"
)

// Provenance describes the model and prompt a processor runs with. It is
// recorded on every execution the processor produces so results can be
// traced back to the exact configuration that generated them.
type Provenance struct {
	ModelVersion string
	PromptHash   string
}

// Processor turns a claimed work item into a result envelope.
// Implementations must honor ctx cancellation: when the runner loses the
// lease the context is cancelled and any result is discarded.
type Processor interface {
	// Process performs the work and returns the result envelope.
	Process(ctx context.Context, w *item.WorkItem) (*payload.Envelope, error)

	// Provenance reports the processor's current model/prompt identity.
	Provenance() Provenance
}

// RetryPolicy decides whether a failed attempt should be retried. The
// default policy retries everything; items only park as failed when a
// policy explicitly gives up.
type RetryPolicy func(w *item.WorkItem, err error) bool

// RetryAlways is the default policy: every failure goes back to pending.
func RetryAlways(_ *item.WorkItem, _ error) bool { return true }

// Registry maps item kinds to their processors. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Processor
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Processor)}
}

// Register binds a processor to an item kind. Registering the same kind
// twice is an error.
func (r *Registry) Register(kind string, p Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.procs[kind]; exists {
		return fmt.Errorf("docqueue/worker: processor already registered for kind %q", kind)
	}
	r.procs[kind] = p
	return nil
}

// Get returns the processor for a kind.
func (r *Registry) Get(kind string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[kind]
	return p, ok
}

// Kinds returns all registered kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.procs))
	for k := range r.procs {
		kinds = append(kinds, k)
	}
	return kinds
}

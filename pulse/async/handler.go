package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/pulse"
)

// JobHandler executes one kind of job. The pool passes a snapshot of the job
// (for its ID and Payload) and an emitter through which all progress is
// recorded.
//
// Returning nil completes the job; returning an error fails it with that
// message. Handlers must watch ctx and return promptly once it is cancelled.
type JobHandler interface {
	Execute(ctx context.Context, job *Job, progress pulse.ProgressEmitter) error

	// Name returns the handler name, e.g. "llm.batch"
	Name() string
}

// HandlerRegistry manages job handlers by name.
// Thread-safe for concurrent handler registration and lookup.
type HandlerRegistry struct {
	handlers map[string]JobHandler // Handler name -> handler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlerName := handler.Name()
	if _, exists := r.handlers[handlerName]; exists {
		panic(fmt.Sprintf("handler already registered for name: %s", handlerName))
	}
	r.handlers[handlerName] = handler
}

// Get retrieves the handler for a handler name.
// Returns nil if no handler is registered.
func (r *HandlerRegistry) Get(handlerName string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[handlerName]
}

// Has checks if a handler is registered for a name.
func (r *HandlerRegistry) Has(handlerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[handlerName]
	return exists
}

// Names returns all registered handler names.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// execute dispatches job to its registered handler
func (r *HandlerRegistry) execute(ctx context.Context, job *Job, progress pulse.ProgressEmitter) error {
	if job.HandlerName == "" {
		return errors.New("job missing handler_name")
	}
	handler := r.Get(job.HandlerName)
	if handler == nil {
		return errors.Newf("no handler registered for handler name: %s", job.HandlerName)
	}
	return handler.Execute(ctx, job, progress)
}

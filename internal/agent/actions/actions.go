// Package actions maps command types received from the controller to
// the code that executes them on the node.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnknownCommandType is returned when no handler is registered for
// a command's type. The runner turns it into a FAILED report.
var ErrUnknownCommandType = errors.New("unknown command type")

// Handler executes one command type. The returned map becomes the
// command's result payload on success.
type Handler func(ctx context.Context, payload map[string]any) (map[string]any, error)

// Registry dispatches commands by type. Registration happens at agent
// startup; Execute is called from the heartbeat loop.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(commandType string, handler Handler) {
	r.mu.Lock()
	r.handlers[commandType] = handler
	r.mu.Unlock()
}

// Execute runs the handler for the command type. An unknown type or a
// panicking handler is reported as a normal execution failure so the
// controller sees FAILED, not a dead agent.
func (r *Registry) Execute(ctx context.Context, commandType string, payload map[string]any) (result map[string]any, err error) {
	r.mu.RLock()
	handler, ok := r.handlers[commandType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommandType, commandType)
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Command handler panicked", "type", commandType, "panic", rec)
			result = nil
			err = fmt.Errorf("handler for %q panicked: %v", commandType, rec)
		}
	}()

	return handler(ctx, payload)
}

// Types returns the registered command types, for logging at startup.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

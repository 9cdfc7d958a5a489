package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aiox-platform/mindloop/internal/composer"
	"github.com/aiox-platform/mindloop/internal/decision"
)

// ActionContext is what a handler receives for one dispatched action.
type ActionContext struct {
	Iteration int64
	Action    string
	Record    decision.Record
}

// HandlerFunc executes one action.
type HandlerFunc func(ctx context.Context, ac ActionContext) error

type action struct {
	description string
	handler     HandlerFunc
}

// Registry maps action names to handlers. Names are validated when
// registered, so dispatch never has to.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]action
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]action)}
}

// Register adds an action.
func (r *Registry) Register(name, description string, h HandlerFunc) error {
	if err := validateRegistration(name, h); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, name)
	}
	r.actions[name] = action{description: description, handler: h}
	return nil
}

// Lookup returns the handler registered for name.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a.handler, ok
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for n := range r.actions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Specs lists the actions for the prompt, sorted by name.
func (r *Registry) Specs() []composer.ActionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]composer.ActionSpec, 0, len(r.actions))
	for n, a := range r.actions {
		specs = append(specs, composer.ActionSpec{Name: n, Description: a.description})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

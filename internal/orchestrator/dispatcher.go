package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aiox-platform/mindloop/internal/decision"
	"github.com/aiox-platform/mindloop/internal/diversity"
	"github.com/aiox-platform/mindloop/internal/metrics"
)

// Result summarizes one dispatch.
type Result struct {
	Executed      []string `json:"executed"`
	Unknown       []string `json:"unknown,omitempty"`
	Defaulted     bool     `json:"defaulted,omitempty"`
	NotUnderstood bool     `json:"not_understood,omitempty"`
}

// Dispatcher runs a decision's actions through the registry and records them
// with the diversity tracker.
type Dispatcher struct {
	registry      *Registry
	tracker       *diversity.Tracker
	defaultAction string
	confused      func(ctx context.Context, iteration int64, rec decision.Record)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConfusionHandler sets the hook run when a decision carries neither
// actions nor text.
func WithConfusionHandler(fn func(ctx context.Context, iteration int64, rec decision.Record)) DispatcherOption {
	return func(d *Dispatcher) { d.confused = fn }
}

// NewDispatcher creates a Dispatcher. defaultAction runs when a decision has
// text but no actions, and must be registered.
func NewDispatcher(registry *Registry, tracker *diversity.Tracker, defaultAction string, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil || tracker == nil {
		return nil, errors.New("registry and tracker are required")
	}
	if _, ok := registry.Lookup(defaultAction); !ok {
		return nil, fmt.Errorf("%w: default action %q is not registered", ErrInvalidAction, defaultAction)
	}

	d := &Dispatcher{
		registry:      registry,
		tracker:       tracker,
		defaultAction: defaultAction,
		confused: func(_ context.Context, iteration int64, rec decision.Record) {
			slog.Warn("decision not understood", "iteration", iteration, "thought", rec.Thought)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch executes every known action in rec. Unknown names are skipped.
// Handler errors do not stop later actions. They are joined and returned.
func (d *Dispatcher) Dispatch(ctx context.Context, iteration int64, rec decision.Record) (Result, error) {
	res := Result{Executed: []string{}}

	if !rec.Understood() {
		res.NotUnderstood = true
		d.confused(ctx, iteration, rec)
		return res, nil
	}

	actions := rec.Actions
	if len(actions) == 0 {
		actions = []string{d.defaultAction}
		res.Defaulted = true
	}

	var errs []error
	for _, name := range actions {
		h, ok := d.registry.Lookup(name)
		if !ok {
			slog.Warn("skipping unknown action", "action", name, "iteration", iteration)
			metrics.ParseIssuesTotal.Inc()
			res.Unknown = append(res.Unknown, name)
			continue
		}

		err := h(ctx, ActionContext{Iteration: iteration, Action: name, Record: rec})
		d.tracker.Track(name, iteration)
		metrics.ActionsDispatchedTotal.WithLabelValues(name).Inc()
		res.Executed = append(res.Executed, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("action %s: %w", name, err))
		}
	}

	return res, errors.Join(errs...)
}

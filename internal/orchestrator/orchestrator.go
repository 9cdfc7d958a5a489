// Package orchestrator runs the decision loop: one cycle per interval, each
// composing context, asking the reasoning service, and dispatching the
// parsed decision to registered actions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aiox-platform/mindloop/internal/composer"
	"github.com/aiox-platform/mindloop/internal/decision"
	"github.com/aiox-platform/mindloop/internal/effector"
	"github.com/aiox-platform/mindloop/internal/metrics"
	"github.com/aiox-platform/mindloop/internal/reasoning"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Lifecycle is a collaborator started before the first cycle and stopped
// after the last one.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Component is a named Lifecycle. A failing optional component is skipped.
type Component struct {
	Name     string
	Service  Lifecycle
	Optional bool
}

// State is the scheduler state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateScheduled State = "scheduled"
	StateStopped   State = "stopped"
)

// ContextBuilder composes the prompt for an iteration.
type ContextBuilder interface {
	Build(ctx context.Context, iteration int64) composer.Snapshot
	Prompt(s composer.Snapshot) string
}

// StatePublisher shares the agent state after each cycle.
type StatePublisher interface {
	PublishState(ctx context.Context, state effector.State, opts effector.Options) effector.Outcome
}

// Config holds the loop settings.
type Config struct {
	Agent            string
	Interval         time.Duration
	ReasoningTimeout time.Duration
}

// CycleReport describes the most recent cycle.
type CycleReport struct {
	Iteration int64         `json:"iteration"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Status    string        `json:"status"`
	Actions   []string      `json:"actions"`
	Error     string        `json:"error,omitempty"`
}

// Scheduler owns the iteration counter and runs cycles strictly one after
// another.
type Scheduler struct {
	cfg        Config
	composer   ContextBuilder
	reasoner   reasoning.Client
	dispatcher *Dispatcher
	publisher  StatePublisher
	components []Component

	iteration atomic.Int64
	stopping  atomic.Bool

	mu      sync.Mutex
	state   State
	started []Component
	last    *CycleReport

	stopMu   sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewScheduler validates cfg and the collaborators.
func NewScheduler(
	cfg Config,
	cb ContextBuilder,
	reasoner reasoning.Client,
	dispatcher *Dispatcher,
	publisher StatePublisher,
	components ...Component,
) (*Scheduler, error) {
	var errs []error
	if cfg.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if cfg.ReasoningTimeout <= 0 {
		errs = append(errs, errors.New("reasoning timeout must be positive"))
	}
	if cb == nil {
		errs = append(errs, errors.New("context builder is required"))
	}
	if reasoner == nil {
		errs = append(errs, errors.New("reasoning client is required"))
	}
	if dispatcher == nil {
		errs = append(errs, errors.New("dispatcher is required"))
	}
	if publisher == nil {
		errs = append(errs, errors.New("state publisher is required"))
	}
	for _, c := range components {
		if c.Service == nil {
			errs = append(errs, fmt.Errorf("component %q has no service", c.Name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid scheduler: %w", err)
	}

	return &Scheduler{
		cfg:        cfg,
		composer:   cb,
		reasoner:   reasoner,
		dispatcher: dispatcher,
		publisher:  publisher,
		components: components,
		state:      StateIdle,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start starts the components in order and runs the first cycle right away.
// Cancelling ctx requests a stop. Cycles themselves run detached from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateRunning
	s.mu.Unlock()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		close(s.done)
		return err
	}

	go s.loop(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("loop context cancelled, stopping after current cycle")
			s.requestStop()
		case <-s.done:
		}
	}()

	slog.Info("decision loop started", "agent", s.cfg.Agent, "interval", s.cfg.Interval)
	return nil
}

func (s *Scheduler) startComponents(ctx context.Context) error {
	for _, c := range s.components {
		if err := c.Service.Start(ctx); err != nil {
			if c.Optional {
				slog.Warn("optional component failed to start, continuing without it", "component", c.Name, "error", err)
				continue
			}
			slog.Error("component failed to start", "component", c.Name, "error", err)
			s.stopComponents(context.WithoutCancel(ctx))
			return fmt.Errorf("starting %s: %w", c.Name, err)
		}
		s.mu.Lock()
		s.started = append(s.started, c)
		s.mu.Unlock()
		slog.Info("component started", "component", c.Name)
	}
	return nil
}

// stopComponents stops started components in reverse order.
func (s *Scheduler) stopComponents(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = nil
	s.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		c := started[i]
		if err := c.Service.Stop(ctx); err != nil {
			slog.Error("component failed to stop", "component", c.Name, "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", c.Name, err))
			continue
		}
		slog.Info("component stopped", "component", c.Name)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) requestStop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		close(s.stopCh)
	})
}

// Stop prevents further cycles, waits for an in-flight cycle to finish and
// then stops the components. It does not interrupt the running cycle.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	state := s.state
	if state == StateIdle {
		s.state = StateStopped
	}
	s.mu.Unlock()

	s.requestStop()
	if state == StateIdle || state == StateStopped {
		return nil
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight cycle: %w", ctx.Err())
	}

	err := s.stopComponents(ctx)
	s.setState(StateStopped)
	slog.Info("decision loop stopped", "iterations", s.iteration.Load())
	return err
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for !s.stopping.Load() {
		s.setState(StateRunning)
		s.runCycle(ctx)
		if s.stopping.Load() {
			return
		}

		s.setState(StateScheduled)
		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-timer.C:
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// runCycle never returns an error: every failure, panics included, ends here.
func (s *Scheduler) runCycle(ctx context.Context) {
	n := s.iteration.Add(1)
	metrics.LoopIteration.Set(float64(n))
	report := CycleReport{Iteration: n, StartedAt: time.Now().UTC(), Actions: []string{}}

	defer func() {
		if r := recover(); r != nil {
			report.Status = "failed"
			report.Error = fmt.Sprintf("panic: %v", r)
		}
		report.Duration = time.Since(report.StartedAt)
		if report.Status == "failed" {
			slog.Error("cycle failed", "iteration", n, "error", report.Error, "duration", report.Duration)
			s.publish(ctx, effector.State{Iteration: n, Status: "failed"})
		} else {
			slog.Info("cycle completed", "iteration", n, "status", report.Status, "actions", report.Actions, "duration", report.Duration)
		}
		metrics.CyclesTotal.WithLabelValues(report.Status).Inc()
		metrics.CycleDuration.Observe(report.Duration.Seconds())

		s.mu.Lock()
		s.last = &report
		s.mu.Unlock()
	}()

	rec, res, err := s.decide(ctx, n)
	report.Actions = res.Executed
	if err != nil {
		report.Status = "failed"
		report.Error = err.Error()
		return
	}

	report.Status = cycleStatus(res)
	s.publish(ctx, effector.State{
		Iteration:  n,
		Status:     report.Status,
		Thought:    rec.Thought,
		Text:       rec.Text,
		Actions:    rec.Actions,
		Providers:  rec.Providers,
		Evaluators: rec.Evaluators,
		Simple:     rec.Simple,
	})
}

func (s *Scheduler) decide(ctx context.Context, n int64) (decision.Record, Result, error) {
	snap := s.composer.Build(ctx, n)
	prompt := s.composer.Prompt(snap)

	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReasoningTimeout)
	raw, err := s.reasoner.Complete(rctx, prompt)
	cancel()
	if err != nil {
		return decision.Record{}, Result{Executed: []string{}}, fmt.Errorf("reasoning call: %w", err)
	}

	rec := decision.Parse(raw)
	if len(rec.Issues) > 0 {
		slog.Warn("recovered from malformed decision", "iteration", n, "issues", rec.Issues)
		metrics.ParseIssuesTotal.Add(float64(len(rec.Issues)))
	}

	res, err := s.dispatcher.Dispatch(ctx, n, rec)
	if err != nil {
		return rec, res, fmt.Errorf("dispatching decision: %w", err)
	}
	return rec, res, nil
}

func cycleStatus(res Result) string {
	switch {
	case res.NotUnderstood:
		return "confused"
	case len(res.Executed) == 0:
		return "idle"
	case len(res.Executed) == 1 && res.Executed[0] == ActionIdle:
		return "idle"
	default:
		return "acting"
	}
}

func (s *Scheduler) publish(ctx context.Context, st effector.State) {
	st.Agent = s.cfg.Agent
	if st.Actions == nil {
		st.Actions = []string{}
	}
	if st.Providers == nil {
		st.Providers = []string{}
	}
	if st.Evaluators == nil {
		st.Evaluators = []string{}
	}
	s.publisher.PublishState(ctx, st, effector.Options{})
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.state = st
}

// Iteration is the number of cycles begun so far.
func (s *Scheduler) Iteration() int64 {
	return s.iteration.Load()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stopping reports whether a stop was requested.
func (s *Scheduler) Stopping() bool {
	return s.stopping.Load()
}

// Status is a point-in-time view of the loop.
type Status struct {
	Agent      string       `json:"agent"`
	State      State        `json:"state"`
	Iteration  int64        `json:"iteration"`
	IntervalMs int64        `json:"interval_ms"`
	Stopping   bool         `json:"stopping"`
	LastCycle  *CycleReport `json:"last_cycle,omitempty"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Agent:      s.cfg.Agent,
		State:      s.state,
		Iteration:  s.iteration.Load(),
		IntervalMs: s.cfg.Interval.Milliseconds(),
		Stopping:   s.stopping.Load(),
	}
	if s.last != nil {
		last := *s.last
		st.LastCycle = &last
	}
	return st
}

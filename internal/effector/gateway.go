// Package effector delivers the agent's decisions to the avatar and the
// shared blackboard. Delivery problems are reported as outcomes, never as
// errors, so they cannot fail a decision cycle.
package effector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aiox-platform/mindloop/internal/metrics"
	inats "github.com/aiox-platform/mindloop/internal/nats"
)

// State is the agent state published on the blackboard.
type State = inats.StateEvent

// Avatar renders speech.
type Avatar interface {
	Send(ctx context.Context, text string, metadata map[string]string) error
}

// Blackboard shares agent state with other participants. *nats.Publisher
// satisfies it.
type Blackboard interface {
	PublishState(ctx context.Context, state State) error
}

// Outcome is the result of one delivery attempt.
type Outcome string

const (
	Delivered   Outcome = "delivered"
	Skipped     Outcome = "skipped"
	Unavailable Outcome = "unavailable"
	Failed      Outcome = "failed"
)

// Options controls a single delivery.
type Options struct {
	// Force delivers even when the target's activation gate is closed.
	Force bool
}

// Activation reports the gate state of both targets.
type Activation struct {
	Avatar     bool `json:"avatar"`
	Blackboard bool `json:"blackboard"`
}

const defaultTimeout = 10 * time.Second

// Gateway gates and times out calls to the avatar and blackboard. Both gates
// start closed.
type Gateway struct {
	avatar     Avatar
	blackboard Blackboard
	timeout    time.Duration

	avatarOn     atomic.Bool
	blackboardOn atomic.Bool
}

// NewGateway creates a Gateway. Either target may be nil.
func NewGateway(avatar Avatar, blackboard Blackboard, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gateway{avatar: avatar, blackboard: blackboard, timeout: timeout}
}

func (g *Gateway) SetAvatarActive(on bool)     { g.avatarOn.Store(on) }
func (g *Gateway) SetBlackboardActive(on bool) { g.blackboardOn.Store(on) }

func (g *Gateway) Activation() Activation {
	return Activation{Avatar: g.avatarOn.Load(), Blackboard: g.blackboardOn.Load()}
}

// Send speaks text through the avatar.
func (g *Gateway) Send(ctx context.Context, text string, metadata map[string]string, opts Options) Outcome {
	if g.avatar == nil {
		return g.record("avatar", Unavailable)
	}
	return g.deliver(ctx, "avatar", g.avatarOn.Load(), opts, func(ctx context.Context) error {
		return g.avatar.Send(ctx, text, metadata)
	})
}

// PublishState shares state on the blackboard.
func (g *Gateway) PublishState(ctx context.Context, state State, opts Options) Outcome {
	if g.blackboard == nil {
		return g.record("blackboard", Unavailable)
	}
	if state.Timestamp.IsZero() {
		state.Timestamp = time.Now().UTC()
	}
	return g.deliver(ctx, "blackboard", g.blackboardOn.Load(), opts, func(ctx context.Context) error {
		return g.blackboard.PublishState(ctx, state)
	})
}

func (g *Gateway) deliver(ctx context.Context, target string, active bool, opts Options, call func(context.Context) error) Outcome {
	if !active && !opts.Force {
		slog.Debug("effector: gate closed, skipping", "target", target)
		return g.record(target, Skipped)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := call(ctx); err != nil {
		slog.Warn("effector: delivery failed", "target", target, "forced", opts.Force, "error", err)
		return g.record(target, Failed)
	}
	return g.record(target, Delivered)
}

func (g *Gateway) record(target string, o Outcome) Outcome {
	metrics.EffectorCallsTotal.WithLabelValues(target, string(o)).Inc()
	return o
}

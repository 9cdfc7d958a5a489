package xmpp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	"github.com/aiox-platform/mindloop/internal/config"
)

// ErrNotConnected is returned when sending before the stream is up.
var ErrNotConnected = errors.New("xmpp component not connected")

// Component manages the XMPP external component lifecycle (XEP-0114).
type Component struct {
	sm        *xmpp.StreamManager
	comp      *xmpp.Component
	domain    string
	connected atomic.Bool

	mu   sync.Mutex
	done chan struct{}
}

// NewComponent creates a new XMPP component with the given handler.
func NewComponent(cfg config.XMPPConfig, handler *Handler) (*Component, error) {
	router := xmpp.NewRouter()
	router.HandleFunc("message", handler.HandleMessage)
	router.HandleFunc("presence", handler.HandlePresence)

	opts := xmpp.ComponentOptions{
		TransportConfiguration: xmpp.TransportConfiguration{
			Address: cfg.Address(),
			Domain:  cfg.Domain,
		},
		Domain:   cfg.Domain,
		Secret:   cfg.Secret,
		Name:     "mindloop avatar bridge",
		Category: "gateway",
		Type:     "service",
	}

	c := &Component{domain: cfg.Domain}
	comp, err := xmpp.NewComponent(opts, router, func(err error) {
		c.connected.Store(false)
		slog.Error("XMPP component error", "error", err)
	})
	if err != nil {
		return nil, err
	}
	c.comp = comp
	c.sm = xmpp.NewStreamManager(comp, func(s xmpp.Sender) {
		c.connected.Store(true)
		slog.Info("XMPP component connected", "domain", cfg.Domain)
	})
	return c, nil
}

// Start connects in the background. The stream manager reconnects on its own.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return nil
	}

	c.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := c.sm.Run(); err != nil {
			slog.Error("XMPP stream manager exited", "error", err)
		}
		c.connected.Store(false)
	}(c.done)
	return nil
}

// Stop disconnects the component and waits for the stream manager to exit.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.done = nil
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	c.sm.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Domain is the component's JID domain.
func (c *Component) Domain() string {
	return c.domain
}

// Send writes a stanza on the component stream.
func (c *Component) Send(p stanza.Packet) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return c.comp.Send(p)
}

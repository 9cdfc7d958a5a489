package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aiox-platform/mindloop/internal/config"
)

// Client is the agent's connection to the blackboard.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects to NATS and ensures the state and knowledge streams.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("blackboard disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("blackboard reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	c := &Client{conn: nc, js: js}
	if err := c.ensureStreams(ctx, cfg); err != nil {
		nc.Close()
		return nil, err
	}

	slog.Info("connected to blackboard", "url", cfg.URL, "name", cfg.Name)
	return c, nil
}

// ensureStreams keeps the last StateHistory events per agent subject, and
// holds knowledge messages until the ingestor acks or terminates them.
func (c *Client) ensureStreams(ctx context.Context, cfg config.NATSConfig) error {
	stateHistory := cfg.StateHistory
	if stateHistory <= 0 {
		stateHistory = 100
	}
	knowledgeAge := cfg.KnowledgeMaxAge
	if knowledgeAge <= 0 {
		knowledgeAge = 24 * time.Hour
	}

	streams := []jetstream.StreamConfig{
		{
			Name:              StreamState,
			Subjects:          []string{SubjectStatePrefix + ".>"},
			Retention:         jetstream.LimitsPolicy,
			MaxMsgsPerSubject: stateHistory,
			Discard:           jetstream.DiscardOld,
		},
		{
			Name:       StreamKnowledge,
			Subjects:   []string{SubjectKnowledgeAll},
			Retention:  jetstream.WorkQueuePolicy,
			MaxAge:     knowledgeAge,
			Duplicates: 2 * time.Minute,
		},
	}

	for _, sc := range streams {
		if _, err := c.js.CreateOrUpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("ensuring stream %s: %w", sc.Name, err)
		}
		slog.Debug("ensured blackboard stream", "name", sc.Name)
	}
	return nil
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Healthy reports whether the connection is up.
func (c *Client) Healthy() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains pending publishes and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining blackboard connection", "error", err)
	}
}

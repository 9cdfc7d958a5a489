package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher writes agent state and knowledge onto the blackboard.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishState publishes an agent state snapshot on mindloop.state.<agent>.
func (p *Publisher) PublishState(ctx context.Context, event StateEvent) error {
	return p.publish(ctx, SubjectStatePrefix+"."+SubjectToken(event.Agent), event)
}

// PublishKnowledge publishes a knowledge item for ingestion on
// mindloop.knowledge.<kind>.
func (p *Publisher) PublishKnowledge(ctx context.Context, msg KnowledgeMessage) error {
	var opts []jetstream.PublishOpt
	if msg.ID != "" {
		opts = append(opts, jetstream.WithMsgID(msg.ID))
	}
	return p.publish(ctx, SubjectKnowledgePrefix+"."+SubjectToken(msg.Kind), msg, opts...)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any, opts ...jetstream.PublishOpt) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload, opts...); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// SubjectToken makes s safe as a single subject token. Separators,
// wildcards and whitespace become underscores. Empty input becomes "_".
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	defaultAckWait    = 30 * time.Second
	defaultMaxDeliver = 5
)

// ConsumerManager creates the durable consumers blackboard readers fetch from.
type ConsumerManager struct {
	js         jetstream.JetStream
	ackWait    time.Duration
	maxDeliver int
}

// NewConsumerManager creates a ConsumerManager. Messages are redelivered at
// most five times, thirty seconds apart, before JetStream gives up on them.
func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js, ackWait: defaultAckWait, maxDeliver: defaultMaxDeliver}
}

// EnsureConsumer creates or updates a durable pull consumer on stream.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error) {
	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cm.ackWait,
		MaxDeliver:    cm.maxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, stream, err)
	}
	return consumer, nil
}

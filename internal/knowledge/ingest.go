package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aiox-platform/mindloop/internal/memory"
	inats "github.com/aiox-platform/mindloop/internal/nats"
)

const consumerName = "knowledge-ingest"

// ConsumerSource creates durable JetStream consumers.
type ConsumerSource interface {
	EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error)
}

// MemoryRecorder stores items that arrive with an importance score.
type MemoryRecorder interface {
	Record(ctx context.Context, in memory.NewRecord) (memory.Record, error)
}

// Ingestor feeds blackboard knowledge messages into the Store.
type Ingestor struct {
	consumers ConsumerSource
	store     *Store
	memory    MemoryRecorder

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewIngestor creates an Ingestor. recorder may be nil.
func NewIngestor(consumers ConsumerSource, store *Store, recorder MemoryRecorder) *Ingestor {
	return &Ingestor{consumers: consumers, store: store, memory: recorder}
}

// Start ensures the durable consumer and begins fetching in the background.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel != nil {
		return nil
	}

	consumer, err := i.consumers.EnsureConsumer(ctx, inats.StreamKnowledge, consumerName, inats.SubjectKnowledgeAll)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	i.cancel = cancel
	i.done = make(chan struct{})
	go i.run(runCtx, consumer, i.done)

	slog.Info("knowledge ingestor started", "consumer", consumerName)
	return nil
}

// Stop halts fetching and waits for the current batch to finish.
func (i *Ingestor) Stop(ctx context.Context) error {
	i.mu.Lock()
	cancel, done := i.cancel, i.done
	i.cancel, i.done = nil, nil
	i.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Ingestor) run(ctx context.Context, consumer jetstream.Consumer, done chan struct{}) {
	defer close(done)
	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Debug("fetching knowledge messages", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			if err := i.Handle(ctx, msg.Data()); err != nil {
				slog.Warn("rejecting knowledge message", "error", err, "subject", msg.Subject())
				_ = msg.Term()
				continue
			}
			_ = msg.Ack()
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// Handle applies one encoded KnowledgeMessage.
func (i *Ingestor) Handle(ctx context.Context, data []byte) error {
	var msg inats.KnowledgeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshaling knowledge message: %w", err)
	}
	kind, err := ParseKind(msg.Kind)
	if err != nil {
		return err
	}
	if msg.Content == "" {
		return errors.New("knowledge message has no content")
	}

	i.store.Add(kind, msg.Content, msg.Source)

	if msg.Importance != nil && i.memory != nil {
		_, err := i.memory.Record(ctx, memory.NewRecord{
			Content:    msg.Content,
			Source:     msg.Source,
			Importance: *msg.Importance,
		})
		if err != nil {
			slog.Warn("recording ingested knowledge", "error", err)
		}
	}
	return nil
}

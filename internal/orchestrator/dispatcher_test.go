package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/mindloop/internal/decision"
	"github.com/aiox-platform/mindloop/internal/diversity"
)

type callLog struct {
	calls []string
}

func (c *callLog) handler(err error) HandlerFunc {
	return func(_ context.Context, ac ActionContext) error {
		c.calls = append(c.calls, ac.Action)
		return err
	}
}

func TestNewDispatcher_DefaultMustBeRegistered(t *testing.T) {
	_, err := NewDispatcher(NewRegistry(), diversity.NewTracker(nil), "SPEAK")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestDispatcher_Dispatch(t *testing.T) {
	setup := func(t *testing.T, opts ...DispatcherOption) (*Dispatcher, *diversity.Tracker, *callLog) {
		t.Helper()
		log := &callLog{}
		reg := NewRegistry()
		require.NoError(t, reg.Register("SPEAK", "speak", log.handler(nil)))
		require.NoError(t, reg.Register("REFLECT", "reflect", log.handler(errors.New("store full"))))
		require.NoError(t, reg.Register("IDLE", "idle", log.handler(nil)))
		tracker := diversity.NewTracker(nil)
		d, err := NewDispatcher(reg, tracker, "SPEAK", opts...)
		require.NoError(t, err)
		return d, tracker, log
	}

	t.Run("runs actions in order and tracks them", func(t *testing.T) {
		d, tracker, log := setup(t)
		res, err := d.Dispatch(context.Background(), 4, decision.Record{Actions: []string{"IDLE", "SPEAK"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"IDLE", "SPEAK"}, res.Executed)
		assert.Equal(t, []string{"IDLE", "SPEAK"}, log.calls)

		entries := tracker.Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, "SPEAK", entries[1].Action)
		assert.Equal(t, int64(4), entries[1].Iteration)
	})

	t.Run("text without actions uses the default", func(t *testing.T) {
		d, _, log := setup(t)
		res, err := d.Dispatch(context.Background(), 1, decision.Record{Text: "hi"})
		require.NoError(t, err)
		assert.True(t, res.Defaulted)
		assert.Equal(t, []string{"SPEAK"}, log.calls)
	})

	t.Run("unknown actions are skipped", func(t *testing.T) {
		d, tracker, log := setup(t)
		res, err := d.Dispatch(context.Background(), 1, decision.Record{Actions: []string{"DANCE", "IDLE"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"DANCE"}, res.Unknown)
		assert.Equal(t, []string{"IDLE"}, log.calls)
		assert.Equal(t, map[string]int{"IDLE": 1}, tracker.Counts())
	})

	t.Run("handler errors are joined after every action ran", func(t *testing.T) {
		d, tracker, log := setup(t)
		res, err := d.Dispatch(context.Background(), 2, decision.Record{Actions: []string{"REFLECT", "SPEAK"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "action REFLECT: store full")
		assert.Equal(t, []string{"REFLECT", "SPEAK"}, log.calls)
		assert.Equal(t, []string{"REFLECT", "SPEAK"}, res.Executed)
		assert.Len(t, tracker.Entries(), 2)
	})

	t.Run("not understood runs the confusion handler", func(t *testing.T) {
		var confusedAt int64
		d, tracker, log := setup(t, WithConfusionHandler(func(_ context.Context, iteration int64, _ decision.Record) {
			confusedAt = iteration
		}))
		res, err := d.Dispatch(context.Background(), 9, decision.Record{Thought: "hmm"})
		require.NoError(t, err)
		assert.True(t, res.NotUnderstood)
		assert.Equal(t, int64(9), confusedAt)
		assert.Empty(t, log.calls)
		assert.Empty(t, tracker.Entries())
	})
}

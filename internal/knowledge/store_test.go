package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/mindloop/internal/memory"
)

func TestStore_RecentMostRecentLast(t *testing.T) {
	s := NewStore(10)
	for i := 1; i <= 7; i++ {
		s.Add(KindStrategic, fmt.Sprintf("goal %d", i), "")
	}

	got, err := s.Recent(context.Background(), KindStrategic, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "goal 3", got[0].Content)
	assert.Equal(t, "goal 7", got[4].Content)
}

func TestStore_BoundedPerKind(t *testing.T) {
	s := NewStore(3)
	for i := 1; i <= 5; i++ {
		s.Add(KindResearch, fmt.Sprintf("finding %d", i), "web")
	}
	s.Add(KindStrategic, "only goal", "")

	assert.Equal(t, 3, s.Len(KindResearch))
	assert.Equal(t, 1, s.Len(KindStrategic))

	got, err := s.Recent(context.Background(), KindResearch, 10)
	require.NoError(t, err)
	assert.Equal(t, "finding 3", got[0].Content)
}

func TestStore_RecentEmpty(t *testing.T) {
	got, err := NewStore(5).Recent(context.Background(), KindResearch, 3)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("research")
	require.NoError(t, err)
	assert.Equal(t, KindResearch, k)

	_, err = ParseKind("gossip")
	assert.Error(t, err)
}

type recorderFunc func(ctx context.Context, in memory.NewRecord) (memory.Record, error)

func (f recorderFunc) Record(ctx context.Context, in memory.NewRecord) (memory.Record, error) {
	return f(ctx, in)
}

func TestIngestor_Handle(t *testing.T) {
	store := NewStore(10)
	var recorded []memory.NewRecord
	ing := NewIngestor(nil, store, recorderFunc(func(_ context.Context, in memory.NewRecord) (memory.Record, error) {
		recorded = append(recorded, in)
		return memory.Record{}, nil
	}))
	ctx := context.Background()

	require.NoError(t, ing.Handle(ctx, []byte(`{"kind":"strategic","content":"grow the audience","source":"planner"}`)))
	require.NoError(t, ing.Handle(ctx, []byte(`{"kind":"research","content":"mornings get more replies","importance":0.6}`)))

	assert.Equal(t, 1, store.Len(KindStrategic))
	assert.Equal(t, 1, store.Len(KindResearch))
	require.Len(t, recorded, 1)
	assert.Equal(t, "mornings get more replies", recorded[0].Content)
	assert.InDelta(t, 0.6, recorded[0].Importance, 1e-9)
}

func TestIngestor_HandleRejectsMalformed(t *testing.T) {
	ing := NewIngestor(nil, NewStore(10), nil)
	ctx := context.Background()

	for _, data := range []string{`nope`, `{"kind":"gossip","content":"x"}`, `{"kind":"research"}`} {
		assert.Error(t, ing.Handle(ctx, []byte(data)), "payload %s", data)
	}
}

func TestIngestor_StopWithoutStart(t *testing.T) {
	ing := NewIngestor(nil, NewStore(1), nil)
	assert.NoError(t, ing.Stop(context.Background()))
}

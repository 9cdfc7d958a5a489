package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memArchive is an in-memory ArchiveStore.
type memArchive struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	order   []uuid.UUID
	fail    error
	pingErr error
}

func newMemArchive() *memArchive {
	return &memArchive{records: make(map[uuid.UUID]Record)}
}

func (a *memArchive) Archive(_ context.Context, recs []Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return a.fail
	}
	for _, r := range recs {
		if _, ok := a.records[r.ID]; ok {
			continue
		}
		a.records[r.ID] = r
		a.order = append(a.order, r.ID)
	}
	return nil
}

func (a *memArchive) Stats(_ context.Context) (ArchiveStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return ArchiveStats{}, a.fail
	}
	var s ArchiveStats
	for _, r := range a.records {
		s.Total++
		s.AverageImportance += r.Importance
	}
	if s.Total > 0 {
		s.AverageImportance /= float64(s.Total)
	}
	return s, nil
}

func (a *memArchive) Search(_ context.Context, query string, limit int) ([]Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return nil, a.fail
	}
	out := make([]Record, 0)
	for _, id := range a.order {
		r := a.records[id]
		if strings.Contains(strings.ToLower(r.Content), strings.ToLower(query)) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (a *memArchive) SearchSimilar(ctx context.Context, _ []float32, limit int) ([]Record, error) {
	return a.Search(ctx, "", limit)
}

func (a *memArchive) Touch(_ context.Context, at time.Time, ids ...uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		r := a.records[id]
		r.LastAccessedAt = at
		a.records[id] = r
	}
	return nil
}

func (a *memArchive) Ping(context.Context) error { return a.pingErr }

func (a *memArchive) has(id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.records[id]
	return ok
}

func newTestEngine(t *testing.T, cfg ArchiveConfig, archive *memArchive, opts ...Option) (*Engine, *RedisActiveStore, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	active := NewRedisActiveStore(client, "test:memory")
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	eng, err := NewEngine(cfg, active, archive, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return eng, active, clock
}

func record(t *testing.T, eng *Engine, content string, importance float64) Record {
	t.Helper()
	rec, err := eng.Record(context.Background(), NewRecord{Content: content, Importance: importance})
	require.NoError(t, err)
	return rec
}

func TestEngine_SweepArchivesAgedRecordsAndRespectsLimit(t *testing.T) {
	cfg := ArchiveConfig{
		ActiveMemoryLimit:       5,
		TimeBasedThresholdHours: 48,
		ImportanceFloor:         0.3,
		StaleAccessHours:        336,
		BatchSize:               4,
		IntervalMinutes:         30,
	}
	archive := newMemArchive()
	eng, active, clock := newTestEngine(t, cfg, archive)
	ctx := context.Background()

	var old []Record
	for i := 0; i < 4; i++ {
		old = append(old, record(t, eng, "old", 0.8))
	}
	clock.Advance(100 * time.Hour)
	for i := 0; i < 4; i++ {
		record(t, eng, "fresh", 0.8)
	}

	res, err := eng.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 8, res.Scanned)
	assert.Equal(t, 4, res.Archived)
	assert.Equal(t, 4, res.Active)
	for _, r := range old {
		assert.True(t, archive.has(r.ID), "record %s should be archived", r.ID)
	}

	n, err := active.Count(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(cfg.ActiveMemoryLimit))
}

func TestEngine_LowImportanceArchivedOnFirstSweep(t *testing.T) {
	cfg := ArchiveConfig{
		ActiveMemoryLimit:       100,
		TimeBasedThresholdHours: 720,
		ImportanceFloor:         0.3,
		StaleAccessHours:        336,
		BatchSize:               10,
		IntervalMinutes:         30,
	}
	archive := newMemArchive()
	eng, _, clock := newTestEngine(t, cfg, archive)
	ctx := context.Background()

	rec := record(t, eng, "minor observation", 0.2)
	keep := record(t, eng, "important insight", 0.9)
	clock.Advance(50 * time.Hour)

	// Recently accessed does not protect it.
	recalled := eng.Recall(ctx, "minor", 5)
	require.Len(t, recalled, 1)

	res, err := eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archived)
	assert.True(t, archive.has(rec.ID))
	assert.False(t, archive.has(keep.ID))
}

func TestEngine_UnboundedThresholdsKeepFreshRecords(t *testing.T) {
	for _, h := range []float64{1e7, math.Inf(1)} {
		cfg := ArchiveConfig{
			ActiveMemoryLimit:       100,
			TimeBasedThresholdHours: h,
			ImportanceFloor:         0.3,
			StaleAccessHours:        h,
			BatchSize:               10,
			IntervalMinutes:         30,
		}
		require.NoError(t, cfg.Validate())
		archive := newMemArchive()
		eng, _, clock := newTestEngine(t, cfg, archive)

		rec := record(t, eng, "important insight", 0.9)
		clock.Advance(time.Hour)

		res, err := eng.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, res.Eligible, "threshold %g", h)
		assert.Equal(t, 0, res.Archived, "threshold %g", h)
		assert.False(t, archive.has(rec.ID))
	}
}

func TestEngine_StaleAccessTriggersArchive(t *testing.T) {
	cfg := ArchiveConfig{
		ActiveMemoryLimit:       100,
		TimeBasedThresholdHours: 10000,
		ImportanceFloor:         0,
		StaleAccessHours:        24,
		BatchSize:               10,
		IntervalMinutes:         30,
	}
	archive := newMemArchive()
	eng, _, clock := newTestEngine(t, cfg, archive)
	ctx := context.Background()

	stale := record(t, eng, "forgotten", 0.5)
	touched := record(t, eng, "remembered", 0.5)
	clock.Advance(20 * time.Hour)
	require.Len(t, eng.Recall(ctx, "remembered", 1), 1)
	clock.Advance(10 * time.Hour)

	res, err := eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archived)
	assert.True(t, archive.has(stale.ID))
	assert.False(t, archive.has(touched.ID))
}

func TestEngine_SweepSingleBatchWhenWithinLimit(t *testing.T) {
	cfg := ArchiveConfig{
		ActiveMemoryLimit:       100,
		TimeBasedThresholdHours: 1,
		ImportanceFloor:         0,
		StaleAccessHours:        1000,
		BatchSize:               3,
		IntervalMinutes:         30,
	}
	archive := newMemArchive()
	eng, _, clock := newTestEngine(t, cfg, archive)

	var recs []Record
	for i := 0; i < 10; i++ {
		recs = append(recs, record(t, eng, "note", 0.5))
		clock.Advance(time.Minute)
	}
	clock.Advance(2 * time.Hour)

	res, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Eligible)
	assert.Equal(t, 3, res.Archived)
	assert.Equal(t, 1, res.Passes)
	for _, r := range recs[:3] {
		assert.True(t, archive.has(r.ID), "oldest records go first")
	}
}

func TestEngine_SweepContinuesWhileOverLimit(t *testing.T) {
	cfg := ArchiveConfig{
		ActiveMemoryLimit:       3,
		TimeBasedThresholdHours: 1000,
		ImportanceFloor:         0.5,
		StaleAccessHours:        1000,
		BatchSize:               2,
		IntervalMinutes:         30,
	}
	archive := newMemArchive()
	eng, active, clock := newTestEngine(t, cfg, archive)

	for i := 0; i < 10; i++ {
		record(t, eng, "trivia", 0.1)
		clock.Advance(time.Second)
	}

	res, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Passes)
	assert.Equal(t, 8, res.Archived)
	assert.Equal(t, 2, res.Active)

	n, err := active.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestEngine_SweepNeverEvictsIneligible(t *testing.T) {
	cfg := ArchiveConfig{
		ActiveMemoryLimit:       2,
		TimeBasedThresholdHours: 48,
		ImportanceFloor:         0.3,
		StaleAccessHours:        336,
		BatchSize:               10,
		IntervalMinutes:         30,
	}
	archive := newMemArchive()
	eng, _, _ := newTestEngine(t, cfg, archive)

	for i := 0; i < 5; i++ {
		record(t, eng, "core belief", 0.9)
	}

	res, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Archived)
	assert.Equal(t, 5, res.Active)
}

func TestEngine_ArchiveFailureKeepsRecordsActive(t *testing.T) {
	cfg := validArchiveConfig()
	cfg.ImportanceFloor = 0.5
	archive := newMemArchive()
	eng, active, _ := newTestEngine(t, cfg, archive)
	ctx := context.Background()

	record(t, eng, "fragile", 0.1)
	archive.fail = errors.New("connection refused")

	_, err := eng.Sweep(ctx)
	require.Error(t, err)

	n, err := active.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEngine_StatsZeroWhenEmpty(t *testing.T) {
	eng, _, _ := newTestEngine(t, validArchiveConfig(), newMemArchive())

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestEngine_StatsAfterSweep(t *testing.T) {
	cfg := validArchiveConfig()
	cfg.ImportanceFloor = 0.5
	archive := newMemArchive()
	eng, _, _ := newTestEngine(t, cfg, archive)
	ctx := context.Background()

	record(t, eng, "a", 0.1)
	record(t, eng, "b", 0.3)
	record(t, eng, "c", 0.9)
	_, err := eng.Sweep(ctx)
	require.NoError(t, err)

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalArchived)
	assert.InDelta(t, 0.2, stats.AverageImportance, 1e-9)
	assert.Equal(t, int64(1), stats.ActiveCount)
}

func TestEngine_RetrieveDegradesToEmpty(t *testing.T) {
	archive := newMemArchive()
	eng, _, _ := newTestEngine(t, validArchiveConfig(), archive)
	archive.fail = errors.New("archive unreachable")

	got := eng.Retrieve(context.Background(), "anything", 5)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestEngine_RetrieveTouchesResults(t *testing.T) {
	cfg := validArchiveConfig()
	cfg.ImportanceFloor = 0.5
	archive := newMemArchive()
	eng, _, clock := newTestEngine(t, cfg, archive)
	ctx := context.Background()

	rec := record(t, eng, "the launch date is Friday", 0.1)
	_, err := eng.Sweep(ctx)
	require.NoError(t, err)

	clock.Advance(3 * time.Hour)
	got := eng.Retrieve(ctx, "launch", 5)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, TierArchived, got[0].Tier)
	assert.Equal(t, clock.Now().UTC(), archive.records[rec.ID].LastAccessedAt)
}

func TestEngine_RecallActiveThenArchive(t *testing.T) {
	cfg := validArchiveConfig()
	cfg.ImportanceFloor = 0.5
	archive := newMemArchive()
	eng, _, clock := newTestEngine(t, cfg, archive)
	ctx := context.Background()

	archived := record(t, eng, "weather was rainy", 0.1)
	_, err := eng.Sweep(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	act := record(t, eng, "weather is sunny", 0.9)

	got := eng.Recall(ctx, "weather", 5)
	require.Len(t, got, 2)
	assert.Equal(t, act.ID, got[0].ID)
	assert.Equal(t, archived.ID, got[1].ID)
}

func TestEngine_StartFailureDisablesEngine(t *testing.T) {
	archive := newMemArchive()
	archive.pingErr = errors.New("dial tcp: connection refused")
	eng, _, _ := newTestEngine(t, validArchiveConfig(), archive)
	ctx := context.Background()

	require.Error(t, eng.Start(ctx))
	assert.False(t, eng.Enabled())

	_, err := eng.Stats(ctx)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = eng.Record(ctx, NewRecord{Content: "x", Importance: 0.5})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Empty(t, eng.Retrieve(ctx, "x", 3))
	assert.Empty(t, eng.Recall(ctx, "x", 3))

	// Stays disabled even once the store recovers.
	archive.pingErr = nil
	assert.ErrorIs(t, eng.Start(ctx), ErrDisabled)
}

func TestEngine_StartStopIdempotent(t *testing.T) {
	eng, _, _ := newTestEngine(t, validArchiveConfig(), newMemArchive())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, eng.Start(ctx))
	require.NoError(t, eng.Start(ctx))
	require.NoError(t, eng.Stop(ctx))
	require.NoError(t, eng.Stop(ctx))
	assert.True(t, eng.Enabled())
}

func TestEngine_RecordValidatesImportance(t *testing.T) {
	eng, _, _ := newTestEngine(t, validArchiveConfig(), newMemArchive())
	ctx := context.Background()

	for _, v := range []float64{-0.01, 1.01} {
		_, err := eng.Record(ctx, NewRecord{Content: "x", Importance: v})
		assert.ErrorIs(t, err, ErrInvalidImportance)
	}
	_, err := eng.Record(ctx, NewRecord{Content: "", Importance: 0.5})
	assert.Error(t, err)
}

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestEngine_RecordEmbedsWhenConfigured(t *testing.T) {
	emb := &stubEmbedder{}
	eng, active, _ := newTestEngine(t, validArchiveConfig(), newMemArchive(), WithEmbedder(emb))
	ctx := context.Background()

	rec := record(t, eng, "vectorised", 0.5)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, rec.Embedding)

	emb.err = errors.New("embedding service down")
	rec = record(t, eng, "plain", 0.5)
	assert.Nil(t, rec.Embedding)

	all, err := active.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	_, err := NewEngine(ArchiveConfig{}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid archive config")
}

func TestEngine_ConcurrentSweepsSerialized(t *testing.T) {
	cfg := validArchiveConfig()
	cfg.ImportanceFloor = 0.5
	archive := newMemArchive()
	eng, _, _ := newTestEngine(t, cfg, archive)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		record(t, eng, "noise", 0.1)
	}

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := eng.Sweep(ctx)
			assert.NoError(t, err)
			results[i] = res.Archived
		}(i)
	}
	wg.Wait()

	sort.Ints(results)
	total := 0
	for _, n := range results {
		total += n
	}
	assert.Equal(t, 20, total)
	assert.Len(t, archive.order, 20)
}

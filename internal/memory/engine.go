package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"

	"github.com/aiox-platform/mindloop/internal/metrics"
)

var (
	// ErrDisabled is returned once the engine failed to initialize.
	ErrDisabled = errors.New("archiving disabled")
	// ErrInvalidImportance rejects scores outside [0,1].
	ErrInvalidImportance = errors.New("importance must be in [0,1]")
)

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder enables vector search on the archive.
func WithEmbedder(e Embedder) Option {
	return func(eng *Engine) { eng.embedder = e }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) { eng.now = now }
}

// Engine keeps the active tier bounded by periodically moving records to the
// archive, and answers queries against both tiers.
type Engine struct {
	cfg      ArchiveConfig
	active   ActiveStore
	archive  ArchiveStore
	embedder Embedder
	now      func() time.Time

	sweepMu sync.Mutex

	mu       sync.Mutex
	cron     *rcron.Cron
	disabled atomic.Bool
}

// NewEngine validates cfg and wires the two tiers.
func NewEngine(cfg ArchiveConfig, active ActiveStore, archive ArchiveStore, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid archive config: %w", err)
	}
	if active == nil || archive == nil {
		return nil, errors.New("active and archive stores are required")
	}

	e := &Engine{
		cfg:     cfg,
		active:  active,
		archive: archive,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start probes both tiers and schedules the periodic sweep. A failure
// disables the engine for the rest of the process lifetime. Calling Start
// on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disabled.Load() {
		return ErrDisabled
	}
	if e.cron != nil {
		return nil
	}

	if err := e.active.Ping(ctx); err != nil {
		e.disabled.Store(true)
		return fmt.Errorf("probing active store: %w", err)
	}
	if err := e.archive.Ping(ctx); err != nil {
		e.disabled.Store(true)
		return fmt.Errorf("probing archive store: %w", err)
	}

	logger := cronLogger{}
	c := rcron.New(
		rcron.WithLogger(logger),
		rcron.WithChain(rcron.Recover(logger), rcron.SkipIfStillRunning(logger)),
	)
	c.Schedule(rcron.Every(e.cfg.Interval()), rcron.FuncJob(e.scheduledSweep))
	c.Start()
	e.cron = c

	slog.Info("archive: engine started",
		"interval", e.cfg.Interval(),
		"active_limit", e.cfg.ActiveMemoryLimit,
		"batch_size", e.cfg.BatchSize,
	)
	return nil
}

// Stop cancels the timer and waits for a running sweep to finish, bounded by
// ctx. Stopping a stopped engine is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		slog.Info("archive: engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sweep to finish: %w", ctx.Err())
	}
}

// Enabled reports whether the engine is usable.
func (e *Engine) Enabled() bool {
	return !e.disabled.Load()
}

func (e *Engine) scheduledSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Interval())
	defer cancel()

	res, err := e.Sweep(ctx)
	if err != nil {
		slog.Error("archive: sweep failed", "error", err, "archived", res.Archived)
		return
	}
	slog.Debug("archive: sweep completed",
		"scanned", res.Scanned,
		"eligible", res.Eligible,
		"archived", res.Archived,
		"passes", res.Passes,
		"active", res.Active,
	)
}

// Record adds a new record to the active tier.
func (e *Engine) Record(ctx context.Context, in NewRecord) (Record, error) {
	if e.disabled.Load() {
		return Record{}, ErrDisabled
	}
	if in.Content == "" {
		return Record{}, errors.New("content is required")
	}
	if in.Importance < 0 || in.Importance > 1 {
		return Record{}, fmt.Errorf("%w: got %g", ErrInvalidImportance, in.Importance)
	}

	now := e.now().UTC()
	rec := Record{
		ID:             uuid.New(),
		Content:        in.Content,
		Source:         in.Source,
		Importance:     in.Importance,
		Tier:           TierActive,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	if e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, in.Content)
		if err != nil {
			slog.Warn("archive: embedding record failed, storing without vector", "error", err)
		} else {
			rec.Embedding = vec
		}
	}

	if err := e.active.Add(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("recording memory: %w", err)
	}
	return rec, nil
}

// eligible reports whether rec meets any eviction condition.
func (e *Engine) eligible(rec Record, now time.Time) bool {
	if now.Sub(rec.CreatedAt) > e.cfg.ageThreshold() {
		return true
	}
	if rec.Importance < e.cfg.ImportanceFloor {
		return true
	}
	return now.Sub(rec.LastAccessedAt) > e.cfg.staleThreshold()
}

// Sweep moves eligible records to the archive, oldest created first, at most
// BatchSize per pass. Further passes run only while the active tier is over
// its limit and eligible records remain, so one call may move more than
// BatchSize records; a single-batch cap could leave the tier over its limit
// until the next tick. Each record is archived before it leaves the active
// tier.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if e.disabled.Load() {
		return SweepResult{}, ErrDisabled
	}

	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	records, err := e.active.List(ctx)
	if err != nil {
		metrics.ArchiveSweepsTotal.WithLabelValues("error").Inc()
		return SweepResult{}, fmt.Errorf("listing active records: %w", err)
	}

	now := e.now()
	candidates := make([]Record, 0)
	for _, rec := range records {
		if e.eligible(rec, now) {
			candidates = append(candidates, rec)
		}
	}

	res := SweepResult{
		Scanned:  len(records),
		Eligible: len(candidates),
		Active:   len(records),
	}

	for len(candidates) > 0 {
		if res.Passes > 0 && res.Active <= e.cfg.ActiveMemoryLimit {
			break
		}

		n := min(e.cfg.BatchSize, len(candidates))
		batch := candidates[:n]
		candidates = candidates[n:]

		if err := e.moveToArchive(ctx, batch, now); err != nil {
			metrics.ArchiveSweepsTotal.WithLabelValues("error").Inc()
			return res, err
		}

		res.Passes++
		res.Archived += n
		res.Active -= n
		metrics.ArchivedRecordsTotal.Add(float64(n))
	}

	metrics.ArchiveSweepsTotal.WithLabelValues("ok").Inc()
	metrics.ActiveRecords.Set(float64(res.Active))
	return res, nil
}

func (e *Engine) moveToArchive(ctx context.Context, batch []Record, now time.Time) error {
	ids := make([]uuid.UUID, len(batch))
	for i := range batch {
		batch[i].Tier = TierArchived
		ids[i] = batch[i].ID
	}

	if err := e.archive.Archive(ctx, batch); err != nil {
		return fmt.Errorf("archiving %d records: %w", len(batch), err)
	}
	if err := e.active.Remove(ctx, ids...); err != nil {
		return fmt.Errorf("removing %d archived records from active tier: %w", len(batch), err)
	}

	slog.Info("archive: records archived", "count", len(batch), "at", now.UTC())
	return nil
}

// Stats reports archive totals and the current active count. With nothing
// archived it returns zeros.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	if e.disabled.Load() {
		return Stats{}, ErrDisabled
	}

	as, err := e.archive.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	active, err := e.active.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalArchived:     as.Total,
		AverageImportance: as.AverageImportance,
		ActiveCount:       active,
	}, nil
}

// Retrieve looks query up in the archive. It never fails: on any error it
// logs and returns an empty slice. Returned records are marked accessed.
func (e *Engine) Retrieve(ctx context.Context, query string, limit int) []Record {
	if e.disabled.Load() || limit <= 0 {
		return []Record{}
	}

	recs, err := e.searchArchive(ctx, query, limit)
	if err != nil {
		slog.Warn("archive: retrieve failed", "error", err, "query", query)
		return []Record{}
	}

	now := e.now().UTC()
	if err := e.archive.Touch(ctx, now, ids(recs)...); err != nil {
		slog.Warn("archive: touching retrieved records", "error", err)
	}
	for i := range recs {
		recs[i].LastAccessedAt = now
	}
	return recs
}

func (e *Engine) searchArchive(ctx context.Context, query string, limit int) ([]Record, error) {
	if e.embedder != nil && query != "" {
		vec, err := e.embedder.Embed(ctx, query)
		if err == nil {
			return e.archive.SearchSimilar(ctx, vec, limit)
		}
		slog.Debug("archive: embedding query failed, using text search", "error", err)
	}
	return e.archive.Search(ctx, query, limit)
}

// Recall searches the active tier first and fills the remainder from the
// archive. Like Retrieve it degrades to an empty result.
func (e *Engine) Recall(ctx context.Context, query string, limit int) []Record {
	if e.disabled.Load() || limit <= 0 {
		return []Record{}
	}

	out := make([]Record, 0, limit)
	active, err := e.active.Search(ctx, query, limit)
	if err != nil {
		slog.Warn("archive: active search failed", "error", err, "query", query)
	} else if len(active) > 0 {
		now := e.now().UTC()
		if err := e.active.Touch(ctx, now, ids(active)...); err != nil {
			slog.Warn("archive: touching active records", "error", err)
		}
		for i := range active {
			active[i].LastAccessedAt = now
		}
		out = append(out, active...)
	}

	if remaining := limit - len(out); remaining > 0 {
		out = append(out, e.Retrieve(ctx, query, remaining)...)
	}
	return out
}

func ids(recs []Record) []uuid.UUID {
	out := make([]uuid.UUID, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

// cronLogger routes robfig/cron logs through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("archive: cron "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("archive: cron "+msg, append([]any{"error", err}, keysAndValues...)...)
}

// Package composer builds the per-iteration context snapshot and the prompt
// sent to the reasoning service.
package composer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/aiox-platform/mindloop/internal/diversity"
	"github.com/aiox-platform/mindloop/internal/knowledge"
	"github.com/aiox-platform/mindloop/internal/memory"
)

const (
	strategicLimit = 5
	researchLimit  = 3
	actionLimit    = 5
)

// KnowledgeSource supplies recent knowledge items, most recent last.
type KnowledgeSource interface {
	Recent(ctx context.Context, kind knowledge.Kind, n int) ([]knowledge.Item, error)
}

// StatsSource supplies archive statistics.
type StatsSource interface {
	Stats(ctx context.Context) (memory.Stats, error)
}

// ActionSpec describes an action the agent may choose.
type ActionSpec struct {
	Name        string
	Description string
}

// ActionCatalog lists the registered actions.
type ActionCatalog interface {
	Specs() []ActionSpec
}

// ActionUsage is the usage of one action within the tracker window.
type ActionUsage struct {
	Action          string
	Count           int
	IterationsSince int64
}

// Snapshot is everything the agent sees in one iteration.
type Snapshot struct {
	Iteration     int64
	Strategic     []knowledge.Item
	Research      []knowledge.Item
	Archive       *memory.Stats
	RecentActions []diversity.Entry
	Usage         []ActionUsage
	Guidance      string
}

// Option configures a Composer.
type Option func(*Composer)

// WithStats adds the memory archive section.
func WithStats(s StatsSource) Option {
	return func(c *Composer) { c.stats = s }
}

// WithPersona sets the text that opens every prompt.
func WithPersona(p string) Option {
	return func(c *Composer) { c.persona = p }
}

// Composer assembles snapshots. Sources that fail are left out of the
// snapshot rather than failing it.
type Composer struct {
	knowledge KnowledgeSource
	stats     StatsSource
	tracker   *diversity.Tracker
	catalog   ActionCatalog
	persona   string
}

// New creates a Composer.
func New(ks KnowledgeSource, tracker *diversity.Tracker, catalog ActionCatalog, opts ...Option) *Composer {
	c := &Composer{
		knowledge: ks,
		tracker:   tracker,
		catalog:   catalog,
		persona:   DefaultPersona,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build gathers the snapshot for iteration.
func (c *Composer) Build(ctx context.Context, iteration int64) Snapshot {
	snap := Snapshot{Iteration: iteration}

	if items, err := c.knowledge.Recent(ctx, knowledge.KindStrategic, strategicLimit); err != nil {
		slog.Warn("composer: strategic knowledge unavailable", "error", err)
	} else {
		snap.Strategic = items
	}

	if items, err := c.knowledge.Recent(ctx, knowledge.KindResearch, researchLimit); err != nil {
		slog.Warn("composer: research findings unavailable", "error", err)
	} else {
		snap.Research = items
	}

	if c.stats != nil {
		if stats, err := c.stats.Stats(ctx); err != nil {
			slog.Debug("composer: archive stats unavailable", "error", err)
		} else {
			snap.Archive = &stats
		}
	}

	snap.RecentActions = c.tracker.Recent(actionLimit)
	snap.Usage = c.usage(iteration)
	snap.Guidance = c.tracker.Guidance(iteration)
	return snap
}

func (c *Composer) usage(iteration int64) []ActionUsage {
	counts := c.tracker.Counts()

	names := make(map[string]struct{}, len(counts))
	for name := range counts {
		names[name] = struct{}{}
	}
	if c.catalog != nil {
		for _, spec := range c.catalog.Specs() {
			names[spec.Name] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	out := make([]ActionUsage, 0, len(sorted))
	for _, name := range sorted {
		out = append(out, ActionUsage{
			Action:          name,
			Count:           counts[name],
			IterationsSince: c.tracker.IterationsSinceLastUse(name, iteration),
		})
	}
	return out
}

// Catalog returns the registered actions, sorted by name.
func (c *Composer) Catalog() []ActionSpec {
	if c.catalog == nil {
		return nil
	}
	specs := c.catalog.Specs()
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

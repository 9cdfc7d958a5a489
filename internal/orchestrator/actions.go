package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/aiox-platform/mindloop/internal/effector"
	"github.com/aiox-platform/mindloop/internal/knowledge"
	"github.com/aiox-platform/mindloop/internal/memory"
)

// Built-in action names.
const (
	ActionSpeak    = "SPEAK"
	ActionReflect  = "REFLECT"
	ActionResearch = "RESEARCH"
	ActionRecall   = "RECALL"
	ActionIdle     = "IDLE"
)

const recallLimit = 3

// Speaker sends text to the avatar.
type Speaker interface {
	Send(ctx context.Context, text string, metadata map[string]string, opts effector.Options) effector.Outcome
}

// KnowledgeWriter receives reflections and findings.
type KnowledgeWriter interface {
	Add(kind knowledge.Kind, content, source string)
}

// Memory is the part of the archiving engine the actions use.
type Memory interface {
	Record(ctx context.Context, in memory.NewRecord) (memory.Record, error)
	Recall(ctx context.Context, query string, limit int) []memory.Record
}

// ActionDeps are the collaborators of the built-in actions. Memory may be
// nil when archiving is disabled. Memories are only recorded when
// Importance is set.
type ActionDeps struct {
	Agent      string
	Speaker    Speaker
	Knowledge  KnowledgeWriter
	Memory     Memory
	Importance *float64
}

// RegisterBuiltins registers SPEAK, REFLECT, RESEARCH, RECALL and IDLE.
func RegisterBuiltins(r *Registry, deps ActionDeps) error {
	if deps.Speaker == nil || deps.Knowledge == nil {
		return errors.New("speaker and knowledge writer are required")
	}
	b := builtins{deps}

	return errors.Join(
		r.Register(ActionSpeak, "Say the response text out loud through the avatar.", b.speak),
		r.Register(ActionReflect, "Turn your current thought into strategic knowledge.", b.reflect),
		r.Register(ActionResearch, "Record the response text as a research finding.", b.research),
		r.Register(ActionRecall, "Search your memory for the response text and bring results into context.", b.recall),
		r.Register(ActionIdle, "Do nothing this iteration.", func(context.Context, ActionContext) error { return nil }),
	)
}

type builtins struct {
	ActionDeps
}

func (b builtins) speak(ctx context.Context, ac ActionContext) error {
	if ac.Record.Text == "" {
		slog.Debug("nothing to speak", "iteration", ac.Iteration)
		return nil
	}
	outcome := b.Speaker.Send(ctx, ac.Record.Text, map[string]string{
		"agent":     b.Agent,
		"iteration": strconv.FormatInt(ac.Iteration, 10),
	}, effector.Options{})
	slog.Debug("speak", "iteration", ac.Iteration, "outcome", outcome)
	return nil
}

func (b builtins) reflect(ctx context.Context, ac ActionContext) error {
	content := firstNonEmpty(ac.Record.Thought, ac.Record.Text)
	if content == "" {
		return nil
	}
	b.Knowledge.Add(knowledge.KindStrategic, content, "reflection")
	return b.remember(ctx, content, "reflection")
}

func (b builtins) research(ctx context.Context, ac ActionContext) error {
	content := firstNonEmpty(ac.Record.Text, ac.Record.Thought)
	if content == "" {
		return nil
	}
	b.Knowledge.Add(knowledge.KindResearch, content, "research")
	return b.remember(ctx, content, "research")
}

func (b builtins) recall(ctx context.Context, ac ActionContext) error {
	if b.Memory == nil {
		slog.Debug("recall skipped, archiving disabled", "iteration", ac.Iteration)
		return nil
	}
	query := firstNonEmpty(ac.Record.Text, ac.Record.Thought)
	for _, rec := range b.Memory.Recall(ctx, query, recallLimit) {
		b.Knowledge.Add(knowledge.KindResearch, "recalled: "+rec.Content, "recall")
	}
	return nil
}

func (b builtins) remember(ctx context.Context, content, source string) error {
	if b.Memory == nil || b.Importance == nil {
		return nil
	}
	_, err := b.Memory.Record(ctx, memory.NewRecord{
		Content:    content,
		Source:     source,
		Importance: *b.Importance,
	})
	if errors.Is(err, memory.ErrDisabled) {
		return nil
	}
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

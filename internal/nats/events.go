package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamState     = "MINDLOOP_STATE"
	StreamKnowledge = "MINDLOOP_KNOWLEDGE"
)

// Subject constants.
const (
	SubjectStatePrefix     = "mindloop.state"     // mindloop.state.{agent}
	SubjectKnowledgePrefix = "mindloop.knowledge" // mindloop.knowledge.{kind}
	SubjectKnowledgeAll    = "mindloop.knowledge.>"
)

// StateEvent is the agent state shared on the blackboard after each cycle.
type StateEvent struct {
	Agent      string    `json:"agent"`
	Iteration  int64     `json:"iteration"`
	Status     string    `json:"status"` // acting, idle, confused, failed
	Thought    string    `json:"thought,omitempty"`
	Text       string    `json:"text,omitempty"`
	Actions    []string  `json:"actions"`
	Providers  []string  `json:"providers"`
	Evaluators []string  `json:"evaluators"`
	Simple     bool      `json:"simple"`
	Timestamp  time.Time `json:"timestamp"`
}

// KnowledgeMessage is published by other blackboard participants to feed the
// agent's strategic knowledge or research findings.
type KnowledgeMessage struct {
	// ID, when set, deduplicates republished messages within the stream's
	// duplicate window.
	ID         string   `json:"id,omitempty"`
	Kind       string   `json:"kind"` // strategic, research
	Content    string   `json:"content"`
	Source     string   `json:"source,omitempty"`
	Importance *float64 `json:"importance,omitempty"`
}

// Package knowledge holds the agent's strategic knowledge and research
// findings, and ingests new items from the blackboard.
package knowledge

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Kind classifies a knowledge item.
type Kind string

const (
	KindStrategic Kind = "strategic"
	KindResearch  Kind = "research"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindStrategic, KindResearch:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown knowledge kind %q", s)
}

// Item is a single piece of knowledge.
type Item struct {
	Kind    Kind      `json:"kind"`
	Content string    `json:"content"`
	Source  string    `json:"source,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Store keeps a bounded, insertion-ordered list per kind.
type Store struct {
	mu       sync.RWMutex
	capacity int
	items    map[Kind][]Item
}

// NewStore creates a Store holding at most capacity items per kind.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		items:    make(map[Kind][]Item),
	}
}

// Add appends an item, dropping the oldest of its kind when full.
func (s *Store) Add(kind Kind, content, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.items[kind], Item{
		Kind:    kind,
		Content: content,
		Source:  source,
		AddedAt: time.Now(),
	})
	if over := len(list) - s.capacity; over > 0 {
		list = append([]Item(nil), list[over:]...)
	}
	s.items[kind] = list
}

// Recent returns at most n items of kind, most recent last.
func (s *Store) Recent(_ context.Context, kind Kind, n int) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.items[kind]
	if n > len(list) {
		n = len(list)
	}
	if n <= 0 {
		return []Item{}, nil
	}
	out := make([]Item, n)
	copy(out, list[len(list)-n:])
	return out, nil
}

// Len returns the number of items of kind.
func (s *Store) Len(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items[kind])
}

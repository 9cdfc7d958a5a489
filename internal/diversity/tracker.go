// Package diversity keeps a short history of dispatched actions and turns it
// into guidance that nudges the agent away from repeating itself.
package diversity

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// WindowSize is the number of action log entries retained.
	WindowSize = 10
	// RepeatRun is how many identical trailing actions trigger a warning.
	RepeatRun = 3
)

// Entry is one dispatched action.
type Entry struct {
	Action    string    `json:"action"`
	Iteration int64     `json:"iteration"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker records dispatched actions in a fixed-size ring buffer and keeps
// the last iteration each action was used. It is safe for concurrent use.
type Tracker struct {
	mu         sync.RWMutex
	buf        [WindowSize]Entry
	start      int
	size       int
	lastUsed   map[string]int64
	thresholds map[string]int64
	now        func() time.Time
}

// NewTracker creates a Tracker. thresholds maps an action category to the
// number of idle iterations after which it is suggested.
func NewTracker(thresholds map[string]int64) *Tracker {
	t := &Tracker{
		lastUsed:   make(map[string]int64),
		thresholds: make(map[string]int64, len(thresholds)),
		now:        time.Now,
	}
	for k, v := range thresholds {
		t.thresholds[strings.ToUpper(k)] = v
	}
	return t
}

// DefaultThresholds returns the stock idle thresholds per category.
func DefaultThresholds() map[string]int64 {
	return map[string]int64{"SPEAK": 4, "RESEARCH": 5, "REFLECT": 6}
}

// ParseThresholds parses "ACTION:N,ACTION:N".
func ParseThresholds(s string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, val, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("threshold %q: expected ACTION:N", pair)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("threshold %q: N must be a positive integer", pair)
		}
		out[strings.ToUpper(strings.TrimSpace(name))] = n
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no thresholds in %q", s)
	}
	return out, nil
}

// Track appends an action to the log, evicting the oldest entry when full.
func (t *Tracker) Track(action string, iteration int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{Action: action, Iteration: iteration, Timestamp: t.now()}
	if t.size < WindowSize {
		t.buf[(t.start+t.size)%WindowSize] = e
		t.size++
	} else {
		t.buf[t.start] = e
		t.start = (t.start + 1) % WindowSize
	}
	t.lastUsed[action] = iteration
}

// Entries returns the retained entries, oldest first.
func (t *Tracker) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastN(t.size)
}

// Recent returns at most n of the newest entries, oldest first.
func (t *Tracker) Recent(n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n > t.size {
		n = t.size
	}
	if n < 0 {
		n = 0
	}
	return t.lastN(n)
}

func (t *Tracker) lastN(n int) []Entry {
	out := make([]Entry, 0, n)
	for i := t.size - n; i < t.size; i++ {
		out = append(out, t.buf[(t.start+i)%WindowSize])
	}
	return out
}

// Counts returns how often each action appears in the retained window.
func (t *Tracker) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[string]int)
	for i := 0; i < t.size; i++ {
		counts[t.buf[(t.start+i)%WindowSize].Action]++
	}
	return counts
}

// IterationsSinceLastUse returns current minus the last iteration the action
// ran. Actions never tracked count from iteration zero.
func (t *Tracker) IterationsSinceLastUse(action string, current int64) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return current - t.lastUsed[action]
}

// Guidance returns a repetition warning when the last RepeatRun actions are
// identical, otherwise suggestions for categories idle past their threshold,
// otherwise an empty string.
func (t *Tracker) Guidance(current int64) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.size >= RepeatRun {
		tail := t.lastN(RepeatRun)
		same := true
		for _, e := range tail[1:] {
			if e.Action != tail[0].Action {
				same = false
				break
			}
		}
		if same {
			return fmt.Sprintf("You have chosen %s %d times in a row. Choose a different action this time.",
				tail[0].Action, RepeatRun)
		}
	}

	names := make([]string, 0, len(t.thresholds))
	for name := range t.thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	var suggestions []string
	for _, name := range names {
		idle := current - t.lastUsed[name]
		if idle >= t.thresholds[name] {
			suggestions = append(suggestions, fmt.Sprintf("%s (unused for %d iterations)", name, idle))
		}
	}
	if len(suggestions) == 0 {
		return ""
	}
	return "Consider: " + strings.Join(suggestions, ", ") + "."
}

// Package decision turns raw reasoning output into a typed decision record.
package decision

// Record is the structured decision extracted from one reasoning response.
// List fields are never nil.
type Record struct {
	Thought    string   `json:"thought"`
	Text       string   `json:"text"`
	Actions    []string `json:"actions"`
	Providers  []string `json:"providers"`
	Evaluators []string `json:"evaluators"`
	Simple     bool     `json:"simple"`

	// Issues lists recovered parse problems. Each one replaced a value with
	// its default.
	Issues []string `json:"-"`
}

// Understood reports whether the record carries anything to act on.
func (r Record) Understood() bool {
	return len(r.Actions) > 0 || r.Text != ""
}

// HasAction reports whether name is among the record's actions.
func (r Record) HasAction(name string) bool {
	for _, a := range r.Actions {
		if a == name {
			return true
		}
	}
	return false
}

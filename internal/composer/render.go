package composer

import (
	"fmt"
	"strings"
)

// DefaultPersona opens the prompt when none is configured.
const DefaultPersona = `You are an autonomous agent living in a shared space. Every few seconds you
wake up, look at what you know, and decide what to do next. Vary what you do.`

const responseFormat = `Respond with exactly one block in this format:

<response>
  <thought>your private reasoning</thought>
  <text>what to say aloud, empty if nothing</text>
  <actions>comma-separated action names</actions>
  <providers>comma-separated context providers, may be empty</providers>
  <evaluators>comma-separated evaluators, may be empty</evaluators>
  <simple>true or false</simple>
</response>`

// Render returns the snapshot as Markdown. Sections without data are left
// out, and identical snapshots render identically.
func (s Snapshot) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Iteration %d\n", s.Iteration)

	if len(s.Strategic) > 0 {
		sb.WriteString("\n### Strategic Knowledge\n")
		for _, it := range s.Strategic {
			fmt.Fprintf(&sb, "- %s\n", it.Content)
		}
	}

	if len(s.Research) > 0 {
		sb.WriteString("\n### Research Findings\n")
		for _, it := range s.Research {
			if it.Source != "" {
				fmt.Fprintf(&sb, "- %s (%s)\n", it.Content, it.Source)
			} else {
				fmt.Fprintf(&sb, "- %s\n", it.Content)
			}
		}
	}

	if s.Archive != nil {
		sb.WriteString("\n### Memory Archive\n")
		fmt.Fprintf(&sb, "- archived records: %d\n", s.Archive.TotalArchived)
		fmt.Fprintf(&sb, "- average importance: %.2f\n", s.Archive.AverageImportance)
		fmt.Fprintf(&sb, "- active records: %d\n", s.Archive.ActiveCount)
	}

	if len(s.RecentActions) > 0 {
		sb.WriteString("\n### Recent Actions\n")
		for _, e := range s.RecentActions {
			fmt.Fprintf(&sb, "- iteration %d: %s\n", e.Iteration, e.Action)
		}
	}

	if len(s.Usage) > 0 {
		sb.WriteString("\n### Action Usage\n")
		for _, u := range s.Usage {
			fmt.Fprintf(&sb, "- %s: used %d times recently, %d iterations since last use\n",
				u.Action, u.Count, u.IterationsSince)
		}
	}

	if s.Guidance != "" {
		sb.WriteString("\n### Diversity Guidance\n")
		sb.WriteString(s.Guidance)
		sb.WriteString("\n")
	}

	return sb.String()
}

// Prompt wraps a rendered snapshot with the persona, the action list and the
// response format.
func (c *Composer) Prompt(s Snapshot) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(c.persona))
	sb.WriteString("\n\n# Context\n\n")
	sb.WriteString(s.Render())

	if specs := c.Catalog(); len(specs) > 0 {
		sb.WriteString("\n# Available Actions\n\n")
		for _, spec := range specs {
			fmt.Fprintf(&sb, "- %s: %s\n", spec.Name, spec.Description)
		}
	}

	sb.WriteString("\n# Response Format\n\n")
	sb.WriteString(responseFormat)
	sb.WriteString("\n")
	return sb.String()
}

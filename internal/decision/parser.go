package decision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	responseBlock = regexp.MustCompile(`(?is)<response>(.*?)</response>`)

	fieldTags  = map[string]*regexp.Regexp{}
	fieldLines = map[string]*regexp.Regexp{}

	// valueEnd marks a line that starts another key or a tag.
	valueEnd *regexp.Regexp
)

var fields = []string{"thought", "text", "actions", "providers", "evaluators", "simple"}

func init() {
	for _, f := range fields {
		fieldTags[f] = regexp.MustCompile(`(?is)<` + f + `>(.*?)</` + f + `>`)
		fieldLines[f] = regexp.MustCompile(`(?im)^[ \t]*` + f + `[ \t]*:`)
	}
	valueEnd = regexp.MustCompile(`(?im)^[ \t]*(?:(?:` + strings.Join(fields, "|") + `)[ \t]*:|<)`)
}

// Parse extracts a Record from raw reasoning output. It never fails: missing
// keys take their defaults and malformed values are dropped and noted in
// Record.Issues.
func Parse(raw string) Record {
	body := raw
	if m := responseBlock.FindStringSubmatch(raw); m != nil {
		body = m[1]
	}

	rec := Record{
		Actions:    []string{},
		Providers:  []string{},
		Evaluators: []string{},
	}

	if v, ok := lookup(body, "thought"); ok {
		rec.Thought = v
	}
	if v, ok := lookup(body, "text"); ok {
		rec.Text = v
	}
	if v, ok := lookup(body, "actions"); ok {
		rec.Actions = dedupe(upper(parseList("actions", v, &rec.Issues)))
	}
	if v, ok := lookup(body, "providers"); ok {
		rec.Providers = parseList("providers", v, &rec.Issues)
	}
	if v, ok := lookup(body, "evaluators"); ok {
		rec.Evaluators = parseList("evaluators", v, &rec.Issues)
	}
	if v, ok := lookup(body, "simple"); ok {
		rec.Simple = parseBool(v, &rec.Issues)
	}

	return rec
}

func lookup(body, field string) (string, bool) {
	if m := fieldTags[field].FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if loc := fieldLines[field].FindStringIndex(body); loc != nil {
		rest := body[loc[1]:]
		if field != "thought" && field != "text" {
			rest, _, _ = strings.Cut(rest, "\n")
			return strings.TrimSpace(rest), true
		}
		return strings.TrimSpace(lineValue(rest)), true
	}
	return "", false
}

// lineValue returns a free-text "key: value" value. Continuation lines belong
// to it until the next key line or tag.
func lineValue(rest string) string {
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return rest
	}
	if end := valueEnd.FindStringIndex(rest[nl+1:]); end != nil {
		return rest[:nl+1+end[0]]
	}
	return rest
}

// parseList accepts "a, b, c" or a JSON array of strings. Anything else is
// treated as absent.
func parseList(field, v string, issues *[]string) []string {
	out := []string{}
	if v == "" {
		return out
	}

	if strings.HasPrefix(v, "[") {
		var items []string
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			*issues = append(*issues, fmt.Sprintf("%s: not a list of strings", field))
			return out
		}
		for _, it := range items {
			if it = strings.TrimSpace(it); it != "" {
				out = append(out, it)
			}
		}
		return out
	}

	if strings.HasPrefix(v, "{") || strings.Contains(v, "<") {
		*issues = append(*issues, fmt.Sprintf("%s: not a list", field))
		return out
	}

	for _, it := range strings.Split(v, ",") {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func parseBool(v string, issues *[]string) bool {
	switch strings.ToLower(v) {
	case "true", "yes", "1":
		return true
	case "false", "no", "0", "":
		return false
	default:
		*issues = append(*issues, fmt.Sprintf("simple: invalid boolean %q", v))
		return false
	}
}

func upper(in []string) []string {
	for i, s := range in {
		in[i] = strings.ToUpper(s)
	}
	return in
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Package parse recovers a structured reply from raw model output. Models
// frequently emit near-JSON (trailing commas, smart quotes, truncated
// braces); parsing runs strict first and falls back to a repair pass. All
// failure paths degrade to a nil record with an inspectable log — Parse
// never returns an error and never panics on malformed input.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/becomeliminal/pilot-go-sdk/core"
)

// ThoughtRecord is the agent's reasoning structure extracted from one reply.
// All fields are optional; absent keys stay zero.
type ThoughtRecord struct {
	Text         string
	Reasoning    string
	Plan         []string
	Criticism    string
	Speak        string
	RelevantGoal string
}

// Result is a successfully parsed structured reply: the thoughts block and
// the chosen next command (Command.Name may be empty when the model omitted
// one).
type Result struct {
	Thoughts ThoughtRecord
	Command  core.Invocation
}

// Parse interprets raw model output. On success it returns the parsed result
// and a rendered log of the thoughts, prefixed with the agent name. On
// unrecoverable input it returns nil and a log reporting "Invalid JSON"
// together with the raw text, which must stay inspectable.
func Parse(name, raw string) (*Result, string) {
	obj, ok := decode(raw)
	if !ok {
		obj, ok = decode(Repair(raw))
	}
	if !ok {
		return nil, fmt.Sprintf("Error: Invalid JSON\n%s\n", raw)
	}

	res := &Result{}

	if thoughts, ok := obj["thoughts"].(map[string]any); ok {
		res.Thoughts = ThoughtRecord{
			Text:         stringField(thoughts, "text"),
			Reasoning:    stringField(thoughts, "reasoning"),
			Plan:         planField(thoughts["plan"]),
			Criticism:    stringField(thoughts, "criticism"),
			Speak:        stringField(thoughts, "speak"),
			RelevantGoal: stringField(thoughts, "relevant_goal"),
		}
	}

	if command, ok := obj["command"].(map[string]any); ok {
		res.Command.Name = stringField(command, "name")
		if args, ok := command["args"].(map[string]any); ok {
			res.Command.Args = args
		}
	}

	return res, renderThoughts(name, &res.Thoughts)
}

// decode strict-parses raw into an object. A reply that decodes to a JSON
// string is unwrapped and decoded once more, since models sometimes
// double-encode the payload.
func decode(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, false
		}
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// planField normalizes the plan into bullet entries: a sequence renders one
// entry per element, a mapping renders as its textual form, a string splits
// on newlines. Leading dash/bullet markers are stripped before re-emission.
func planField(v any) []string {
	var lines []string
	switch plan := v.(type) {
	case nil:
		return nil
	case []any:
		for _, item := range plan {
			lines = append(lines, fmt.Sprintf("%v", item))
		}
	case map[string]any:
		lines = []string{fmt.Sprintf("%v", plan)}
	case string:
		lines = strings.Split(plan, "\n")
	default:
		lines = []string{fmt.Sprintf("%v", plan)}
	}

	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// renderThoughts formats the thought record for display, one section per
// populated field, with the plan as a bullet list.
func renderThoughts(name string, t *ThoughtRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s THOUGHTS: %s\n", strings.ToUpper(name), t.Text)
	fmt.Fprintf(&b, "REASONING: %s\n", t.Reasoning)
	if len(t.Plan) > 0 {
		b.WriteString("PLAN:\n")
		for _, step := range t.Plan {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	fmt.Fprintf(&b, "CRITICISM: %s\n", t.Criticism)
	if t.RelevantGoal != "" {
		fmt.Fprintf(&b, "RELEVANT GOAL: %s\n", t.RelevantGoal)
	}
	return b.String()
}

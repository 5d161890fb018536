package parse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/pilot-go-sdk/parse"
)

func TestParse_ValidReply(t *testing.T) {
	raw := `{
		"thoughts": {
			"text": "hi",
			"reasoning": "because",
			"plan": ["a", "b"],
			"criticism": "none",
			"speak": "hello",
			"relevant_goal": "goal one"
		},
		"command": {"name": "read_file", "args": {"file": "notes.txt"}}
	}`

	res, log := parse.Parse("pilot", raw)
	require.NotNil(t, res)
	assert.Equal(t, "hi", res.Thoughts.Text)
	assert.Equal(t, "because", res.Thoughts.Reasoning)
	assert.Equal(t, []string{"a", "b"}, res.Thoughts.Plan)
	assert.Equal(t, "goal one", res.Thoughts.RelevantGoal)
	assert.Equal(t, "read_file", res.Command.Name)
	assert.Equal(t, "notes.txt", res.Command.Args["file"])

	assert.Contains(t, log, "PILOT THOUGHTS: hi")
	assert.Contains(t, log, "- a\n")
	assert.Contains(t, log, "- b\n")
}

func TestParse_PlanAsStringWithBullets(t *testing.T) {
	raw := `{"thoughts": {"text": "t", "plan": "- first step\n- second step"}}`
	res, log := parse.Parse("pilot", raw)
	require.NotNil(t, res)
	assert.Equal(t, []string{"first step", "second step"}, res.Thoughts.Plan)
	assert.Contains(t, log, "- first step\n- second step")
}

func TestParse_PlanAsMapping(t *testing.T) {
	raw := `{"thoughts": {"plan": {"step1": "do it"}}}`
	res, _ := parse.Parse("pilot", raw)
	require.NotNil(t, res)
	require.Len(t, res.Thoughts.Plan, 1)
	assert.Contains(t, res.Thoughts.Plan[0], "do it")
}

func TestParse_RepairsTrailingComma(t *testing.T) {
	raw := `{"thoughts": {"text": "hi",}, "command": {"name": "do_nothing", "args": {},},}`
	res, _ := parse.Parse("pilot", raw)
	require.NotNil(t, res)
	assert.Equal(t, "hi", res.Thoughts.Text)
	assert.Equal(t, "do_nothing", res.Command.Name)
}

func TestParse_RepairsSmartQuotesAndFences(t *testing.T) {
	raw := "```json\n{“thoughts”: {“text”: “hi”}}\n```"
	res, _ := parse.Parse("pilot", raw)
	require.NotNil(t, res)
	assert.Equal(t, "hi", res.Thoughts.Text)
}

func TestParse_RepairsUnquotedKeysAndTruncation(t *testing.T) {
	raw := `{thoughts: {text: "thinking about the task`
	res, _ := parse.Parse("pilot", raw)
	require.NotNil(t, res)
	assert.Equal(t, "thinking about the task", res.Thoughts.Text)
}

func TestParse_SurroundingProse(t *testing.T) {
	raw := "Sure! Here is my reply:\n{\"thoughts\": {\"text\": \"hi\"}}\nLet me know."
	res, _ := parse.Parse("pilot", raw)
	require.NotNil(t, res)
	assert.Equal(t, "hi", res.Thoughts.Text)
}

func TestParse_DoubleEncodedReply(t *testing.T) {
	raw := `"{\"thoughts\": {\"text\": \"hi\"}}"`
	res, _ := parse.Parse("pilot", raw)
	require.NotNil(t, res)
	assert.Equal(t, "hi", res.Thoughts.Text)
}

func TestParse_InvalidNeverRaises(t *testing.T) {
	inputs := []string{
		"",
		"not json at all",
		"[1, 2, 3]",
		"{{{{",
		`{"thoughts": }`,
		strings.Repeat("\"", 100),
		"\x00\x01\x02",
	}
	for _, raw := range inputs {
		res, log := parse.Parse("pilot", raw)
		if res == nil {
			assert.NotEmpty(t, log)
			assert.Contains(t, log, "Invalid JSON")
			if raw != "" {
				assert.Contains(t, log, raw, "raw text must remain inspectable")
			}
		}
	}
}

func TestParse_MissingCommand(t *testing.T) {
	res, _ := parse.Parse("pilot", `{"thoughts": {"text": "hi"}}`)
	require.NotNil(t, res)
	assert.Empty(t, res.Command.Name)
}

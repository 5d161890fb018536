package engine

import (
	"strings"

	"github.com/becomeliminal/pilot-go-sdk/command"
	"github.com/becomeliminal/pilot-go-sdk/core"
)

// Trigger messages injected as the user turn of each iteration.
const (
	triggerFirst = "Determine which next command to use, and respond using the format specified above:"
	triggerNext  = "GENERATE NEXT COMMAND JSON"
)

// memoryPreamble introduces recalled records in the context window.
const memoryPreamble = "This reminds you of these events from your past:"

const constraintsSection = `CONSTRAINTS:

1. Short term memory is limited. Immediately save important information to long term memory.
2. No user assistance is available. Decide and act on your own.
3. Exclusively use the commands listed below, exactly as described.
`

const responseFormat = `You should only respond in JSON format as described below

RESPONSE FORMAT:
{
    "thoughts":
    {
        "text": "thought",
        "reasoning": "reasoning",
        "plan": "- short bulleted\n- list that conveys\n- long-term plan",
        "criticism": "constructive self-criticism",
        "speak": "thoughts summary to say to user"
    },
    "command": {
        "name": "command name",
        "args":{
            "arg name": "value"
        }
    }
}

Ensure the response contains nothing but the JSON object.`

// systemPrompt assembles the session's fixed instruction block: identity,
// constraints, the registered command list, and the reply format.
func systemPrompt(identity *core.Identity, registry *command.Registry) string {
	var b strings.Builder
	b.WriteString(identity.FullPrompt())
	b.WriteString("\n\n")
	b.WriteString(constraintsSection)
	b.WriteString("\nCOMMANDS:\n\n")
	b.WriteString(registry.Describe())
	b.WriteString("\n")
	b.WriteString(responseFormat)
	return b.String()
}

// recallQuery renders the tail of the conversation as the memory query text.
func recallQuery(history []core.Message, tail int) string {
	if len(history) > tail {
		history = history[len(history)-tail:]
	}
	var b strings.Builder
	for _, msg := range history {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/pilot-go-sdk/core"
)

// Anthropic is the Completer backed by the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates an Anthropic completer with the given API key.
func NewAnthropic(apiKey string) *Anthropic {
	return &Anthropic{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Complete sends the conversation and returns the concatenated text blocks
// of the reply. System-role messages are folded into the system prompt;
// consecutive same-role turns are merged, as the Messages API requires
// alternating user/assistant turns.
func (a *Anthropic) Complete(ctx context.Context, req *Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	system, msgs := splitConversation(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// splitConversation folds leading system messages into one system prompt and
// maps the rest onto alternating API turns. System messages that appear after
// the conversation has started (synthetic command results) become user turns
// so ordering is preserved; consecutive same-role turns are merged.
func splitConversation(messages []core.Message) (string, []anthropic.MessageParam) {
	var system string
	var msgs []anthropic.MessageParam

	appendTurn := func(role anthropic.MessageParamRole, content string) {
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content = append(msgs[n-1].Content, anthropic.NewTextBlock(content))
			return
		}
		msgs = append(msgs, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(content)},
		})
	}

	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			if len(msgs) == 0 {
				if system != "" {
					system += "\n\n"
				}
				system += m.Content
			} else {
				appendTurn(anthropic.MessageParamRoleUser, m.Content)
			}
		case core.RoleAssistant:
			appendTurn(anthropic.MessageParamRoleAssistant, m.Content)
		default:
			appendTurn(anthropic.MessageParamRoleUser, m.Content)
		}
	}
	return system, msgs
}

// ClassifyAPIError maps Anthropic API errors onto the retry fault taxonomy:
// 429 is rate limited, 5xx is transient, other 4xx is permanent. Anything
// that is not an API error (network faults, cancellation) stays unknown.
func ClassifyAPIError(err error) FaultKind {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		return FaultUnknown
	}
	switch {
	case apierr.StatusCode == 429:
		return FaultRateLimited
	case apierr.StatusCode >= 500:
		return FaultTransient
	case apierr.StatusCode >= 400:
		return FaultPermanent
	default:
		return FaultUnknown
	}
}

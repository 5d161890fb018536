package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/becomeliminal/pilot-go-sdk/command"
	"github.com/becomeliminal/pilot-go-sdk/core"
	"github.com/becomeliminal/pilot-go-sdk/llm"
	"github.com/becomeliminal/pilot-go-sdk/parse"
)

// State is the session lifecycle position.
type State int

const (
	// StateAwaitingCommand means the session is ready for the next step.
	StateAwaitingCommand State = iota

	// StateDispatching means a parsed command is executing.
	StateDispatching

	// StateRecording means the step outcome is being written to history
	// and memory.
	StateRecording

	// StateCompleted means the agent signalled all goals done, or the
	// session ran out its configured iteration cap. Terminal.
	StateCompleted

	// StateAborted means the session hit a terminal fault or was stopped.
	// Terminal.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateDispatching:
		return "dispatching"
	case StateRecording:
		return "recording"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ErrSessionDone reports a Step against a terminal session.
var ErrSessionDone = errors.New("session is no longer active")

// StepResult is the outcome of one loop iteration.
type StepResult struct {
	// Reply is the raw model output.
	Reply string

	// Thoughts is the parsed reasoning block, nil when parsing failed.
	Thoughts *parse.ThoughtRecord

	// Log is the rendered thoughts, or the invalid-JSON report with the raw
	// text when parsing failed.
	Log string

	// Result is the dispatched command's outcome.
	Result core.CommandResult

	// State is the session state after the step.
	State State
}

// Session is one run of the loop for one identity. Not safe for concurrent
// use; drive it from a single goroutine.
type Session struct {
	eng      *Engine
	identity *core.Identity
	env      *command.Context

	system     string
	history    []core.Message
	iterations int
	state      State
}

// State returns the current lifecycle position.
func (s *Session) State() State { return s.state }

// History returns a copy of the retained conversation.
func (s *Session) History() []core.Message {
	out := make([]core.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Stop aborts the session. Subsequent steps fail with ErrSessionDone.
func (s *Session) Stop() {
	if s.state != StateCompleted {
		s.state = StateAborted
	}
}

// Step runs one loop iteration: prompt the model, parse the reply, dispatch
// the chosen command, and record the outcome.
//
// When feedback is non-empty (and not the start trigger), the human has
// intervened: the parsed command is not dispatched and the feedback text
// stands in as the command result, exactly as if a supervisor had answered
// instead of the executor.
//
// Parse failures and command errors are not step errors: they come back as
// an error-status Result and the loop continues. Reaching the iteration cap
// ends the run normally: the capped step completes with StateCompleted. Step
// itself fails only on terminal faults (exhausted retries, permanent backend
// errors, a finished session).
func (s *Session) Step(ctx context.Context, feedback string) (*StepResult, error) {
	if s.state == StateCompleted || s.state == StateAborted {
		return nil, ErrSessionDone
	}
	if feedback == command.Start {
		feedback = ""
	}

	reply, err := s.complete(ctx)
	if err != nil {
		s.state = StateAborted
		return nil, err
	}

	parsed, logText := parse.Parse(s.identity.Name, reply)

	var thoughts *parse.ThoughtRecord
	var res core.CommandResult
	var resultText string

	switch {
	case parsed == nil:
		res = core.ErrorResult("", "could not parse model output")
		resultText = res.Feedback()
	case feedback != "":
		thoughts = &parsed.Thoughts
		res = core.SuccessResult(command.HumanFeedback, feedback)
		resultText = "Human feedback: " + feedback
	case parsed.Command.Name == "":
		thoughts = &parsed.Thoughts
		res = core.ErrorResult("", "no command specified")
		resultText = res.Feedback()
	default:
		thoughts = &parsed.Thoughts
		s.state = StateDispatching
		log.Printf("[ENGINE] Dispatching %s", parsed.Command.Name)
		res = s.eng.registry.Execute(ctx, parsed.Command.Name, parsed.Command.Args, s.env)
		resultText = res.Feedback()
	}

	s.state = StateRecording
	s.record(ctx, reply, resultText, feedback)
	s.iterations++

	switch {
	case res.Status == core.CommandSuccess && res.Command == taskCompleteName:
		s.state = StateCompleted
	case s.eng.cfg.MaxIterations > 0 && s.iterations >= s.eng.cfg.MaxIterations:
		// The iteration cap is an ordinary end of the run, not a fault.
		log.Printf("[ENGINE] Iteration cap of %d reached", s.eng.cfg.MaxIterations)
		s.state = StateCompleted
	default:
		s.state = StateAwaitingCommand
	}

	return &StepResult{
		Reply:    reply,
		Thoughts: thoughts,
		Log:      logText,
		Result:   res,
		State:    s.state,
	}, nil
}

var taskCompleteName = command.TaskComplete{}.Name()

// complete builds the context window and calls the model through the retry
// policy: system prompt, recalled memory, retained history, trigger.
func (s *Session) complete(ctx context.Context) (string, error) {
	messages := []core.Message{core.SystemMessage(s.system)}

	if recall := s.recall(ctx); recall != "" {
		messages = append(messages, core.SystemMessage(memoryPreamble+"\n"+recall))
	}

	messages = append(messages, s.history...)

	trigger := triggerNext
	if s.iterations == 0 {
		trigger = triggerFirst
	}
	messages = append(messages, core.UserMessage(trigger))

	req := &llm.Request{
		Messages:    messages,
		Model:       s.eng.cfg.Model,
		Temperature: s.eng.cfg.Temperature,
		MaxTokens:   s.eng.cfg.MaxTokens,
	}
	return llm.Invoke(ctx, s.eng.caller, "chat completion", func(ctx context.Context) (string, error) {
		return s.eng.completer.Complete(ctx, req)
	})
}

// recall fetches the memory records most relevant to the recent
// conversation. Failures degrade to no recall, never to a failed step.
func (s *Session) recall(ctx context.Context) string {
	if s.eng.memory == nil || len(s.history) == 0 {
		return ""
	}
	hits, err := s.eng.memory.GetRelevant(ctx, recallQuery(s.history, s.eng.cfg.RecallTail), s.eng.cfg.MemoryTopK)
	if err != nil {
		log.Printf("[ENGINE] Memory recall failed: %v", err)
		return ""
	}
	var texts string
	for _, hit := range hits {
		texts += hit.Text + "\n"
	}
	return texts
}

// record appends the reply and its result to history, evicts the oldest
// reply/result pair while over the byte budget, and writes the step to
// long-term memory.
func (s *Session) record(ctx context.Context, reply, resultText, feedback string) {
	s.history = append(s.history,
		core.AssistantMessage(reply),
		core.SystemMessage(resultText),
	)

	for historyBytes(s.history) > s.eng.cfg.MaxHistoryBytes && len(s.history) > 2 {
		s.history = append(s.history[:0], s.history[2:]...)
	}

	if s.eng.memory == nil {
		return
	}
	entry := fmt.Sprintf("Assistant Reply: %s\nResult: %s\nHuman Feedback: %s", reply, resultText, feedback)
	if err := s.eng.memory.Add(ctx, entry); err != nil {
		log.Printf("[ENGINE] Memory write failed: %v", err)
	}
}

func historyBytes(history []core.Message) int {
	total := 0
	for _, msg := range history {
		total += len(msg.Content)
	}
	return total
}

package core

import "fmt"

// Invocation is the next action parsed from the model's structured reply:
// a command name and its arguments mapping.
type Invocation struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// CommandStatus tags the outcome of a dispatched command.
type CommandStatus int

const (
	// CommandSuccess means the handler ran and produced output.
	CommandSuccess CommandStatus = iota

	// CommandError means the handler failed, raised, or was denied by its gate.
	CommandError

	// CommandNotFound means no handler is registered under the requested name.
	CommandNotFound
)

// CommandResult is the immutable outcome of one command dispatch. It is
// appended to the conversation history as a synthetic system message.
type CommandResult struct {
	Status  CommandStatus
	Command string
	Output  string
}

// SuccessResult builds a successful result carrying the handler's output.
func SuccessResult(command, output string) CommandResult {
	return CommandResult{Status: CommandSuccess, Command: command, Output: output}
}

// ErrorResult builds a failed result carrying the fault's description.
func ErrorResult(command, message string) CommandResult {
	return CommandResult{Status: CommandError, Command: command, Output: message}
}

// NotFoundResult builds the result for an unregistered command name.
func NotFoundResult(name string) CommandResult {
	return CommandResult{Status: CommandNotFound, Command: name}
}

// Feedback renders the result as the text fed back to the model.
func (r CommandResult) Feedback() string {
	switch r.Status {
	case CommandSuccess:
		return fmt.Sprintf("Command %s returned: %s", r.Command, r.Output)
	case CommandNotFound:
		return fmt.Sprintf("Unknown command %q. Please refer to the COMMANDS list "+
			"and respond using the format specified above.", r.Command)
	default:
		if r.Command == "" {
			return fmt.Sprintf("Error: %s", r.Output)
		}
		return fmt.Sprintf("Command %s threw the following error: %s", r.Command, r.Output)
	}
}

package command

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/becomeliminal/pilot-go-sdk/core"
)

// ConfigurationError reports invalid registry setup, such as a duplicate
// command name. It is raised at registration time, never at dispatch time.
type ConfigurationError struct {
	Name string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("command %q is already registered", e.Name)
}

// Registry maps command names to handlers and dispatches invocations. It is
// populated at startup and read-only afterwards, so dispatch needs no
// locking.
type Registry struct {
	commands map[string]Command
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command. Duplicate names fail with *ConfigurationError.
func (r *Registry) Register(cmds ...Command) error {
	for _, cmd := range cmds {
		name := cmd.Name()
		if _, exists := r.commands[name]; exists {
			return &ConfigurationError{Name: name}
		}
		r.commands[name] = cmd
		r.order = append(r.order, name)
	}
	return nil
}

// Get looks up a command by name.
func (r *Registry) Get(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Describe renders the numbered command list injected into the system prompt,
// in registration order.
func (r *Registry) Describe() string {
	var b strings.Builder
	for i, name := range r.order {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.commands[name].Describe())
	}
	return b.String()
}

// Execute dispatches one invocation. Unknown names yield NotFound; a gated
// handler with a false predicate yields Error with its denial message and is
// not invoked; a handler error or panic yields Error. Execute never lets a
// handler fault escape.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, env *Context) (result core.CommandResult) {
	cmd, ok := r.commands[name]
	if !ok {
		return core.NotFoundResult(name)
	}

	if gater, ok := cmd.(Gater); ok {
		if allowed, denial := gater.Gate(env); !allowed {
			return core.ErrorResult(name, denial)
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[COMMAND] %s panicked: %v", name, rec)
			result = core.ErrorResult(name, fmt.Sprintf("command panicked: %v", rec))
		}
	}()

	output, err := cmd.Invoke(ctx, args, env)
	if err != nil {
		return core.ErrorResult(name, err.Error())
	}
	return core.SuccessResult(name, output)
}

// Package command defines the typed command capability and the registry that
// dispatches parsed model invocations against it.
package command

import (
	"context"
	"fmt"

	"github.com/becomeliminal/pilot-go-sdk/core"
	"github.com/becomeliminal/pilot-go-sdk/workspace"
)

// Context is the execution environment handed to every handler: the session
// identity and the store handles it may operate on.
type Context struct {
	Identity *core.Identity

	// Workspace is the persistent file store commands read and write.
	Workspace workspace.Store

	// AllowDestructive authorizes commands gated on destructive effects
	// (file deletion). Gated handlers return their denial message when false.
	AllowDestructive bool
}

// Command is one registered capability. Concrete commands implement this
// interface and are registered at startup; they are never discovered via
// reflection.
type Command interface {
	// Name is the unique registry key the model invokes the command by.
	Name() string

	// Describe returns the one-line usage shown to the model, e.g.
	// `read_file, args: "file": "<file>"`.
	Describe() string

	// Invoke runs the command against the parsed arguments mapping.
	Invoke(ctx context.Context, args map[string]any, env *Context) (string, error)
}

// Gater is the optional gating capability. When a registered command
// implements it and the predicate is false, the dispatcher returns the
// denial message without invoking the handler body.
type Gater interface {
	Gate(env *Context) (ok bool, denial string)
}

// Pseudo-command names handled by the loop itself rather than the registry.
const (
	// Start bypasses dispatch entirely: it only prompts for the first reply.
	Start = "start"

	// HumanFeedback substitutes user-supplied text for a command result.
	HumanFeedback = "human_feedback"
)

// StringArg extracts a required string argument.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

// OptionalStringArg extracts a string argument, returning "" when absent.
func OptionalStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

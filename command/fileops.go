package command

import (
	"context"
	"fmt"
	"strings"
)

// ReadFile reads a file from the workspace.
type ReadFile struct{}

func (ReadFile) Name() string     { return "read_file" }
func (ReadFile) Describe() string { return `read_file: Read a file. args: "file": "<file>"` }

func (ReadFile) Invoke(_ context.Context, args map[string]any, env *Context) (string, error) {
	file, err := StringArg(args, "file")
	if err != nil {
		return "", err
	}
	return env.Workspace.Read(file)
}

// WriteFile writes (or overwrites) a file in the workspace.
type WriteFile struct{}

func (WriteFile) Name() string { return "write_file" }
func (WriteFile) Describe() string {
	return `write_file: Write text to a file. args: "file": "<file>", "text": "<text>"`
}

func (WriteFile) Invoke(_ context.Context, args map[string]any, env *Context) (string, error) {
	file, err := StringArg(args, "file")
	if err != nil {
		return "", err
	}
	text, err := StringArg(args, "text")
	if err != nil {
		return "", err
	}
	if err := env.Workspace.Write(file, text); err != nil {
		return "", err
	}
	return "File written to successfully.", nil
}

// AppendFile appends text to a file in the workspace.
type AppendFile struct{}

func (AppendFile) Name() string { return "append_to_file" }
func (AppendFile) Describe() string {
	return `append_to_file: Append text to a file. args: "file": "<file>", "text": "<text>"`
}

func (AppendFile) Invoke(_ context.Context, args map[string]any, env *Context) (string, error) {
	file, err := StringArg(args, "file")
	if err != nil {
		return "", err
	}
	text, err := StringArg(args, "text")
	if err != nil {
		return "", err
	}
	if err := env.Workspace.Append(file, text); err != nil {
		return "", err
	}
	return "Text appended successfully.", nil
}

// DeleteFile removes a file from the workspace. Gated on AllowDestructive.
type DeleteFile struct{}

func (DeleteFile) Name() string { return "delete_file" }
func (DeleteFile) Describe() string {
	return `delete_file: Delete a file. args: "file": "<file>"`
}

func (DeleteFile) Gate(env *Context) (bool, string) {
	if !env.AllowDestructive {
		return false, "delete_file is not authorized in this session"
	}
	return true, ""
}

func (DeleteFile) Invoke(_ context.Context, args map[string]any, env *Context) (string, error) {
	file, err := StringArg(args, "file")
	if err != nil {
		return "", err
	}
	if err := env.Workspace.Delete(file); err != nil {
		return "", err
	}
	return "File deleted successfully.", nil
}

// ListFiles lists workspace files, optionally under a directory.
type ListFiles struct{}

func (ListFiles) Name() string { return "list_files" }
func (ListFiles) Describe() string {
	return `list_files: List workspace files. args: "directory": "<directory>"`
}

func (ListFiles) Invoke(_ context.Context, args map[string]any, env *Context) (string, error) {
	keys, err := env.Workspace.List(OptionalStringArg(args, "directory"))
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "No files found.", nil
	}
	return strings.Join(keys, "\n"), nil
}

// TaskComplete signals that all goals are accomplished. The loop treats a
// successful dispatch of this command as its Completed terminal state.
type TaskComplete struct{}

func (TaskComplete) Name() string { return "task_complete" }
func (TaskComplete) Describe() string {
	return `task_complete: Signal that every goal is accomplished. args: "reason": "<reason>"`
}

func (TaskComplete) Invoke(_ context.Context, args map[string]any, _ *Context) (string, error) {
	return fmt.Sprintf("Task completed: %s", OptionalStringArg(args, "reason")), nil
}

// DoNothing performs no action. Useful when the model decides to wait.
type DoNothing struct{}

func (DoNothing) Name() string     { return "do_nothing" }
func (DoNothing) Describe() string { return `do_nothing: Take no action. args:` }

func (DoNothing) Invoke(context.Context, map[string]any, *Context) (string, error) {
	return "No action performed.", nil
}

// FileOps returns the workspace command set plus the control commands.
func FileOps() []Command {
	return []Command{
		ReadFile{}, WriteFile{}, AppendFile{}, DeleteFile{}, ListFiles{},
		TaskComplete{}, DoNothing{},
	}
}

package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/pilot-go-sdk/command"
	"github.com/becomeliminal/pilot-go-sdk/core"
	"github.com/becomeliminal/pilot-go-sdk/workspace"
)

type fake struct {
	name    string
	invoke  func() (string, error)
	gateOK  bool
	denial  string
	invoked bool
}

func (f *fake) Name() string     { return f.name }
func (f *fake) Describe() string { return f.name + ": test command. args:" }

func (f *fake) Invoke(context.Context, map[string]any, *command.Context) (string, error) {
	f.invoked = true
	if f.invoke != nil {
		return f.invoke()
	}
	return "ok", nil
}

type gatedFake struct{ fake }

func (g *gatedFake) Gate(*command.Context) (bool, string) { return g.gateOK, g.denial }

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := command.NewRegistry()
	require.NoError(t, r.Register(&fake{name: "alpha"}))

	err := r.Register(&fake{name: "alpha"})
	require.Error(t, err)
	var cfg *command.ConfigurationError
	assert.True(t, errors.As(err, &cfg))
	assert.Equal(t, "alpha", cfg.Name)
}

func TestRegistry_NotFound(t *testing.T) {
	r := command.NewRegistry()
	res := r.Execute(context.Background(), "missing", nil, &command.Context{})
	assert.Equal(t, core.CommandNotFound, res.Status)
	assert.Contains(t, res.Feedback(), "missing")
}

func TestRegistry_HandlerErrorAbsorbed(t *testing.T) {
	r := command.NewRegistry()
	require.NoError(t, r.Register(&fake{name: "boom", invoke: func() (string, error) {
		return "", errors.New("disk full")
	}}))

	res := r.Execute(context.Background(), "boom", nil, &command.Context{})
	assert.Equal(t, core.CommandError, res.Status)
	assert.Contains(t, res.Output, "disk full")
}

func TestRegistry_HandlerPanicAbsorbed(t *testing.T) {
	r := command.NewRegistry()
	require.NoError(t, r.Register(&fake{name: "panicky", invoke: func() (string, error) {
		panic("unexpected state")
	}}))

	assert.NotPanics(t, func() {
		res := r.Execute(context.Background(), "panicky", nil, &command.Context{})
		assert.Equal(t, core.CommandError, res.Status)
		assert.Contains(t, res.Output, "unexpected state")
	})
}

func TestRegistry_GateDeniesWithoutInvoking(t *testing.T) {
	g := &gatedFake{fake: fake{name: "guarded"}}
	g.gateOK = false
	g.denial = "not authorized here"

	r := command.NewRegistry()
	require.NoError(t, r.Register(g))

	res := r.Execute(context.Background(), "guarded", nil, &command.Context{})
	assert.Equal(t, core.CommandError, res.Status)
	assert.Equal(t, "not authorized here", res.Output)
	assert.False(t, g.invoked, "gated handler body must not run")
}

func TestRegistry_GateAllows(t *testing.T) {
	g := &gatedFake{fake: fake{name: "guarded"}}
	g.gateOK = true

	r := command.NewRegistry()
	require.NoError(t, r.Register(g))

	res := r.Execute(context.Background(), "guarded", nil, &command.Context{})
	assert.Equal(t, core.CommandSuccess, res.Status)
	assert.True(t, g.invoked)
}

func TestFileOps_EndToEnd(t *testing.T) {
	store, err := workspace.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	env := &command.Context{Workspace: store, AllowDestructive: true}

	r := command.NewRegistry()
	require.NoError(t, r.Register(command.FileOps()...))

	ctx := context.Background()
	res := r.Execute(ctx, "write_file", map[string]any{"file": "a.txt", "text": "hello"}, env)
	require.Equal(t, core.CommandSuccess, res.Status)

	res = r.Execute(ctx, "read_file", map[string]any{"file": "a.txt"}, env)
	require.Equal(t, core.CommandSuccess, res.Status)
	assert.Equal(t, "hello", res.Output)

	res = r.Execute(ctx, "list_files", map[string]any{}, env)
	require.Equal(t, core.CommandSuccess, res.Status)
	assert.Contains(t, res.Output, "a.txt")

	res = r.Execute(ctx, "delete_file", map[string]any{"file": "a.txt"}, env)
	require.Equal(t, core.CommandSuccess, res.Status)

	res = r.Execute(ctx, "read_file", map[string]any{"file": "a.txt"}, env)
	assert.Equal(t, core.CommandError, res.Status)
}

func TestFileOps_DeleteGated(t *testing.T) {
	store, err := workspace.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	env := &command.Context{Workspace: store, AllowDestructive: false}

	r := command.NewRegistry()
	require.NoError(t, r.Register(command.FileOps()...))

	res := r.Execute(context.Background(), "delete_file", map[string]any{"file": "a.txt"}, env)
	assert.Equal(t, core.CommandError, res.Status)
	assert.Contains(t, res.Output, "not authorized")
}

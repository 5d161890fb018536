package server_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/pilot-go-sdk/command"
	"github.com/becomeliminal/pilot-go-sdk/core"
	"github.com/becomeliminal/pilot-go-sdk/engine"
	"github.com/becomeliminal/pilot-go-sdk/llm"
	"github.com/becomeliminal/pilot-go-sdk/server"
	"github.com/becomeliminal/pilot-go-sdk/workspace"
)

type scripted struct {
	replies []string
	calls   int
}

func (s *scripted) Complete(context.Context, *llm.Request) (string, error) {
	s.calls++
	i := s.calls - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

func reply(t *testing.T, cmd string, args map[string]any) string {
	t.Helper()
	out, err := json.Marshal(map[string]any{
		"thoughts": map[string]any{"text": "working", "reasoning": "fixture", "criticism": "none"},
		"command":  map[string]any{"name": cmd, "args": args},
	})
	require.NoError(t, err)
	return string(out)
}

type frame struct {
	Log    string `json:"log"`
	State  string `json:"state"`
	Error  string `json:"error"`
	Result *struct {
		Status  string `json:"status"`
		Command string `json:"command"`
		Output  string `json:"output"`
	} `json:"result"`
}

func dialSession(t *testing.T, backend llm.Completer) *websocket.Conn {
	t.Helper()

	store, err := workspace.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	registry := command.NewRegistry()
	require.NoError(t, registry.Register(command.FileOps()...))

	eng := engine.New(backend, registry, nil, engine.WithWorkspace(store))
	identity := &core.Identity{Name: "GatewayBot", Role: "a gateway test agent", Goals: []string{"respond"}}

	ts := httptest.NewServer(server.New(eng, identity, nil).Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/session"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestGateway_StepRoundTrip(t *testing.T) {
	backend := &scripted{replies: []string{
		reply(t, "do_nothing", nil),
		reply(t, "task_complete", map[string]any{"reason": "done"}),
	}}
	ws := dialSession(t, backend)

	require.NoError(t, ws.WriteJSON(map[string]string{"input": "start"}))
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	assert.Equal(t, "awaiting_command", f.State)
	require.NotNil(t, f.Result)
	assert.Equal(t, "success", f.Result.Status)
	assert.Equal(t, "do_nothing", f.Result.Command)
	assert.Contains(t, f.Log, "GATEWAYBOT THOUGHTS:")

	require.NoError(t, ws.WriteJSON(map[string]string{"input": ""}))
	require.NoError(t, ws.ReadJSON(&f))
	assert.Equal(t, "completed", f.State)
	assert.Contains(t, f.Result.Output, "done")

	// Server closes the connection after a terminal state.
	assert.Error(t, ws.ReadJSON(&f))
}

func TestGateway_FeedbackFrame(t *testing.T) {
	backend := &scripted{replies: []string{
		reply(t, "delete_file", map[string]any{"file": "x"}),
	}}
	ws := dialSession(t, backend)

	require.NoError(t, ws.WriteJSON(map[string]string{"input": "please do not delete"}))
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	require.NotNil(t, f.Result)
	assert.Equal(t, "human_feedback", f.Result.Command)
	assert.Equal(t, "please do not delete", f.Result.Output)
}

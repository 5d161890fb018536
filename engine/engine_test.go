package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/pilot-go-sdk/command"
	"github.com/becomeliminal/pilot-go-sdk/core"
	"github.com/becomeliminal/pilot-go-sdk/engine"
	"github.com/becomeliminal/pilot-go-sdk/llm"
	"github.com/becomeliminal/pilot-go-sdk/memory"
	"github.com/becomeliminal/pilot-go-sdk/memory/embedder/mock"
	chromemstore "github.com/becomeliminal/pilot-go-sdk/memory/store/chromem"
	"github.com/becomeliminal/pilot-go-sdk/workspace"
)

// scripted replays canned replies in order, then repeats the last one.
type scripted struct {
	replies []string
	err     error
	calls   int
}

func (s *scripted) Complete(context.Context, *llm.Request) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	i := s.calls - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

func replyJSON(t *testing.T, cmd string, args map[string]any) string {
	t.Helper()
	payload := map[string]any{
		"thoughts": map[string]any{
			"text":      "considering next action",
			"reasoning": "test fixture",
			"plan":      "- do the thing",
			"criticism": "none",
		},
	}
	if cmd != "" {
		payload["command"] = map[string]any{"name": cmd, "args": args}
	}
	out, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(out)
}

func testIdentity() *core.Identity {
	return &core.Identity{
		Name:  "TestBot",
		Role:  "an agent exercising the loop",
		Goals: []string{"finish the test"},
	}
}

func newRegistry(t *testing.T) *command.Registry {
	t.Helper()
	r := command.NewRegistry()
	require.NoError(t, r.Register(command.FileOps()...))
	return r
}

func startSession(t *testing.T, backend llm.Completer, cfg *engine.Config, opts ...engine.Option) *engine.Session {
	t.Helper()
	store, err := workspace.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	opts = append([]engine.Option{engine.WithWorkspace(store)}, opts...)
	eng := engine.New(backend, newRegistry(t), cfg, opts...)
	sess, err := eng.StartSession(context.Background(), testIdentity())
	require.NoError(t, err)
	return sess
}

func TestSession_StepDispatchesAndRecords(t *testing.T) {
	backend := &scripted{replies: []string{
		replyJSON(t, "write_file", map[string]any{"file": "out.txt", "text": "hi"}),
		replyJSON(t, "read_file", map[string]any{"file": "out.txt"}),
	}}
	sess := startSession(t, backend, nil)

	res, err := sess.Step(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, core.CommandSuccess, res.Result.Status)
	assert.Equal(t, "write_file", res.Result.Command)
	assert.Contains(t, res.Log, "TESTBOT THOUGHTS:")
	assert.Len(t, sess.History(), 2)

	res, err = sess.Step(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Result.Output)
	assert.Len(t, sess.History(), 4)
}

func TestSession_ParseFailureContinuesLoop(t *testing.T) {
	backend := &scripted{replies: []string{
		"this is not json at all",
		replyJSON(t, "do_nothing", nil),
	}}
	sess := startSession(t, backend, nil)

	res, err := sess.Step(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, res.Thoughts)
	assert.Equal(t, core.CommandError, res.Result.Status)
	assert.Contains(t, res.Log, "Invalid JSON")
	assert.Contains(t, res.Log, "this is not json at all")
	assert.Equal(t, engine.StateAwaitingCommand, res.State)

	res, err = sess.Step(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, core.CommandSuccess, res.Result.Status)
	assert.Len(t, sess.History(), 4)
}

func TestSession_MissingCommandIsErrorResult(t *testing.T) {
	backend := &scripted{replies: []string{replyJSON(t, "", nil)}}
	sess := startSession(t, backend, nil)

	res, err := sess.Step(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, res.Thoughts)
	assert.Equal(t, core.CommandError, res.Result.Status)
	assert.Contains(t, res.Result.Output, "no command specified")
}

func TestSession_FeedbackSkipsDispatch(t *testing.T) {
	backend := &scripted{replies: []string{
		replyJSON(t, "delete_file", map[string]any{"file": "precious.txt"}),
	}}
	sess := startSession(t, backend, nil)

	res, err := sess.Step(context.Background(), "do not delete anything")
	require.NoError(t, err)
	assert.Equal(t, core.CommandSuccess, res.Result.Status)
	assert.Equal(t, command.HumanFeedback, res.Result.Command)
	assert.Equal(t, "do not delete anything", res.Result.Output)

	// The intervened result, not the command's, lands in history.
	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "Human feedback: do not delete anything", hist[1].Content)
}

func TestSession_TaskCompleteTerminates(t *testing.T) {
	backend := &scripted{replies: []string{
		replyJSON(t, "task_complete", map[string]any{"reason": "all goals met"}),
	}}
	sess := startSession(t, backend, nil)

	res, err := sess.Step(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, res.State)
	assert.Equal(t, engine.StateCompleted, sess.State())
	assert.Contains(t, res.Result.Output, "all goals met")

	_, err = sess.Step(context.Background(), "")
	assert.ErrorIs(t, err, engine.ErrSessionDone)
}

func TestSession_IterationCapCompletes(t *testing.T) {
	backend := &scripted{replies: []string{replyJSON(t, "do_nothing", nil)}}
	sess := startSession(t, backend, &engine.Config{MaxIterations: 2})

	res, err := sess.Step(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, engine.StateAwaitingCommand, res.State)

	// The capped step ends the run normally: no error, Completed terminal.
	res, err = sess.Step(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, res.State)
	assert.Equal(t, engine.StateCompleted, sess.State())
	assert.Equal(t, core.CommandSuccess, res.Result.Status)

	_, err = sess.Step(context.Background(), "")
	assert.ErrorIs(t, err, engine.ErrSessionDone)
}

func TestSession_SingleIterationCap(t *testing.T) {
	backend := &scripted{replies: []string{replyJSON(t, "do_nothing", nil)}}
	sess := startSession(t, backend, &engine.Config{MaxIterations: 1})

	res, err := sess.Step(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, res.State)

	_, err = sess.Step(context.Background(), "")
	assert.ErrorIs(t, err, engine.ErrSessionDone)
}

func TestSession_TerminalFaultAborts(t *testing.T) {
	backend := &scripted{err: errors.New("invalid api key")}
	sess := startSession(t, backend, nil)

	_, err := sess.Step(context.Background(), "")
	require.Error(t, err)
	var terminal *llm.TerminalError
	assert.True(t, errors.As(err, &terminal))
	assert.Equal(t, engine.StateAborted, sess.State())

	_, err = sess.Step(context.Background(), "")
	assert.ErrorIs(t, err, engine.ErrSessionDone)
}

func TestSession_HistoryStaysUnderBudget(t *testing.T) {
	backend := &scripted{replies: []string{replyJSON(t, "do_nothing", nil)}}
	sess := startSession(t, backend, &engine.Config{MaxHistoryBytes: 450})

	for i := 0; i < 10; i++ {
		_, err := sess.Step(context.Background(), "")
		require.NoError(t, err)
	}

	// The newest reply/result pair always survives eviction; older pairs
	// are dropped to stay near the byte budget.
	hist := sess.History()
	assert.GreaterOrEqual(t, len(hist), 2)
	assert.Less(t, len(hist), 20)
}

func TestSession_MemoryClearedOnStartAndRecorded(t *testing.T) {
	backendStore, err := chromemstore.New()
	require.NoError(t, err)
	memStore, err := memory.NewStore(backendStore, mock.New(), nil)
	require.NoError(t, err)

	// Pre-populate to prove StartSession clears it.
	require.NoError(t, memStore.Add(context.Background(), "stale record from a previous run"))
	require.Equal(t, 1, memStore.Stats().RecordCount)

	backend := &scripted{replies: []string{replyJSON(t, "do_nothing", nil)}}
	sess := startSession(t, backend, nil, engine.WithMemory(memStore))
	assert.Equal(t, 0, memStore.Stats().RecordCount)

	_, err = sess.Step(context.Background(), "keep going")
	require.NoError(t, err)
	assert.Greater(t, memStore.Stats().RecordCount, 0)
}

func TestSession_StopAborts(t *testing.T) {
	backend := &scripted{replies: []string{replyJSON(t, "do_nothing", nil)}}
	sess := startSession(t, backend, nil)

	sess.Stop()
	assert.Equal(t, engine.StateAborted, sess.State())
	_, err := sess.Step(context.Background(), "")
	assert.ErrorIs(t, err, engine.ErrSessionDone)
}

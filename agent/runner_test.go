package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/conversations"
	"github.com/JamesWemyss/psyclone/llm"
	"github.com/JamesWemyss/psyclone/memory"
	"github.com/JamesWemyss/psyclone/metrics"
	"github.com/JamesWemyss/psyclone/tools"
)

// fakeTools answers by name; names it has no handler for are unknown.
type fakeTools struct {
	handlers map[string]func(args []byte) (any, error)
	calls    atomic.Int32
}

func (f *fakeTools) Handle(_ context.Context, name string, args []byte) (any, error) {
	f.calls.Add(1)
	h, ok := f.handlers[name]
	if !ok {
		return nil, &tools.UnknownToolError{Name: name}
	}
	return h(args)
}

func (f *fakeTools) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(f.handlers))
	for name := range f.handlers {
		specs = append(specs, llm.ToolSpec{Name: name})
	}
	return specs
}

func newOrchestrator(t *testing.T, source TurnSource, exec ToolExecutor, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(source, exec, cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return o
}

func lastToolResults(t *testing.T, req *llm.Request) []llm.ToolResultBlock {
	t.Helper()
	require.NotEmpty(t, req.Messages)
	last := req.Messages[len(req.Messages)-1]
	require.Equal(t, llm.RoleUser, last.Role)
	var out []llm.ToolResultBlock
	for _, b := range last.Content {
		require.Equal(t, llm.ContentBlockTypeToolResult, b.Type)
		out = append(out, *b.ToolResult)
	}
	return out
}

func TestNewOrchestratorRequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(nil, &fakeTools{}, Config{}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewOrchestrator(NewSyncSource(script(text("hi"))), nil, Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunCompletesWithoutTools(t *testing.T) {
	client := script(text("  Hello there.  "))
	o := newOrchestrator(t, NewSyncSource(client), &fakeTools{}, Config{Model: "m"})

	res, err := o.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, "Hello there.", res.Reply)
	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, res.ToolCalls)
	assert.NotEmpty(t, res.TurnID)

	req := client.request(0)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "hi", req.Messages[0].Content[0].Text)
	assert.Equal(t, "m", req.Model)
}

func TestRunEmptyReplyUsesPlaceholder(t *testing.T) {
	o := newOrchestrator(t, NewSyncSource(script(text(""))), &fakeTools{}, Config{})
	res, err := o.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, EmptyReply, res.Reply)
}

func TestRunUnknownToolEveryTurnHitsBound(t *testing.T) {
	unknown := toolCalls(llm.ToolUseBlock{ID: "call_x", Name: "teleport", Input: map[string]any{}})
	client := script(unknown, unknown, unknown, unknown, unknown, unknown, unknown)
	exec := &fakeTools{}
	o := newOrchestrator(t, NewSyncSource(client), exec, Config{MaxIterations: 6})

	done := make(chan struct{})
	var (
		res *TurnResult
		err error
	)
	go func() {
		defer close(done)
		res, err = o.Run(context.Background(), "beam me up")
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not terminate")
	}

	assert.Nil(t, res)
	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, StateFailed, turnErr.State)
	assert.ErrorIs(t, err, ErrOrchestrationBoundExceeded)
	assert.Equal(t, 6, turnErr.Iterations)
	assert.Equal(t, 6, client.calls())
	assert.Equal(t, int32(6), exec.calls.Load())
	assert.Equal(t, "Sorry, I couldn't finish that request.", turnErr.UserMessage())

	// Every model call after the first saw the unknown-tool error.
	for i := 1; i < client.calls(); i++ {
		results := lastToolResults(t, client.request(i))
		require.Len(t, results, 1)
		assert.True(t, results[0].IsError)
		assert.Equal(t, "call_x", results[0].ID)
		assert.JSONEq(t, `{"ok":false,"error":"unknown tool: teleport"}`, results[0].Content)
	}
}

func TestRunRecoversAfterToolError(t *testing.T) {
	client := script(
		toolCalls(llm.ToolUseBlock{ID: "1", Name: "teleport"}),
		text("I can't do that, sorry."),
	)
	o := newOrchestrator(t, NewSyncSource(client), &fakeTools{}, Config{})

	res, err := o.Run(context.Background(), "beam me up")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].IsError)
}

func TestRunToolResultsKeepInvocationOrder(t *testing.T) {
	delays := map[string]time.Duration{"slow": 40 * time.Millisecond, "medium": 20 * time.Millisecond, "fast": 0}
	exec := &fakeTools{handlers: map[string]func([]byte) (any, error){}}
	for name, d := range delays {
		exec.handlers[name] = func([]byte) (any, error) {
			time.Sleep(d)
			return map[string]string{"tool": name}, nil
		}
	}
	client := script(
		toolCalls(
			llm.ToolUseBlock{ID: "a", Name: "slow"},
			llm.ToolUseBlock{ID: "b", Name: "fast"},
			llm.ToolUseBlock{ID: "c", Name: "medium"},
		),
		text("done"),
	)
	o := newOrchestrator(t, NewSyncSource(client), exec, Config{})

	res, err := o.Run(context.Background(), "go")
	require.NoError(t, err)

	results := lastToolResults(t, client.request(1))
	require.Len(t, results, 3)
	for i, want := range []struct{ id, name string }{{"a", "slow"}, {"b", "fast"}, {"c", "medium"}} {
		assert.Equal(t, want.id, results[i].ID)
		assert.Equal(t, want.name, results[i].Name)
		assert.JSONEq(t, fmt.Sprintf(`{"tool":%q}`, want.name), results[i].Content)
	}
	assert.Equal(t, []string{"a", "b", "c"}, []string{res.ToolCalls[0].ID, res.ToolCalls[1].ID, res.ToolCalls[2].ID})

	// The assistant turn that requested the tools precedes the results.
	msgs := client.request(1).Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
}

func TestRunAnswersRepeatedCallIDs(t *testing.T) {
	exec := &fakeTools{handlers: map[string]func([]byte) (any, error){
		"echo": func(args []byte) (any, error) { return json.RawMessage(args), nil },
	}}
	client := script(
		toolCalls(
			llm.ToolUseBlock{ID: "dup", Name: "echo", Input: map[string]interface{}{"n": 1}},
			llm.ToolUseBlock{ID: "dup", Name: "echo", Input: map[string]interface{}{"n": 2}},
		),
		text("done"),
	)
	o := newOrchestrator(t, NewSyncSource(client), exec, Config{})

	res, err := o.Run(context.Background(), "go")
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 2)

	results := lastToolResults(t, client.request(1))
	require.Len(t, results, 2)
	assert.Equal(t, "dup", results[0].ID)
	assert.Equal(t, "dup", results[1].ID)
	assert.NotEqual(t, results[0].Content, results[1].Content)
}

func TestRunAssignsMissingCallIDs(t *testing.T) {
	exec := &fakeTools{handlers: map[string]func([]byte) (any, error){
		"ping": func([]byte) (any, error) { return "pong", nil },
	}}
	client := script(toolCalls(llm.ToolUseBlock{Name: "ping"}, llm.ToolUseBlock{Name: "ping"}), text("ok"))
	o := newOrchestrator(t, NewSyncSource(client), exec, Config{})

	_, err := o.Run(context.Background(), "ping twice")
	require.NoError(t, err)

	results := lastToolResults(t, client.request(1))
	require.Len(t, results, 2)
	assert.NotEmpty(t, results[0].ID)
	assert.NotEqual(t, results[0].ID, results[1].ID)
}

func TestRunTimesOut(t *testing.T) {
	o := newOrchestrator(t, NewSyncSource(script(blockUntilDone)), &fakeTools{}, Config{Timeout: 50 * time.Millisecond})

	_, err := o.Run(context.Background(), "hello?")
	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, StateTimedOut, turnErr.State)
	assert.ErrorIs(t, err, ErrOrchestrationTimeout)
	assert.Equal(t, "Sorry, that took too long. Please try again.", turnErr.UserMessage())
}

func TestRunModelErrorFails(t *testing.T) {
	failing := func(context.Context, *llm.Request) (*llm.Response, error) {
		return nil, llm.NewProviderError("boom", nil)
	}
	o := newOrchestrator(t, NewSyncSource(script(failing)), &fakeTools{}, Config{})

	_, err := o.Run(context.Background(), "hi")
	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, StateFailed, turnErr.State)
	assert.Equal(t, 1, turnErr.Iterations)
	assert.False(t, errors.Is(err, ErrOrchestrationBoundExceeded))
}

func TestRunOverPollSource(t *testing.T) {
	slow := func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return text("polled reply")(ctx, req)
	}
	client := script(slow)
	runner := NewAsyncRunner(client, zerolog.Nop())
	o := newOrchestrator(t, NewPollSource(runner), &fakeTools{}, Config{PollInterval: 5 * time.Millisecond})

	res, err := o.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "polled reply", res.Reply)
	assert.Equal(t, 1, res.Iterations)
	runner.Wait()
	assert.Zero(t, runner.Pending())
}

func TestRunOverPollSourceTimesOut(t *testing.T) {
	runner := NewAsyncRunner(script(blockUntilDone), zerolog.Nop())
	o := newOrchestrator(t, NewPollSource(runner), &fakeTools{},
		Config{Timeout: 60 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	_, err := o.Run(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrOrchestrationTimeout)
	runner.Wait()
	assert.Zero(t, runner.Pending())
}

func TestRunRecordsTurnAndMetrics(t *testing.T) {
	store := newTestStore(t)
	recorder := conversations.NewStore(store.DB(), zerolog.Nop())
	m := metrics.New()

	reg := tools.NewRegistry(zerolog.Nop())
	ex := newExecutors(t, store, time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC))
	reg.RegisterActionTools(ex, actions.AssistantSearchLimit)

	client := script(
		toolCalls(llm.ToolUseBlock{ID: "call_1", Name: "create_task", Input: map[string]any{
			"title": "Book dentist", "category": "personal",
		}}),
		text("Added it."),
	)
	o := newOrchestrator(t, NewSyncSource(client), reg, Config{}, WithRecorder(recorder), WithMetrics(m))

	res, err := o.Run(context.Background(), "remind me to book the dentist")
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.False(t, res.ToolCalls[0].IsError)

	tasks, err := store.ListActiveTasks(context.Background(), memory.TaskPersonal, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Book dentist", tasks[0].Title)

	turn, err := recorder.GetTurn(context.Background(), res.TurnID)
	require.NoError(t, err)
	assert.Equal(t, string(StateCompleted), turn.State)
	assert.Equal(t, 2, turn.Iterations)
	assert.Equal(t, "web", turn.Source)

	entries, err := recorder.Transcript(context.Background(), res.TurnID)
	require.NoError(t, err)
	roles := make([]string, 0, len(entries))
	for _, e := range entries {
		roles = append(roles, e.Role)
	}
	assert.Equal(t, []string{"user", "assistant", "tool", "assistant"}, roles)

	var toolResult struct {
		Result  string `json:"result"`
		IsError bool   `json:"is_error"`
	}
	require.NoError(t, json.Unmarshal([]byte(entries[2].Content), &toolResult))
	assert.Contains(t, toolResult.Result, "Book dentist")
	assert.False(t, toolResult.IsError)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("create_task", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ModelCalls.WithLabelValues("ok")))
}

func TestRunRecordsFailedTurn(t *testing.T) {
	store := newTestStore(t)
	recorder := conversations.NewStore(store.DB(), zerolog.Nop())
	client := script(toolCalls(llm.ToolUseBlock{ID: "x", Name: "teleport"}))
	o := newOrchestrator(t, NewSyncSource(client), &fakeTools{}, Config{MaxIterations: 2}, WithRecorder(recorder))

	_, err := o.Run(context.Background(), "beam me up")
	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)

	turn, err := recorder.GetTurn(context.Background(), turnErr.TurnID)
	require.NoError(t, err)
	assert.Equal(t, string(StateFailed), turn.State)
	assert.Contains(t, turn.Error, "iteration bound exceeded")
	assert.NotNil(t, turn.FinishedAt)
}

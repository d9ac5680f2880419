package conversations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	ctxpkg "github.com/JamesWemyss/psyclone/context"
	"github.com/JamesWemyss/psyclone/memory"
	"github.com/JamesWemyss/psyclone/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := memory.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunMigrations(db, zerolog.Nop()))

	s := NewStore(db, zerolog.Nop())
	var mu sync.Mutex
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	return s
}

func TestTurnLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := ctxpkg.WithSource(context.Background(), "assistant")

	require.NoError(t, s.StartTurn(ctx, "turn-1", "AWAITING_MODEL"))
	require.NoError(t, s.UpdateTurn(ctx, "turn-1", "EXECUTING_TOOLS", 2))

	turn, err := s.GetTurn(ctx, "turn-1")
	require.NoError(t, err)
	assert.Equal(t, "assistant", turn.Source)
	assert.Equal(t, "EXECUTING_TOOLS", turn.State)
	assert.Equal(t, 2, turn.Iterations)
	assert.Nil(t, turn.FinishedAt)

	require.NoError(t, s.FinishTurn(ctx, "turn-1", "FAILED", 6, "iteration bound exceeded"))
	turn, err = s.GetTurn(ctx, "turn-1")
	require.NoError(t, err)
	assert.Equal(t, "FAILED", turn.State)
	assert.Equal(t, "iteration bound exceeded", turn.Error)
	require.NotNil(t, turn.FinishedAt)
	assert.True(t, turn.FinishedAt.After(turn.StartedAt))
}

func TestUnknownTurn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetTurn(ctx, "missing")
	assert.ErrorIs(t, err, ErrTurnNotFound)
	assert.ErrorIs(t, s.UpdateTurn(ctx, "missing", "COMPLETED", 1), ErrTurnNotFound)
}

func TestTranscriptOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendUserMessage(ctx, "t", "remember Sam's birthday"))
	require.NoError(t, s.AppendToolCall(ctx, "t", "call_1", "add_contact_key_date", map[string]any{"full_name": "Sam"}))
	require.NoError(t, s.AppendToolResult(ctx, "t", "call_1", "add_contact_key_date", `{"ok":true}`, false))
	require.NoError(t, s.AppendAssistantMessage(ctx, "t", "Saved."))

	entries, err := s.Transcript(ctx, "t")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	for i, e := range entries {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, ctxpkg.DefaultSource, e.Source)
	}
	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, RoleAssistant, entries[1].Role)
	assert.Equal(t, "call_1", entries[1].ToolID)
	assert.Equal(t, "add_contact_key_date", entries[1].ToolName)
	assert.JSONEq(t, `{"id":"call_1","name":"add_contact_key_date","input":{"full_name":"Sam"}}`, entries[1].Content)
	assert.Equal(t, RoleTool, entries[2].Role)
	assert.JSONEq(t, `{"id":"call_1","result":"{\"ok\":true}","is_error":false}`, entries[2].Content)
	assert.Equal(t, "Saved.", entries[3].Content)
}

func TestDuplicateToolCallIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendToolCall(ctx, "t", "call_1", "create_task", nil))
	require.NoError(t, s.AppendToolCall(ctx, "t", "call_1", "create_task", nil))

	entries, err := s.Transcript(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConcurrentAppendsGetDistinctSeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			return s.AppendAssistantMessage(ctx, "t", "hello")
		})
	}
	require.NoError(t, g.Wait())

	entries, err := s.Transcript(ctx, "t")
	require.NoError(t, err)
	require.Len(t, entries, 10)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Seq)
	}
}

func TestRecentTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.StartTurn(ctx, id, "AWAITING_MODEL"))
	}

	turns, err := s.RecentTurns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "c", turns[0].TurnID)
	assert.Equal(t, "b", turns[1].TurnID)
}

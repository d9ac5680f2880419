package agent

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/intent"
	"github.com/JamesWemyss/psyclone/llm"
	"github.com/JamesWemyss/psyclone/memory"
)

type dispatchFixture struct {
	store  *memory.Store
	client *scriptedClient
	d      *Dispatcher
}

func newDispatchFixture(t *testing.T, now time.Time, replies ...func(context.Context, *llm.Request) (*llm.Response, error)) dispatchFixture {
	t.Helper()
	store := newTestStore(t)
	client := script(replies...)
	loc := london(t)
	clock := func() time.Time { return now }
	classifier := intent.NewModelClassifier(client, "m", loc, zerolog.Nop()).WithClock(clock)
	router := intent.NewCommandRouter(client, "m", loc, zerolog.Nop()).WithClock(clock)
	return dispatchFixture{
		store:  store,
		client: client,
		d:      NewDispatcher(newExecutors(t, store, now), classifier, router, client, "m", zerolog.Nop()),
	}
}

func at(t time.Time) *time.Time { return &t }

func TestAskSearchUsesHeuristic(t *testing.T) {
	now := time.Date(2025, 7, 2, 9, 0, 0, 0, london(t))
	f := newDispatchFixture(t, now, text(`{"intent":"NONE"}`))
	ctx := context.Background()

	inRange, err := f.store.InsertMemoryItem(ctx, memory.NewMemoryItem{
		Kind:       memory.KindEvent,
		Content:    "Walk round Tatton Park",
		HappenedAt: at(time.Date(2025, 6, 25, 12, 0, 0, 0, time.UTC)),
		Category:   memory.CategoryPlaces,
	})
	require.NoError(t, err)
	_, err = f.store.InsertMemoryItem(ctx, memory.NewMemoryItem{
		Kind:       memory.KindEvent,
		Content:    "Tatton again",
		HappenedAt: at(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)),
		Category:   memory.CategoryPlaces,
	})
	require.NoError(t, err)

	resp, err := f.d.Ask(ctx, "show entries from last week about Tatton")
	require.NoError(t, err)
	assert.Equal(t, AskResults, resp.Type)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, inRange.ID, resp.Items[0].ID)
	assert.Zero(t, f.client.calls())
}

func TestAskSaveBelowThreshold(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now, text(`{"intent":"SAVE","save":{"kind":"note","content":"Nice weather","confidence":0.5}}`))

	resp, err := f.d.Ask(context.Background(), "nice weather today")
	require.NoError(t, err)
	assert.Equal(t, AskNoSave, resp.Type)
	assert.NotEmpty(t, resp.Reason)

	n, err := f.store.CountMemoryItems(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAskSave(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now, text(`{"intent":"SAVE","save":{"kind":"event","content":"Dinner with Sam",
		"category":"personal","person_names":["Sam"],"confidence":0.9}}`))

	resp, err := f.d.Ask(context.Background(), "Had dinner with Sam")
	require.NoError(t, err)
	assert.Equal(t, AskSaved, resp.Type)
	assert.NotZero(t, resp.ID)
	assert.Equal(t, "Dinner with Sam", resp.Summary)
	assert.Equal(t, 1, f.client.calls())
}

func TestAskNone(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now, text(`{"intent":"NONE"}`))

	resp, err := f.d.Ask(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, AskNoAction, resp.Type)
}

func TestChatCreatesLifeGoal(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now, text(`{"action":"create_goal","goal":{"title":"Build a personal brand","category":"personal","target_date":"2026"}}`))
	ctx := context.Background()

	resp, err := f.d.Chat(ctx, "Add a life goal: Build a personal brand by 2026")
	require.NoError(t, err)
	assert.Equal(t, intent.IntentCreateGoal, resp.Intent)
	assert.Equal(t, "Added goal: “Build a personal brand”.", resp.Reply)
	assert.True(t, resp.Refresh)

	goals, err := f.store.ListGoals(ctx, memory.GoalOverall)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	require.NotNil(t, goals[0].TargetDate)
	assert.Equal(t, 2026, goals[0].TargetDate.Year())
}

func TestChatCompleteUnknownTask(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now, text(`{"action":"complete_task","task":{"title":"x"}}`))

	resp, err := f.d.Chat(context.Background(), "done with x")
	require.NoError(t, err)
	assert.Equal(t, intent.IntentCompleteTask, resp.Intent)
	assert.Equal(t, "I couldn't find a task matching “x”.", resp.Reply)
	assert.False(t, resp.Refresh)
}

func TestChatShowLists(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now, text(`{"action":"show_lists"}`))

	resp, err := f.d.Chat(context.Background(), "what are my priorities?")
	require.NoError(t, err)
	assert.Equal(t, ShowListsReply, resp.Reply)
	assert.True(t, resp.Refresh)
}

func TestChatConverseFallsBack(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now,
		text(`{"action":"chat"}`),
		func(context.Context, *llm.Request) (*llm.Response, error) {
			return nil, llm.NewUnavailableError("down", nil)
		})

	resp, err := f.d.Chat(context.Background(), "how's it going?")
	require.NoError(t, err)
	assert.Equal(t, intent.IntentNone, resp.Intent)
	assert.Equal(t, FallbackReply, resp.Reply)
	assert.False(t, resp.Refresh)

	require.Equal(t, 2, f.client.calls())
	assert.Contains(t, f.client.request(1).System, "(no active priorities yet)")
}

func TestChatConverseReplies(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now, text(`{"action":"chat"}`), text("  Going well, thanks!  "))

	resp, err := f.d.Chat(context.Background(), "how's it going?")
	require.NoError(t, err)
	assert.Equal(t, "Going well, thanks!", resp.Reply)
}

func TestSaveSkipsHeuristic(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now, text(`{"intent":"SAVE","save":{"kind":"fact","content":"Sam's flat is in Didsbury","confidence":0.8}}`))

	out, err := f.d.Save(context.Background(), "where does Sam live? Didsbury")
	require.NoError(t, err)
	assert.Equal(t, actions.StatusSaved, out.Status)
	assert.Equal(t, 1, f.client.calls())
}

func TestSaveNotSaveworthy(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	f := newDispatchFixture(t, now, text(`{"intent":"NONE"}`))

	out, err := f.d.Save(context.Background(), "hmm")
	require.NoError(t, err)
	assert.Equal(t, actions.StatusNotSaveworthy, out.Status)
	assert.Equal(t, "Not saveworthy", out.Summary)
}

package actions

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	ctxpkg "github.com/JamesWemyss/psyclone/context"
	"github.com/JamesWemyss/psyclone/memory"
	"github.com/JamesWemyss/psyclone/migrations"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func london(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	return loc
}

func setup(t *testing.T) (*Executors, *memory.Store) {
	t.Helper()
	db, err := memory.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunMigrations(db, zerolog.Nop()))

	var mu sync.Mutex
	clock := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	store, err := memory.NewStore(db, zerolog.Nop(), memory.WithClock(tick))
	require.NoError(t, err)
	return New(store, london(t), zerolog.Nop()), store
}

func ptr[T any](v T) *T { return &v }

func TestSaveMemoryItemBelowThresholdWritesNothing(t *testing.T) {
	ex, store := setup(t)
	ctx := context.Background()

	for _, c := range []float64{0, 0.5, 0.7499} {
		out, err := ex.SaveMemoryItem(ctx, SaveMemoryParams{Kind: "fact", Content: "Likes tea", Confidence: ptr(c)})
		require.NoError(t, err)
		assert.Equal(t, StatusNotSaveworthy, out.Status)
	}
	n, err := store.CountMemoryItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveMemoryItemFallsBackToRawText(t *testing.T) {
	ex, store := setup(t)
	ctx := ctxpkg.WithSource(context.Background(), "assistant")

	raw := strings.Repeat("é", 200)
	out, err := ex.SaveMemoryItem(ctx, SaveMemoryParams{Confidence: ptr(0.9), RawText: raw})
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, out.Status)

	items, err := store.SearchMemoryItems(ctx, memory.SearchQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, FallbackContentLength, len([]rune(items[0].Content)))
	assert.Equal(t, "assistant", items[0].Source)
	assert.Equal(t, memory.KindNote, items[0].Kind)
	assert.Equal(t, memory.CategoryOther, items[0].Category)
}

func TestSaveMemoryItemValidation(t *testing.T) {
	ex, _ := setup(t)
	ctx := context.Background()

	_, err := ex.SaveMemoryItem(ctx, SaveMemoryParams{Content: "x", Category: "gardening"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "category", ve.Field)

	_, err = ex.SaveMemoryItem(ctx, SaveMemoryParams{Content: "x", Confidence: ptr(1.5)})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "confidence", ve.Field)

	_, err = ex.SaveMemoryItem(ctx, SaveMemoryParams{})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "content", ve.Field)

	_, err = ex.SaveMemoryItem(ctx, SaveMemoryParams{Content: "x", HappenedAt: "last tuesday"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "happened_at", ve.Field)
}

func TestSearchMemoryItems(t *testing.T) {
	ex, _ := setup(t)
	ctx := context.Background()

	for i, p := range []SaveMemoryParams{
		{Kind: "event", Content: "Lunch at Tatton", HappenedAt: "2025-03-04T13:00:00Z", PersonNames: []string{"Sam"}},
		{Kind: "event", Content: "Dentist", HappenedAt: "2025-03-09T16:00:00"},
		{Kind: "fact", Content: "Tatton membership renews in May"},
	} {
		_, err := ex.SaveMemoryItem(ctx, p)
		require.NoError(t, err, "item %d", i)
	}

	out, err := ex.SearchMemoryItems(ctx, SearchParams{Keywords: []string{"TATTON"}}, MaxSearchLimit)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)

	// A bare date_to covers the whole day.
	out, err = ex.SearchMemoryItems(ctx, SearchParams{DateFrom: "2025-03-03", DateTo: "2025-03-09"}, MaxSearchLimit)
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "Dentist", out.Items[0].Content)

	out, err = ex.SearchMemoryItems(ctx, SearchParams{Kind: "event", PersonNames: []string{"Sam"}}, MaxSearchLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)

	out, err = ex.SearchMemoryItems(ctx, SearchParams{Limit: 1}, MaxSearchLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)

	_, err = ex.SearchMemoryItems(ctx, SearchParams{DateFrom: "soon"}, MaxSearchLimit)
	assert.True(t, IsValidationError(err))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, ClampLimit(0, 20))
	assert.Equal(t, 1, ClampLimit(-4, 20))
	assert.Equal(t, 1, ClampLimit(-1, AssistantSearchLimit))
	assert.Equal(t, 20, ClampLimit(500, 20))
	assert.Equal(t, 50, ClampLimit(500, AssistantSearchLimit))
	assert.Equal(t, 3, ClampLimit(3, 20))
	assert.Equal(t, 20, ClampLimit(25, 0))
}

func TestIgnoreLast(t *testing.T) {
	ex, _ := setup(t)
	ctx := context.Background()

	out, err := ex.IgnoreLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, out.Status)

	_, err = ex.SaveMemoryItem(ctx, SaveMemoryParams{Content: "oops"})
	require.NoError(t, err)
	out, err = ex.IgnoreLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, out.Status)
	assert.Equal(t, "oops", out.Summary)
}

func TestCreateGoal(t *testing.T) {
	ex, _ := setup(t)
	ctx := context.Background()

	out, err := ex.CreateGoal(ctx, CreateGoalParams{Title: " Build a personal brand ", TargetDate: "2026"})
	require.NoError(t, err)
	assert.Equal(t, "Added goal: “Build a personal brand”.", out.Summary)
	goal := out.Entity.(memory.Goal)
	assert.Equal(t, memory.GoalOverall, goal.Category)
	require.NotNil(t, goal.TargetDate)
	assert.Equal(t, 2026, goal.TargetDate.Year())

	_, err = ex.CreateGoal(ctx, CreateGoalParams{Title: "x", Category: "hobby"})
	assert.True(t, IsValidationError(err))
	_, err = ex.CreateGoal(ctx, CreateGoalParams{Title: "   "})
	assert.True(t, IsValidationError(err))
}

func TestCreateTaskResolvesGoalByTitle(t *testing.T) {
	ex, _ := setup(t)
	ctx := context.Background()

	_, err := ex.CreateGoal(ctx, CreateGoalParams{Title: "Get fit", Category: "personal"})
	require.NoError(t, err)
	newer, err := ex.CreateGoal(ctx, CreateGoalParams{Title: "Get fitter still", Category: "personal"})
	require.NoError(t, err)

	out, err := ex.CreateTask(ctx, CreateTaskParams{Title: "Book gym induction", Category: "Personal", GoalTitle: "get FIT", Impact: ptr(4)})
	require.NoError(t, err)
	assert.Equal(t, "Added personal priority: “Book gym induction”.", out.Summary)
	task := out.Entity.(memory.Task)
	require.NotNil(t, task.GoalID)
	assert.Equal(t, newer.ID, *task.GoalID)

	out, err = ex.CreateTask(ctx, CreateTaskParams{Title: "Expense report", Category: "work", GoalTitle: "promotion"})
	require.NoError(t, err)
	assert.Nil(t, out.Entity.(memory.Task).GoalID)

	_, err = ex.CreateTask(ctx, CreateTaskParams{Title: "x", Category: "errands"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "category", ve.Field)

	_, err = ex.CreateTask(ctx, CreateTaskParams{Title: "x", Category: "work", Impact: ptr(9)})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "impact", ve.Field)
}

func TestCompleteTask(t *testing.T) {
	ex, _ := setup(t)
	ctx := context.Background()

	out, err := ex.CompleteTask(ctx, TaskRefParams{Title: "nothing here"})
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, out.Status)
	assert.Equal(t, "I couldn't find a task matching “nothing here”.", out.Summary)

	_, err = ex.CreateTask(ctx, CreateTaskParams{Title: "File taxes", Category: "personal"})
	require.NoError(t, err)
	out, err = ex.CompleteTask(ctx, TaskRefParams{Title: "taxes"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "Marked done: “File taxes”.", out.Summary)

	lists, err := ex.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, lists.Personal)

	_, err = ex.CompleteTask(ctx, TaskRefParams{})
	assert.True(t, IsValidationError(err))

	out, err = ex.CompleteTask(ctx, TaskRefParams{ID: ptr(int64(404))})
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, out.Status)
}

func TestReorderTaskMovesToTop(t *testing.T) {
	ex, store := setup(t)
	ctx := context.Background()

	for _, title := range []string{"Alpha", "Bravo", "Charlie", "Delta"} {
		_, err := ex.CreateTask(ctx, CreateTaskParams{Title: title, Category: "work"})
		require.NoError(t, err)
	}
	_, err := store.DB().Exec(`UPDATE tasks SET score = 9 WHERE title = 'Alpha'`)
	require.NoError(t, err)

	out, err := ex.ReorderTask(ctx, TaskRefParams{Title: "charlie"})
	require.NoError(t, err)
	assert.Equal(t, "Moved to #1 in work: “Charlie”.", out.Summary)
	assert.Equal(t, int64(-1), *out.Entity.(*memory.Task).OrderOverride)

	out, err = ex.ReorderTask(ctx, TaskRefParams{Title: "delta"})
	require.NoError(t, err)
	assert.Equal(t, int64(-2), *out.Entity.(*memory.Task).OrderOverride)

	lists, err := ex.ListActive(ctx)
	require.NoError(t, err)
	titles := make([]string, 0, len(lists.Work))
	for _, task := range lists.Work {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"Delta", "Charlie", "Alpha", "Bravo"}, titles)
}

func TestConcurrentReordersNeverShareAnOverride(t *testing.T) {
	ex, store := setup(t)
	ctx := context.Background()

	titles := []string{"one", "two", "three", "four", "five", "six"}
	for _, title := range titles {
		_, err := ex.CreateTask(ctx, CreateTaskParams{Title: "task " + title, Category: "personal"})
		require.NoError(t, err)
	}

	var g errgroup.Group
	for _, title := range titles {
		g.Go(func() error {
			_, err := ex.ReorderTask(ctx, TaskRefParams{Title: title})
			return err
		})
	}
	require.NoError(t, g.Wait())

	tasks, err := store.ListActiveTasks(ctx, memory.TaskPersonal, 0)
	require.NoError(t, err)
	seen := map[int64]bool{}
	for _, task := range tasks {
		require.NotNil(t, task.OrderOverride)
		assert.False(t, seen[*task.OrderOverride], "override %d reused", *task.OrderOverride)
		seen[*task.OrderOverride] = true
	}
}

// activeOverrides maps the titles of pinned open tasks in category to their
// override and fails when two share a value.
func activeOverrides(t *testing.T, store *memory.Store, category memory.TaskCategory) map[string]int64 {
	t.Helper()
	tasks, err := store.ListActiveTasks(context.Background(), category, 0)
	require.NoError(t, err)
	out := map[string]int64{}
	seen := map[int64]string{}
	for _, task := range tasks {
		if task.OrderOverride == nil {
			continue
		}
		v := *task.OrderOverride
		if other, ok := seen[v]; ok {
			t.Fatalf("%q and %q share override %d", other, task.Title, v)
		}
		seen[v] = task.Title
		out[task.Title] = v
	}
	return out
}

func TestReopenedTaskKeepsUniqueOverride(t *testing.T) {
	ex, store := setup(t)
	ctx := context.Background()

	alpha, err := ex.CreateTask(ctx, CreateTaskParams{Title: "Alpha", Category: "work"})
	require.NoError(t, err)
	_, err = ex.CreateTask(ctx, CreateTaskParams{Title: "Bravo", Category: "work"})
	require.NoError(t, err)

	_, err = ex.ReorderTask(ctx, TaskRefParams{ID: &alpha.ID})
	require.NoError(t, err)
	_, err = ex.CompleteTask(ctx, TaskRefParams{ID: &alpha.ID})
	require.NoError(t, err)

	out, err := ex.ReorderTask(ctx, TaskRefParams{Title: "bravo"})
	require.NoError(t, err)
	assert.Equal(t, int64(-2), *out.Entity.(*memory.Task).OrderOverride)

	_, err = ex.UpdateTask(ctx, UpdateTaskParams{ID: alpha.ID, Status: ptr("open")})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Alpha": -1, "Bravo": -2}, activeOverrides(t, store, memory.TaskWork))
}

func TestCategoryMoveDropsPin(t *testing.T) {
	ex, store := setup(t)
	ctx := context.Background()

	alpha, err := ex.CreateTask(ctx, CreateTaskParams{Title: "Alpha", Category: "work"})
	require.NoError(t, err)
	papa, err := ex.CreateTask(ctx, CreateTaskParams{Title: "Papa", Category: "personal"})
	require.NoError(t, err)
	_, err = ex.ReorderTask(ctx, TaskRefParams{ID: &alpha.ID})
	require.NoError(t, err)
	_, err = ex.ReorderTask(ctx, TaskRefParams{ID: &papa.ID})
	require.NoError(t, err)

	out, err := ex.UpdateTask(ctx, UpdateTaskParams{ID: papa.ID, Category: ptr("work")})
	require.NoError(t, err)
	moved := out.Entity.(*memory.Task)
	assert.Equal(t, memory.TaskWork, moved.Category)
	assert.Nil(t, moved.OrderOverride)
	assert.Equal(t, map[string]int64{"Alpha": -1}, activeOverrides(t, store, memory.TaskWork))

	// Same category keeps the pin.
	out, err = ex.UpdateTask(ctx, UpdateTaskParams{ID: alpha.ID, Category: ptr("work"), Title: ptr("Alpha 2")})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), *out.Entity.(*memory.Task).OrderOverride)
}

func TestUpdateTask(t *testing.T) {
	ex, _ := setup(t)
	ctx := context.Background()

	created, err := ex.CreateTask(ctx, CreateTaskParams{Title: "Plan offsite", Category: "work"})
	require.NoError(t, err)

	out, err := ex.UpdateTask(ctx, UpdateTaskParams{ID: created.ID, Due: ptr("2025-04-01"), EffortHours: ptr(2.5)})
	require.NoError(t, err)
	task := out.Entity.(*memory.Task)
	require.NotNil(t, task.Due)
	assert.Equal(t, "2025-04-01", task.Due.Format(memory.DateLayout))
	assert.Equal(t, 2.5, *task.EffortHours)

	_, err = ex.UpdateTask(ctx, UpdateTaskParams{ID: created.ID})
	assert.True(t, IsValidationError(err))
	_, err = ex.UpdateTask(ctx, UpdateTaskParams{ID: created.ID, Status: ptr("archived")})
	assert.True(t, IsValidationError(err))
	_, err = ex.UpdateTask(ctx, UpdateTaskParams{ID: 999, Title: ptr("ghost")})
	assert.True(t, memory.IsStoreError(err))
}

func TestUpsertContactIsIdempotentOnName(t *testing.T) {
	ex, store := setup(t)
	ctx := context.Background()

	first, err := ex.UpsertContact(ctx, UpsertContactParams{FullName: "Grace Hopper"})
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, first.Status)

	second, err := ex.UpsertContact(ctx, UpsertContactParams{FullName: "grace hopper"})
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, second.Status)
	assert.Equal(t, first.ID, second.ID)

	n, err := store.CountContacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertContactPartialUpdateAndRelation(t *testing.T) {
	ex, store := setup(t)
	ctx := context.Background()

	_, err := ex.UpsertContact(ctx, UpsertContactParams{FullName: "Alan Turing", Email: ptr("alan@example.com"), Relation: "Friend"})
	require.NoError(t, err)
	updated, err := ex.UpsertContact(ctx, UpsertContactParams{FullName: "Alan Turing", Phone: ptr("07700 900000"), Relation: "colleague"})
	require.NoError(t, err)
	returned := updated.Entity.(*memory.Contact)
	require.NotNil(t, returned.Phone)
	assert.Equal(t, "07700 900000", *returned.Phone)
	assert.Equal(t, "alan@example.com", *returned.Email)
	assert.Equal(t, "colleague", *returned.Relation)

	contacts, err := store.SearchContacts(ctx, memory.ContactQuery{NameContains: "turing"})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	c := contacts[0]
	assert.Equal(t, "alan@example.com", *c.Email)
	assert.Equal(t, "07700 900000", *c.Phone)
	assert.Equal(t, "colleague", *c.Relation)

	var relations int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM contact_relations`).Scan(&relations))
	assert.Equal(t, 1, relations)

	_, err = ex.UpsertContact(ctx, UpsertContactParams{FullName: "Alan Turing", Email: ptr("not-an-email")})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)
}

func TestAddContactKeyDateCreatesMissingContact(t *testing.T) {
	ex, store := setup(t)
	ctx := context.Background()

	out, err := ex.AddContactKeyDate(ctx, KeyDateParams{FullName: "Mum", Kind: "birthday", TheDate: "1960-07-14"})
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, out.Status)

	_, err = ex.AddContactKeyDate(ctx, KeyDateParams{FullName: "mum", TheDate: "1985-09-01", Label: "Wedding"})
	require.NoError(t, err)

	n, err := store.CountContacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dates, err := store.ListKeyDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, memory.KeyDateOther, dates[1].Kind)

	_, err = ex.AddContactKeyDate(ctx, KeyDateParams{TheDate: "2020-01-01"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "full_name", ve.Field)

	_, err = ex.AddContactKeyDate(ctx, KeyDateParams{FullName: "Mum"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "the_date", ve.Field)

	_, err = ex.AddContactKeyDate(ctx, KeyDateParams{FullName: "Mum", TheDate: "someday"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "the_date", ve.Field)
}

func TestSearchContacts(t *testing.T) {
	ex, _ := setup(t)
	ctx := context.Background()

	for _, p := range []UpsertContactParams{
		{FullName: "Ann Smith", Relation: "friend"},
		{FullName: "Bob Smith", Relation: "colleague"},
		{FullName: "Cara Jones", Relation: "friend"},
	} {
		_, err := ex.UpsertContact(ctx, p)
		require.NoError(t, err)
	}
	out, err := ex.SearchContacts(ctx, SearchContactsParams{NameContains: "smith", Relation: "Friend"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "Ann Smith", out.Items[0].FullName)
}

func TestTopTasks(t *testing.T) {
	ex, store := setup(t)
	ctx := context.Background()

	for _, p := range []CreateTaskParams{
		{Title: "low", Category: "work"},
		{Title: "high", Category: "personal"},
		{Title: "mid", Category: "work"},
	} {
		_, err := ex.CreateTask(ctx, p)
		require.NoError(t, err)
	}
	_, err := store.DB().Exec(`UPDATE tasks SET score = CASE title WHEN 'high' THEN 8 WHEN 'mid' THEN 5 ELSE 1 END`)
	require.NoError(t, err)

	top, err := ex.TopTasks(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "high", top[0].Title)
	assert.Equal(t, "mid", top[1].Title)
}

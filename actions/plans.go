package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/JamesWemyss/psyclone/memory"
	"github.com/JamesWemyss/psyclone/ranking"
)

// Lists is the snapshot shown alongside the conversation.
type Lists struct {
	Goals    []memory.Goal `json:"goals"`
	Personal []memory.Task `json:"personal"`
	Work     []memory.Task `json:"work"`
}

// CreateGoal records a goal. Category defaults to overall.
func (e *Executors) CreateGoal(ctx context.Context, p CreateGoalParams) (Outcome, error) {
	p.Title = strings.TrimSpace(p.Title)
	if err := e.validateStruct(p); err != nil {
		return Outcome{}, err
	}
	target, err := ParseDate(p.TargetDate, e.loc)
	if err != nil {
		return Outcome{}, invalid("target_date", err.Error())
	}
	category := memory.GoalCategory(p.Category)
	if category == "" {
		category = memory.GoalOverall
	}

	goal, err := e.store.InsertGoal(ctx, memory.NewGoal{
		Title:      p.Title,
		Category:   category,
		Why:        optional(p.Why),
		TargetDate: target,
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Status:  StatusCreated,
		ID:      goal.ID,
		Summary: fmt.Sprintf("Added goal: “%s”.", goal.Title),
		Entity:  goal,
	}, nil
}

// CreateTask records a task, linking it to a goal when GoalID is given or
// GoalTitle matches one. An unmatched goal title leaves the task unlinked.
func (e *Executors) CreateTask(ctx context.Context, p CreateTaskParams) (Outcome, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))
	if err := e.validateStruct(p); err != nil {
		return Outcome{}, err
	}
	due, err := ParseDate(p.Due, e.loc)
	if err != nil {
		return Outcome{}, invalid("due", err.Error())
	}

	goalID := p.GoalID
	if goalID == nil && strings.TrimSpace(p.GoalTitle) != "" {
		goal, err := e.store.FindGoalByTitle(ctx, strings.TrimSpace(p.GoalTitle))
		if err != nil {
			return Outcome{}, err
		}
		if goal != nil {
			goalID = &goal.ID
		} else {
			e.logger.Debug().Str("goal_title", p.GoalTitle).Msg("No goal matched, creating task unlinked")
		}
	}

	task, err := e.store.InsertTask(ctx, memory.NewTask{
		Title:       p.Title,
		Category:    memory.TaskCategory(p.Category),
		GoalID:      goalID,
		NextAction:  optional(p.NextAction),
		Due:         due,
		Impact:      p.Impact,
		EnergyFit:   p.EnergyFit,
		EffortHours: p.EffortHours,
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Status:  StatusCreated,
		ID:      task.ID,
		Summary: fmt.Sprintf("Added %s priority: “%s”.", task.Category, task.Title),
		Entity:  task,
	}, nil
}

// CompleteTask marks the referenced task done.
func (e *Executors) CompleteTask(ctx context.Context, p TaskRefParams) (Outcome, error) {
	task, miss, err := e.resolveTask(ctx, p)
	if err != nil || task == nil {
		return miss, err
	}
	if err := e.store.CompleteTask(ctx, task.ID); err != nil {
		return Outcome{}, err
	}
	task.Status = memory.StatusDone
	return Outcome{
		Status:  StatusCompleted,
		ID:      task.ID,
		Summary: fmt.Sprintf("Marked done: “%s”.", task.Title),
		Entity:  task,
	}, nil
}

// ReorderTask moves the referenced task to the top of its category.
func (e *Executors) ReorderTask(ctx context.Context, p TaskRefParams) (Outcome, error) {
	task, miss, err := e.resolveTask(ctx, p)
	if err != nil || task == nil {
		return miss, err
	}

	e.reorderMu.Lock()
	defer e.reorderMu.Unlock()

	current, err := e.store.MinOrderOverride(ctx, task.Category)
	if err != nil {
		return Outcome{}, err
	}
	v := ranking.TopOverride(current)
	if err := e.store.SetOrderOverride(ctx, task.ID, v); err != nil {
		return Outcome{}, err
	}
	task.OrderOverride = &v
	e.logger.Info().Int64("task_id", task.ID).Int64("order_override", v).Msg("Task moved to top")
	return Outcome{
		Status:  StatusMoved,
		ID:      task.ID,
		Summary: fmt.Sprintf("Moved to #1 in %s: “%s”.", task.Category, task.Title),
		Entity:  task,
	}, nil
}

// UpdateTask applies a direct edit to a task.
func (e *Executors) UpdateTask(ctx context.Context, p UpdateTaskParams) (Outcome, error) {
	if err := e.validateStruct(p); err != nil {
		return Outcome{}, err
	}
	patch := memory.TaskPatch{
		Title:       trimmedPtr(p.Title),
		NextAction:  trimmedPtr(p.NextAction),
		Impact:      p.Impact,
		EnergyFit:   p.EnergyFit,
		EffortHours: p.EffortHours,
	}
	if p.Category != nil {
		c := memory.TaskCategory(*p.Category)
		patch.Category = &c
	}
	if p.Status != nil {
		s := memory.TaskStatus(*p.Status)
		patch.Status = &s
	}
	if p.Due != nil {
		due, err := ParseDate(*p.Due, e.loc)
		if err != nil {
			return Outcome{}, invalid("due", err.Error())
		}
		patch.Due = due
	}
	if patch.Empty() {
		return Outcome{}, invalid("patch", "no fields to update")
	}
	if patch.Category != nil {
		// Overrides are only unique within a category, so a pinned task
		// moving lists gives up its pin.
		e.reorderMu.Lock()
		defer e.reorderMu.Unlock()
		current, err := e.store.GetTask(ctx, p.ID)
		if err != nil {
			return Outcome{}, err
		}
		patch.ClearOverride = current.Category != *patch.Category && current.OrderOverride != nil
	}
	task, err := e.store.UpdateTask(ctx, p.ID, patch)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Status:  StatusUpdated,
		ID:      task.ID,
		Summary: fmt.Sprintf("Updated: “%s”.", task.Title),
		Entity:  task,
	}, nil
}

// ListActive returns overall goals and both task lists, ranked.
func (e *Executors) ListActive(ctx context.Context) (Lists, error) {
	goals, err := e.store.ListGoals(ctx, memory.GoalOverall)
	if err != nil {
		return Lists{}, err
	}
	personal, err := e.rankedTasks(ctx, memory.TaskPersonal)
	if err != nil {
		return Lists{}, err
	}
	work, err := e.rankedTasks(ctx, memory.TaskWork)
	if err != nil {
		return Lists{}, err
	}
	return Lists{Goals: goals, Personal: personal, Work: work}, nil
}

// TopTasks returns the n highest-scoring open tasks across both lists.
func (e *Executors) TopTasks(ctx context.Context, n int) ([]memory.Task, error) {
	tasks, err := e.store.ListActiveTasks(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	ranking.ByScore(tasks)
	if len(tasks) > n {
		tasks = tasks[:n]
	}
	return tasks, nil
}

func (e *Executors) rankedTasks(ctx context.Context, category memory.TaskCategory) ([]memory.Task, error) {
	tasks, err := e.store.ListActiveTasks(ctx, category, 0)
	if err != nil {
		return nil, err
	}
	ranking.Sort(tasks)
	if len(tasks) > ListLimit {
		tasks = tasks[:ListLimit]
	}
	return tasks, nil
}

// resolveTask finds the referenced open task. A miss is not an error: it
// returns a not-found Outcome for the caller to pass on.
func (e *Executors) resolveTask(ctx context.Context, p TaskRefParams) (*memory.Task, Outcome, error) {
	title := strings.TrimSpace(p.Title)
	if p.ID == nil && title == "" {
		return nil, Outcome{}, invalid("title", "is required")
	}
	notFound := Outcome{
		Status:  StatusNotFound,
		Summary: fmt.Sprintf("I couldn't find a task matching “%s”.", title),
	}

	if p.ID != nil {
		task, err := e.store.GetTask(ctx, *p.ID)
		if err != nil {
			if memory.IsStoreError(err) && isNotFound(err) {
				notFound.Summary = fmt.Sprintf("I couldn't find task #%d.", *p.ID)
				return nil, notFound, nil
			}
			return nil, Outcome{}, err
		}
		if task.Status == memory.StatusDone {
			notFound.Summary = fmt.Sprintf("“%s” is already done.", task.Title)
			return nil, notFound, nil
		}
		return task, Outcome{}, nil
	}

	task, err := e.store.FindOpenTaskByTitle(ctx, title)
	if err != nil {
		return nil, Outcome{}, err
	}
	if task == nil {
		return nil, notFound, nil
	}
	return task, Outcome{}, nil
}

package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/llm"
	"github.com/JamesWemyss/psyclone/memory"
	"github.com/rs/zerolog"
)

const routerPrompt = `You are Psyclone's command router (UK English).
Return STRICT JSON:
{
  "action": "create_goal|create_task|complete_task|reorder_task_top|save_document|show_lists|chat",
  "goal": { "title": "", "category": "overall|personal|work", "why": "", "target_date": "" } | null,
  "task": { "title": "", "category": "personal|work", "goal_title": "", "due": "", "impact": 1, "energy_fit": 1, "effort_hours": 0, "next_action": "" } | null,
  "doc":  { "kind": "event|note|fact", "content": "", "happened_at": "", "place": "", "person_names": [] } | null
}
Decide:
- If user adds a life goal, use action create_goal. Prefer category "overall" when they say "life goal".
- If user adds/edits/finishes/reorders a priority, choose the relevant task action.
- If the message describes something that happened (met, walked, had dinner, went, saw, "yesterday/today/last week"), choose action save_document as kind "event" and extract happened_at (ISO if possible), place, and person_names.
- If they ask to show or list priorities, choose show_lists.
- Otherwise choose chat.
Use ISO 8601 dates where possible; omit unknowns with empty strings.
Dates are in %s. The current time is %s.`

// Command actions the router can choose.
const (
	ActionCreateGoal   = "create_goal"
	ActionCreateTask   = "create_task"
	ActionCompleteTask = "complete_task"
	ActionReorderTop   = "reorder_task_top"
	ActionSaveDocument = "save_document"
	ActionShowLists    = "show_lists"
	ActionChat         = "chat"
)

type command struct {
	Action string       `json:"action"`
	Goal   *goalCommand `json:"goal"`
	Task   *taskCommand `json:"task"`
	Doc    *docCommand  `json:"doc"`
}

type goalCommand struct {
	Title      string `json:"title"`
	Category   string `json:"category"`
	Why        string `json:"why"`
	TargetDate string `json:"target_date"`
}

type taskCommand struct {
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	GoalTitle   string   `json:"goal_title"`
	Due         string   `json:"due"`
	Impact      *int     `json:"impact"`
	EnergyFit   *int     `json:"energy_fit"`
	EffortHours *float64 `json:"effort_hours"`
	NextAction  string   `json:"next_action"`
}

type docCommand struct {
	Kind        string   `json:"kind"`
	Content     string   `json:"content"`
	HappenedAt  string   `json:"happened_at"`
	Place       string   `json:"place"`
	PersonNames []string `json:"person_names"`
}

// CommandRouter maps a message to a single goal, task or document command.
type CommandRouter struct {
	client llm.Client
	model  string
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// NewCommandRouter creates a router using model on client.
func NewCommandRouter(client llm.Client, model string, loc *time.Location, logger zerolog.Logger) *CommandRouter {
	if loc == nil {
		loc = time.UTC
	}
	return &CommandRouter{
		client: client,
		model:  model,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "command_router").Logger(),
	}
}

// WithClock replaces the router's clock and returns it.
func (r *CommandRouter) WithClock(now func() time.Time) *CommandRouter {
	r.now = now
	return r
}

// Route returns the command for text. Anything it cannot act on is NONE,
// which callers answer conversationally.
func (r *CommandRouter) Route(ctx context.Context, text string) Result {
	temp := 0.2
	resp, err := r.client.Synchronous(ctx, &llm.Request{
		Model:       r.model,
		System:      fmt.Sprintf(routerPrompt, r.loc, r.now().In(r.loc).Format(time.RFC3339)),
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, text)},
		Temperature: &temp,
		JSONMode:    true,
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("Router request failed, treating as chat")
		return None()
	}
	var cmd command
	if err := decodeObject(resp.Text(), &cmd); err != nil {
		r.logger.Warn().Err(err).Msg("Router reply unreadable, treating as chat")
		return None()
	}
	result := r.commandResult(cmd, text)
	r.logger.Debug().Str("action", cmd.Action).Str("intent", string(result.Intent)).Msg("Routed")
	return result
}

func (r *CommandRouter) commandResult(cmd command, text string) Result {
	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	switch action {
	case ActionCreateGoal:
		if cmd.Goal == nil || strings.TrimSpace(cmd.Goal.Title) == "" {
			return None()
		}
		category := memory.GoalCategory(strings.ToLower(cmd.Goal.Category))
		if !category.Valid() || strings.Contains(strings.ToLower(text), "life goal") {
			category = memory.GoalOverall
		}
		return Result{Intent: IntentCreateGoal, Goal: &actions.CreateGoalParams{
			Title:      strings.TrimSpace(cmd.Goal.Title),
			Category:   string(category),
			Why:        cmd.Goal.Why,
			TargetDate: dateOrEmpty(cmd.Goal.TargetDate, r.loc),
		}}

	case ActionCreateTask:
		if cmd.Task == nil || strings.TrimSpace(cmd.Task.Title) == "" || cmd.Task.Category == "" {
			return None()
		}
		category := memory.TaskCategory(strings.ToLower(cmd.Task.Category))
		if !category.Valid() {
			category = memory.TaskWork
		}
		return Result{Intent: IntentCreateTask, Task: &actions.CreateTaskParams{
			Title:       strings.TrimSpace(cmd.Task.Title),
			Category:    string(category),
			GoalTitle:   cmd.Task.GoalTitle,
			NextAction:  cmd.Task.NextAction,
			Due:         dateOrEmpty(cmd.Task.Due, r.loc),
			Impact:      inRange(cmd.Task.Impact),
			EnergyFit:   inRange(cmd.Task.EnergyFit),
			EffortHours: nonNegative(cmd.Task.EffortHours),
		}}

	case ActionCompleteTask, ActionReorderTop:
		title := ""
		if cmd.Task != nil {
			title = strings.TrimSpace(cmd.Task.Title)
		}
		intent := IntentCompleteTask
		if action == ActionReorderTop {
			intent = IntentReorderTask
		}
		return Result{Intent: intent, TaskRef: &actions.TaskRefParams{Title: title}}

	case ActionSaveDocument:
		if cmd.Doc == nil || strings.TrimSpace(cmd.Doc.Content) == "" {
			return None()
		}
		kind := memory.KindEvent
		if k := memory.Kind(cmd.Doc.Kind); k == memory.KindNote || k == memory.KindFact {
			kind = k
		}
		return Result{Intent: IntentSave, Save: &actions.SaveMemoryParams{
			Kind:        string(kind),
			Content:     cmd.Doc.Content,
			HappenedAt:  instantOrEmpty(cmd.Doc.HappenedAt, r.loc, false),
			Place:       cmd.Doc.Place,
			PersonNames: cmd.Doc.PersonNames,
			RawText:     text,
		}}

	case ActionShowLists:
		return Result{Intent: IntentShowLists}

	default:
		return None()
	}
}

// inRange drops scores outside 1-5.
func inRange(v *int) *int {
	if v == nil || *v < 1 || *v > 5 {
		return nil
	}
	return v
}

func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

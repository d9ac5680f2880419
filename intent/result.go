// Package intent turns free text into a classified action. A fast heuristic
// recognises obvious memory searches; everything else goes to a model-backed
// classifier or command router.
package intent

import "github.com/JamesWemyss/psyclone/actions"

// Intent is the classified purpose of an utterance.
type Intent string

const (
	IntentSave         Intent = "SAVE"
	IntentSearch       Intent = "SEARCH"
	IntentNone         Intent = "NONE"
	IntentCreateGoal   Intent = "CREATE_GOAL"
	IntentCreateTask   Intent = "CREATE_TASK"
	IntentCompleteTask Intent = "COMPLETE_TASK"
	IntentReorderTask  Intent = "REORDER_TASK"
	IntentShowLists    Intent = "SHOW_LISTS"
)

// Result is a classification. Exactly one payload matching Intent is set;
// NONE and SHOW_LISTS carry none.
type Result struct {
	Intent  Intent                    `json:"intent"`
	Save    *actions.SaveMemoryParams `json:"save,omitempty"`
	Search  *actions.SearchParams     `json:"search,omitempty"`
	Goal    *actions.CreateGoalParams `json:"goal,omitempty"`
	Task    *actions.CreateTaskParams `json:"task,omitempty"`
	TaskRef *actions.TaskRefParams    `json:"task_ref,omitempty"`
}

// None is the fallback classification.
func None() Result { return Result{Intent: IntentNone} }

package agent

import (
	"errors"
	"fmt"
)

// State is a step of the per-turn state machine.
type State string

const (
	StateAwaitingModel  State = "AWAITING_MODEL"
	StateModelResponded State = "MODEL_RESPONDED"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateCompleted      State = "COMPLETED"
	StateFailed         State = "FAILED"
	StateTimedOut       State = "TIMED_OUT"
)

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// Loop safety errors.
var (
	ErrOrchestrationTimeout       = errors.New("orchestration timed out")
	ErrOrchestrationBoundExceeded = errors.New("orchestration iteration bound exceeded")
)

// TurnError is returned when a turn ends in FAILED or TIMED_OUT.
type TurnError struct {
	TurnID     string
	State      State
	Iterations int
	Err        error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %s %s after %d model calls: %v", e.TurnID, e.State, e.Iterations, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// UserMessage is the short text shown to the user for a failed turn.
func (e *TurnError) UserMessage() string {
	switch {
	case errors.Is(e.Err, ErrOrchestrationTimeout):
		return "Sorry, that took too long. Please try again."
	case errors.Is(e.Err, ErrOrchestrationBoundExceeded):
		return "Sorry, I couldn't finish that request."
	default:
		return "Sorry, something went wrong."
	}
}

// ToolCall records one executed invocation of a turn.
type ToolCall struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	TurnID     string     `json:"turn_id"`
	State      State      `json:"state"`
	Reply      string     `json:"reply"`
	Iterations int        `json:"iterations"`
	ToolCalls  []ToolCall `json:"tool_calls"`
}

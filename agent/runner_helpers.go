package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/JamesWemyss/psyclone/llm"
	"github.com/JamesWemyss/psyclone/metrics"
)

// maxParallelTools bounds concurrent tool calls within one model turn.
const maxParallelTools = 4

// ToolExecutor is the dispatch table tool calls run through.
// *tools.Registry implements it.
type ToolExecutor interface {
	Handle(ctx context.Context, toolName string, args []byte) (any, error)
	Specs() []llm.ToolSpec
}

// Recorder persists turn progress and transcripts.
// *conversations.Store implements it.
type Recorder interface {
	StartTurn(ctx context.Context, turnID, state string) error
	UpdateTurn(ctx context.Context, turnID, state string, iterations int) error
	FinishTurn(ctx context.Context, turnID, state string, iterations int, errMsg string) error
	AppendUserMessage(ctx context.Context, turnID, content string) error
	AppendAssistantMessage(ctx context.Context, turnID, content string) error
	AppendToolCall(ctx context.Context, turnID, toolID, toolName string, toolInput any) error
	AppendToolResult(ctx context.Context, turnID, toolID, toolName, result string, isError bool) error
}

// toolExecutionResult holds the result of executing a single tool.
type toolExecutionResult struct {
	ToolID   string
	ToolName string
	JSON     string // what the model sees
	IsError  bool
}

// toolLoopContext holds shared context for one turn's tool execution.
type toolLoopContext struct {
	turnID   string
	toolExec ToolExecutor
	recorder Recorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// withCallIDs fills in ids the model left empty so every result can be
// matched to its invocation.
func withCallIDs(uses []llm.ToolUseBlock) []llm.ToolUseBlock {
	return lo.Map(uses, func(u llm.ToolUseBlock, _ int) llm.ToolUseBlock {
		if u.ID == "" {
			u.ID = "call_" + uuid.NewString()
		}
		return u
	})
}

// executeTools runs every invocation concurrently and returns the results in
// invocation order. Tool failures become error results, never errors.
func (tlc *toolLoopContext) executeTools(ctx context.Context, uses []llm.ToolUseBlock) []*toolExecutionResult {
	results := make([]*toolExecutionResult, len(uses))

	var g errgroup.Group
	g.SetLimit(maxParallelTools)
	for i := range uses {
		g.Go(func() error {
			results[i] = tlc.executeSingleTool(ctx, &uses[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// executeSingleTool executes a single tool and returns the result.
func (tlc *toolLoopContext) executeSingleTool(ctx context.Context, toolUse *llm.ToolUseBlock) *toolExecutionResult {
	raw, err := json.Marshal(toolUse.Input)
	if err != nil || toolUse.Input == nil {
		raw = []byte("{}")
	}

	result, callErr := tlc.toolExec.Handle(ctx, toolUse.Name, raw)

	var payload any = result
	if callErr != nil {
		tlc.logger.Warn().
			Str("turn_id", tlc.turnID).
			Str("tool", toolUse.Name).
			Str("tool_id", toolUse.ID).
			Err(callErr).
			Msg("Tool call failed; returning error to model")
		payload = map[string]any{"ok": false, "error": callErr.Error()}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded, _ = json.Marshal(map[string]any{"ok": false, "error": fmt.Sprintf("encode result: %v", err)})
		callErr = err
	}
	tlc.metrics.ObserveToolCall(toolUse.Name, callErr != nil)

	return &toolExecutionResult{
		ToolID:   toolUse.ID,
		ToolName: toolUse.Name,
		JSON:     string(encoded),
		IsError:  callErr != nil,
	}
}

// persistToolCalls persists tool calls to storage.
func (tlc *toolLoopContext) persistToolCalls(ctx context.Context, uses []llm.ToolUseBlock) {
	if tlc.recorder == nil {
		return
	}
	for _, u := range uses {
		if err := tlc.recorder.AppendToolCall(ctx, tlc.turnID, u.ID, u.Name, u.Input); err != nil {
			tlc.logger.Warn().Err(err).Msg("failed to persist tool call")
		}
	}
}

// persistToolResults persists tool results to storage.
func (tlc *toolLoopContext) persistToolResults(ctx context.Context, results []*toolExecutionResult) {
	if tlc.recorder == nil {
		return
	}
	for _, r := range results {
		if err := tlc.recorder.AppendToolResult(ctx, tlc.turnID, r.ToolID, r.ToolName, r.JSON, r.IsError); err != nil {
			tlc.logger.Warn().Err(err).Msg("failed to persist tool result")
		}
	}
}

// buildToolResultMessage answers every tool call in invocation order, even
// when the model repeated an id.
func buildToolResultMessage(results []*toolExecutionResult) llm.Message {
	blocks := lo.Map(results, func(r *toolExecutionResult, _ int) llm.ToolResultBlock {
		return llm.ToolResultBlock{
			ID:      r.ToolID,
			Name:    r.ToolName,
			Content: r.JSON,
			IsError: r.IsError,
		}
	})
	return llm.NewToolResultMessage(blocks)
}

func toToolCalls(results []*toolExecutionResult) []ToolCall {
	return lo.Map(results, func(r *toolExecutionResult, _ int) ToolCall {
		return ToolCall{ID: r.ToolID, Name: r.ToolName, IsError: r.IsError, Result: r.JSON}
	})
}

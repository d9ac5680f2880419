package agent

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	ctxpkg "github.com/JamesWemyss/psyclone/context"
	"github.com/JamesWemyss/psyclone/llm"
)

// largeContextChars is the conversation size above which requests are logged
// at warn level.
const largeContextChars = 100000

// LoggingMiddleware logs every model request, reply and error with the turn
// it belongs to.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.With().Str("component", "llmMiddleware").Logger(),
	}
}

// BeforeRequest implements llm.Middleware.BeforeRequest.
func (m *LoggingMiddleware) BeforeRequest(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	size := getContextSize(req.System, req.Messages)
	event := m.logger.Debug()
	if size >= largeContextChars {
		event = m.logger.Warn()
	}
	event.
		Str("turn_id", turnID(ctx)).
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Int("context_chars", size).
		Msg("Sending model request")
	return req, nil
}

// AfterResponse implements llm.Middleware.AfterResponse.
func (m *LoggingMiddleware) AfterResponse(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	event := m.logger.Debug().
		Str("turn_id", turnID(ctx)).
		Str("stop_reason", resp.StopReason).
		Int("tool_uses", len(resp.ToolUses()))
	if resp.Usage != nil {
		event = event.Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens)
	}
	event.Msg("Model responded")
	return resp, nil
}

// OnError implements llm.Middleware.OnError.
func (m *LoggingMiddleware) OnError(ctx context.Context, req *llm.Request, err error) error {
	m.logger.Warn().
		Str("turn_id", turnID(ctx)).
		Str("model", req.Model).
		Bool("retryable", llm.IsRetryableError(err)).
		Err(err).
		Msg("Model request failed")
	return err
}

func turnID(ctx context.Context) string {
	id, _ := ctxpkg.TurnID(ctx)
	return id
}

// getContextSize calculates the total character count of the conversation context.
func getContextSize(systemPrompt string, messages []llm.Message) int {
	totalLength := len(systemPrompt)

	for _, msg := range messages {
		for _, block := range msg.Content {
			switch block.Type {
			case llm.ContentBlockTypeText:
				totalLength += len(block.Text)
			case llm.ContentBlockTypeToolUse:
				if block.ToolUse != nil {
					totalLength += len(block.ToolUse.Name)
					if block.ToolUse.Input != nil {
						if inputBytes, err := json.Marshal(block.ToolUse.Input); err == nil {
							totalLength += len(inputBytes)
						}
					}
				}
			case llm.ContentBlockTypeToolResult:
				if block.ToolResult != nil {
					totalLength += len(block.ToolResult.Content)
				}
			}
		}
	}

	return totalLength
}

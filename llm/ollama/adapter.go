package ollama

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JamesWemyss/psyclone/llm"
	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// ToOllamaMessages converts llm.Messages to Ollama chat messages. Tool
// results expand into one "tool" message each.
func ToOllamaMessages(msgs []llm.Message) []api.Message {
	result := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, toOllamaMessage(msg)...)
	}
	return result
}

func toOllamaMessage(msg llm.Message) []api.Message {
	var text []string
	var toolCalls []api.ToolCall
	var toolMsgs []api.Message

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			text = append(text, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			args := make(api.ToolCallFunctionArguments)
			for k, v := range block.ToolUse.Input {
				args[k] = v
			}
			toolCalls = append(toolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      block.ToolUse.Name,
					Arguments: args,
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult == nil {
				continue
			}
			toolMsgs = append(toolMsgs, api.Message{
				Role:     "tool",
				Content:  block.ToolResult.Content,
				ToolName: block.ToolResult.Name,
			})
		}
	}

	if len(toolMsgs) > 0 {
		return toolMsgs
	}
	return []api.Message{{
		Role:      string(msg.Role),
		Content:   strings.Join(text, "\n"),
		ToolCalls: toolCalls,
	}}
}

// ToOllamaTools converts llm.ToolSpecs to Ollama function format.
func ToOllamaTools(specs []llm.ToolSpec) []api.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		properties := make(map[string]api.ToolProperty, len(spec.Schema.Properties))
		for k, v := range spec.Schema.Properties {
			prop := api.ToolProperty{Type: api.PropertyType{getPropertyType(v)}}
			if m, ok := v.(map[string]interface{}); ok {
				if desc, ok := m["description"].(string); ok {
					prop.Description = desc
				}
				if enum, ok := m["enum"].([]string); ok {
					prop.Enum = lo.Map(enum, func(e string, _ int) any { return e })
				}
			}
			properties[k] = prop
		}
		return api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       "object",
					Properties: properties,
					Required:   spec.Schema.Required,
				},
			},
		}
	})
}

// FromOllamaToolCall converts an Ollama tool call to llm.ToolUseBlock.
// Ollama does not assign call IDs, so one is generated. Arguments are
// coerced to the types declared by the matching spec, since local models
// often quote numbers.
func FromOllamaToolCall(toolCall api.ToolCall, specs map[string]llm.ToolSpec) llm.ToolUseBlock {
	input := make(map[string]interface{}, len(toolCall.Function.Arguments))
	spec, hasSpec := specs[toolCall.Function.Name]
	for k, v := range toolCall.Function.Arguments {
		if hasSpec {
			if propSchema, ok := spec.Schema.Properties[k]; ok {
				if converted, err := convertValueToType(v, getPropertyType(propSchema)); err == nil {
					v = converted
				}
			}
		}
		input[k] = v
	}
	return llm.ToolUseBlock{
		ID:    "call_" + uuid.NewString(),
		Name:  toolCall.Function.Name,
		Input: input,
	}
}

// getPropertyType extracts the type from a property schema definition.
func getPropertyType(propSchema interface{}) string {
	if propMap, ok := propSchema.(map[string]interface{}); ok {
		if propType, ok := propMap["type"].(string); ok {
			return propType
		}
	}
	return "string"
}

func convertValueToType(v interface{}, targetType string) (interface{}, error) {
	s, isString := v.(string)
	switch targetType {
	case "integer":
		switch val := v.(type) {
		case float64:
			return int(val), nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to integer", val)
			}
			return i, nil
		}
	case "number":
		if isString {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to number", s)
			}
			return f, nil
		}
	case "boolean":
		if isString {
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to boolean", s)
			}
			return b, nil
		}
	}
	return v, nil
}

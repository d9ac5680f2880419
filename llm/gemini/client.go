// Package gemini adapts Google's Gemini API to the llm.Client interface.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JamesWemyss/psyclone/llm"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/genai"
)

// GeminiClient implements llm.Client for the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new GeminiClient with the given API key.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *GeminiClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: ToFunctionDeclarations(req.Tools)}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, ToContents(req.Messages), config)
	if err != nil {
		return nil, convertGeminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, llm.NewProviderError("no candidates in response", nil)
	}

	candidate := resp.Candidates[0]
	content := make([]llm.ContentBlock, 0, len(candidate.Content.Parts))
	for _, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			args := part.FunctionCall.Args
			if args == nil {
				args = make(map[string]any)
			}
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    id,
					Name:  part.FunctionCall.Name,
					Input: args,
				},
			})
		case part.Text != "" && !part.Thought:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: part.Text,
			})
		}
	}

	out := &llm.Response{
		Content:    content,
		StopReason: string(candidate.FinishReason),
	}
	if resp.UsageMetadata != nil {
		out.Usage = &llm.Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// ToContents converts llm.Messages into Gemini contents. Assistant turns
// use the "model" role; tool results become function responses.
func ToContents(msgs []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		role := string(genai.RoleUser)
		if msg.Role == llm.RoleAssistant {
			role = string(genai.RoleModel)
		}
		parts := make([]*genai.Part, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case llm.ContentBlockTypeText:
				if block.Text != "" {
					parts = append(parts, genai.NewPartFromText(block.Text))
				}
			case llm.ContentBlockTypeToolUse:
				if block.ToolUse != nil {
					parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
						ID:   block.ToolUse.ID,
						Name: block.ToolUse.Name,
						Args: block.ToolUse.Input,
					}})
				}
			case llm.ContentBlockTypeToolResult:
				if block.ToolResult != nil {
					parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
						ID:       block.ToolResult.ID,
						Name:     block.ToolResult.Name,
						Response: toolResponse(block.ToolResult),
					}})
				}
			}
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents
}

// toolResponse wraps the JSON result the way Gemini expects: an "output"
// key on success, an "error" key on failure.
func toolResponse(result *llm.ToolResultBlock) map[string]any {
	var decoded any
	if err := json.Unmarshal([]byte(result.Content), &decoded); err != nil {
		decoded = result.Content
	}
	if result.IsError {
		return map[string]any{"error": decoded}
	}
	return map[string]any{"output": decoded}
}

// ToFunctionDeclarations converts tool specs to Gemini function declarations.
func ToFunctionDeclarations(specs []llm.ToolSpec) []*genai.FunctionDeclaration {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) *genai.FunctionDeclaration {
		return &genai.FunctionDeclaration{
			Name:                 spec.Name,
			Description:          spec.Description,
			ParametersJsonSchema: spec.Schema.AsMap(),
		}
	})
}

func convertGeminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTimeoutError("Gemini request timed out", err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.ErrorFromStatus(apiErr.Code, "Gemini API error", err)
	}
	return llm.NewProviderError("Gemini API error", err)
}

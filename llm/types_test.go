package llm

import (
	"encoding/json"
	"testing"
)

func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage(RoleUser, "Hello, world!")
	if msg.Role != RoleUser {
		t.Errorf("Expected role %v, got %v", RoleUser, msg.Role)
	}
	if len(msg.Content) != 1 {
		t.Fatalf("Expected 1 content block, got %d", len(msg.Content))
	}
	if msg.Content[0].Text != "Hello, world!" {
		t.Errorf("Expected text 'Hello, world!', got %q", msg.Content[0].Text)
	}
}

func TestNewToolUseMessage(t *testing.T) {
	toolUses := []ToolUseBlock{
		{ID: "call-1", Name: "create_goal", Input: map[string]interface{}{"title": "Run"}},
		{ID: "call-2", Name: "create_task", Input: map[string]interface{}{"title": "Shoes"}},
	}
	msg := NewToolUseMessage("", toolUses)
	if msg.Role != RoleAssistant {
		t.Errorf("Expected role %v, got %v", RoleAssistant, msg.Role)
	}
	if len(msg.Content) != 2 {
		t.Fatalf("Expected 2 content blocks, got %d", len(msg.Content))
	}
	// Each block must point at its own copy, not the loop variable.
	if msg.Content[0].ToolUse.ID != "call-1" || msg.Content[1].ToolUse.ID != "call-2" {
		t.Errorf("Unexpected tool ids %q, %q", msg.Content[0].ToolUse.ID, msg.Content[1].ToolUse.ID)
	}

	withText := NewToolUseMessage("thinking", toolUses[:1])
	if len(withText.Content) != 2 || withText.Content[0].Type != ContentBlockTypeText {
		t.Errorf("Expected leading text block, got %+v", withText.Content)
	}
}

func TestNewToolResultMessage(t *testing.T) {
	toolResults := []ToolResultBlock{
		{ID: "call-1", Name: "create_goal", Content: `{"ok":true}`},
	}
	msg := NewToolResultMessage(toolResults)
	if msg.Role != RoleUser {
		t.Errorf("Expected role %v, got %v", RoleUser, msg.Role)
	}
	if msg.Content[0].Type != ContentBlockTypeToolResult {
		t.Errorf("Expected tool result block type, got %v", msg.Content[0].Type)
	}
	if msg.Content[0].ToolResult.ID != "call-1" {
		t.Errorf("Expected tool ID 'call-1', got %q", msg.Content[0].ToolResult.ID)
	}
}

func TestResponseHelpers(t *testing.T) {
	resp := &Response{Content: []ContentBlock{
		{Type: ContentBlockTypeText, Text: "first"},
		{Type: ContentBlockTypeToolUse, ToolUse: &ToolUseBlock{ID: "a", Name: "x"}},
		{Type: ContentBlockTypeText, Text: "second"},
	}}
	if resp.Text() != "first\nsecond" {
		t.Errorf("Unexpected text %q", resp.Text())
	}
	uses := resp.ToolUses()
	if len(uses) != 1 || uses[0].ID != "a" {
		t.Errorf("Unexpected tool uses %+v", uses)
	}

	var nilResp *Response
	if nilResp.Text() != "" || nilResp.ToolUses() != nil {
		t.Error("Expected nil response helpers to be empty")
	}
}

func TestToolSchemaAsMap(t *testing.T) {
	schema := ToolSchema{
		Properties: map[string]interface{}{"title": map[string]interface{}{"type": "string"}},
		Required:   []string{"title"},
	}
	m := schema.AsMap()
	if m["type"] != "object" {
		t.Errorf("Expected default object type, got %v", m["type"])
	}
	if _, ok := m["required"]; !ok {
		t.Error("Expected required list")
	}
}

func TestMessageToJSON(t *testing.T) {
	msg := NewTextMessage(RoleUser, "Test message")
	jsonData, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("Failed to marshal message to JSON: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(jsonData, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if decoded.Role != msg.Role {
		t.Errorf("Expected role %v, got %v", msg.Role, decoded.Role)
	}
}

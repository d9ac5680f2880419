package gemini

import (
	"testing"

	"github.com/JamesWemyss/psyclone/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToContentsRoundTripsToolTurns(t *testing.T) {
	contents := ToContents([]llm.Message{
		llm.NewTextMessage(llm.RoleUser, "remember Sam's birthday"),
		llm.NewToolUseMessage("", []llm.ToolUseBlock{{
			ID: "c1", Name: "add_contact_key_date",
			Input: map[string]interface{}{"full_name": "Sam", "the_date": "1990-04-02"},
		}}),
		llm.NewToolResultMessage([]llm.ToolResultBlock{{
			ID: "c1", Name: "add_contact_key_date", Content: `{"ok":true,"id":3}`,
		}}),
	})

	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "add_contact_key_date", contents[1].Parts[0].FunctionCall.Name)

	resp := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "c1", resp.ID)
	output, ok := resp.Response["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, output["ok"])
}

func TestToolResponseError(t *testing.T) {
	resp := toolResponse(&llm.ToolResultBlock{Content: "not json", IsError: true})
	assert.Equal(t, "not json", resp["error"])
}

func TestToFunctionDeclarations(t *testing.T) {
	decls := ToFunctionDeclarations([]llm.ToolSpec{{
		Name: "complete_task",
		Schema: llm.ToolSchema{
			Type:       "object",
			Properties: map[string]interface{}{"title": map[string]interface{}{"type": "string"}},
			Required:   []string{"title"},
		},
	}})
	require.Len(t, decls, 1)
	assert.Equal(t, "complete_task", decls[0].Name)
	assert.NotNil(t, decls[0].ParametersJsonSchema)
}

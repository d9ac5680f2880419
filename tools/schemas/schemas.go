// Package schemas contains the JSON schemas the language model sees for each
// tool: a description and the shape of its arguments.
package schemas

// ToolSchema represents a tool's description and JSON schema.
type ToolSchema struct {
	Description string
	Schema      map[string]any
}

// All returns all tool schemas from all categories.
func All() map[string]ToolSchema {
	schemas := make(map[string]ToolSchema)

	for name, schema := range MemorySchemas() {
		schemas[name] = schema
	}
	for name, schema := range PlanSchemas() {
		schemas[name] = schema
	}
	for name, schema := range ContactSchemas() {
		schemas[name] = schema
	}
	for name, schema := range NotificationSchemas() {
		schemas[name] = schema
	}

	return schemas
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func enum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

func strList(description string) map[string]any {
	return map[string]any{"type": "array", "description": description, "items": map[string]any{"type": "string"}}
}

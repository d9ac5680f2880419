package schemas

// MemorySchemas returns schemas for memory item tools.
func MemorySchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"save_document": {
			Description: "Save a memory item: something that happened, a fact, a note or a task-like reminder. Do not invent people or amounts.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"kind":         enum("What sort of item this is.", "event", "fact", "note", "task"),
					"content":      str("Short one-line summary."),
					"body":         str("Optional longer text."),
					"happened_at":  str("When it happened, ISO 8601. Empty if unknown."),
					"place":        str("Where it happened."),
					"amount":       map[string]any{"type": "number", "description": "Money spent or received, signed."},
					"category":     enum("Life area.", "work", "health", "finance", "places", "personal", "other"),
					"person_names": strList("People involved, as named by the user."),
				},
				"required": []string{"content"},
			},
		},
		"search_documents": {
			Description: "Search saved memory items. Keywords match content, body or place; every person name must be present. Newest first.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"keywords":     strList("Words to look for; any may match."),
					"person_names": strList("People who must all be on the item."),
					"kind":         enum("Restrict to one kind.", "event", "fact", "note", "task"),
					"date_from":    str("Inclusive start, ISO 8601 date or timestamp."),
					"date_to":      str("Inclusive end, ISO 8601 date or timestamp. A bare date covers the whole day."),
					"limit":        map[string]any{"type": "integer", "description": "Maximum results (default 10, max 50)."},
				},
			},
		},
		"ignore_last_document": {
			Description: "Hide the most recently saved memory item, for example when the user says it was a mistake.",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

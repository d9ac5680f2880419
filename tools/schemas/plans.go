package schemas

// PlanSchemas returns schemas for goal and task tools.
func PlanSchemas() map[string]ToolSchema {
	taskRef := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":    map[string]any{"type": "integer", "description": "Task id, if known."},
			"title": str("Part of the task title; the most recent open match is used."),
		},
	}
	return map[string]ToolSchema{
		"create_goal": {
			Description: "Create a goal. Use category overall for life goals not tied to work or personal life.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       str("The goal."),
					"category":    enum("Goal area (default overall).", "overall", "personal", "work"),
					"why":         str("Why it matters."),
					"target_date": str("Target date, YYYY-MM-DD. A bare year means the end of that year."),
				},
				"required": []string{"title"},
			},
		},
		"create_task": {
			Description: "Create a work or personal priority, optionally linked to a goal.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":        str("The task."),
					"category":     enum("Which list it belongs on.", "work", "personal"),
					"goal_id":      map[string]any{"type": "integer", "description": "Goal to link, if known."},
					"goal_title":   str("Part of a goal title to link when goal_id is unknown."),
					"next_action":  str("The very next physical step."),
					"due":          str("Due date, YYYY-MM-DD."),
					"impact":       map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
					"energy_fit":   map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
					"effort_hours": map[string]any{"type": "number", "minimum": 0},
				},
				"required": []string{"title", "category"},
			},
		},
		"complete_task": {
			Description: "Mark an open task done.",
			Schema:      taskRef,
		},
		"reorder_task_top": {
			Description: "Move an open task to the top of its list.",
			Schema:      taskRef,
		},
		"list_priorities": {
			Description: "List overall goals and the ranked personal and work task lists.",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

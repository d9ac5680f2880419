package schemas

// ContactSchemas returns schemas for people and relationship tools.
func ContactSchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"upsert_contact": {
			Description: "Create a contact, or update one with the same full name. Only the fields given are changed.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"full_name":      str("Full name; matched case-insensitively."),
					"preferred_name": str("What they like to be called."),
					"relation":       str("Relation to the user, e.g. spouse, parent, friend, colleague, other."),
					"email":          str("Email address."),
					"phone":          str("Phone number."),
					"notes":          str("Free-form notes."),
				},
				"required": []string{"full_name"},
			},
		},
		"add_contact_key_date": {
			Description: "Record a birthday, anniversary or other date for a contact. The contact is created if it does not exist.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contact_id": map[string]any{"type": "integer", "description": "Contact id, if known."},
					"full_name":  str("Contact's full name when contact_id is unknown."),
					"kind":       enum("Kind of date (default other).", "birthday", "anniversary", "other"),
					"the_date":   str("The date, YYYY-MM-DD."),
					"label":      str("Optional label."),
				},
				"required": []string{"the_date"},
			},
		},
		"search_contacts": {
			Description: "Find contacts by part of their name and/or relation.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name_contains": str("Part of the full name."),
					"relation":      str("Exact relation."),
					"limit":         map[string]any{"type": "integer", "description": "Maximum results (default 10, max 50)."},
				},
			},
		},
	}
}

package schemas

// NotificationSchemas returns schemas for notification-related tools.
func NotificationSchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"send_user_notification": {
			Description: "Show a desktop notification to the user, for example a reminder they asked for.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": str("The notification text."),
					"title":   str("Optional title (default 'Psyclone')."),
				},
				"required": []string{"message"},
			},
		},
	}
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// DefaultNotificationTitle is used when a notification has no title.
const DefaultNotificationTitle = "Psyclone"

// Notifier shows a message to the user.
type Notifier interface {
	Notify(title, message string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title, message string) error

// Notify calls f(title, message).
func (f NotifierFunc) Notify(title, message string) error { return f(title, message) }

// DesktopNotifier shows notifications through the operating system.
type DesktopNotifier struct {
	logger zerolog.Logger
}

// NewDesktopNotifier returns a Notifier backed by beeep.
func NewDesktopNotifier(logger zerolog.Logger) *DesktopNotifier {
	return &DesktopNotifier{logger: logger.With().Str("component", "desktop_notifier").Logger()}
}

// Notify displays a desktop notification.
func (d *DesktopNotifier) Notify(title, message string) error {
	if title == "" {
		title = DefaultNotificationTitle
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		// Common causes: notification permissions not granted, or no
		// notification daemon on a headless host.
		d.logger.Warn().Err(err).Msg("Failed to send desktop notification")
		return err
	}
	d.logger.Debug().Str("title", title).Msg("Desktop notification sent")
	return nil
}

// RegisterNotificationTools registers send_user_notification.
func (r *Registry) RegisterNotificationTools(n Notifier) {
	r.logger.Info().Msg("Registering notification tools in registry")

	r.Register("send_user_notification", func(_ context.Context, args json.RawMessage) (any, error) {
		var payload struct {
			Message string `json:"message"`
			Title   string `json:"title"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
		if strings.TrimSpace(payload.Message) == "" {
			return nil, fmt.Errorf("message cannot be empty")
		}
		title := payload.Title
		if title == "" {
			title = DefaultNotificationTitle
		}
		err := n.Notify(title, payload.Message)
		// Delivery failure is reported in the result.
		return map[string]any{
			"title":             title,
			"message":           payload.Message,
			"notification_sent": err == nil,
		}, nil
	})
}

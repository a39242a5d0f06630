package alert

import (
	"context"

	"stockcore/pkg/logger"
)

// LogNotifier writes notifications to the application log. Deployments
// without an external notification service use it so low-stock alerts are
// at least visible in the logs.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	logger.Info(ctx, "notification",
		"receiver", notification.Receiver,
		"title", notification.Title,
		"message", notification.Message,
		"link", notification.Link,
	)
	return nil
}

// Package notify contains feed.Notifier implementations.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/leaklook/leaklook/internal/feed"
)

// LogNotifier announces merged records via structured logs. It stands in for
// an outbound social-media notifier in development deployments.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier wires a zap logger to the notifier interface.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, note feed.Notification) error {
	n.logger.Info("new record merged",
		zap.String("group", note.Group),
		zap.String("subject", note.Subject),
		zap.String("kind", note.Kind),
		zap.Time("discovered", note.DiscoveredAt),
	)
	return nil
}

package notify

import (
	"context"

	"github.com/mroshb/rallypoint/pkg/logger"
)

// Notifier delivers a short human-readable message somewhere outside the engine.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, text string) error {
	logger.Info("Notification", "text", text)
	return nil
}

package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/retailops/api/internal/domain"
)

// LogNotifier writes lifecycle events to the structured log instead of a broker.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier logging through logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, event domain.LifecycleEvent) error {
	l.logger.Info("lifecycle event",
		zap.String("eventType", string(event.Kind)),
		zap.String("entityId", event.EntityID),
		zap.String("relatedId", event.RelatedID),
		zap.String("message", event.Message),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}

func (l *LogNotifier) Close() error { return nil }

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, domain.LifecycleEvent) error { return nil }

func (Nop) Close() error { return nil }

package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dosada05/fight-train/brackets"
)

const notifyTimeout = 2 * time.Second

// Notifier fans train events out after their transaction committed.
// Failures are logged and counted; they never reach the caller.
type Notifier struct {
	publisher brackets.Publisher
	metrics   *Metrics
	logger    *slog.Logger
}

func NewNotifier(publisher brackets.Publisher, metrics *Metrics, logger *slog.Logger) *Notifier {
	return &Notifier{publisher: publisher, metrics: metrics, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, msgs ...brackets.WebSocketMessage) {
	if n == nil || n.publisher == nil || len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	for _, msg := range msgs {
		if err := n.publisher.Publish(ctx, msg); err != nil {
			n.metrics.NotifyFailures.Inc()
			n.logger.WarnContext(ctx, "failed to publish train event",
				slog.String("type", string(msg.Type)),
				slog.String("train_id", msg.TrainID.String()),
				slog.Any("error", err),
			)
		}
	}
}

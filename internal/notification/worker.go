package notification

import (
	"context"
	"log/slog"
	"time"

	"pgsentry/internal/metrics"
	"pgsentry/internal/queue"
)

// Worker consumes notification jobs and sends them.
type Worker struct {
	consumer queue.Consumer
	sender   Sender
	from     string
	logger   *slog.Logger
}

// NewWorker creates a worker sending from the given address.
func NewWorker(consumer queue.Consumer, sender Sender, from string, logger *slog.Logger) *Worker {
	return &Worker{
		consumer: consumer,
		sender:   sender,
		from:     from,
		logger:   logger,
	}
}

// Run consumes jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("notification worker started", "provider", w.sender.Name())
	return w.consumer.Start(ctx, w.handle)
}

func (w *Worker) handle(ctx context.Context, msg *queue.Message) error {
	job, err := decodeJob(msg.Value)
	if err != nil {
		metrics.NotificationsSentTotal.WithLabelValues(w.sender.Name(), "failure").Inc()
		return err
	}

	email, err := Render(job, w.from)
	if err != nil {
		metrics.NotificationsSentTotal.WithLabelValues(w.sender.Name(), "failure").Inc()
		return err
	}

	if err := w.sender.Send(ctx, email); err != nil {
		metrics.NotificationsSentTotal.WithLabelValues(w.sender.Name(), "failure").Inc()
		w.logger.Error("failed to send alert email",
			"alert_id", job.AlertID,
			"target", job.TargetAlias,
			"error", err,
		)
		return err
	}

	metrics.NotificationsSentTotal.WithLabelValues(w.sender.Name(), "success").Inc()
	if !job.QueuedAt.IsZero() {
		metrics.NotificationLatency.Observe(time.Since(job.QueuedAt).Seconds())
	}
	w.logger.Info("alert email sent",
		"alert_id", job.AlertID,
		"target", job.TargetAlias,
		"provider", w.sender.Name(),
	)
	return nil
}

package notification

import (
	"context"
	"log/slog"
	"net/mail"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"pgsentry/internal/domain"
	"pgsentry/internal/queue"
)

const publishTimeout = 5 * time.Second

// Dispatcher turns ingested alerts into queued email jobs, one per
// recipient address of the alert's target.
type Dispatcher struct {
	producer   queue.Producer
	severities []string
	logger     *slog.Logger
	now        func() time.Time
}

// NewDispatcher creates a dispatcher that queues alerts whose severity is in
// severities.
func NewDispatcher(producer queue.Producer, severities []string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		producer:   producer,
		severities: severities,
		logger:     logger,
		now:        time.Now,
	}
}

// Notify queues an email job for every valid address on the target. It does
// not wait for sending; publish failures are logged.
func (d *Dispatcher) Notify(ctx context.Context, alert *domain.MappedAlert, target *domain.Target) {
	if !slices.Contains(d.severities, alert.Severity) || len(target.Emails) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, address := range target.Emails {
		if _, err := mail.ParseAddress(address); err != nil {
			d.logger.Warn("skipping invalid notification address",
				"target", target.Alias,
				"address", address,
				"error", err,
			)
			continue
		}

		payload, err := encodeJob(newJob(alert, address, d.now()))
		if err != nil {
			d.logger.Error("failed to encode notification job", "alert_id", alert.ID, "error", err)
			continue
		}

		msg := &queue.Message{
			Key:   []byte(strconv.FormatInt(alert.ID, 10)),
			Value: payload,
			Headers: map[string]string{
				queue.HeaderMessageID:   uuid.NewString(),
				queue.HeaderContentType: "application/json",
			},
		}
		if err := d.producer.Publish(ctx, msg); err != nil {
			d.logger.Error("failed to queue notification",
				"alert_id", alert.ID,
				"target", target.Alias,
				"error", err,
			)
		}
	}
}

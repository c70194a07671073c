package api

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"pgsentry/internal/alerting"
	"pgsentry/internal/domain"
)

// DefaultDeliveryAge is the look-back window of GET /alerts/delivery.
const DefaultDeliveryAge = time.Hour

// AlertTracker is the alert lifecycle used by the handlers.
type AlertTracker interface {
	Ingest(ctx context.Context, webhook *domain.AlertmanagerWebhook) ([]*alerting.IngestedAlert, error)
	StopDelivery(ctx context.Context, alertID int64, receivers []int64) error
	CheckDelivery(ctx context.Context, since time.Time) ([]*domain.GroupedDelivery, error)
	GetAlert(ctx context.Context, id int64) (*domain.MappedAlert, error)
}

// FinishRequest is the body of POST /alerts/finish.
type FinishRequest struct {
	AlertID   int64   `json:"alert_id"`
	Receivers []int64 `json:"receivers"`
}

// AlertHandler handles the Alertmanager webhook and delivery tracking.
type AlertHandler struct {
	tracker AlertTracker
	logger  *slog.Logger
	now     func() time.Time
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(tracker AlertTracker, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}
}

// Callback handles POST /alerts/alertmanager-callback
// Unusable entries are skipped; storage failures return 500 so Alertmanager
// retries the whole batch.
func (h *AlertHandler) Callback(c *fiber.Ctx) error {
	var webhook domain.AlertmanagerWebhook
	if err := c.BodyParser(&webhook); err != nil {
		h.logger.Debug("failed to parse alertmanager webhook", "error", err)
		return BadRequest(c, "invalid request body")
	}

	ingested, err := h.tracker.Ingest(c.UserContext(), &webhook)
	if err != nil {
		h.logger.Error("failed to ingest alerts", "received", len(webhook.Alerts), "error", err)
		return InternalError(c)
	}

	h.logger.Debug("alertmanager webhook processed",
		"receiver", webhook.Receiver,
		"received", len(webhook.Alerts),
		"ingested", len(ingested),
	)
	return Success(c, fiber.Map{})
}

// Get handles GET /alerts/by-id/:id
func (h *AlertHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return BadRequest(c, "alert id must be an integer")
	}

	alert, err := h.tracker.GetAlert(c.UserContext(), id)
	if err != nil {
		return err
	}
	return Success(c, alert)
}

// CheckDelivery handles GET /alerts/delivery?age=<seconds>
func (h *AlertHandler) CheckDelivery(c *fiber.Ctx) error {
	age := DefaultDeliveryAge
	if raw := c.Query("age"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seconds < 0 {
			return BadRequest(c, "age must be a non-negative number of seconds")
		}
		age = time.Duration(seconds) * time.Second
	}

	grouped, err := h.tracker.CheckDelivery(c.UserContext(), h.now().Add(-age))
	if err != nil {
		return err
	}
	return Success(c, grouped)
}

// Finish handles POST /alerts/finish
func (h *AlertHandler) Finish(c *fiber.Ctx) error {
	var req FinishRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if req.AlertID == 0 {
		return BadRequest(c, "alert_id is required")
	}

	if err := h.tracker.StopDelivery(c.UserContext(), req.AlertID, req.Receivers); err != nil {
		return err
	}
	return Success(c, fiber.Map{})
}

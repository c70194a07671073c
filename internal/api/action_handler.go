package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"pgsentry/internal/auth"
	"pgsentry/internal/domain"
)

// ActionRunner lists and runs catalog actions.
type ActionRunner interface {
	Actions() []*domain.Action
	Action(alias string) (*domain.Action, error)
	Run(ctx context.Context, alias string, input map[string]any, targetAlias string, identity domain.Identity) (*domain.ActionResult, error)
}

// ActionHandler handles HTTP requests for actions.
type ActionHandler struct {
	engine ActionRunner
	logger *slog.Logger
}

// NewActionHandler creates a new action handler.
func NewActionHandler(engine ActionRunner, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{engine: engine, logger: logger}
}

// List handles GET /actions/
func (h *ActionHandler) List(c *fiber.Ctx) error {
	return Success(c, h.engine.Actions())
}

// Get handles GET /actions/:alias
func (h *ActionHandler) Get(c *fiber.Ctx) error {
	action, err := h.engine.Action(c.Params("alias"))
	if err != nil {
		return err
	}
	return Success(c, action)
}

// Execute handles POST /actions/execute/:alias?target_alias=
// The body is a JSON object of arguments; an empty body means no arguments.
// Step failures are reported in the result with status 200.
func (h *ActionHandler) Execute(c *fiber.Ctx) error {
	targetAlias := c.Query("target_alias")
	if targetAlias == "" {
		return BadRequest(c, "target_alias is required")
	}

	input, err := decodeArguments(c.Body())
	if err != nil {
		h.logger.Debug("failed to parse action arguments", "error", err)
		return BadRequest(c, "request body must be a JSON object")
	}

	result, err := h.engine.Run(c.UserContext(), c.Params("alias"), input, targetAlias, auth.IdentityFrom(c))
	if err != nil {
		return err
	}
	return Success(c, result)
}

// decodeArguments parses a JSON object keeping numbers exact.
func decodeArguments(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var input map[string]any
	if err := dec.Decode(&input); err != nil {
		return nil, err
	}
	return input, nil
}

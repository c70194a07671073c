package api

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"pgsentry/internal/auth"
	"pgsentry/internal/domain"
	"pgsentry/internal/engine"
	"pgsentry/internal/executor"
)

// ViewRunner lists and runs catalog views.
type ViewRunner interface {
	Views() []*domain.View
	View(alias string) (*domain.View, error)
	Run(ctx context.Context, alias string, input map[string]any, targetAlias string, identity domain.Identity, page engine.Page) ([]executor.Row, error)
}

// ViewHandler handles HTTP requests for views.
type ViewHandler struct {
	engine ViewRunner
	logger *slog.Logger
}

// NewViewHandler creates a new view handler.
func NewViewHandler(engine ViewRunner, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{engine: engine, logger: logger}
}

// List handles GET /views/
func (h *ViewHandler) List(c *fiber.Ctx) error {
	return Success(c, h.engine.Views())
}

// Get handles GET /views/:alias
func (h *ViewHandler) Get(c *fiber.Ctx) error {
	view, err := h.engine.View(c.Params("alias"))
	if err != nil {
		return err
	}
	return Success(c, view)
}

// Execute handles GET /views/execute/:alias?target_alias=&limit=&offset=
// Remaining query parameters are passed as view arguments.
func (h *ViewHandler) Execute(c *fiber.Ctx) error {
	targetAlias := c.Query("target_alias")
	if targetAlias == "" {
		return BadRequest(c, "target_alias is required")
	}

	page := engine.DefaultPage()
	var err error
	if page.Limit, err = queryInt(c, executor.ArgLimit, page.Limit); err != nil {
		return err
	}
	if page.Offset, err = queryInt(c, executor.ArgOffset, page.Offset); err != nil {
		return err
	}

	input := make(map[string]any)
	for key, value := range c.Queries() {
		switch key {
		case "target_alias", executor.ArgLimit, executor.ArgOffset:
			continue
		}
		input[key] = value
	}

	rows, err := h.engine.Run(c.UserContext(), c.Params("alias"), input, targetAlias, auth.IdentityFrom(c), page)
	if err != nil {
		return err
	}
	return Success(c, rows)
}

func queryInt(c *fiber.Ctx, name string, def int64) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &domain.WrongArgumentTypeError{Name: name, Type: domain.ArgInt}
	}
	return n, nil
}

package api

import (
	"github.com/gofiber/fiber/v2"
)

// TargetLister lists configured target aliases.
type TargetLister interface {
	Aliases() []string
}

// TargetHandler handles target listing.
type TargetHandler struct {
	targets TargetLister
}

// NewTargetHandler creates a new target handler.
func NewTargetHandler(targets TargetLister) *TargetHandler {
	return &TargetHandler{targets: targets}
}

// List handles GET /targets/
func (h *TargetHandler) List(c *fiber.Ctx) error {
	return Success(c, h.targets.Aliases())
}

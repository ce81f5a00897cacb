package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-workflow/internal/notify"
	"github.com/spec-kit/helpdesk-workflow/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

// AdminHandler serves operator views for support staff.
type AdminHandler struct {
	metrics  *observability.Metrics
	failures *notify.RedisFailureLog
}

// NewAdminHandler constructs handler.
func NewAdminHandler(metrics *observability.Metrics, failures *notify.RedisFailureLog) *AdminHandler {
	return &AdminHandler{metrics: metrics, failures: failures}
}

// Metrics GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

// NotificationFailures GET /admin/notification-failures?limit=n.
func (h *AdminHandler) NotificationFailures(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), 50)
	items, err := h.failures.Recent(c.UserContext(), int64(limit))
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": items})
}

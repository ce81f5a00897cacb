package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-workflow/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Requests       *handlers.RequestsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware fiber.Handler
}

// RegisterRoutes wires HTTP routes. Route-level role checks are coarse;
// per-ticket checks happen inside the engines.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", cfg.AuthMiddleware, auth.RequireAnyRole(), cfg.Auth.Me)

	tickets := app.Group("/tickets", cfg.AuthMiddleware, auth.RequireAnyRole())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/access", cfg.Tickets.CheckAccess)
	tickets.Get("/:id/logs", cfg.Tickets.ListLogs)
	tickets.Patch("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/attachments", cfg.Tickets.AddAttachment)
	tickets.Post("/:id/approve", cfg.Requests.Approve)
	tickets.Post("/:id/reject", cfg.Requests.Reject)
	tickets.Post("/:id/forward", auth.RequireRole(domain.RoleSecurity, domain.RoleAdmin), cfg.Requests.Forward)
	tickets.Post("/:id/execute", auth.RequireRole(domain.RoleIT, domain.RoleAdmin), cfg.Requests.Execute)

	requests := app.Group("/requests", cfg.AuthMiddleware, auth.RequireAnyRole())
	requests.Post("/access", cfg.Requests.SubmitAccess)
	requests.Post("/service", cfg.Requests.SubmitService)
	requests.Post("/system-change", cfg.Requests.SubmitSystemChange)

	admin := app.Group("/admin", cfg.AuthMiddleware, auth.RequireRole(domain.RoleAdmin, domain.RoleSupport))
	admin.Get("/metrics", cfg.Admin.Metrics)
	admin.Get("/notification-failures", cfg.Admin.NotificationFailures)
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-workflow/internal/api/dto"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/service"
	"github.com/spec-kit/helpdesk-workflow/internal/storage"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

// TicketsHandler exposes the lifecycle engine.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	outcome, err := h.service.CreateTicket(c.UserContext(), caller, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Department:  req.Department,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, ticketSummary(outcome.Ticket), outcome.Warnings)
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), caller, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// CheckAccess GET /tickets/:id/access.
func (h *TicketsHandler) CheckAccess(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	allowed, err := h.service.CanAccess(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AccessResponse{TicketID: id, CanAccess: allowed}})
}

// ChangeStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status, ok := domain.ParseTicketStatus(req.Status)
	if !ok {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": req.Status})
	}
	outcome, err := h.service.ChangeStatus(c.UserContext(), caller, id, service.StatusChangeInput{
		Status:     status,
		AssigneeID: req.AssigneeID,
		Notes:      req.Notes,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, ticketSummary(outcome.Ticket), outcome.Warnings)
}

// AddAttachment POST /tickets/:id/attachments (multipart field "file").
func (h *TicketsHandler) AddAttachment(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("multipart field \"file\" required", nil)
	}
	file, err := header.Open()
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}
	defer file.Close()

	att, err := h.service.AddAttachment(c.UserContext(), caller, id, storage.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, attachmentResponse(att), nil)
}

// ListLogs GET /tickets/:id/logs.
func (h *TicketsHandler) ListLogs(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	logs, err := h.service.ListLogs(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": logResponses(logs)})
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	for _, part := range splitQuery(c.Query("status")) {
		status, ok := domain.ParseTicketStatus(part)
		if !ok {
			return filter, apperrors.NewValidationError("invalid status filter", map[string]any{"status": part})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, part := range splitQuery(c.Query("priority")) {
		priority, ok := domain.ParseTicketPriority(part)
		if !ok {
			return filter, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": part})
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	if dept := strings.TrimSpace(c.Query("department")); dept != "" {
		filter.Department = &dept
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	if raw := c.Query("assignee_id"); raw != "" {
		assignee, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid assignee_id", nil)
		}
		filter.AssigneeID = &assignee
	}
	filter.CreatedFrom = parseTime(c.Query("created_from"))
	filter.CreatedTo = parseTime(c.Query("created_to"))

	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	ticket := detail.Ticket
	attachments := make([]dto.AttachmentResponse, 0, len(ticket.Attachments))
	for i := range ticket.Attachments {
		attachments = append(attachments, attachmentResponse(&ticket.Attachments[i]))
	}
	resp := dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Description:   ticket.Description,
		Logs:          logResponses(ticket.Logs),
		Attachments:   attachments,
	}
	switch {
	case detail.Access != nil:
		r := requestResponse(&detail.Access.RequestBase, accessFields(detail.Access))
		resp.Request = &r
	case detail.Service != nil:
		r := requestResponse(&detail.Service.RequestBase, serviceFields(detail.Service))
		resp.Request = &r
	case detail.SystemChange != nil:
		r := requestResponse(&detail.SystemChange.RequestBase, systemChangeFields(detail.SystemChange))
		resp.Request = &r
	}
	return resp
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-workflow/internal/api/dto"
	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/service"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

// RequestsHandler exposes the approval workflow engine.
type RequestsHandler struct {
	workflow *service.WorkflowService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(workflow *service.WorkflowService) *RequestsHandler {
	return &RequestsHandler{workflow: workflow}
}

// SubmitAccess POST /requests/access.
func (h *RequestsHandler) SubmitAccess(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req dto.AccessRequestPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	outcome, err := h.workflow.SubmitAccessRequest(c.UserContext(), caller, service.AccessRequestInput{
		RequestTicketInput: ticketFields(req.RequestTicketFields),
		SystemName:         req.SystemName,
		AccessLevel:        req.AccessLevel,
		Justification:      req.Justification,
		ValidUntil:         req.ValidUntil,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, workflowResponse(outcome), outcome.Warnings)
}

// SubmitService POST /requests/service.
func (h *RequestsHandler) SubmitService(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req dto.ServiceRequestPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	outcome, err := h.workflow.SubmitServiceRequest(c.UserContext(), caller, service.ServiceRequestInput{
		RequestTicketInput: ticketFields(req.RequestTicketFields),
		ServiceName:        req.ServiceName,
		Category:           req.Category,
		Details:            req.Details,
		NeededBy:           req.NeededBy,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, workflowResponse(outcome), outcome.Warnings)
}

// SubmitSystemChange POST /requests/system-change.
func (h *RequestsHandler) SubmitSystemChange(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req dto.SystemChangeRequestPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	outcome, err := h.workflow.SubmitSystemChangeRequest(c.UserContext(), caller, service.SystemChangeRequestInput{
		RequestTicketInput: ticketFields(req.RequestTicketFields),
		SystemName:         req.SystemName,
		ChangeSummary:      req.ChangeSummary,
		ImpactAssessment:   req.ImpactAssessment,
		RollbackPlan:       req.RollbackPlan,
		ScheduledFor:       req.ScheduledFor,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, workflowResponse(outcome), outcome.Warnings)
}

type workflowFunc func(ctx context.Context, caller auth.Permissions, ticketID int64, req dto.WorkflowActionRequest) (*service.WorkflowOutcome, error)

func withComment(fn func(context.Context, auth.Permissions, int64, string) (*service.WorkflowOutcome, error)) workflowFunc {
	return func(ctx context.Context, caller auth.Permissions, ticketID int64, req dto.WorkflowActionRequest) (*service.WorkflowOutcome, error) {
		return fn(ctx, caller, ticketID, req.Comment)
	}
}

// Approve POST /tickets/:id/approve.
func (h *RequestsHandler) Approve(c *fiber.Ctx) error {
	return h.run(c, func(ctx context.Context, caller auth.Permissions, ticketID int64, req dto.WorkflowActionRequest) (*service.WorkflowOutcome, error) {
		return h.workflow.ApproveStage(ctx, caller, ticketID, domain.Stage(req.Stage), req.Comment)
	})
}

// Reject POST /tickets/:id/reject.
func (h *RequestsHandler) Reject(c *fiber.Ctx) error { return h.run(c, withComment(h.workflow.Reject)) }

// Forward POST /tickets/:id/forward.
func (h *RequestsHandler) Forward(c *fiber.Ctx) error { return h.run(c, withComment(h.workflow.Forward)) }

// Execute POST /tickets/:id/execute.
func (h *RequestsHandler) Execute(c *fiber.Ctx) error { return h.run(c, withComment(h.workflow.Execute)) }

func (h *RequestsHandler) run(c *fiber.Ctx, action workflowFunc) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.WorkflowActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	outcome, err := action(c.UserContext(), caller, id, req)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, workflowResponse(outcome), outcome.Warnings)
}

func ticketFields(f dto.RequestTicketFields) service.RequestTicketInput {
	return service.RequestTicketInput{
		Title:             f.Title,
		Description:       f.Description,
		Department:        f.Department,
		Priority:          f.Priority,
		SelectedManagerID: f.SelectedManagerID,
	}
}

func workflowResponse(outcome *service.WorkflowOutcome) dto.WorkflowResponse {
	return dto.WorkflowResponse{
		Ticket:  ticketSummary(outcome.Ticket),
		Request: requestResponse(outcome.Request, nil),
		Skipped: outcome.Skipped,
	}
}

func accessFields(r *domain.AccessRequest) map[string]any {
	return map[string]any{
		"system_name":   r.SystemName,
		"access_level":  r.AccessLevel,
		"justification": r.Justification,
		"valid_until":   r.ValidUntil,
	}
}

func serviceFields(r *domain.ServiceRequest) map[string]any {
	return map[string]any{
		"service_name": r.ServiceName,
		"category":     r.Category,
		"details":      r.Details,
		"needed_by":    r.NeededBy,
	}
}

func systemChangeFields(r *domain.SystemChangeRequest) map[string]any {
	return map[string]any{
		"system_name":       r.SystemName,
		"change_summary":    r.ChangeSummary,
		"impact_assessment": r.ImpactAssessment,
		"rollback_plan":     r.RollbackPlan,
		"scheduled_for":     r.ScheduledFor,
	}
}

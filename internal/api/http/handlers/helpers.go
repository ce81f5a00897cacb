package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-workflow/internal/api/dto"
	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/service"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

func callerOf(c *fiber.Ctx) (auth.Permissions, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return auth.Permissions{}, apperrors.NewUnauthorized("user required")
	}
	return principal.Permissions, nil
}

func ticketIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

// respond writes the standard envelope. Warnings are only present when a
// committed change could not be fully announced.
func respond(c *fiber.Ctx, status int, data any, warnings []string) error {
	body := fiber.Map{"data": data}
	if len(warnings) > 0 {
		body["warnings"] = warnings
	}
	return c.Status(status).JSON(body)
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitQuery(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:          ticket.ID,
		Title:       ticket.Title,
		Department:  ticket.Department,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		CreatorID:   ticket.CreatorID,
		AssigneeID:  ticket.AssigneeID,
		CloseReason: ticket.CloseReason,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

func logResponses(entries []domain.TicketLog) []dto.TicketLogResponse {
	resp := make([]dto.TicketLogResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketLogResponse{
			ID:        entry.ID,
			Action:    entry.Action,
			ActorID:   entry.ActorID,
			ActorName: entry.ActorName,
			Notes:     entry.Notes,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}

func attachmentResponse(att *domain.TicketAttachment) dto.AttachmentResponse {
	return dto.AttachmentResponse{
		ID:           att.ID,
		OriginalName: att.OriginalName,
		StoredPath:   att.StoredPath,
		ContentType:  att.ContentType,
		SizeBytes:    att.SizeBytes,
		UploadedBy:   att.UploadedBy,
		UploadedAt:   att.UploadedAt,
	}
}

func requestResponse(base *domain.RequestBase, fields map[string]any) dto.RequestResponse {
	approvals := map[string]dto.ApprovalResponse{}
	for _, stage := range []domain.Stage{domain.StageManager, domain.StageSecurity, domain.StageIT} {
		a := base.Approvals.Stage(stage)
		approvals[strings.ToLower(string(stage))] = dto.ApprovalResponse{
			Status:       a.Status,
			ApproverID:   a.ApproverID,
			ApproverName: a.ApproverName,
			DecidedAt:    a.DecidedAt,
			Comment:      a.Comment,
		}
	}
	current, _ := service.CurrentStage(&base.Approvals)
	return dto.RequestResponse{
		ID:                base.ID,
		Kind:              base.Kind,
		SelectedManagerID: base.SelectedManagerID,
		CurrentStage:      current,
		Approvals:         approvals,
		Fields:            fields,
		CreatedAt:         base.CreatedAt,
	}
}

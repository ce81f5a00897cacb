package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-workflow/internal/domain"
)

// RequestTicketFields are accepted by every request submission.
type RequestTicketFields struct {
	Title             string                `json:"title"`
	Description       string                `json:"description"`
	Department        string                `json:"department"`
	Priority          domain.TicketPriority `json:"priority"`
	SelectedManagerID *int64                `json:"selected_manager_id"`
}

// AccessRequestPayload for POST /requests/access.
type AccessRequestPayload struct {
	RequestTicketFields
	SystemName    string     `json:"system_name"`
	AccessLevel   string     `json:"access_level"`
	Justification string     `json:"justification"`
	ValidUntil    *time.Time `json:"valid_until"`
}

// ServiceRequestPayload for POST /requests/service.
type ServiceRequestPayload struct {
	RequestTicketFields
	ServiceName string     `json:"service_name"`
	Category    string     `json:"category"`
	Details     string     `json:"details"`
	NeededBy    *time.Time `json:"needed_by"`
}

// SystemChangeRequestPayload for POST /requests/system-change.
type SystemChangeRequestPayload struct {
	RequestTicketFields
	SystemName       string     `json:"system_name"`
	ChangeSummary    string     `json:"change_summary"`
	ImpactAssessment string     `json:"impact_assessment"`
	RollbackPlan     string     `json:"rollback_plan"`
	ScheduledFor     *time.Time `json:"scheduled_for"`
}

// WorkflowActionRequest is the body of approve, reject, forward and execute.
// Stage is optional and only read by approve.
type WorkflowActionRequest struct {
	Comment string `json:"comment"`
	Stage   string `json:"stage"`
}

// ApprovalResponse is one stage of the approval chain.
type ApprovalResponse struct {
	Status       domain.ApprovalStatus `json:"status"`
	ApproverID   *int64                `json:"approver_id,omitempty"`
	ApproverName string                `json:"approver_name,omitempty"`
	DecidedAt    *time.Time            `json:"decided_at,omitempty"`
	Comment      string                `json:"comment,omitempty"`
}

// RequestResponse describes a request subtype with its approvals. Fields is
// the subtype-specific part.
type RequestResponse struct {
	ID                int64                       `json:"id"`
	Kind              domain.RequestKind          `json:"kind"`
	SelectedManagerID *int64                      `json:"selected_manager_id,omitempty"`
	CurrentStage      domain.Stage                `json:"current_stage,omitempty"`
	Approvals         map[string]ApprovalResponse `json:"approvals"`
	Fields            map[string]any              `json:"fields,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
}

// WorkflowResponse answers a workflow action.
type WorkflowResponse struct {
	Ticket  TicketSummary   `json:"ticket"`
	Request RequestResponse `json:"request"`
	Skipped bool            `json:"skipped"`
}

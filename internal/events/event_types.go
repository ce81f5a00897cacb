package events

import (
	"time"

	"github.com/spec-kit/helpdesk-workflow/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	// AllEvents subscribes a handler to every event type.
	AllEvents EventType = "*"

	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventApprovalRecorded    EventType = "approval_recorded"
	EventRequestForwarded    EventType = "request_forwarded"
	EventRequestRejected     EventType = "request_rejected"
	EventRequestExecuted     EventType = "request_executed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// Event represents a domain event emitted after a unit of work commits.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload. Stage is the first approval stage of a
// request and empty for plain tickets.
type TicketCreatedPayload struct {
	Title       string                `json:"title"`
	Priority    domain.TicketPriority `json:"priority"`
	CreatorID   int64                 `json:"creator_id"`
	AssigneeID  *int64                `json:"assignee_id,omitempty"`
	RequestKind *domain.RequestKind   `json:"request_kind,omitempty"`
	Stage       domain.Stage          `json:"stage,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Title       string              `json:"title"`
	OldStatus   domain.TicketStatus `json:"old_status"`
	NewStatus   domain.TicketStatus `json:"new_status"`
	CreatorID   int64               `json:"creator_id"`
	OldAssignee *int64              `json:"old_assignee_id,omitempty"`
	NewAssignee *int64              `json:"new_assignee_id,omitempty"`
	Notes       string              `json:"notes,omitempty"`
}

// ApprovalPayload describes an approval-chain action. NextStage is empty when
// the pipeline finished or halted.
type ApprovalPayload struct {
	Title      string             `json:"title"`
	Kind       domain.RequestKind `json:"kind"`
	Stage      domain.Stage       `json:"stage"`
	NextStage  domain.Stage       `json:"next_stage,omitempty"`
	CreatorID  int64              `json:"creator_id"`
	AssigneeID *int64             `json:"assignee_id,omitempty"`
	Comment    string             `json:"comment,omitempty"`
}

package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-workflow/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Department  string                `json:"department"`
	Priority    domain.TicketPriority `json:"priority"`
	AssigneeID  *int64                `json:"assignee_id"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status     string `json:"status"`
	AssigneeID *int64 `json:"assignee_id"`
	Notes      string `json:"notes"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          int64                 `json:"id"`
	Title       string                `json:"title"`
	Department  string                `json:"department,omitempty"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	CreatorID   int64                 `json:"creator_id"`
	AssigneeID  *int64                `json:"assignee_id"`
	CloseReason *domain.CloseReason   `json:"close_reason,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string               `json:"description"`
	Logs        []TicketLogResponse  `json:"logs"`
	Attachments []AttachmentResponse `json:"attachments"`
	Request     *RequestResponse     `json:"request,omitempty"`
}

// TicketLogResponse is one audit entry.
type TicketLogResponse struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	ActorID   int64     `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"original_name"`
	StoredPath   string    `json:"stored_path"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	UploadedBy   int64     `json:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// AccessResponse answers GET /tickets/:id/access.
type AccessResponse struct {
	TicketID  int64 `json:"ticket_id"`
	CanAccess bool  `json:"can_access"`
}

package domain

import "time"

// Log action labels.
const (
	LogActionCreated          = "Created"
	LogActionStatusChanged    = "Status Changed"
	LogActionManagerApproved  = "Manager-Approved"
	LogActionManagerRejected  = "Manager-Rejected"
	LogActionSecurityApproved = "Security-Approved"
	LogActionSecurityRejected = "Security-Rejected"
	LogActionForwarded        = "Forwarded-To-Manager"
	LogActionExecuted         = "Executed"
	LogActionITRejected       = "IT-Rejected"
)

// TicketLog is an immutable audit trail entry.
type TicketLog struct {
	ID        int64
	TicketID  int64
	Action    string
	ActorID   int64
	ActorName string
	Notes     *string
	CreatedAt time.Time
}

package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "NEW"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusRejected   TicketStatus = "REJECTED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// ParseTicketStatus normalizes a status name.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	status := TicketStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusResolved, TicketStatusRejected, TicketStatusClosed:
		return status, true
	}
	return "", false
}

// IsTerminal reports whether no further status change is accepted.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusRejected
}

// TicketPriority enumerates urgency, ordered from Low to Critical.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// ParseTicketPriority normalizes a priority name.
func ParseTicketPriority(raw string) (TicketPriority, bool) {
	priority := TicketPriority(strings.ToUpper(strings.TrimSpace(raw)))
	if priority.Rank() < 0 {
		return "", false
	}
	return priority, true
}

// Rank returns the ordinal of the priority, or -1 when unknown.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityLow:
		return 0
	case TicketPriorityMedium:
		return 1
	case TicketPriorityHigh:
		return 2
	case TicketPriorityCritical:
		return 3
	}
	return -1
}

// CloseReason records why a ticket left the active flow.
type CloseReason string

const (
	CloseReasonCompleted CloseReason = "COMPLETED"
	CloseReasonRejected  CloseReason = "REJECTED"
)

// Ticket is the aggregate tracked by the lifecycle and approval engines.
type Ticket struct {
	ID          int64
	Title       string
	Description string
	Department  string
	Priority    TicketPriority
	Status      TicketStatus
	CreatorID   int64
	AssigneeID  *int64
	CloseReason *CloseReason
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Logs        []TicketLog
	Attachments []TicketAttachment
}

// IsAssignee reports whether userID currently holds the ticket.
func (t *Ticket) IsAssignee(userID int64) bool {
	return t != nil && t.AssigneeID != nil && *t.AssigneeID == userID
}

// TicketAttachment is metadata for a file kept by the attachment store.
type TicketAttachment struct {
	ID           int64
	TicketID     int64
	OriginalName string
	StoredPath   string
	ContentType  string
	SizeBytes    int64
	UploadedBy   int64
	UploadedAt   time.Time
}

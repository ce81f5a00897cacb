package domain

import (
	"strings"
	"time"
)

// RequestKind identifies the request subtype attached to a ticket.
type RequestKind string

const (
	RequestKindAccess       RequestKind = "ACCESS"
	RequestKindService      RequestKind = "SERVICE"
	RequestKindSystemChange RequestKind = "SYSTEM_CHANGE"
)

// ApprovalStatus is the decision state of one approval stage.
type ApprovalStatus string

const (
	// ApprovalNotRequired marks an optional stage nobody has been asked to decide.
	ApprovalNotRequired ApprovalStatus = "NOT_REQUIRED"
	ApprovalPending     ApprovalStatus = "PENDING"
	ApprovalApproved    ApprovalStatus = "APPROVED"
	ApprovalRejected    ApprovalStatus = "REJECTED"
)

// Stage names an ordered checkpoint in an approval pipeline.
type Stage string

const (
	StageManager  Stage = "MANAGER"
	StageSecurity Stage = "SECURITY"
	StageIT       Stage = "IT"
)

// ParseStage matches raw against the known stages case-insensitively.
func ParseStage(raw string) (Stage, bool) {
	stage := Stage(strings.ToUpper(strings.TrimSpace(raw)))
	switch stage {
	case StageManager, StageSecurity, StageIT:
		return stage, true
	}
	return "", false
}

// Approval records the decision taken at a stage.
type Approval struct {
	Status       ApprovalStatus
	ApproverID   *int64
	ApproverName string
	DecidedAt    *time.Time
	Comment      string
}

// ApprovalChain holds the three stage records of a request.
type ApprovalChain struct {
	Manager  Approval
	Security Approval
	IT       Approval
}

// Stage returns a pointer to the record for stage.
func (c *ApprovalChain) Stage(stage Stage) *Approval {
	switch stage {
	case StageManager:
		return &c.Manager
	case StageSecurity:
		return &c.Security
	case StageIT:
		return &c.IT
	}
	return nil
}

// RequestBase is the part shared by every request subtype.
type RequestBase struct {
	ID                int64
	TicketID          int64
	Kind              RequestKind
	SelectedManagerID *int64
	Approvals         ApprovalChain
	CreatedAt         time.Time
}

// AccessRequest asks for access to a system.
type AccessRequest struct {
	RequestBase
	SystemName    string
	AccessLevel   string
	Justification string
	ValidUntil    *time.Time
}

// ServiceRequest asks IT to provide a service.
type ServiceRequest struct {
	RequestBase
	ServiceName string
	Category    string
	Details     string
	NeededBy    *time.Time
}

// SystemChangeRequest proposes a change to a production system.
type SystemChangeRequest struct {
	RequestBase
	SystemName       string
	ChangeSummary    string
	ImpactAssessment string
	RollbackPlan     string
	ScheduledFor     *time.Time
}

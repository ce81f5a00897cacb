package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/events"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

// WorkflowService is the approval workflow engine for access, service and
// system change requests.
type WorkflowService struct {
	engine
	approvers *ApproverResolver
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Approvers  *ApproverResolver
	Logger     *zap.Logger
}

// RequestTicketInput holds the ticket fields every request carries.
type RequestTicketInput struct {
	Title             string
	Description       string
	Department        string
	Priority          domain.TicketPriority
	SelectedManagerID *int64
}

// AccessRequestInput describes an access request.
type AccessRequestInput struct {
	RequestTicketInput
	SystemName    string
	AccessLevel   string
	Justification string
	ValidUntil    *time.Time
}

// ServiceRequestInput describes a service request.
type ServiceRequestInput struct {
	RequestTicketInput
	ServiceName string
	Category    string
	Details     string
	NeededBy    *time.Time
}

// SystemChangeRequestInput describes a system change request.
type SystemChangeRequestInput struct {
	RequestTicketInput
	SystemName       string
	ChangeSummary    string
	ImpactAssessment string
	RollbackPlan     string
	ScheduledFor     *time.Time
}

// WorkflowOutcome is the result of a workflow action. Skipped is set when the
// caller repeated a decision they had already made; nothing was written.
type WorkflowOutcome struct {
	Ticket   *domain.Ticket
	Request  *domain.RequestBase
	Skipped  bool
	Warnings []string
}

type workflowAction string

const (
	actionApprove workflowAction = "approve"
	actionReject  workflowAction = "reject"
	actionForward workflowAction = "forward"
	actionExecute workflowAction = "execute"
)

// decision is the approval status the action records, if any.
func (a workflowAction) decision() domain.ApprovalStatus {
	switch a {
	case actionApprove, actionExecute:
		return domain.ApprovalApproved
	case actionReject:
		return domain.ApprovalRejected
	}
	return ""
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	return &WorkflowService{
		engine:    newEngine(deps.Store, deps.Dispatcher, deps.Logger),
		approvers: deps.Approvers,
	}
}

// SubmitAccessRequest creates the ticket and its access request, assigned to
// the selected manager.
func (s *WorkflowService) SubmitAccessRequest(ctx context.Context, caller auth.Permissions, input AccessRequestInput) (*WorkflowOutcome, error) {
	details := requiredFields(map[string]string{
		"system_name":   input.SystemName,
		"access_level":  input.AccessLevel,
		"justification": input.Justification,
	})
	if input.Title == "" {
		input.Title = "Access to " + strings.TrimSpace(input.SystemName)
	}
	if input.Description == "" {
		input.Description = input.Justification
	}
	return s.submit(ctx, caller, domain.RequestKindAccess, input.RequestTicketInput, details,
		func(ctx context.Context, tx repository.Store, base domain.RequestBase) (*domain.RequestBase, error) {
			req := &domain.AccessRequest{
				RequestBase:   base,
				SystemName:    strings.TrimSpace(input.SystemName),
				AccessLevel:   strings.TrimSpace(input.AccessLevel),
				Justification: strings.TrimSpace(input.Justification),
				ValidUntil:    input.ValidUntil,
			}
			if err := tx.Requests().CreateAccess(ctx, req); err != nil {
				return nil, err
			}
			return &req.RequestBase, nil
		})
}

// SubmitServiceRequest creates the ticket and its service request, assigned
// to the selected manager.
func (s *WorkflowService) SubmitServiceRequest(ctx context.Context, caller auth.Permissions, input ServiceRequestInput) (*WorkflowOutcome, error) {
	details := requiredFields(map[string]string{
		"service_name": input.ServiceName,
		"details":      input.Details,
	})
	if input.Title == "" {
		input.Title = "Service request: " + strings.TrimSpace(input.ServiceName)
	}
	if input.Description == "" {
		input.Description = input.Details
	}
	return s.submit(ctx, caller, domain.RequestKindService, input.RequestTicketInput, details,
		func(ctx context.Context, tx repository.Store, base domain.RequestBase) (*domain.RequestBase, error) {
			req := &domain.ServiceRequest{
				RequestBase: base,
				ServiceName: strings.TrimSpace(input.ServiceName),
				Category:    strings.TrimSpace(input.Category),
				Details:     strings.TrimSpace(input.Details),
				NeededBy:    input.NeededBy,
			}
			if err := tx.Requests().CreateService(ctx, req); err != nil {
				return nil, err
			}
			return &req.RequestBase, nil
		})
}

// SubmitSystemChangeRequest creates the ticket and its change request,
// assigned to Security for first review.
func (s *WorkflowService) SubmitSystemChangeRequest(ctx context.Context, caller auth.Permissions, input SystemChangeRequestInput) (*WorkflowOutcome, error) {
	details := requiredFields(map[string]string{
		"system_name":    input.SystemName,
		"change_summary": input.ChangeSummary,
		"rollback_plan":  input.RollbackPlan,
	})
	if input.Title == "" {
		input.Title = "Change to " + strings.TrimSpace(input.SystemName)
	}
	if input.Description == "" {
		input.Description = input.ChangeSummary
	}
	return s.submit(ctx, caller, domain.RequestKindSystemChange, input.RequestTicketInput, details,
		func(ctx context.Context, tx repository.Store, base domain.RequestBase) (*domain.RequestBase, error) {
			req := &domain.SystemChangeRequest{
				RequestBase:      base,
				SystemName:       strings.TrimSpace(input.SystemName),
				ChangeSummary:    strings.TrimSpace(input.ChangeSummary),
				ImpactAssessment: strings.TrimSpace(input.ImpactAssessment),
				RollbackPlan:     strings.TrimSpace(input.RollbackPlan),
				ScheduledFor:     input.ScheduledFor,
			}
			if err := tx.Requests().CreateSystemChange(ctx, req); err != nil {
				return nil, err
			}
			return &req.RequestBase, nil
		})
}

type createRequestFunc func(ctx context.Context, tx repository.Store, base domain.RequestBase) (*domain.RequestBase, error)

func (s *WorkflowService) submit(ctx context.Context, caller auth.Permissions, kind domain.RequestKind, input RequestTicketInput, details map[string]any, create createRequestFunc) (*WorkflowOutcome, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	ticket, err := newTicket(caller, input.Title, input.Description, input.Department, input.Priority)
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			for k, v := range domainErr.Details {
				details[k] = v
			}
		}
	}
	if kind != domain.RequestKindSystemChange && input.SelectedManagerID == nil {
		details["selected_manager_id"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid request", details)
	}

	chain := initialChain(kind)
	first, _ := CurrentStage(&chain)

	var request *domain.RequestBase
	err = s.inTx(ctx, "submit request", 0, caller, func(tx repository.Store) error {
		var manager *domain.User
		if input.SelectedManagerID != nil {
			var err error
			if manager, err = selectedManager(ctx, tx.Users(), *input.SelectedManagerID); err != nil {
				return err
			}
		}
		assignee := manager
		if first != domain.StageManager {
			var err error
			if assignee, err = s.approvers.ForStage(ctx, tx.Users(), first); err != nil {
				return err
			}
		}
		ticket.AssigneeID = int64Ptr(assignee.ID)
		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return err
		}

		base := domain.RequestBase{TicketID: ticket.ID, Kind: kind, Approvals: chain}
		if manager != nil {
			base.SelectedManagerID = int64Ptr(manager.ID)
		}
		var err error
		if request, err = create(ctx, tx, base); err != nil {
			return err
		}
		notes := fmt.Sprintf("%s request submitted; awaiting %s approval from %s",
			humanKind(kind), strings.ToLower(string(first)), assignee.DisplayName())
		return tx.TicketLogs().Append(ctx, newLog(ticket.ID, domain.LogActionCreated, caller, notes))
	})
	if err != nil {
		return nil, err
	}

	warnings := s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorOf(caller),
		Payload: events.TicketCreatedPayload{
			Title:       ticket.Title,
			Priority:    ticket.Priority,
			CreatorID:   ticket.CreatorID,
			AssigneeID:  ticket.AssigneeID,
			RequestKind: &kind,
			Stage:       first,
		},
	})
	return &WorkflowOutcome{Ticket: ticket, Request: request, Warnings: warnings}, nil
}

// Approve records approval of the current stage and hands the ticket to the
// next stage. The IT stage is completed through Execute instead.
func (s *WorkflowService) Approve(ctx context.Context, caller auth.Permissions, ticketID int64, comment string) (*WorkflowOutcome, error) {
	return s.act(ctx, caller, ticketID, actionApprove, "", comment)
}

// ApproveStage is Approve pinned to the stage the caller meant to decide.
// Once that stage is decided by the caller a repeat is skipped rather than
// applied to the following stage.
func (s *WorkflowService) ApproveStage(ctx context.Context, caller auth.Permissions, ticketID int64, stage domain.Stage, comment string) (*WorkflowOutcome, error) {
	if stage != "" {
		parsed, ok := domain.ParseStage(string(stage))
		if !ok {
			return nil, apperrors.NewValidationError("invalid stage", map[string]any{"stage": stage})
		}
		stage = parsed
	}
	return s.act(ctx, caller, ticketID, actionApprove, stage, comment)
}

// Reject records rejection of the current stage and halts the pipeline.
func (s *WorkflowService) Reject(ctx context.Context, caller auth.Permissions, ticketID int64, comment string) (*WorkflowOutcome, error) {
	return s.act(ctx, caller, ticketID, actionReject, "", comment)
}

// Forward sends a system change request from Security to a manager. The
// manager's approval returns it to Security.
func (s *WorkflowService) Forward(ctx context.Context, caller auth.Permissions, ticketID int64, comment string) (*WorkflowOutcome, error) {
	return s.act(ctx, caller, ticketID, actionForward, "", comment)
}

// Execute completes the IT stage and resolves the ticket.
func (s *WorkflowService) Execute(ctx context.Context, caller auth.Permissions, ticketID int64, comment string) (*WorkflowOutcome, error) {
	return s.act(ctx, caller, ticketID, actionExecute, "", comment)
}

func (s *WorkflowService) act(ctx context.Context, caller auth.Permissions, ticketID int64, action workflowAction, expected domain.Stage, comment string) (*WorkflowOutcome, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)

	var (
		ticket  *domain.Ticket
		request *domain.RequestBase
		stage   domain.Stage
		next    domain.Stage
		skipped bool
	)
	err := s.inTx(ctx, string(action), ticketID, caller, func(tx repository.Store) error {
		var err error
		if ticket, err = loadForUpdate(ctx, tx, ticketID); err != nil {
			return err
		}
		if request, err = tx.Requests().GetBaseByTicket(ctx, ticketID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("approval request", map[string]any{"ticket_id": ticketID})
			}
			return err
		}
		chain := &request.Approvals

		current, active := CurrentStage(chain)
		if !active || haltsPipeline(ticket.Status) {
			if decidedBy(chain, caller.UserID, action.decision()) {
				skipped = true
				return nil
			}
			if !caller.CanAccess(ticket) && !caller.HasAnyRole(domain.RoleSecurity, domain.RoleIT) {
				return apperrors.NewForbidden("you are not a participant of this request")
			}
			if rejected, ok := rejectedStage(chain); ok {
				return apperrors.NewConflict("request was rejected; the approval pipeline is halted",
					map[string]any{"rejected_stage": rejected})
			}
			if active {
				return apperrors.NewConflict(fmt.Sprintf("ticket is %s; the approval pipeline is halted", strings.ToLower(string(ticket.Status))),
					map[string]any{"status": ticket.Status, "current_stage": current})
			}
			return apperrors.NewConflict("request has already been executed", nil)
		}

		stage = current
		switch action {
		case actionExecute:
			stage = domain.StageIT
		case actionForward:
			if request.Kind != domain.RequestKindSystemChange {
				return apperrors.NewValidationError("only system change requests can be forwarded to a manager",
					map[string]any{"kind": request.Kind})
			}
			stage = domain.StageSecurity
		}

		if !canActOn(caller, ticket, stage) {
			if decidedBy(chain, caller.UserID, action.decision()) {
				skipped = true
				return nil
			}
			return apperrors.NewForbidden(fmt.Sprintf("%s approval is required for this step", strings.ToLower(string(stage))))
		}
		if expected != "" && expected != current {
			if decidedAt(chain, expected, caller.UserID, action.decision()) {
				skipped = true
				return nil
			}
			return apperrors.NewConflict(fmt.Sprintf("request is awaiting %s approval", strings.ToLower(string(current))),
				map[string]any{"current_stage": current, "expected_stage": expected})
		}
		if action == actionForward && current == domain.StageManager {
			skipped = true
			return nil
		}
		if stage != current {
			return apperrors.NewConflict(fmt.Sprintf("request is awaiting %s approval", strings.ToLower(string(current))),
				map[string]any{"current_stage": current})
		}

		notes := comment
		switch action {
		case actionApprove:
			if stage == domain.StageIT {
				return apperrors.NewValidationError("the IT stage is completed by executing the request", nil)
			}
			record(chain.Stage(stage), domain.ApprovalApproved, caller, comment, s.now())
			next, _ = nextStage(chain, stage)
			holder, err := s.approvers.ForStage(ctx, tx.Users(), next)
			if err != nil {
				return err
			}
			ticket.AssigneeID = int64Ptr(holder.ID)
			if stage == domain.StageSecurity {
				ticket.Status = domain.TicketStatusInProgress
			}
			notes = joinNotes("Assigned to "+holder.DisplayName(), comment)
		case actionReject:
			record(chain.Stage(stage), domain.ApprovalRejected, caller, comment, s.now())
			ticket.Status = domain.TicketStatusRejected
			applyCloseReason(ticket)
		case actionForward:
			if chain.Manager.Status != domain.ApprovalNotRequired {
				return apperrors.NewConflict("request has already been reviewed by a manager", nil)
			}
			manager, err := s.forwardTarget(ctx, tx.Users(), request)
			if err != nil {
				return err
			}
			chain.Manager = domain.Approval{Status: domain.ApprovalPending}
			ticket.AssigneeID = int64Ptr(manager.ID)
			next = domain.StageManager
			notes = joinNotes("Forwarded to "+manager.DisplayName(), comment)
		case actionExecute:
			record(chain.Stage(stage), domain.ApprovalApproved, caller, comment, s.now())
			ticket.Status = domain.TicketStatusResolved
			applyCloseReason(ticket)
		}

		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		if err := tx.Requests().UpdateApprovals(ctx, request); err != nil {
			return err
		}
		return tx.TicketLogs().Append(ctx, newLog(ticket.ID, logActionFor(action, stage), caller, notes))
	})
	if err != nil {
		return nil, err
	}
	if skipped {
		s.logger.Info("repeated workflow action ignored",
			zap.Int64("ticket_id", ticketID),
			zap.Int64("actor_id", caller.UserID),
			zap.String("action", string(action)))
		return &WorkflowOutcome{Ticket: ticket, Request: request, Skipped: true}, nil
	}

	payload := events.ApprovalPayload{
		Title:      ticket.Title,
		Kind:       request.Kind,
		Stage:      stage,
		NextStage:  next,
		CreatorID:  ticket.CreatorID,
		AssigneeID: ticket.AssigneeID,
		Comment:    comment,
	}
	warnings := s.publish(ctx, events.Event{
		Type:     eventFor(action),
		TicketID: ticket.ID,
		Actor:    actorOf(caller),
		Payload:  payload,
	})
	return &WorkflowOutcome{Ticket: ticket, Request: request, Warnings: warnings}, nil
}

// forwardTarget prefers the manager chosen at submission.
func (s *WorkflowService) forwardTarget(ctx context.Context, users repository.UserRepository, request *domain.RequestBase) (*domain.User, error) {
	if request.SelectedManagerID != nil {
		return selectedManager(ctx, users, *request.SelectedManagerID)
	}
	return s.approvers.ForStage(ctx, users, domain.StageManager)
}

func selectedManager(ctx context.Context, users repository.UserRepository, id int64) (*domain.User, error) {
	manager, err := activeUser(ctx, users, id, "selected manager")
	if err != nil {
		return nil, err
	}
	if !manager.HasRole(domain.RoleManager) {
		return nil, apperrors.NewValidationError("selected manager does not hold the manager role",
			map[string]any{"selected_manager_id": id})
	}
	return manager, nil
}

func record(approval *domain.Approval, status domain.ApprovalStatus, caller auth.Permissions, comment string, at time.Time) {
	at = at.UTC()
	approval.Status = status
	approval.ApproverID = int64Ptr(caller.UserID)
	approval.ApproverName = caller.Name
	approval.DecidedAt = &at
	approval.Comment = comment
}

func logActionFor(action workflowAction, stage domain.Stage) string {
	switch action {
	case actionReject:
		return rejectedAction(stage)
	case actionForward:
		return domain.LogActionForwarded
	}
	return approvedAction(stage)
}

func eventFor(action workflowAction) events.EventType {
	switch action {
	case actionReject:
		return events.EventRequestRejected
	case actionForward:
		return events.EventRequestForwarded
	case actionExecute:
		return events.EventRequestExecuted
	}
	return events.EventApprovalRecorded
}

func requiredFields(fields map[string]string) map[string]any {
	details := map[string]any{}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			details[name] = "required"
		}
	}
	return details
}

func joinNotes(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}

func humanKind(kind domain.RequestKind) string {
	switch kind {
	case domain.RequestKindAccess:
		return "Access"
	case domain.RequestKindService:
		return "Service"
	case domain.RequestKindSystemChange:
		return "System change"
	}
	return string(kind)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/events"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
	"github.com/spec-kit/helpdesk-workflow/internal/storage"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

const (
	maxTitleLength      = 200
	maxDepartmentLength = 100
)

// AttachmentStore is the part of the file store the lifecycle engine uses.
type AttachmentStore interface {
	Save(ctx context.Context, ticketID int64, upload storage.Upload) (*storage.Metadata, error)
	Remove(storedPath string) error
}

// TicketService is the ticket lifecycle engine.
type TicketService struct {
	engine
	approvers   *ApproverResolver
	attachments AttachmentStore
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store       repository.Store
	Dispatcher  events.Dispatcher
	Approvers   *ApproverResolver
	Attachments AttachmentStore
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Department  string
	Priority    domain.TicketPriority
	AssigneeID  *int64
}

// StatusChangeInput describes a status change.
type StatusChangeInput struct {
	Status     domain.TicketStatus
	AssigneeID *int64
	Notes      string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	Department  *string
	AssigneeID  *int64
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketDetail is a ticket with its logs, attachments and request subtype.
type TicketDetail struct {
	Ticket       *domain.Ticket
	Access       *domain.AccessRequest
	Service      *domain.ServiceRequest
	SystemChange *domain.SystemChangeRequest
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		engine:      newEngine(deps.Store, deps.Dispatcher, deps.Logger),
		approvers:   deps.Approvers,
		attachments: deps.Attachments,
	}
}

// CreateTicket opens a plain ticket. Without an explicit assignee it goes to
// the default handler.
func (s *TicketService) CreateTicket(ctx context.Context, caller auth.Permissions, input TicketCreateInput) (*Outcome, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	ticket, err := newTicket(caller, input.Title, input.Description, input.Department, input.Priority)
	if err != nil {
		return nil, err
	}

	var assignee *domain.User
	err = s.inTx(ctx, "create ticket", 0, caller, func(tx repository.Store) error {
		if input.AssigneeID != nil {
			assignee, err = activeUser(ctx, tx.Users(), *input.AssigneeID, "assignee")
		} else {
			assignee, err = s.defaultHandler(ctx, tx.Users())
		}
		if err != nil {
			return err
		}
		notes := ""
		if assignee != nil {
			ticket.AssigneeID = int64Ptr(assignee.ID)
			notes = "Assigned to " + assignee.DisplayName()
		}
		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return err
		}
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
			Title:      ticket.Title,
			Priority:   ticket.Priority,
			CreatorID:  ticket.CreatorID,
			AssigneeID: ticket.AssigneeID,
		},
	})
	return &Outcome{Ticket: ticket, Warnings: warnings}, nil
}

// ChangeStatus sets the ticket status and optionally reassigns it. Any status
// may be chosen by an authorized caller, except that a CLOSED ticket never
// changes again, a REJECTED ticket may only be closed and a request ticket
// with pending approvals is never resolved here.
func (s *TicketService) ChangeStatus(ctx context.Context, caller auth.Permissions, ticketID int64, input StatusChangeInput) (*Outcome, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	status, ok := domain.ParseTicketStatus(string(input.Status))
	if !ok {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": input.Status})
	}
	input.Status = status

	var (
		ticket    *domain.Ticket
		oldStatus domain.TicketStatus
		oldOwner  *int64
		notes     string
	)
	err := s.inTx(ctx, "change status", ticketID, caller, func(tx repository.Store) error {
		var err error
		ticket, err = loadForUpdate(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if !caller.CanChangeStatus(ticket) {
			return apperrors.NewForbidden("only support staff or the current assignee may change the status")
		}
		if err := checkLeavingTerminal(ticket.Status, input.Status); err != nil {
			return err
		}
		if err := checkPipelineResolution(ctx, tx, ticket.ID, input.Status); err != nil {
			return err
		}

		var assignee *domain.User
		if input.AssigneeID != nil && !ticket.IsAssignee(*input.AssigneeID) {
			assignee, err = activeUser(ctx, tx.Users(), *input.AssigneeID, "assignee")
			if err != nil {
				return err
			}
		}

		oldStatus, oldOwner = ticket.Status, ticket.AssigneeID
		ticket.Status = input.Status
		applyCloseReason(ticket)
		if assignee != nil {
			ticket.AssigneeID = int64Ptr(assignee.ID)
		}
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}

		notes = describeStatusChange(oldStatus, ticket.Status, assignee, input.Notes)
		return tx.TicketLogs().Append(ctx, newLog(ticket.ID, domain.LogActionStatusChanged, caller, notes))
	})
	if err != nil {
		return nil, err
	}

	warnings := s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actorOf(caller),
		Payload: events.TicketStatusChangedPayload{
			Title:       ticket.Title,
			OldStatus:   oldStatus,
			NewStatus:   ticket.Status,
			CreatorID:   ticket.CreatorID,
			OldAssignee: oldOwner,
			NewAssignee: ticket.AssigneeID,
			Notes:       strings.TrimSpace(input.Notes),
		},
	})
	return &Outcome{Ticket: ticket, Warnings: warnings}, nil
}

// GetTicket loads the ticket with logs, attachments and its request subtype.
func (s *TicketService) GetTicket(ctx context.Context, caller auth.Permissions, ticketID int64) (*TicketDetail, error) {
	ticket, err := s.accessibleTicket(ctx, caller, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Logs, err = s.store.TicketLogs().ListByTicket(ctx, ticketID); err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.Attachments, err = s.store.Attachments().ListByTicket(ctx, ticketID); err != nil {
		return nil, apperrors.MapError(err)
	}

	detail := &TicketDetail{Ticket: ticket}
	base, err := s.store.Requests().GetBaseByTicket(ctx, ticketID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return detail, nil
	case err != nil:
		return nil, apperrors.MapError(err)
	}
	switch base.Kind {
	case domain.RequestKindAccess:
		detail.Access, err = s.store.Requests().GetAccessByTicket(ctx, ticketID)
	case domain.RequestKindService:
		detail.Service, err = s.store.Requests().GetServiceByTicket(ctx, ticketID)
	case domain.RequestKindSystemChange:
		detail.SystemChange, err = s.store.Requests().GetSystemChangeByTicket(ctx, ticketID)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return detail, nil
}

// CanAccess reports whether the caller may view or act on the ticket.
func (s *TicketService) CanAccess(ctx context.Context, caller auth.Permissions, ticketID int64) (bool, error) {
	ticket, err := s.lookup(ctx, ticketID)
	if err != nil {
		return false, err
	}
	return caller.CanAccess(ticket), nil
}

// ListTickets returns tickets matching filter. Callers without the support
// policy only see tickets they created or hold.
func (s *TicketService) ListTickets(ctx context.Context, caller auth.Permissions, filter TicketListFilter) ([]domain.Ticket, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	repoFilter := repository.TicketFilter{
		Department:  filter.Department,
		AssigneeID:  filter.AssigneeID,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if !caller.CanManageAll() {
		repoFilter.ParticipantID = int64Ptr(caller.UserID)
	}
	tickets, err := s.store.Tickets().List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListLogs returns the audit trail in insertion order.
func (s *TicketService) ListLogs(ctx context.Context, caller auth.Permissions, ticketID int64) ([]domain.TicketLog, error) {
	if _, err := s.accessibleTicket(ctx, caller, ticketID); err != nil {
		return nil, err
	}
	logs, err := s.store.TicketLogs().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return logs, nil
}

// AddAttachment stores a file and records its metadata on the ticket.
func (s *TicketService) AddAttachment(ctx context.Context, caller auth.Permissions, ticketID int64, upload storage.Upload) (*domain.TicketAttachment, error) {
	if _, err := s.accessibleTicket(ctx, caller, ticketID); err != nil {
		return nil, err
	}
	if s.attachments == nil {
		return nil, apperrors.NewInternalError(errors.New("attachment store not configured"))
	}
	meta, err := s.attachments.Save(ctx, ticketID, upload)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeValidation) {
			return nil, err
		}
		return nil, apperrors.NewPersistenceError(err)
	}

	record := &domain.TicketAttachment{
		TicketID:     ticketID,
		OriginalName: meta.OriginalName,
		StoredPath:   meta.StoredPath,
		ContentType:  meta.ContentType,
		SizeBytes:    meta.SizeBytes,
		UploadedBy:   caller.UserID,
		UploadedAt:   meta.UploadedAt,
	}
	err = s.inTx(ctx, "add attachment", ticketID, caller, func(tx repository.Store) error {
		return tx.Attachments().Create(ctx, record)
	})
	if err != nil {
		if rmErr := s.attachments.Remove(meta.StoredPath); rmErr != nil {
			s.logger.Warn("orphaned attachment", zap.String("path", meta.StoredPath), zap.Error(rmErr))
		}
		return nil, err
	}
	return record, nil
}

func (s *TicketService) lookup(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) accessibleTicket(ctx context.Context, caller auth.Permissions, ticketID int64) (*domain.Ticket, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	ticket, err := s.lookup(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(ticket) {
		s.logger.Warn("ticket access denied",
			zap.Int64("ticket_id", ticketID),
			zap.Int64("actor_id", caller.UserID))
		return nil, apperrors.NewForbidden("you are not a participant of this ticket")
	}
	return ticket, nil
}

// defaultHandler returns nil, nil when nobody can take unassigned tickets;
// the ticket then stays unassigned for support staff to route.
func (s *TicketService) defaultHandler(ctx context.Context, users repository.UserRepository) (*domain.User, error) {
	if s.approvers == nil {
		return nil, nil
	}
	user, err := s.approvers.DefaultHandler(ctx, users)
	if apperrors.HasCode(err, apperrors.CodeConflict) {
		s.logger.Warn("no default handler available; ticket left unassigned")
		return nil, nil
	}
	return user, err
}

// checkPipelineResolution refuses RESOLVED for a request ticket whose
// approvals are still outstanding. Execute is the only way to resolve those.
func checkPipelineResolution(ctx context.Context, tx repository.Store, ticketID int64, status domain.TicketStatus) error {
	if status != domain.TicketStatusResolved {
		return nil
	}
	request, err := tx.Requests().GetBaseByTicket(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if stage, active := CurrentStage(&request.Approvals); active {
		return apperrors.NewConflict(
			fmt.Sprintf("request is awaiting %s approval and is resolved by executing it", strings.ToLower(string(stage))),
			map[string]any{"current_stage": stage})
	}
	return nil
}

func newTicket(caller auth.Permissions, title, description, department string, priority domain.TicketPriority) (*domain.Ticket, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	department = strings.TrimSpace(department)

	details := map[string]any{}
	switch {
	case title == "":
		details["title"] = "required"
	case len(title) > maxTitleLength:
		details["title"] = fmt.Sprintf("at most %d characters", maxTitleLength)
	case strings.ContainsFunc(title, unicode.IsControl):
		details["title"] = "must not contain control characters"
	}
	if description == "" {
		details["description"] = "required"
	}
	if len(department) > maxDepartmentLength {
		details["department"] = fmt.Sprintf("at most %d characters", maxDepartmentLength)
	}
	if priority == "" {
		priority = domain.TicketPriorityMedium
	} else if priority.Rank() < 0 {
		details["priority"] = "must be one of LOW, MEDIUM, HIGH, CRITICAL"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}
	return &domain.Ticket{
		Title:       title,
		Description: description,
		Department:  department,
		Priority:    priority,
		Status:      domain.TicketStatusNew,
		CreatorID:   caller.UserID,
	}, nil
}

func activeUser(ctx context.Context, users repository.UserRepository, id int64, what string) (*domain.User, error) {
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound(what, map[string]any{"user_id": id})
		}
		return nil, err
	}
	if !user.Active {
		return nil, apperrors.NewValidationError(what+" account is disabled", map[string]any{"user_id": id})
	}
	return user, nil
}

func checkLeavingTerminal(current, next domain.TicketStatus) error {
	switch {
	case current == domain.TicketStatusClosed:
		return apperrors.NewConflict("ticket is closed; reopening is not supported",
			map[string]any{"status": current})
	case current == domain.TicketStatusRejected && next != domain.TicketStatusClosed:
		return apperrors.NewConflict("rejected tickets can only be closed",
			map[string]any{"status": current, "requested": next})
	}
	return nil
}

func applyCloseReason(ticket *domain.Ticket) {
	switch ticket.Status {
	case domain.TicketStatusRejected:
		reason := domain.CloseReasonRejected
		ticket.CloseReason = &reason
	case domain.TicketStatusResolved, domain.TicketStatusClosed:
		if ticket.CloseReason == nil {
			reason := domain.CloseReasonCompleted
			ticket.CloseReason = &reason
		}
	default:
		ticket.CloseReason = nil
	}
}

func describeStatusChange(from, to domain.TicketStatus, assignee *domain.User, notes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s", from, to)
	if assignee != nil {
		fmt.Fprintf(&b, "; assigned to %s", assignee.DisplayName())
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		b.WriteString("; ")
		b.WriteString(notes)
	}
	return b.String()
}

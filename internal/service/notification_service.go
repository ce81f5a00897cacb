package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-workflow/internal/config"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/events"
	"github.com/spec-kit/helpdesk-workflow/internal/notify"
	"github.com/spec-kit/helpdesk-workflow/internal/observability"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

// NotificationService turns committed workflow events into emails. Every
// delivery is attempted once; failures are returned to the publisher as
// notification errors and recorded for operators.
type NotificationService struct {
	dispatcher events.Dispatcher
	users      repository.UserRepository
	mailer     notify.Mailer
	failures   notify.FailureLog
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Users      repository.UserRepository
	Mailer     notify.Mailer
	Failures   notify.FailureLog
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		users:      deps.Users,
		mailer:     deps.Mailer,
		failures:   deps.Failures,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        deps.Config,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventApprovalRecorded, n.handleApprovalRecorded)
	n.dispatcher.Subscribe(events.EventRequestForwarded, n.handleRequestForwarded)
	n.dispatcher.Subscribe(events.EventRequestRejected, n.handleRequestRejected)
	n.dispatcher.Subscribe(events.EventRequestExecuted, n.handleRequestExecuted)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok || payload.AssigneeID == nil || *payload.AssigneeID == event.Actor.UserID {
		return nil
	}
	data := notify.TemplateData{TicketID: event.TicketID, Title: payload.Title, ActorName: event.Actor.Name}
	tmpl := notify.TemplateAssigned
	if payload.RequestKind != nil {
		tmpl = notify.TemplateApprovalRequired
		data.Kind = string(*payload.RequestKind) + " request"
		data.Stage = string(payload.Stage)
	}
	return n.notifyUser(ctx, event, "assignee", *payload.AssigneeID, tmpl, data)
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return nil
	}
	data := notify.TemplateData{
		TicketID:  event.TicketID,
		Title:     payload.Title,
		ActorName: event.Actor.Name,
		OldStatus: string(payload.OldStatus),
		NewStatus: string(payload.NewStatus),
		Comment:   payload.Notes,
	}

	var errs []error
	if payload.NewAssignee != nil && !sameAssignee(payload.OldAssignee, payload.NewAssignee) && *payload.NewAssignee != event.Actor.UserID {
		errs = append(errs, n.notifyUser(ctx, event, "assignee", *payload.NewAssignee, notify.TemplateAssigned, data))
	}
	if payload.CreatorID != event.Actor.UserID {
		errs = append(errs, n.notifyUser(ctx, event, "requester", payload.CreatorID, notify.TemplateStatusChanged, data))
	}
	return errors.Join(errs...)
}

func (n *NotificationService) handleApprovalRecorded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ApprovalPayload)
	if !ok || payload.AssigneeID == nil || *payload.AssigneeID == event.Actor.UserID {
		return nil
	}
	tmpl := notify.TemplateApprovalRequired
	if payload.NextStage == domain.StageIT {
		tmpl = notify.TemplateReadyForExecution
	}
	data := approvalData(event, payload)
	data.Stage = string(payload.NextStage)
	return n.notifyUser(ctx, event, "next approver", *payload.AssigneeID, tmpl, data)
}

func (n *NotificationService) handleRequestForwarded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ApprovalPayload)
	if !ok || payload.AssigneeID == nil {
		return nil
	}
	data := approvalData(event, payload)
	data.Stage = string(payload.NextStage)
	return n.notifyUser(ctx, event, "manager", *payload.AssigneeID, notify.TemplateApprovalRequired, data)
}

func (n *NotificationService) handleRequestRejected(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ApprovalPayload)
	if !ok || payload.CreatorID == event.Actor.UserID {
		return nil
	}
	return n.notifyUser(ctx, event, "requester", payload.CreatorID, notify.TemplateRejected, approvalData(event, payload))
}

func (n *NotificationService) handleRequestExecuted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ApprovalPayload)
	if !ok || payload.CreatorID == event.Actor.UserID {
		return nil
	}
	return n.notifyUser(ctx, event, "requester", payload.CreatorID, notify.TemplateCompleted, approvalData(event, payload))
}

func approvalData(event events.Event, payload events.ApprovalPayload) notify.TemplateData {
	return notify.TemplateData{
		TicketID:  event.TicketID,
		Title:     payload.Title,
		Kind:      string(payload.Kind) + " request",
		ActorName: event.Actor.Name,
		Stage:     string(payload.Stage),
		Comment:   payload.Comment,
	}
}

// notifyUser renders tmpl and sends it to userID within the configured
// timeout. who names the recipient in warnings.
func (n *NotificationService) notifyUser(ctx context.Context, event events.Event, who string, userID int64, tmpl notify.Template, data notify.TemplateData) error {
	subject, body := notify.Render(tmpl, data)

	user, err := n.users.GetByID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return n.fail(ctx, event, who, subject, notify.ErrNoRecipient)
	case err != nil:
		return n.fail(ctx, event, who, subject, err)
	case strings.TrimSpace(user.Email) == "":
		return n.fail(ctx, event, who, subject, notify.ErrNoRecipient)
	}
	if n.mailer == nil {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout())
	defer cancel()
	if err := n.mailer.Send(sendCtx, notify.Message{To: user.Email, Subject: subject, Body: body}); err != nil {
		return n.fail(ctx, event, who, subject, err)
	}
	n.logger.Debug("notification sent",
		zap.Int64("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)),
		zap.String("template", string(tmpl)),
		zap.Int64("recipient_id", userID))
	return nil
}

func (n *NotificationService) fail(ctx context.Context, event events.Event, who, subject string, cause error) error {
	n.metrics.RecordNotificationFailure()
	n.logger.Warn("notification not delivered",
		zap.Int64("ticket_id", event.TicketID),
		zap.Int64("actor_id", event.Actor.UserID),
		zap.String("event_type", string(event.Type)),
		zap.String("recipient", who),
		zap.Error(cause))
	if n.failures != nil {
		entry := notify.Failure{
			TicketID:  event.TicketID,
			EventType: string(event.Type),
			Recipient: who,
			Subject:   subject,
			Error:     cause.Error(),
			At:        event.Timestamp,
		}
		if err := n.failures.Record(ctx, entry); err != nil {
			n.logger.Warn("failure ledger unavailable", zap.Error(err))
		}
	}
	return apperrors.NewNotificationError(who, cause)
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/events"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

// Outcome is returned by state-changing operations. The change has been
// committed; Warnings lists notifications that could not be delivered.
type Outcome struct {
	Ticket   *domain.Ticket
	Warnings []string
}

// engine carries what the lifecycle and workflow engines share.
type engine struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func newEngine(store repository.Store, dispatcher events.Dispatcher, logger *zap.Logger) engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return engine{store: store, dispatcher: dispatcher, logger: logger, now: time.Now}
}

// inTx runs fn as one unit of work. Domain errors raised by fn pass through;
// anything else means the write failed and nothing of it is visible.
func (e *engine) inTx(ctx context.Context, op string, ticketID int64, caller auth.Permissions, fn func(repository.Store) error) error {
	err := e.store.WithinTx(ctx, fn)
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		err = apperrors.NewPersistenceError(err)
		e.logger.Error(op+" failed",
			zap.Int64("ticket_id", ticketID),
			zap.Int64("actor_id", caller.UserID),
			zap.Error(err))
		return err
	}
	e.logger.Warn(op+" refused",
		zap.Int64("ticket_id", ticketID),
		zap.Int64("actor_id", caller.UserID),
		zap.String("code", domainErr.Code),
		zap.String("reason", domainErr.Message))
	return err
}

// loadForUpdate locks the ticket for the rest of the unit of work.
func loadForUpdate(ctx context.Context, tx repository.Store, ticketID int64) (*domain.Ticket, error) {
	ticket, err := tx.Tickets().GetForUpdate(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

// publish hands a committed change to subscribers. Their failures come back
// as warnings and never undo the change.
func (e *engine) publish(ctx context.Context, event events.Event) []string {
	if e.dispatcher == nil {
		return nil
	}
	event.ID = uuid.NewString()
	event.Timestamp = e.now()

	errs := events.Flatten(e.dispatcher.Publish(context.WithoutCancel(ctx), event))
	if len(errs) == 0 {
		return nil
	}
	warnings := make([]string, 0, len(errs))
	for _, err := range errs {
		e.logger.Warn("notification failed",
			zap.Int64("ticket_id", event.TicketID),
			zap.Int64("actor_id", event.Actor.UserID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		warnings = append(warnings, warningText(err))
	}
	return warnings
}

func warningText(err error) string {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

func actorOf(caller auth.Permissions) events.Actor {
	return events.Actor{UserID: caller.UserID, Name: caller.Name}
}

func newLog(ticketID int64, action string, caller auth.Permissions, notes string) *domain.TicketLog {
	entry := &domain.TicketLog{
		TicketID:  ticketID,
		Action:    action,
		ActorID:   caller.UserID,
		ActorName: caller.Name,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		entry.Notes = &notes
	}
	return entry
}

func requireCaller(caller auth.Permissions) error {
	if caller.UserID == 0 {
		return apperrors.NewUnauthorized("authentication required")
	}
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func sameAssignee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

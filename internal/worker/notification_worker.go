package worker

import (
	"context"

	"github.com/spec-kit/helpdesk-workflow/internal/events"
	"github.com/spec-kit/helpdesk-workflow/internal/observability"
	"github.com/spec-kit/helpdesk-workflow/internal/service"
)

// StartNotificationWorker subscribes the notification service and the
// workflow counters to the dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, metrics *observability.Metrics) {
	if dispatcher == nil {
		return
	}
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if metrics != nil {
		dispatcher.Subscribe(events.AllEvents, func(_ context.Context, event events.Event) error {
			metrics.RecordWorkflowEvent(string(event.Type))
			return nil
		})
	}
}

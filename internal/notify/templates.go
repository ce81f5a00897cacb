package notify

import (
	"fmt"
	"strings"
)

// Template selects the wording of a notification.
type Template string

const (
	TemplateAssigned          Template = "assigned"
	TemplateStatusChanged     Template = "status_changed"
	TemplateApprovalRequired  Template = "approval_required"
	TemplateReadyForExecution Template = "ready_for_execution"
	TemplateCompleted         Template = "completed"
	TemplateRejected          Template = "rejected"
)

// TemplateData is the input shared by every template.
type TemplateData struct {
	TicketID  int64
	Title     string
	Kind      string
	ActorName string
	OldStatus string
	NewStatus string
	Stage     string
	Comment   string
}

// Render produces the subject and plain-text body for tmpl.
func Render(tmpl Template, data TemplateData) (string, string) {
	ref := fmt.Sprintf("#%d %s", data.TicketID, data.Title)
	kind := humanize(data.Kind)
	if kind == "" {
		kind = "ticket"
	}

	var subject string
	var body strings.Builder
	switch tmpl {
	case TemplateAssigned:
		subject = fmt.Sprintf("Ticket %s assigned to you", ref)
		fmt.Fprintf(&body, "%s assigned ticket %s to you.\n", data.ActorName, ref)
	case TemplateStatusChanged:
		subject = fmt.Sprintf("Ticket %s is now %s", ref, humanize(data.NewStatus))
		fmt.Fprintf(&body, "%s changed the status of ticket %s from %s to %s.\n",
			data.ActorName, ref, humanize(data.OldStatus), humanize(data.NewStatus))
	case TemplateApprovalRequired:
		subject = fmt.Sprintf("Approval required: %s %s", kind, ref)
		fmt.Fprintf(&body, "The %s %s is waiting for your %s approval.\n", kind, ref, humanize(data.Stage))
		fmt.Fprintf(&body, "Last action by %s.\n", data.ActorName)
	case TemplateReadyForExecution:
		subject = fmt.Sprintf("Ready for execution: %s %s", kind, ref)
		fmt.Fprintf(&body, "The %s %s passed all approvals and is ready for execution.\n", kind, ref)
	case TemplateCompleted:
		subject = fmt.Sprintf("Completed: %s %s", kind, ref)
		fmt.Fprintf(&body, "Your %s %s was executed by %s and is now resolved.\n", kind, ref, data.ActorName)
	case TemplateRejected:
		subject = fmt.Sprintf("Rejected: %s %s", kind, ref)
		fmt.Fprintf(&body, "Your %s %s was rejected at the %s stage by %s.\n", kind, ref, humanize(data.Stage), data.ActorName)
	default:
		subject = fmt.Sprintf("Update on ticket %s", ref)
		fmt.Fprintf(&body, "Ticket %s was updated by %s.\n", ref, data.ActorName)
	}
	if c := strings.TrimSpace(data.Comment); c != "" {
		fmt.Fprintf(&body, "\nComment: %s\n", c)
	}
	return subject, body.String()
}

// humanize turns an enum value such as IN_PROGRESS into "in progress".
func humanize(v string) string {
	return strings.ToLower(strings.ReplaceAll(v, "_", " "))
}

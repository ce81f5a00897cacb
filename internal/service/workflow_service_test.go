package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

func TestAccessRequest_FullPipeline(t *testing.T) {
	h := newHarness(t)
	u := h.users

	submitted := h.submitAccess(t)
	ticketID := submitted.Ticket.ID
	require.NotNil(t, submitted.Ticket.AssigneeID)
	assert.Equal(t, u.mark.ID, *submitted.Ticket.AssigneeID)
	assert.Equal(t, domain.TicketStatusNew, submitted.Ticket.Status)
	assert.Equal(t, "Access to payroll", submitted.Ticket.Title)
	assert.Equal(t, domain.ApprovalPending, submitted.Request.Approvals.Manager.Status)

	approved, err := h.workflow.Approve(h.ctx, as(u.mark), ticketID, "fine by me")
	require.NoError(t, err)
	assert.Equal(t, u.sam.ID, *approved.Ticket.AssigneeID)
	assert.Equal(t, domain.TicketStatusNew, approved.Ticket.Status)
	assert.Equal(t, domain.ApprovalApproved, approved.Request.Approvals.Manager.Status)
	assert.Equal(t, "fine by me", approved.Request.Approvals.Manager.Comment)

	approved, err = h.workflow.Approve(h.ctx, as(u.sam), ticketID, "")
	require.NoError(t, err)
	assert.Equal(t, u.ivy.ID, *approved.Ticket.AssigneeID)
	assert.Equal(t, domain.TicketStatusInProgress, approved.Ticket.Status)

	executed, err := h.workflow.Execute(h.ctx, as(u.ivy), ticketID, "granted")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, executed.Ticket.Status)
	require.NotNil(t, executed.Ticket.CloseReason)
	assert.Equal(t, domain.CloseReasonCompleted, *executed.Ticket.CloseReason)
	assert.Empty(t, executed.Warnings)

	assert.Equal(t, []string{
		domain.LogActionCreated,
		domain.LogActionManagerApproved,
		domain.LogActionSecurityApproved,
		domain.LogActionExecuted,
	}, h.logActions(t, ticketID))

	stored := h.storedTicket(t, ticketID)
	assert.Equal(t, domain.TicketStatusResolved, stored.Status)

	assert.Equal(t, []string{u.mark.Email, u.sam.Email, u.ivy.Email, u.alice.Email}, h.mailer.recipients())
}

func TestManagerRejectionHaltsPipeline(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitAccess(t).Ticket.ID

	rejected, err := h.workflow.Reject(h.ctx, as(u.mark), ticketID, "not needed")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusRejected, rejected.Ticket.Status)
	require.NotNil(t, rejected.Ticket.CloseReason)
	assert.Equal(t, domain.CloseReasonRejected, *rejected.Ticket.CloseReason)
	assert.Equal(t, domain.ApprovalRejected, rejected.Request.Approvals.Manager.Status)

	_, err = h.workflow.Approve(h.ctx, as(u.sam), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)
	_, err = h.workflow.Execute(h.ctx, as(u.ivy), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)
	_, err = h.workflow.Execute(h.ctx, as(u.adam), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)
	_, err = h.workflow.Approve(h.ctx, as(u.olga), ticketID, "")
	requireCode(t, err, apperrors.CodeForbidden)
	_, err = h.tickets.ChangeStatus(h.ctx, as(u.sue), ticketID, StatusChangeInput{Status: domain.TicketStatusResolved})
	requireCode(t, err, apperrors.CodeConflict)

	stored := h.storedTicket(t, ticketID)
	assert.Equal(t, domain.TicketStatusRejected, stored.Status)
	assert.Equal(t, []string{domain.LogActionCreated, domain.LogActionManagerRejected}, h.logActions(t, ticketID))
	assert.Equal(t, []string{u.mark.Email, u.alice.Email}, h.mailer.recipients())
}

func TestRepeatedApprovalIsSkipped(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitAccess(t).Ticket.ID

	_, err := h.workflow.Approve(h.ctx, as(u.mark), ticketID, "")
	require.NoError(t, err)

	again, err := h.workflow.Approve(h.ctx, as(u.mark), ticketID, "second thoughts")
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, u.mark.ID, *again.Request.Approvals.Manager.ApproverID)
	assert.Empty(t, again.Request.Approvals.Manager.Comment, "first decision stands")

	_, err = h.workflow.Approve(h.ctx, as(u.max), ticketID, "")
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = h.workflow.Reject(h.ctx, as(u.mark), ticketID, "")
	requireCode(t, err, apperrors.CodeForbidden)

	assert.Equal(t, []string{domain.LogActionCreated, domain.LogActionManagerApproved}, h.logActions(t, ticketID))
	assert.Len(t, h.mailer.recipients(), 2, "a skipped action notifies nobody")
}

func TestRepeatedDecisionAfterCompletionIsSkipped(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitAccess(t).Ticket.ID
	for _, step := range []func() (*WorkflowOutcome, error){
		func() (*WorkflowOutcome, error) { return h.workflow.Approve(h.ctx, as(u.mark), ticketID, "") },
		func() (*WorkflowOutcome, error) { return h.workflow.Approve(h.ctx, as(u.sam), ticketID, "") },
		func() (*WorkflowOutcome, error) { return h.workflow.Execute(h.ctx, as(u.ivy), ticketID, "") },
	} {
		_, err := step()
		require.NoError(t, err)
	}

	again, err := h.workflow.Execute(h.ctx, as(u.ivy), ticketID, "")
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	_, err = h.workflow.Reject(h.ctx, as(u.sam), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)
	assert.Len(t, h.logActions(t, ticketID), 4)
}

func TestStageOrderIsEnforced(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitAccess(t).Ticket.ID

	_, err := h.workflow.Execute(h.ctx, as(u.ivy), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)

	_, err = h.workflow.Approve(h.ctx, as(u.sam), ticketID, "")
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = h.workflow.Forward(h.ctx, as(u.sam), ticketID, "")
	requireCode(t, err, apperrors.CodeValidation)

	_, err = h.workflow.Approve(h.ctx, as(u.mark), ticketID, "")
	require.NoError(t, err)
	_, err = h.workflow.Approve(h.ctx, as(u.sam), ticketID, "")
	require.NoError(t, err)

	_, err = h.workflow.Approve(h.ctx, as(u.ivy), ticketID, "")
	requireCode(t, err, apperrors.CodeValidation)

	assert.Len(t, h.logActions(t, ticketID), 3)
}

func TestSystemChange_ForwardedToManager(t *testing.T) {
	h := newHarness(t)
	u := h.users

	submitted := h.submitChange(t)
	ticketID := submitted.Ticket.ID
	assert.Equal(t, u.sam.ID, *submitted.Ticket.AssigneeID)
	assert.Equal(t, domain.ApprovalNotRequired, submitted.Request.Approvals.Manager.Status)

	forwarded, err := h.workflow.Forward(h.ctx, as(u.sam), ticketID, "needs budget owner")
	require.NoError(t, err)
	assert.Equal(t, u.mark.ID, *forwarded.Ticket.AssigneeID)
	assert.Equal(t, domain.ApprovalPending, forwarded.Request.Approvals.Manager.Status)

	again, err := h.workflow.Forward(h.ctx, as(u.sam), ticketID, "")
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	_, err = h.workflow.Approve(h.ctx, as(u.sam), ticketID, "")
	requireCode(t, err, apperrors.CodeForbidden)

	approved, err := h.workflow.Approve(h.ctx, as(u.mark), ticketID, "")
	require.NoError(t, err)
	assert.Equal(t, u.sam.ID, *approved.Ticket.AssigneeID)
	assert.Equal(t, domain.TicketStatusNew, approved.Ticket.Status)

	_, err = h.workflow.Forward(h.ctx, as(u.sam), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)

	approved, err = h.workflow.Approve(h.ctx, as(u.sam), ticketID, "")
	require.NoError(t, err)
	assert.Equal(t, u.ivy.ID, *approved.Ticket.AssigneeID)
	assert.Equal(t, domain.TicketStatusInProgress, approved.Ticket.Status)

	_, err = h.workflow.Execute(h.ctx, as(u.ivy), ticketID, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		domain.LogActionCreated,
		domain.LogActionForwarded,
		domain.LogActionManagerApproved,
		domain.LogActionSecurityApproved,
		domain.LogActionExecuted,
	}, h.logActions(t, ticketID))
}

func TestSystemChange_SecurityGoesStraightToIT(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitChange(t).Ticket.ID

	approved, err := h.workflow.Approve(h.ctx, as(u.sam), ticketID, "")
	require.NoError(t, err)
	assert.Equal(t, u.ivy.ID, *approved.Ticket.AssigneeID)
	assert.Equal(t, domain.ApprovalNotRequired, approved.Request.Approvals.Manager.Status)

	_, err = h.workflow.Forward(h.ctx, as(u.sam), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)

	rejected, err := h.workflow.Reject(h.ctx, as(u.ivy), ticketID, "window closed")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusRejected, rejected.Ticket.Status)
	assert.Equal(t, []string{domain.LogActionCreated, domain.LogActionSecurityApproved, domain.LogActionITRejected}, h.logActions(t, ticketID))
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	u := h.users

	_, err := h.workflow.SubmitAccessRequest(h.ctx, as(u.alice), AccessRequestInput{SystemName: "payroll"})
	requireCode(t, err, apperrors.CodeValidation)
	details := apperrors.ToDomainError(err).Details
	assert.Contains(t, details, "access_level")
	assert.Contains(t, details, "justification")
	assert.Contains(t, details, "selected_manager_id")

	_, err = h.workflow.SubmitServiceRequest(h.ctx, as(u.alice), ServiceRequestInput{
		RequestTicketInput: RequestTicketInput{SelectedManagerID: &u.olga.ID},
		ServiceName:        "laptop",
		Details:            "new hire",
	})
	requireCode(t, err, apperrors.CodeValidation)

	missing := int64(9999)
	_, err = h.workflow.SubmitServiceRequest(h.ctx, as(u.alice), ServiceRequestInput{
		RequestTicketInput: RequestTicketInput{SelectedManagerID: &missing},
		ServiceName:        "laptop",
		Details:            "new hire",
	})
	requireCode(t, err, apperrors.CodeNotFound)

	tickets, err := h.tickets.ListTickets(h.ctx, as(u.sue), TicketListFilter{})
	require.NoError(t, err)
	assert.Empty(t, tickets, "refused submissions leave nothing behind")
}

func TestServiceRequest_Submit(t *testing.T) {
	h := newHarness(t)
	u := h.users

	outcome, err := h.workflow.SubmitServiceRequest(h.ctx, as(u.alice), ServiceRequestInput{
		RequestTicketInput: RequestTicketInput{SelectedManagerID: &u.max.ID, Priority: domain.TicketPriorityHigh},
		ServiceName:        "laptop",
		Details:            "new hire starts monday",
	})
	require.NoError(t, err)
	assert.Equal(t, u.max.ID, *outcome.Ticket.AssigneeID)
	assert.Equal(t, "Service request: laptop", outcome.Ticket.Title)
	assert.Equal(t, domain.TicketPriorityHigh, outcome.Ticket.Priority)

	detail, err := h.tickets.GetTicket(h.ctx, as(u.max), outcome.Ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Service)
	assert.Equal(t, "laptop", detail.Service.ServiceName)
	require.Len(t, detail.Ticket.Logs, 1)
	require.NotNil(t, detail.Ticket.Logs[0].Notes)
	assert.Equal(t, "Service request submitted; awaiting manager approval from Max Manager", *detail.Ticket.Logs[0].Notes)
}

func TestWorkflowActionOnPlainTicket(t *testing.T) {
	h := newHarness(t)
	created, err := h.tickets.CreateTicket(h.ctx, as(h.users.alice), TicketCreateInput{Title: "Mouse", Description: "broken"})
	require.NoError(t, err)

	_, err = h.workflow.Approve(h.ctx, as(h.users.ivy), created.Ticket.ID, "")
	requireCode(t, err, apperrors.CodeNotFound)
	_, err = h.workflow.Approve(h.ctx, as(h.users.ivy), created.Ticket.ID+100, "")
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestRejectionNotifiesRequesterWithWarningOnFailure(t *testing.T) {
	h := newHarness(t)
	u := h.users

	submitted, err := h.workflow.SubmitAccessRequest(h.ctx, as(u.nora), AccessRequestInput{
		RequestTicketInput: RequestTicketInput{SelectedManagerID: &u.mark.ID},
		SystemName:         "crm",
		AccessLevel:        "write",
		Justification:      "sales rotation",
	})
	require.NoError(t, err)

	rejected, err := h.workflow.Reject(h.ctx, as(u.mark), submitted.Ticket.ID, "")
	require.NoError(t, err)
	require.Len(t, rejected.Warnings, 1)
	assert.Contains(t, rejected.Warnings[0], "requester")
	assert.Equal(t, domain.TicketStatusRejected, h.storedTicket(t, submitted.Ticket.ID).Status)
	require.Len(t, h.failures.entries, 1)
	assert.Equal(t, "request_rejected", h.failures.entries[0].EventType)
}

func TestSecurityRejectionHaltsAccessRequest(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitAccess(t).Ticket.ID

	_, err := h.workflow.Approve(h.ctx, as(u.mark), ticketID, "")
	require.NoError(t, err)
	rejected, err := h.workflow.Reject(h.ctx, as(u.sam), ticketID, "too broad")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusRejected, rejected.Ticket.Status)
	require.NotNil(t, rejected.Ticket.CloseReason)
	assert.Equal(t, domain.CloseReasonRejected, *rejected.Ticket.CloseReason)
	assert.Equal(t, domain.ApprovalApproved, rejected.Request.Approvals.Manager.Status)
	assert.Equal(t, domain.ApprovalRejected, rejected.Request.Approvals.Security.Status)
	assert.Equal(t, domain.ApprovalPending, rejected.Request.Approvals.IT.Status)

	_, err = h.workflow.Execute(h.ctx, as(u.ivy), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)
	_, err = h.workflow.Approve(h.ctx, as(u.adam), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)

	assert.Equal(t, []string{
		domain.LogActionCreated,
		domain.LogActionManagerApproved,
		domain.LogActionSecurityRejected,
	}, h.logActions(t, ticketID))
}

func TestITRejectionHaltsServiceRequest(t *testing.T) {
	h := newHarness(t)
	u := h.users
	submitted, err := h.workflow.SubmitServiceRequest(h.ctx, as(u.alice), ServiceRequestInput{
		RequestTicketInput: RequestTicketInput{SelectedManagerID: &u.max.ID},
		ServiceName:        "vpn token",
		Details:            "travelling next week",
	})
	require.NoError(t, err)
	ticketID := submitted.Ticket.ID

	_, err = h.workflow.Approve(h.ctx, as(u.max), ticketID, "")
	require.NoError(t, err)
	_, err = h.workflow.Approve(h.ctx, as(u.sam), ticketID, "")
	require.NoError(t, err)
	rejected, err := h.workflow.Reject(h.ctx, as(u.ivy), ticketID, "no tokens left")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusRejected, rejected.Ticket.Status)
	require.NotNil(t, rejected.Ticket.CloseReason)
	assert.Equal(t, domain.CloseReasonRejected, *rejected.Ticket.CloseReason)
	assert.Equal(t, domain.ApprovalRejected, rejected.Request.Approvals.IT.Status)

	_, err = h.workflow.Execute(h.ctx, as(u.ivy), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, domain.TicketStatusRejected, h.storedTicket(t, ticketID).Status)
	assert.Equal(t, []string{
		domain.LogActionCreated,
		domain.LogActionManagerApproved,
		domain.LogActionSecurityApproved,
		domain.LogActionITRejected,
	}, h.logActions(t, ticketID))
}

func TestSystemChange_RejectedAtEachStage(t *testing.T) {
	tests := []struct {
		name    string
		steps   func(h *harness, ticketID int64) (*WorkflowOutcome, error)
		stage   domain.Stage
		actions []string
	}{
		{
			name: "security",
			steps: func(h *harness, ticketID int64) (*WorkflowOutcome, error) {
				return h.workflow.Reject(h.ctx, as(h.users.sam), ticketID, "")
			},
			stage:   domain.StageSecurity,
			actions: []string{domain.LogActionCreated, domain.LogActionSecurityRejected},
		},
		{
			name: "forwarded manager",
			steps: func(h *harness, ticketID int64) (*WorkflowOutcome, error) {
				if _, err := h.workflow.Forward(h.ctx, as(h.users.sam), ticketID, ""); err != nil {
					return nil, err
				}
				return h.workflow.Reject(h.ctx, as(h.users.mark), ticketID, "no budget")
			},
			stage:   domain.StageManager,
			actions: []string{domain.LogActionCreated, domain.LogActionForwarded, domain.LogActionManagerRejected},
		},
		{
			name: "it",
			steps: func(h *harness, ticketID int64) (*WorkflowOutcome, error) {
				if _, err := h.workflow.Approve(h.ctx, as(h.users.sam), ticketID, ""); err != nil {
					return nil, err
				}
				return h.workflow.Reject(h.ctx, as(h.users.ivy), ticketID, "")
			},
			stage:   domain.StageIT,
			actions: []string{domain.LogActionCreated, domain.LogActionSecurityApproved, domain.LogActionITRejected},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ticketID := h.submitChange(t).Ticket.ID

			rejected, err := tt.steps(h, ticketID)
			require.NoError(t, err)
			assert.Equal(t, domain.TicketStatusRejected, rejected.Ticket.Status)
			require.NotNil(t, rejected.Ticket.CloseReason)
			assert.Equal(t, domain.CloseReasonRejected, *rejected.Ticket.CloseReason)
			assert.Equal(t, domain.ApprovalRejected, rejected.Request.Approvals.Stage(tt.stage).Status)

			_, current := CurrentStage(&rejected.Request.Approvals)
			assert.False(t, current, "pipeline halted")
			_, err = h.workflow.Execute(h.ctx, as(h.users.ivy), ticketID, "")
			requireCode(t, err, apperrors.CodeConflict)
			assert.Equal(t, tt.actions, h.logActions(t, ticketID))
		})
	}
}

func TestResolvingRequestRequiresExecution(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitAccess(t).Ticket.ID

	_, err := h.tickets.ChangeStatus(h.ctx, as(u.mark), ticketID, StatusChangeInput{Status: domain.TicketStatusResolved})
	requireCode(t, err, apperrors.CodeConflict)
	_, err = h.tickets.ChangeStatus(h.ctx, as(u.adam), ticketID, StatusChangeInput{Status: domain.TicketStatusResolved})
	requireCode(t, err, apperrors.CodeConflict)
	_, err = h.tickets.ChangeStatus(h.ctx, as(u.mark), ticketID, StatusChangeInput{Status: domain.TicketStatusInProgress})
	require.NoError(t, err)

	_, err = h.workflow.Approve(h.ctx, as(u.mark), ticketID, "")
	require.NoError(t, err)

	stale := h.storedTicket(t, ticketID)
	stale.Status = domain.TicketStatusResolved
	require.NoError(t, h.mem.Tickets().Update(h.ctx, stale))

	_, err = h.workflow.Approve(h.ctx, as(u.sam), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, domain.TicketStatusResolved, h.storedTicket(t, ticketID).Status)
	assert.Equal(t, []string{
		domain.LogActionCreated,
		domain.LogActionStatusChanged,
		domain.LogActionManagerApproved,
	}, h.logActions(t, ticketID))
}

func TestExecutedRequestMayBeReopenedAndResolved(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitAccess(t).Ticket.ID
	for _, step := range []func() (*WorkflowOutcome, error){
		func() (*WorkflowOutcome, error) { return h.workflow.Approve(h.ctx, as(u.mark), ticketID, "") },
		func() (*WorkflowOutcome, error) { return h.workflow.Approve(h.ctx, as(u.sam), ticketID, "") },
		func() (*WorkflowOutcome, error) { return h.workflow.Execute(h.ctx, as(u.ivy), ticketID, "") },
	} {
		_, err := step()
		require.NoError(t, err)
	}

	_, err := h.tickets.ChangeStatus(h.ctx, as(u.sue), ticketID, StatusChangeInput{Status: domain.TicketStatusInProgress})
	require.NoError(t, err)
	outcome, err := h.tickets.ChangeStatus(h.ctx, as(u.sue), ticketID, StatusChangeInput{Status: domain.TicketStatusResolved})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, outcome.Ticket.Status)
}

func TestActionOnTicketHaltedByStatus(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitAccess(t).Ticket.ID

	_, err := h.tickets.ChangeStatus(h.ctx, as(u.sue), ticketID, StatusChangeInput{Status: domain.TicketStatusRejected})
	require.NoError(t, err)

	_, err = h.workflow.Approve(h.ctx, as(u.mark), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)
	halted := apperrors.ToDomainError(err)
	assert.Equal(t, "ticket is rejected; the approval pipeline is halted", halted.Message)
	assert.Equal(t, domain.StageManager, halted.Details["current_stage"])

	_, err = h.tickets.ChangeStatus(h.ctx, as(u.sue), ticketID, StatusChangeInput{Status: domain.TicketStatusClosed})
	require.NoError(t, err)
	_, err = h.workflow.Approve(h.ctx, as(u.mark), ticketID, "")
	requireCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, "ticket is closed; the approval pipeline is halted", apperrors.ToDomainError(err).Message)
}

func TestApproveStage_RepeatIsSkipped(t *testing.T) {
	h := newHarness(t)
	u := h.users
	ticketID := h.submitAccess(t).Ticket.ID

	first, err := h.workflow.ApproveStage(h.ctx, as(u.adam), ticketID, domain.StageManager, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, first.Request.Approvals.Manager.Status)

	again, err := h.workflow.ApproveStage(h.ctx, as(u.adam), ticketID, "manager", "")
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, domain.ApprovalPending, again.Request.Approvals.Security.Status)

	_, err = h.workflow.ApproveStage(h.ctx, as(u.sam), ticketID, domain.StageManager, "")
	requireCode(t, err, apperrors.CodeConflict)
	_, err = h.workflow.ApproveStage(h.ctx, as(u.sam), ticketID, "BOARD", "")
	requireCode(t, err, apperrors.CodeValidation)

	approved, err := h.workflow.ApproveStage(h.ctx, as(u.sam), ticketID, domain.StageSecurity, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, approved.Ticket.Status)

	assert.Equal(t, []string{
		domain.LogActionCreated,
		domain.LogActionManagerApproved,
		domain.LogActionSecurityApproved,
	}, h.logActions(t, ticketID))
}

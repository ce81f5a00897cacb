package service

import (
	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
)

// stageOrder is the order stages are visited in. The manager stage of a
// system change is NOT_REQUIRED until Security forwards it, so the first
// pending stage is always the current one.
var stageOrder = []domain.Stage{domain.StageManager, domain.StageSecurity, domain.StageIT}

// initialChain returns the approval record of a freshly submitted request.
func initialChain(kind domain.RequestKind) domain.ApprovalChain {
	chain := domain.ApprovalChain{
		Manager:  domain.Approval{Status: domain.ApprovalPending},
		Security: domain.Approval{Status: domain.ApprovalPending},
		IT:       domain.Approval{Status: domain.ApprovalPending},
	}
	if kind == domain.RequestKindSystemChange {
		chain.Manager.Status = domain.ApprovalNotRequired
	}
	return chain
}

// CurrentStage returns the stage awaiting a decision. ok is false when the
// pipeline finished or was halted by a rejection.
func CurrentStage(chain *domain.ApprovalChain) (domain.Stage, bool) {
	if _, rejected := rejectedStage(chain); rejected {
		return "", false
	}
	for _, stage := range stageOrder {
		if chain.Stage(stage).Status == domain.ApprovalPending {
			return stage, true
		}
	}
	return "", false
}

func rejectedStage(chain *domain.ApprovalChain) (domain.Stage, bool) {
	for _, stage := range stageOrder {
		if chain.Stage(stage).Status == domain.ApprovalRejected {
			return stage, true
		}
	}
	return "", false
}

// nextStage is the stage that follows an approval at stage.
func nextStage(chain *domain.ApprovalChain, stage domain.Stage) (domain.Stage, bool) {
	for i, s := range stageOrder {
		if s != stage {
			continue
		}
		for _, candidate := range stageOrder[i+1:] {
			if chain.Stage(candidate).Status == domain.ApprovalPending {
				return candidate, true
			}
		}
	}
	return "", false
}

// canActOn reports whether the caller may decide stage. The manager stage is
// held by whoever the ticket is assigned to.
func canActOn(caller auth.Permissions, ticket *domain.Ticket, stage domain.Stage) bool {
	if caller.IsAdmin {
		return true
	}
	switch stage {
	case domain.StageManager:
		return caller.IsAssigneeOf(ticket)
	case domain.StageSecurity:
		return caller.HasRole(domain.RoleSecurity)
	case domain.StageIT:
		return caller.HasRole(domain.RoleIT)
	}
	return false
}

// decidedBy reports whether userID already recorded decision on any stage.
func decidedBy(chain *domain.ApprovalChain, userID int64, decision domain.ApprovalStatus) bool {
	for _, stage := range stageOrder {
		if decidedAt(chain, stage, userID, decision) {
			return true
		}
	}
	return false
}

func decidedAt(chain *domain.ApprovalChain, stage domain.Stage, userID int64, decision domain.ApprovalStatus) bool {
	approval := chain.Stage(stage)
	return approval.Status == decision && approval.ApproverID != nil && *approval.ApproverID == userID
}

// haltsPipeline reports whether a ticket in status accepts no further
// workflow actions. A resolved ticket counts even when stages are pending.
func haltsPipeline(status domain.TicketStatus) bool {
	return status.IsTerminal() || status == domain.TicketStatusResolved
}

func approvedAction(stage domain.Stage) string {
	switch stage {
	case domain.StageManager:
		return domain.LogActionManagerApproved
	case domain.StageSecurity:
		return domain.LogActionSecurityApproved
	}
	return domain.LogActionExecuted
}

func rejectedAction(stage domain.Stage) string {
	switch stage {
	case domain.StageManager:
		return domain.LogActionManagerRejected
	case domain.StageSecurity:
		return domain.LogActionSecurityRejected
	}
	return domain.LogActionITRejected
}

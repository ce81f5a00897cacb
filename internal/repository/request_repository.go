package repository

import (
	"context"
	"fmt"

	"github.com/spec-kit/helpdesk-workflow/internal/domain"
)

// RequestRepository persists the request subtypes attached 1:1 to tickets.
type RequestRepository interface {
	CreateAccess(ctx context.Context, req *domain.AccessRequest) error
	CreateService(ctx context.Context, req *domain.ServiceRequest) error
	CreateSystemChange(ctx context.Context, req *domain.SystemChangeRequest) error

	GetAccessByTicket(ctx context.Context, ticketID int64) (*domain.AccessRequest, error)
	GetServiceByTicket(ctx context.Context, ticketID int64) (*domain.ServiceRequest, error)
	GetSystemChangeByTicket(ctx context.Context, ticketID int64) (*domain.SystemChangeRequest, error)

	// GetBaseByTicket returns the shared part of whichever subtype the ticket carries.
	GetBaseByTicket(ctx context.Context, ticketID int64) (*domain.RequestBase, error)
	// UpdateApprovals writes the approval chain. Nothing else on a request is mutable.
	UpdateApprovals(ctx context.Context, base *domain.RequestBase) error
}

type requestRepository struct {
	db DBTX
}

// NewRequestRepository constructs repository.
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepository{db: db}
}

const approvalColumns = `manager_status, manager_approver_id, manager_approver_name, manager_decided_at, manager_comment,
        security_status, security_approver_id, security_approver_name, security_decided_at, security_comment,
        it_status, it_approver_id, it_approver_name, it_decided_at, it_comment`

var requestTables = map[domain.RequestKind]string{
	domain.RequestKindAccess:       "access_requests",
	domain.RequestKindService:      "service_requests",
	domain.RequestKindSystemChange: "system_change_requests",
}

func approvalArgs(chain *domain.ApprovalChain) []any {
	args := make([]any, 0, 15)
	for _, a := range []*domain.Approval{&chain.Manager, &chain.Security, &chain.IT} {
		args = append(args, a.Status, a.ApproverID, a.ApproverName, a.DecidedAt, a.Comment)
	}
	return args
}

func approvalDest(chain *domain.ApprovalChain) []any {
	dest := make([]any, 0, 15)
	for _, a := range []*domain.Approval{&chain.Manager, &chain.Security, &chain.IT} {
		dest = append(dest, &a.Status, &a.ApproverID, &a.ApproverName, &a.DecidedAt, &a.Comment)
	}
	return dest
}

func (r *requestRepository) CreateAccess(ctx context.Context, req *domain.AccessRequest) error {
	const query = `
        INSERT INTO access_requests (ticket_id, selected_manager_id, system_name, access_level, justification, valid_until,
            ` + approvalColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
        RETURNING id, created_at`
	args := append([]any{req.TicketID, req.SelectedManagerID, req.SystemName, req.AccessLevel, req.Justification, req.ValidUntil},
		approvalArgs(&req.Approvals)...)
	req.Kind = domain.RequestKindAccess
	return r.db.QueryRow(ctx, query, args...).Scan(&req.ID, &req.CreatedAt)
}

func (r *requestRepository) CreateService(ctx context.Context, req *domain.ServiceRequest) error {
	const query = `
        INSERT INTO service_requests (ticket_id, selected_manager_id, service_name, category, details, needed_by,
            ` + approvalColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
        RETURNING id, created_at`
	args := append([]any{req.TicketID, req.SelectedManagerID, req.ServiceName, req.Category, req.Details, req.NeededBy},
		approvalArgs(&req.Approvals)...)
	req.Kind = domain.RequestKindService
	return r.db.QueryRow(ctx, query, args...).Scan(&req.ID, &req.CreatedAt)
}

func (r *requestRepository) CreateSystemChange(ctx context.Context, req *domain.SystemChangeRequest) error {
	const query = `
        INSERT INTO system_change_requests (ticket_id, selected_manager_id, system_name, change_summary, impact_assessment,
            rollback_plan, scheduled_for, ` + approvalColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
        RETURNING id, created_at`
	args := append([]any{req.TicketID, req.SelectedManagerID, req.SystemName, req.ChangeSummary, req.ImpactAssessment,
		req.RollbackPlan, req.ScheduledFor}, approvalArgs(&req.Approvals)...)
	req.Kind = domain.RequestKindSystemChange
	return r.db.QueryRow(ctx, query, args...).Scan(&req.ID, &req.CreatedAt)
}

func (r *requestRepository) GetAccessByTicket(ctx context.Context, ticketID int64) (*domain.AccessRequest, error) {
	const query = `
        SELECT id, ticket_id, selected_manager_id, system_name, access_level, justification, valid_until, created_at,
            ` + approvalColumns + `
        FROM access_requests WHERE ticket_id=$1`
	req := &domain.AccessRequest{}
	req.Kind = domain.RequestKindAccess
	dest := append([]any{&req.ID, &req.TicketID, &req.SelectedManagerID, &req.SystemName, &req.AccessLevel,
		&req.Justification, &req.ValidUntil, &req.CreatedAt}, approvalDest(&req.Approvals)...)
	if err := r.db.QueryRow(ctx, query, ticketID).Scan(dest...); err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

func (r *requestRepository) GetServiceByTicket(ctx context.Context, ticketID int64) (*domain.ServiceRequest, error) {
	const query = `
        SELECT id, ticket_id, selected_manager_id, service_name, category, details, needed_by, created_at,
            ` + approvalColumns + `
        FROM service_requests WHERE ticket_id=$1`
	req := &domain.ServiceRequest{}
	req.Kind = domain.RequestKindService
	dest := append([]any{&req.ID, &req.TicketID, &req.SelectedManagerID, &req.ServiceName, &req.Category,
		&req.Details, &req.NeededBy, &req.CreatedAt}, approvalDest(&req.Approvals)...)
	if err := r.db.QueryRow(ctx, query, ticketID).Scan(dest...); err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

func (r *requestRepository) GetSystemChangeByTicket(ctx context.Context, ticketID int64) (*domain.SystemChangeRequest, error) {
	const query = `
        SELECT id, ticket_id, selected_manager_id, system_name, change_summary, impact_assessment, rollback_plan,
            scheduled_for, created_at, ` + approvalColumns + `
        FROM system_change_requests WHERE ticket_id=$1`
	req := &domain.SystemChangeRequest{}
	req.Kind = domain.RequestKindSystemChange
	dest := append([]any{&req.ID, &req.TicketID, &req.SelectedManagerID, &req.SystemName, &req.ChangeSummary,
		&req.ImpactAssessment, &req.RollbackPlan, &req.ScheduledFor, &req.CreatedAt}, approvalDest(&req.Approvals)...)
	if err := r.db.QueryRow(ctx, query, ticketID).Scan(dest...); err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

func (r *requestRepository) GetBaseByTicket(ctx context.Context, ticketID int64) (*domain.RequestBase, error) {
	const query = `
        SELECT 'ACCESS' AS kind, id, ticket_id, selected_manager_id, created_at, ` + approvalColumns + `
        FROM access_requests WHERE ticket_id=$1
        UNION ALL
        SELECT 'SERVICE', id, ticket_id, selected_manager_id, created_at, ` + approvalColumns + `
        FROM service_requests WHERE ticket_id=$1
        UNION ALL
        SELECT 'SYSTEM_CHANGE', id, ticket_id, selected_manager_id, created_at, ` + approvalColumns + `
        FROM system_change_requests WHERE ticket_id=$1`
	base := &domain.RequestBase{}
	dest := append([]any{&base.Kind, &base.ID, &base.TicketID, &base.SelectedManagerID, &base.CreatedAt},
		approvalDest(&base.Approvals)...)
	if err := r.db.QueryRow(ctx, query, ticketID).Scan(dest...); err != nil {
		return nil, notFound(err)
	}
	return base, nil
}

func (r *requestRepository) UpdateApprovals(ctx context.Context, base *domain.RequestBase) error {
	table, ok := requestTables[base.Kind]
	if !ok {
		return fmt.Errorf("unknown request kind %q", base.Kind)
	}
	query := `UPDATE ` + table + ` SET
            manager_status=$1, manager_approver_id=$2, manager_approver_name=$3, manager_decided_at=$4, manager_comment=$5,
            security_status=$6, security_approver_id=$7, security_approver_name=$8, security_decided_at=$9, security_comment=$10,
            it_status=$11, it_approver_id=$12, it_approver_name=$13, it_decided_at=$14, it_comment=$15
        WHERE id=$16`
	args := append(approvalArgs(&base.Approvals), base.ID)
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

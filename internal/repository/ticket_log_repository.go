package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-workflow/internal/domain"
)

// TicketLogRepository stores audit entries. Entries are append-only.
type TicketLogRepository interface {
	Append(ctx context.Context, entry *domain.TicketLog) error
	// ListByTicket returns entries in insertion order.
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketLog, error)
}

type ticketLogRepository struct {
	db DBTX
}

// NewTicketLogRepository builds repository.
func NewTicketLogRepository(db DBTX) TicketLogRepository {
	return &ticketLogRepository{db: db}
}

func (r *ticketLogRepository) Append(ctx context.Context, entry *domain.TicketLog) error {
	const query = `
        INSERT INTO ticket_logs (ticket_id, action, actor_id, actor_name, notes)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		entry.TicketID,
		entry.Action,
		entry.ActorID,
		entry.ActorName,
		entry.Notes,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *ticketLogRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketLog, error) {
	const query = `
        SELECT id, ticket_id, action, actor_id, actor_name, notes, created_at
        FROM ticket_logs WHERE ticket_id=$1 ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketLog
	for rows.Next() {
		var entry domain.TicketLog
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Action,
			&entry.ActorID,
			&entry.ActorName,
			&entry.Notes,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the repositories that take part in one unit of work.
type Store interface {
	Users() UserRepository
	Tickets() TicketRepository
	TicketLogs() TicketLogRepository
	Attachments() AttachmentRepository
	Requests() RequestRepository

	// WithinTx runs fn against a transactional view of the store. Either every
	// write made through that view becomes visible, or none does.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type pgStore struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

// NewPostgresStore returns a Store backed by the pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, db: pool}
}

func (s *pgStore) Users() UserRepository             { return NewUserRepository(s.db) }
func (s *pgStore) Tickets() TicketRepository         { return NewTicketRepository(s.db) }
func (s *pgStore) TicketLogs() TicketLogRepository   { return NewTicketLogRepository(s.db) }
func (s *pgStore) Attachments() AttachmentRepository { return NewAttachmentRepository(s.db) }
func (s *pgStore) Requests() RequestRepository       { return NewRequestRepository(s.db) }

func (s *pgStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgStore{pool: s.pool, db: tx, inTx: true})
	})
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

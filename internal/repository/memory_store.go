package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-workflow/internal/domain"
)

// ErrDuplicateEmail is returned when an account with the same email exists.
var ErrDuplicateEmail = errors.New("email already registered")

// MemoryStore is a Store kept in process memory. Units of work run on a copy
// of the state that replaces the live state only when fn succeeds; they are
// serialized by a single lock.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: time.Now}
}

func (s *MemoryStore) scope() *memScope {
	return &memScope{mu: &s.mu, state: &s.state, now: s.now}
}

func (s *MemoryStore) Users() UserRepository             { return &memUsers{s.scope()} }
func (s *MemoryStore) Tickets() TicketRepository         { return &memTickets{s.scope()} }
func (s *MemoryStore) TicketLogs() TicketLogRepository   { return &memLogs{s.scope()} }
func (s *MemoryStore) Attachments() AttachmentRepository { return &memAttachments{s.scope()} }
func (s *MemoryStore) Requests() RequestRepository       { return &memRequests{s.scope()} }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	tx := &memTxStore{scope: &memScope{mu: nopLocker{}, state: &working, now: s.now}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = working
	return nil
}

type memTxStore struct {
	scope *memScope
}

func (t *memTxStore) Users() UserRepository             { return &memUsers{t.scope} }
func (t *memTxStore) Tickets() TicketRepository         { return &memTickets{t.scope} }
func (t *memTxStore) TicketLogs() TicketLogRepository   { return &memLogs{t.scope} }
func (t *memTxStore) Attachments() AttachmentRepository { return &memAttachments{t.scope} }
func (t *memTxStore) Requests() RequestRepository       { return &memRequests{t.scope} }

func (t *memTxStore) WithinTx(_ context.Context, fn func(Store) error) error {
	return fn(t)
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

type memScope struct {
	mu    sync.Locker
	state **memState
	now   func() time.Time
}

func (sc *memScope) do(fn func(st *memState) error) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return fn(*sc.state)
}

type memState struct {
	seq         map[string]int64
	users       map[int64]domain.User
	tickets     map[int64]domain.Ticket
	logs        []domain.TicketLog
	attachments []domain.TicketAttachment
	access      map[int64]domain.AccessRequest
	service     map[int64]domain.ServiceRequest
	change      map[int64]domain.SystemChangeRequest
}

func newMemState() *memState {
	return &memState{
		seq:     map[string]int64{},
		users:   map[int64]domain.User{},
		tickets: map[int64]domain.Ticket{},
		access:  map[int64]domain.AccessRequest{},
		service: map[int64]domain.ServiceRequest{},
		change:  map[int64]domain.SystemChangeRequest{},
	}
}

func (st *memState) next(table string) int64 {
	st.seq[table]++
	return st.seq[table]
}

// clone copies the containers. Stored values are never mutated in place, so
// sharing their pointer fields between copies is safe.
func (st *memState) clone() *memState {
	out := newMemState()
	for k, v := range st.seq {
		out.seq[k] = v
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.tickets {
		out.tickets[k] = v
	}
	out.logs = append([]domain.TicketLog(nil), st.logs...)
	out.attachments = append([]domain.TicketAttachment(nil), st.attachments...)
	for k, v := range st.access {
		out.access[k] = v
	}
	for k, v := range st.service {
		out.service[k] = v
	}
	for k, v := range st.change {
		out.change[k] = v
	}
	return out
}

type memUsers struct{ sc *memScope }

func (r *memUsers) Create(_ context.Context, user *domain.User) error {
	return r.sc.do(func(st *memState) error {
		email := strings.ToLower(strings.TrimSpace(user.Email))
		for _, existing := range st.users {
			if existing.Email == email {
				return ErrDuplicateEmail
			}
		}
		now := r.sc.now()
		user.ID = st.next("users")
		user.Email = email
		user.CreatedAt = now
		user.UpdatedAt = now
		stored := *user
		stored.Roles = append([]domain.Role(nil), user.Roles...)
		st.users[user.ID] = stored
		return nil
	})
}

func (r *memUsers) Update(_ context.Context, user *domain.User) error {
	return r.sc.do(func(st *memState) error {
		if _, ok := st.users[user.ID]; !ok {
			return ErrNotFound
		}
		user.Email = strings.ToLower(strings.TrimSpace(user.Email))
		user.UpdatedAt = r.sc.now()
		stored := *user
		stored.Roles = append([]domain.Role(nil), user.Roles...)
		st.users[user.ID] = stored
		return nil
	})
}

func (r *memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := r.sc.do(func(st *memState) error {
		user, ok := st.users[id]
		if !ok {
			return ErrNotFound
		}
		out = copyUser(user)
		return nil
	})
	return out, err
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	var out *domain.User
	email = strings.ToLower(strings.TrimSpace(email))
	err := r.sc.do(func(st *memState) error {
		for _, user := range st.users {
			if user.Email == email {
				out = copyUser(user)
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (r *memUsers) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	var out []domain.User
	err := r.sc.do(func(st *memState) error {
		for _, user := range st.users {
			if user.Active && user.HasRole(role) {
				out = append(out, *copyUser(user))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func copyUser(user domain.User) *domain.User {
	user.Roles = append([]domain.Role(nil), user.Roles...)
	return &user
}

type memTickets struct{ sc *memScope }

func (r *memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.sc.do(func(st *memState) error {
		now := r.sc.now()
		ticket.ID = st.next("tickets")
		ticket.CreatedAt = now
		ticket.UpdatedAt = now
		st.tickets[ticket.ID] = *detachTicket(ticket)
		return nil
	})
}

func (r *memTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.sc.do(func(st *memState) error {
		if _, ok := st.tickets[ticket.ID]; !ok {
			return ErrNotFound
		}
		ticket.UpdatedAt = r.sc.now()
		st.tickets[ticket.ID] = *detachTicket(ticket)
		return nil
	})
}

func (r *memTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.sc.do(func(st *memState) error {
		ticket, ok := st.tickets[id]
		if !ok {
			return ErrNotFound
		}
		out = detachTicket(&ticket)
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: units of work are already serialized.
func (r *memTickets) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *memTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	var matched []domain.Ticket
	err := r.sc.do(func(st *memState) error {
		for _, ticket := range st.tickets {
			if ticketMatches(&ticket, filter) {
				matched = append(matched, *detachTicket(&ticket))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func ticketMatches(ticket *domain.Ticket, filter TicketFilter) bool {
	if filter.ParticipantID != nil && ticket.CreatorID != *filter.ParticipantID && !ticket.IsAssignee(*filter.ParticipantID) {
		return false
	}
	if filter.CreatorID != nil && ticket.CreatorID != *filter.CreatorID {
		return false
	}
	if filter.AssigneeID != nil && !ticket.IsAssignee(*filter.AssigneeID) {
		return false
	}
	if filter.Department != nil && ticket.Department != *filter.Department {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
		return false
	}
	if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(ticket.Title), term) &&
			!strings.Contains(strings.ToLower(ticket.Description), term) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, candidate := range list {
		if candidate == p {
			return true
		}
	}
	return false
}

// detachTicket copies the persisted columns only; logs and attachments live
// in their own collections.
func detachTicket(ticket *domain.Ticket) *domain.Ticket {
	out := *ticket
	out.Logs = nil
	out.Attachments = nil
	if ticket.AssigneeID != nil {
		id := *ticket.AssigneeID
		out.AssigneeID = &id
	}
	if ticket.CloseReason != nil {
		reason := *ticket.CloseReason
		out.CloseReason = &reason
	}
	return &out
}

type memLogs struct{ sc *memScope }

func (r *memLogs) Append(_ context.Context, entry *domain.TicketLog) error {
	return r.sc.do(func(st *memState) error {
		if _, ok := st.tickets[entry.TicketID]; !ok {
			return ErrNotFound
		}
		entry.ID = st.next("ticket_logs")
		entry.CreatedAt = r.sc.now()
		stored := *entry
		if entry.Notes != nil {
			notes := *entry.Notes
			stored.Notes = &notes
		}
		st.logs = append(st.logs, stored)
		return nil
	})
}

func (r *memLogs) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketLog, error) {
	var out []domain.TicketLog
	err := r.sc.do(func(st *memState) error {
		for _, entry := range st.logs {
			if entry.TicketID == ticketID {
				out = append(out, entry)
			}
		}
		return nil
	})
	return out, err
}

type memAttachments struct{ sc *memScope }

func (r *memAttachments) Create(_ context.Context, attachment *domain.TicketAttachment) error {
	return r.sc.do(func(st *memState) error {
		if _, ok := st.tickets[attachment.TicketID]; !ok {
			return ErrNotFound
		}
		attachment.ID = st.next("ticket_attachments")
		st.attachments = append(st.attachments, *attachment)
		return nil
	})
}

func (r *memAttachments) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketAttachment, error) {
	var out []domain.TicketAttachment
	err := r.sc.do(func(st *memState) error {
		for _, attachment := range st.attachments {
			if attachment.TicketID == ticketID {
				out = append(out, attachment)
			}
		}
		return nil
	})
	return out, err
}

type memRequests struct{ sc *memScope }

func (r *memRequests) hasRequest(st *memState, ticketID int64) bool {
	_, a := st.access[ticketID]
	_, s := st.service[ticketID]
	_, c := st.change[ticketID]
	return a || s || c
}

func (r *memRequests) prepare(st *memState, base *domain.RequestBase, kind domain.RequestKind) error {
	if _, ok := st.tickets[base.TicketID]; !ok {
		return ErrNotFound
	}
	if r.hasRequest(st, base.TicketID) {
		return errors.New("ticket already carries a request")
	}
	base.ID = st.next(requestTables[kind])
	base.Kind = kind
	base.CreatedAt = r.sc.now()
	return nil
}

func (r *memRequests) CreateAccess(_ context.Context, req *domain.AccessRequest) error {
	return r.sc.do(func(st *memState) error {
		if err := r.prepare(st, &req.RequestBase, domain.RequestKindAccess); err != nil {
			return err
		}
		st.access[req.TicketID] = *req
		return nil
	})
}

func (r *memRequests) CreateService(_ context.Context, req *domain.ServiceRequest) error {
	return r.sc.do(func(st *memState) error {
		if err := r.prepare(st, &req.RequestBase, domain.RequestKindService); err != nil {
			return err
		}
		st.service[req.TicketID] = *req
		return nil
	})
}

func (r *memRequests) CreateSystemChange(_ context.Context, req *domain.SystemChangeRequest) error {
	return r.sc.do(func(st *memState) error {
		if err := r.prepare(st, &req.RequestBase, domain.RequestKindSystemChange); err != nil {
			return err
		}
		st.change[req.TicketID] = *req
		return nil
	})
}

func (r *memRequests) GetAccessByTicket(_ context.Context, ticketID int64) (*domain.AccessRequest, error) {
	var out *domain.AccessRequest
	err := r.sc.do(func(st *memState) error {
		req, ok := st.access[ticketID]
		if !ok {
			return ErrNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

func (r *memRequests) GetServiceByTicket(_ context.Context, ticketID int64) (*domain.ServiceRequest, error) {
	var out *domain.ServiceRequest
	err := r.sc.do(func(st *memState) error {
		req, ok := st.service[ticketID]
		if !ok {
			return ErrNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

func (r *memRequests) GetSystemChangeByTicket(_ context.Context, ticketID int64) (*domain.SystemChangeRequest, error) {
	var out *domain.SystemChangeRequest
	err := r.sc.do(func(st *memState) error {
		req, ok := st.change[ticketID]
		if !ok {
			return ErrNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

func (r *memRequests) GetBaseByTicket(_ context.Context, ticketID int64) (*domain.RequestBase, error) {
	var out *domain.RequestBase
	err := r.sc.do(func(st *memState) error {
		if req, ok := st.access[ticketID]; ok {
			base := req.RequestBase
			out = &base
			return nil
		}
		if req, ok := st.service[ticketID]; ok {
			base := req.RequestBase
			out = &base
			return nil
		}
		if req, ok := st.change[ticketID]; ok {
			base := req.RequestBase
			out = &base
			return nil
		}
		return ErrNotFound
	})
	return out, err
}

func (r *memRequests) UpdateApprovals(_ context.Context, base *domain.RequestBase) error {
	return r.sc.do(func(st *memState) error {
		switch base.Kind {
		case domain.RequestKindAccess:
			req, ok := st.access[base.TicketID]
			if !ok || req.ID != base.ID {
				return ErrNotFound
			}
			req.Approvals = base.Approvals
			st.access[base.TicketID] = req
		case domain.RequestKindService:
			req, ok := st.service[base.TicketID]
			if !ok || req.ID != base.ID {
				return ErrNotFound
			}
			req.Approvals = base.Approvals
			st.service[base.TicketID] = req
		case domain.RequestKindSystemChange:
			req, ok := st.change[base.TicketID]
			if !ok || req.ID != base.ID {
				return ErrNotFound
			}
			req.Approvals = base.Approvals
			st.change[base.TicketID] = req
		default:
			return errors.New("unknown request kind")
		}
		return nil
	})
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/config"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/events"
	"github.com/spec-kit/helpdesk-workflow/internal/notify"
	"github.com/spec-kit/helpdesk-workflow/internal/observability"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// recipients lists the To address of every attempted delivery, in order.
func (m *mockMailer) recipients() []string {
	var out []string
	for _, call := range m.Calls {
		out = append(out, call.Arguments.Get(1).(notify.Message).To)
	}
	return out
}

type memoryFailureLog struct {
	mu      sync.Mutex
	entries []notify.Failure
}

func (f *memoryFailureLog) Record(_ context.Context, entry notify.Failure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type directory struct {
	alice *domain.User // employee, requester
	nora  *domain.User // employee without an email address
	olga  *domain.User // employee, never a participant
	mark  *domain.User
	max   *domain.User
	sam   *domain.User
	ivy   *domain.User
	sue   *domain.User
	adam  *domain.User
}

type harness struct {
	ctx       context.Context
	store     repository.Store
	mem       *repository.MemoryStore
	mailer    *mockMailer
	failures  *memoryFailureLog
	metrics   *observability.Metrics
	tickets   *TicketService
	workflow  *WorkflowService
	users     directory
	approvers *ApproverResolver
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	wrap        func(repository.Store) repository.Store
	directory   config.ApproverDirectory
	attachments AttachmentStore
}

func withStore(wrap func(repository.Store) repository.Store) harnessOption {
	return func(c *harnessConfig) { c.wrap = wrap }
}

func withAttachments(store AttachmentStore) harnessOption {
	return func(c *harnessConfig) { c.attachments = store }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{directory: config.ApproverDirectory{DefaultHandler: "ivy@example.com"}}
	for _, opt := range opts {
		opt(&cfg)
	}

	mem := repository.NewMemoryStore()
	h := &harness{
		ctx:      context.Background(),
		mem:      mem,
		store:    mem,
		mailer:   &mockMailer{},
		failures: &memoryFailureLog{},
		metrics:  observability.NewMetrics(),
	}
	if cfg.wrap != nil {
		h.store = cfg.wrap(mem)
	}
	h.users = directory{
		alice: h.addUser(t, "Alice Employee", "alice@example.com", domain.RoleEmployee),
		nora:  h.addUser(t, "Nora NoMail", "", domain.RoleEmployee),
		olga:  h.addUser(t, "Olga Outsider", "olga@example.com", domain.RoleEmployee),
		mark:  h.addUser(t, "Mark Manager", "mark@example.com", domain.RoleManager),
		max:   h.addUser(t, "Max Manager", "max@example.com", domain.RoleManager),
		sam:   h.addUser(t, "Sam Security", "sam@example.com", domain.RoleSecurity),
		ivy:   h.addUser(t, "Ivy IT", "ivy@example.com", domain.RoleIT),
		sue:   h.addUser(t, "Sue Support", "sue@example.com", domain.RoleSupport),
		adam:  h.addUser(t, "Adam Admin", "adam@example.com", domain.RoleAdmin),
	}
	h.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	logger := zaptest.NewLogger(t)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(NotificationDependencies{
		Dispatcher: dispatcher,
		Users:      mem.Users(),
		Mailer:     h.mailer,
		Failures:   h.failures,
		Metrics:    h.metrics,
		Logger:     logger,
	}).RegisterHandlers()

	h.approvers = NewApproverResolver(cfg.directory)
	h.tickets = NewTicketService(TicketDependencies{
		Store:       h.store,
		Dispatcher:  dispatcher,
		Approvers:   h.approvers,
		Attachments: cfg.attachments,
		Logger:      logger,
	})
	h.workflow = NewWorkflowService(WorkflowDependencies{
		Store:      h.store,
		Dispatcher: dispatcher,
		Approvers:  h.approvers,
		Logger:     logger,
	})
	return h
}

func (h *harness) addUser(t *testing.T, name, email string, roles ...domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{FullName: name, Email: email, Roles: roles, Active: true}
	require.NoError(t, h.mem.Users().Create(h.ctx, user))
	return user
}

func as(user *domain.User) auth.Permissions {
	return auth.Resolve(user)
}

func (h *harness) logActions(t *testing.T, ticketID int64) []string {
	t.Helper()
	logs, err := h.mem.TicketLogs().ListByTicket(h.ctx, ticketID)
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, entry := range logs {
		actions = append(actions, entry.Action)
	}
	return actions
}

func (h *harness) storedTicket(t *testing.T, ticketID int64) *domain.Ticket {
	t.Helper()
	ticket, err := h.mem.Tickets().GetByID(h.ctx, ticketID)
	require.NoError(t, err)
	return ticket
}

func (h *harness) submitAccess(t *testing.T) *WorkflowOutcome {
	t.Helper()
	outcome, err := h.workflow.SubmitAccessRequest(h.ctx, as(h.users.alice), AccessRequestInput{
		RequestTicketInput: RequestTicketInput{SelectedManagerID: &h.users.mark.ID},
		SystemName:         "payroll",
		AccessLevel:        "read-only",
		Justification:      "quarterly audit",
	})
	require.NoError(t, err)
	return outcome
}

func (h *harness) submitChange(t *testing.T) *WorkflowOutcome {
	t.Helper()
	outcome, err := h.workflow.SubmitSystemChangeRequest(h.ctx, as(h.users.alice), SystemChangeRequestInput{
		SystemName:    "billing-db",
		ChangeSummary: "upgrade to 16.2",
		RollbackPlan:  "restore snapshot",
	})
	require.NoError(t, err)
	return outcome
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected a domain error, got %T: %v", err, err)
	require.Equal(t, code, domainErr.Code, domainErr.Message)
}

var errDiskFull = errors.New("disk full")

// failingLogStore fails every log append made inside a unit of work.
type failingLogStore struct {
	repository.Store
}

func (s failingLogStore) TicketLogs() repository.TicketLogRepository {
	return failingLogs{s.Store.TicketLogs()}
}

func (s failingLogStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(failingLogStore{tx})
	})
}

type failingLogs struct {
	repository.TicketLogRepository
}

func (failingLogs) Append(context.Context, *domain.TicketLog) error {
	return errDiskFull
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-workflow/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/config"
	"github.com/spec-kit/helpdesk-workflow/internal/events"
	"github.com/spec-kit/helpdesk-workflow/internal/notify"
	"github.com/spec-kit/helpdesk-workflow/internal/observability"
	"github.com/spec-kit/helpdesk-workflow/internal/persistence"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
	"github.com/spec-kit/helpdesk-workflow/internal/service"
)

const testPassword = "correct-horse-battery"

type testServer struct {
	app   *fiber.App
	store *repository.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemoryStore()

	accounts := &service.Manifest{}
	for _, spec := range []struct{ email, role string }{
		{"alice@example.com", "EMPLOYEE"},
		{"olga@example.com", "EMPLOYEE"},
		{"mark@example.com", "MANAGER"},
		{"sam@example.com", "SECURITY"},
		{"ivy@example.com", "IT"},
	} {
		accounts.Users = append(accounts.Users, service.AccountSpec{
			Email: spec.email, FullName: spec.email, Roles: []string{spec.role}, Password: testPassword,
		})
	}
	_, err := service.NewProvisioner(store, bcrypt.MinCost, logger).Apply(context.Background(), accounts, service.ProvisionOptions{})
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	failures := notify.NewRedisFailureLog(nil, "failures", 10)
	service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: dispatcher,
		Users:      store.Users(),
		Mailer:     notify.NewMailer(config.NotificationConfig{}, logger),
		Failures:   failures,
		Metrics:    metrics,
		Logger:     logger,
	}).RegisterHandlers()

	resolver := service.NewApproverResolver(config.ApproverDirectory{})
	tickets := service.NewTicketService(service.TicketDependencies{Store: store, Dispatcher: dispatcher, Approvers: resolver, Logger: logger})
	workflow := service.NewWorkflowService(service.WorkflowDependencies{Store: store, Dispatcher: dispatcher, Approvers: resolver, Logger: logger})
	authService := service.NewAuthService(config.Config{
		App:  config.AppConfig{Name: "helpdesk-test"},
		Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5},
	}, store.Users())

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-test", "test", nil, persistence.NewRedis(config.RedisConfig{}, logger)),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Requests:       handlers.NewRequestsHandler(workflow),
		Admin:          handlers.NewAdminHandler(metrics, failures),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Users()).Handle,
	})
	return &testServer{app: app, store: store}
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Warnings []string        `json:"warnings"`
	Error    *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	status, env := s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": testPassword})
	require.Equal(t, nethttp.StatusOK, status)
	var data struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Auth.Token)
	return data.Auth.Token
}

func (s *testServer) userID(t *testing.T, email string) int64 {
	t.Helper()
	user, err := s.store.Users().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return user.ID
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

type ticketBody struct {
	ID          int64   `json:"id"`
	Status      string  `json:"status"`
	AssigneeID  *int64  `json:"assignee_id"`
	CloseReason *string `json:"close_reason"`
}

func TestErrorEnvelope(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodGet, "/no-such-route", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = s.do(t, nethttp.MethodGet, "/tickets", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", env.Error.Message)

	status, _ = s.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestTicketRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice@example.com")
	olga := s.login(t, "olga@example.com")
	ivy := s.login(t, "ivy@example.com")

	status, env := s.do(t, nethttp.MethodPost, "/tickets", alice, map[string]any{"title": "Printer", "description": "jammed"})
	require.Equal(t, nethttp.StatusCreated, status)
	created := decode[ticketBody](t, env.Data)
	require.NotNil(t, created.AssigneeID)
	assert.Equal(t, s.userID(t, "ivy@example.com"), *created.AssigneeID)

	status, env = s.do(t, nethttp.MethodPost, "/tickets", alice, map[string]any{"title": ""})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "title")

	path := fmt.Sprintf("/tickets/%d", created.ID)
	status, env = s.do(t, nethttp.MethodGet, path, olga, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = s.do(t, nethttp.MethodGet, path+"/access", olga, nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.JSONEq(t, fmt.Sprintf(`{"ticket_id":%d,"can_access":false}`, created.ID), string(env.Data))

	status, _ = s.do(t, nethttp.MethodGet, "/tickets/9999", alice, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	status, _ = s.do(t, nethttp.MethodGet, "/tickets/abc", alice, nil)
	assert.Equal(t, nethttp.StatusBadRequest, status)

	status, env = s.do(t, nethttp.MethodPatch, path+"/status", olga, map[string]any{"status": "CLOSED"})
	assert.Equal(t, nethttp.StatusForbidden, status)
	status, _ = s.do(t, nethttp.MethodPatch, path+"/status", ivy, map[string]any{"status": "SLEEPING"})
	assert.Equal(t, nethttp.StatusBadRequest, status)

	status, env = s.do(t, nethttp.MethodPatch, path+"/status", ivy, map[string]any{"status": "resolved", "notes": "cleared"})
	require.Equal(t, nethttp.StatusOK, status)
	resolved := decode[ticketBody](t, env.Data)
	assert.Equal(t, "RESOLVED", resolved.Status)
	require.NotNil(t, resolved.CloseReason)
	assert.Equal(t, "COMPLETED", *resolved.CloseReason)
	assert.Empty(t, env.Warnings)

	status, env = s.do(t, nethttp.MethodGet, path+"/logs", alice, nil)
	require.Equal(t, nethttp.StatusOK, status)
	logs := decode[[]struct {
		Action string `json:"action"`
	}](t, env.Data)
	require.Len(t, logs, 2)
	assert.Equal(t, "Created", logs[0].Action)
	assert.Equal(t, "Status Changed", logs[1].Action)

	status, env = s.do(t, nethttp.MethodGet, "/tickets", olga, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestRequestRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice@example.com")
	mark := s.login(t, "mark@example.com")
	sam := s.login(t, "sam@example.com")
	ivy := s.login(t, "ivy@example.com")

	status, env := s.do(t, nethttp.MethodPost, "/requests/access", alice, map[string]any{
		"selected_manager_id": s.userID(t, "mark@example.com"),
		"system_name":         "payroll",
		"access_level":        "read",
		"justification":       "audit",
	})
	require.Equal(t, nethttp.StatusCreated, status, env.Error)
	submitted := decode[struct {
		Ticket  ticketBody `json:"ticket"`
		Request struct {
			Kind         string `json:"kind"`
			CurrentStage string `json:"current_stage"`
		} `json:"request"`
	}](t, env.Data)
	assert.Equal(t, "ACCESS", submitted.Request.Kind)
	assert.Equal(t, "MANAGER", submitted.Request.CurrentStage)

	base := fmt.Sprintf("/tickets/%d", submitted.Ticket.ID)
	status, _ = s.do(t, nethttp.MethodPost, base+"/forward", ivy, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, env = s.do(t, nethttp.MethodPost, base+"/approve", sam, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	for _, step := range []struct {
		action, token string
	}{
		{"approve", mark},
		{"approve", sam},
		{"execute", ivy},
	} {
		status, env = s.do(t, nethttp.MethodPost, base+"/"+step.action, step.token, map[string]string{"comment": "ok"})
		require.Equal(t, nethttp.StatusOK, status, env.Error)
	}
	done := decode[struct {
		Ticket  ticketBody `json:"ticket"`
		Skipped bool       `json:"skipped"`
	}](t, env.Data)
	assert.Equal(t, "RESOLVED", done.Ticket.Status)
	assert.False(t, done.Skipped)

	status, env = s.do(t, nethttp.MethodPost, base+"/execute", ivy, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.True(t, decode[struct {
		Skipped bool `json:"skipped"`
	}](t, env.Data).Skipped)

	status, env = s.do(t, nethttp.MethodGet, base, alice, nil)
	require.Equal(t, nethttp.StatusOK, status)
	detail := decode[struct {
		Logs    []json.RawMessage `json:"logs"`
		Request struct {
			Approvals map[string]struct {
				Status string `json:"status"`
			} `json:"approvals"`
			Fields map[string]any `json:"fields"`
		} `json:"request"`
	}](t, env.Data)
	assert.Len(t, detail.Logs, 4)
	assert.Equal(t, "payroll", detail.Request.Fields["system_name"])
	assert.Equal(t, "APPROVED", detail.Request.Approvals["it"].Status)
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-workflow/internal/api/http"
	"github.com/spec-kit/helpdesk-workflow/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/config"
	"github.com/spec-kit/helpdesk-workflow/internal/events"
	"github.com/spec-kit/helpdesk-workflow/internal/notify"
	"github.com/spec-kit/helpdesk-workflow/internal/observability"
	"github.com/spec-kit/helpdesk-workflow/internal/persistence"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
	"github.com/spec-kit/helpdesk-workflow/internal/service"
	"github.com/spec-kit/helpdesk-workflow/internal/storage"
	"github.com/spec-kit/helpdesk-workflow/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Store
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pool)
	} else {
		store = repository.NewMemoryStore()
		pg = nil
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	approvers, err := config.LoadApprovers(cfg.Workflow.ApproversFile)
	if err != nil {
		logger.Fatal("failed to load approver directory", zap.Error(err))
	}
	attachments, err := storage.NewDiskStore(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to prepare attachment storage", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	failures := notify.NewRedisFailureLog(redis.Client, cfg.Notification.FailureLogKey, cfg.Notification.FailureLogMax)

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: dispatcher,
		Users:      store.Users(),
		Mailer:     notify.NewMailer(cfg.Notification, logger),
		Failures:   failures,
		Metrics:    metrics,
		Logger:     logger,
		Config:     cfg.Notification,
	})
	worker.StartNotificationWorker(dispatcher, notificationService, metrics)

	resolver := service.NewApproverResolver(approvers)
	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:       store,
		Dispatcher:  dispatcher,
		Approvers:   resolver,
		Attachments: attachments,
		Logger:      logger,
	})
	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Approvers:  resolver,
		Logger:     logger,
	})
	authService := service.NewAuthService(*cfg, store.Users())
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), store.Users())

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(attachments.MaxBytes()) + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Requests:       handlers.NewRequestsHandler(workflowService),
		Admin:          handlers.NewAdminHandler(metrics, failures),
		AuthMiddleware: authMiddleware.Handle,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

// provision creates help-desk accounts from a YAML manifest. It is run by an
// operator once per environment (and again when the manifest changes); the
// API server never creates accounts on its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-workflow/internal/config"
	"github.com/spec-kit/helpdesk-workflow/internal/observability"
	"github.com/spec-kit/helpdesk-workflow/internal/persistence"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
	"github.com/spec-kit/helpdesk-workflow/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		manifestPath   string
		migrate        bool
		resetPasswords bool
		dryRun         bool
	)
	flagSet := pflag.NewFlagSet("provision", pflag.ContinueOnError)
	flagSet.StringVarP(&manifestPath, "file", "f", "", "path to the YAML account manifest (required)")
	flagSet.BoolVar(&migrate, "migrate", false, "apply database migrations before provisioning")
	flagSet.BoolVar(&resetPasswords, "reset-passwords", false, "overwrite passwords of existing accounts")
	flagSet.BoolVar(&dryRun, "dry-run", false, "validate the manifest without touching the database")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if strings.TrimSpace(manifestPath) == "" {
		return fmt.Errorf("--file is required")
	}

	manifest, err := service.LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store repository.Store
	if dryRun {
		store = repository.NewMemoryStore()
	} else {
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required unless --dry-run is set")
		}
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if migrate {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
	}

	provisioner := service.NewProvisioner(store, cfg.Auth.BcryptCost, logger)
	report, err := provisioner.Apply(ctx, manifest, service.ProvisionOptions{ResetPasswords: resetPasswords})
	if err != nil {
		logger.Error("provisioning failed", zap.Error(err))
		return err
	}

	for _, email := range report.Created {
		fmt.Printf("created    %s\n", email)
	}
	for _, email := range report.Updated {
		fmt.Printf("updated    %s\n", email)
	}
	for _, email := range report.Unchanged {
		fmt.Printf("unchanged  %s\n", email)
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: provision --file accounts.yaml [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Creates missing accounts listed in the manifest. Existing accounts keep\n")
	fmt.Fprintf(os.Stderr, "their passwords unless --reset-passwords is given.\n\n")
	flagSet.PrintDefaults()
}

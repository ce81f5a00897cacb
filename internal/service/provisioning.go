package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-workflow/internal/auth"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
)

// AccountSpec is one account in a provisioning manifest.
type AccountSpec struct {
	Email    string   `yaml:"email"`
	FullName string   `yaml:"full_name"`
	Roles    []string `yaml:"roles"`
	Password string   `yaml:"password"`
	Disabled bool     `yaml:"disabled"`
}

// Manifest lists the accounts an operator wants to exist.
type Manifest struct {
	Users []AccountSpec `yaml:"users"`
}

// LoadManifest reads a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &manifest, nil
}

// ProvisionOptions tunes a provisioning run.
type ProvisionOptions struct {
	// ResetPasswords overwrites passwords of existing accounts.
	ResetPasswords bool
}

// ProvisionReport lists what a run did, by email.
type ProvisionReport struct {
	Created   []string
	Updated   []string
	Unchanged []string
}

// Provisioner creates accounts from a manifest. It is run by an operator,
// never at service start.
type Provisioner struct {
	store      repository.Store
	bcryptCost int
	logger     *zap.Logger
}

// NewProvisioner builds a provisioner.
func NewProvisioner(store repository.Store, bcryptCost int, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{store: store, bcryptCost: bcryptCost, logger: logger}
}

// Apply brings the accounts of manifest into existence in one unit of work.
// Existing accounts get the manifest's name, roles and state; their
// password only changes when opts.ResetPasswords is set.
func (p *Provisioner) Apply(ctx context.Context, manifest *Manifest, opts ProvisionOptions) (*ProvisionReport, error) {
	accounts := make([]domain.User, 0, len(manifest.Users))
	passwords := make([]string, 0, len(manifest.Users))
	for i, spec := range manifest.Users {
		user, err := spec.toUser()
		if err != nil {
			return nil, fmt.Errorf("users[%d]: %w", i, err)
		}
		accounts = append(accounts, user)
		passwords = append(passwords, spec.Password)
	}

	report := &ProvisionReport{}
	err := p.store.WithinTx(ctx, func(tx repository.Store) error {
		for i := range accounts {
			want := accounts[i]
			existing, err := tx.Users().GetByEmail(ctx, want.Email)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				if want.PasswordHash, err = auth.HashPassword(passwords[i], p.bcryptCost); err != nil {
					return fmt.Errorf("%s: %w", want.Email, err)
				}
				if err := tx.Users().Create(ctx, &want); err != nil {
					return fmt.Errorf("%s: %w", want.Email, err)
				}
				report.Created = append(report.Created, want.Email)
				continue
			case err != nil:
				return err
			}

			changed := existing.FullName != want.FullName ||
				existing.Active != want.Active ||
				!slices.Equal(existing.Roles, want.Roles)
			existing.FullName, existing.Active, existing.Roles = want.FullName, want.Active, want.Roles
			if opts.ResetPasswords {
				if existing.PasswordHash, err = auth.HashPassword(passwords[i], p.bcryptCost); err != nil {
					return fmt.Errorf("%s: %w", want.Email, err)
				}
				changed = true
			}
			if !changed {
				report.Unchanged = append(report.Unchanged, want.Email)
				continue
			}
			if err := tx.Users().Update(ctx, existing); err != nil {
				return fmt.Errorf("%s: %w", want.Email, err)
			}
			report.Updated = append(report.Updated, want.Email)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("provisioning complete",
		zap.Int("created", len(report.Created)),
		zap.Int("updated", len(report.Updated)),
		zap.Int("unchanged", len(report.Unchanged)))
	return report, nil
}

func (s AccountSpec) toUser() (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(s.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("invalid email %q", s.Email)
	}
	if len(s.Roles) == 0 {
		return domain.User{}, fmt.Errorf("%s: at least one role is required", email)
	}
	roles := make([]domain.Role, 0, len(s.Roles))
	for _, raw := range s.Roles {
		role, ok := domain.ParseRole(raw)
		if !ok {
			return domain.User{}, fmt.Errorf("%s: unknown role %q", email, raw)
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return domain.User{
		Email:    email,
		FullName: strings.TrimSpace(s.FullName),
		Roles:    roles,
		Active:   !s.Disabled,
	}, nil
}

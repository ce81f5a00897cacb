package service

import (
	"context"
	"errors"

	"github.com/spec-kit/helpdesk-workflow/internal/config"
	"github.com/spec-kit/helpdesk-workflow/internal/domain"
	"github.com/spec-kit/helpdesk-workflow/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

// ApproverResolver maps pipeline stages to the accounts that act for them.
// A configured address wins when it names an active account; otherwise the
// first active holder of the stage role is used.
type ApproverResolver struct {
	dir config.ApproverDirectory
}

// NewApproverResolver builds a resolver over the configured directory.
func NewApproverResolver(dir config.ApproverDirectory) *ApproverResolver {
	return &ApproverResolver{dir: dir}
}

// ForStage resolves the principal for stage.
func (r *ApproverResolver) ForStage(ctx context.Context, users repository.UserRepository, stage domain.Stage) (*domain.User, error) {
	switch stage {
	case domain.StageManager:
		return r.resolve(ctx, users, r.dir.Manager, domain.RoleManager)
	case domain.StageSecurity:
		return r.resolve(ctx, users, r.dir.Security, domain.RoleSecurity)
	case domain.StageIT:
		return r.resolve(ctx, users, r.dir.IT, domain.RoleIT)
	}
	return nil, apperrors.NewValidationError("unknown approval stage", map[string]any{"stage": stage})
}

// DefaultHandler resolves who receives plain tickets submitted without an assignee.
func (r *ApproverResolver) DefaultHandler(ctx context.Context, users repository.UserRepository) (*domain.User, error) {
	email := r.dir.DefaultHandler
	if email == "" {
		email = r.dir.IT
	}
	return r.resolve(ctx, users, email, domain.RoleIT)
}

func (r *ApproverResolver) resolve(ctx context.Context, users repository.UserRepository, email string, role domain.Role) (*domain.User, error) {
	if email != "" {
		user, err := users.GetByEmail(ctx, email)
		switch {
		case err == nil && user.Active:
			return user, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}
	holders, err := users.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if len(holders) == 0 {
		return nil, apperrors.NewConflict("no active account holds the required role", map[string]any{"role": role})
	}
	return &holders[0], nil
}

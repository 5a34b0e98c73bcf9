// role_overrides.go — локальные дополнения ролей пользователей.
// Override может только повысить роль из IdP (см. rbac.EffectiveRole).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/servicedesk/internal/audit"
	"github.com/bigkaa/servicedesk/internal/domain/model"
	"github.com/bigkaa/servicedesk/internal/domain/rbac"
	"github.com/bigkaa/servicedesk/internal/repository"
)

// Аудит изменений ролей.
const (
	AuditModuleUsers        = "Users"
	AuditActionRoleOverride = "Role Override"
	AuditTableRoleOverrides = "role_overrides"
)

// RoleOverrideService управляет role overrides и отдаёт их JWT middleware.
type RoleOverrideService struct {
	tx     TxManager
	repo   repository.RoleOverrideRepository
	logger *slog.Logger
}

// NewRoleOverrideService создаёт сервис role overrides.
// repo используется для чтения вне транзакций.
func NewRoleOverrideService(tx TxManager, repo repository.RoleOverrideRepository, logger *slog.Logger) *RoleOverrideService {
	return &RoleOverrideService{
		tx:     tx,
		repo:   repo,
		logger: logger.With(slog.String("component", "role_override_service")),
	}
}

// GetRoleOverride возвращает дополнительную роль пользователя или nil.
func (s *RoleOverrideService) GetRoleOverride(ctx context.Context, userID string) (*string, error) {
	ro, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ro.AdditionalRole, nil
}

// Set устанавливает дополнительную роль пользователю. Доступно администратору.
// Неизвестная роль — ErrInvalidRole.
func (s *RoleOverrideService) Set(
	ctx context.Context,
	userID, username, role string,
	actor model.Actor,
) (*model.RoleOverride, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: назначение ролей доступно только администратору", ErrForbidden)
	}
	if userID == "" || !rbac.IsValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	ro := &model.RoleOverride{
		UserID:         userID,
		Username:       username,
		AdditionalRole: role,
		CreatedBy:      actor.ID,
	}

	err := s.tx.InTx(ctx, func(repos *repository.Repos) error {
		var before *string
		prev, err := repos.RoleOverrides.GetByUserID(ctx, userID)
		switch {
		case err == nil:
			before = &prev.AdditionalRole
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("получение role override: %w", err)
		}

		if err := repos.RoleOverrides.Upsert(ctx, ro); err != nil {
			return err
		}

		_, err = audit.NewRecorder(repos.Audit, s.logger).Record(ctx, audit.Event{
			Module:        AuditModuleUsers,
			Action:        AuditActionRoleOverride,
			Actor:         &actor,
			AffectedTable: AuditTableRoleOverrides,
			AffectedID:    userID,
			Changes:       map[string]any{"before": before, "after": role},
			Description:   fmt.Sprintf("Роль пользователя %s дополнена до %s", userID, role),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Role override установлен",
		slog.String("user_id", userID),
		slog.String("role", role),
		slog.String("actor_id", actor.ID),
	)
	return ro, nil
}

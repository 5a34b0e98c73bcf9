package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// RoleOverrideRepository — локальные дополнения ролей (таблица role_overrides).
type RoleOverrideRepository interface {
	// Upsert создаёт или обновляет дополнение роли.
	Upsert(ctx context.Context, ro *model.RoleOverride) error
	// GetByUserID возвращает дополнение роли по sub пользователя.
	GetByUserID(ctx context.Context, userID string) (*model.RoleOverride, error)
}

type roleOverrideRepo struct {
	db DBTX
}

// NewRoleOverrideRepository создаёт репозиторий Role Overrides.
func NewRoleOverrideRepository(db DBTX) RoleOverrideRepository {
	return &roleOverrideRepo{db: db}
}

func (r *roleOverrideRepo) Upsert(ctx context.Context, ro *model.RoleOverride) error {
	query := `
		INSERT INTO role_overrides (user_id, username, additional_role, created_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			additional_role = EXCLUDED.additional_role,
			created_by = EXCLUDED.created_by
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		ro.UserID, ro.Username, ro.AdditionalRole, ro.CreatedBy,
	).Scan(&ro.ID, &ro.CreatedAt, &ro.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка upsert role override: %w", err)
	}
	return nil
}

func (r *roleOverrideRepo) GetByUserID(ctx context.Context, userID string) (*model.RoleOverride, error) {
	query := `
		SELECT id, user_id, username, additional_role, created_by, created_at, updated_at
		FROM role_overrides WHERE user_id = $1`

	ro := &model.RoleOverride{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&ro.ID, &ro.UserID, &ro.Username, &ro.AdditionalRole,
		&ro.CreatedBy, &ro.CreatedAt, &ro.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения role override: %w", err)
	}
	return ro, nil
}

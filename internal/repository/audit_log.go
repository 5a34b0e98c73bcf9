package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// AuditLogRepository — запись в журнал аудита.
// Только вставка: операций изменения и удаления нет.
type AuditLogRepository interface {
	// Insert добавляет запись, заполняя ID и CreatedAt.
	Insert(ctx context.Context, e *model.AuditEntry) error
}

type auditLogRepo struct {
	db DBTX
}

// NewAuditLogRepository создаёт репозиторий журнала аудита.
func NewAuditLogRepository(db DBTX) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Insert(ctx context.Context, e *model.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (
			user_id, username, module, action, description,
			affected_table, affected_id, changes, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		e.UserID, e.Username, e.Module, e.Action, e.Description,
		e.AffectedTable, e.AffectedID, e.Changes, e.IPAddress, e.UserAgent,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал аудита: %w", err)
	}
	return nil
}

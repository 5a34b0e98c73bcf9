// audit_logs.go — точка записи аудита для внешних модулей
// (администрирование каталога, SLA, шаблонов).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bigkaa/servicedesk/internal/audit"
	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// ScopeAuditWrite — scope Service Account, разрешающий запись аудита.
const ScopeAuditWrite = "audit:write"

// AuditService принимает события аудита от внешних модулей.
type AuditService struct {
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewAuditService создаёт сервис записи аудита.
func NewAuditService(recorder *audit.Recorder, logger *slog.Logger) *AuditService {
	return &AuditService{
		recorder: recorder,
		logger:   logger.With(slog.String("component", "audit_service")),
	}
}

// AuditInput — событие от внешнего модуля.
type AuditInput struct {
	Module        string
	Action        string
	Description   string
	AffectedTable string
	AffectedID    string
	Changes       any
	// System — действие системное, инициатор не записывается
	System bool
}

// Record записывает событие. Доступно администратору и Service Account
// со scope audit:write.
func (s *AuditService) Record(ctx context.Context, in AuditInput, actor model.Actor) (*model.AuditEntry, error) {
	if !actor.IsAdmin() && !(actor.ServiceAccount && slices.Contains(actor.Scopes, ScopeAuditWrite)) {
		return nil, fmt.Errorf("%w: требуется роль admin или scope %s", ErrForbidden, ScopeAuditWrite)
	}

	ev := audit.Event{
		Module:        in.Module,
		Action:        in.Action,
		Description:   in.Description,
		AffectedTable: in.AffectedTable,
		AffectedID:    in.AffectedID,
		Changes:       in.Changes,
	}
	if in.System {
		client := actor.Client
		ev.Client = &client
	} else {
		ev.Actor = &actor
	}

	entry, err := s.recorder.Record(ctx, ev)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Внешнее событие аудита записано",
		slog.String("module", in.Module),
		slog.String("action", in.Action),
		slog.String("actor_id", actor.ID),
	)
	return entry, nil
}

// Пакет audit — запись журнала аудита.
//
// Recorder только добавляет записи: операций изменения и удаления нет.
// Отсутствующий инициатор (Actor == nil) — допустимое системное действие.
// Changes сохраняется как есть, Recorder его не интерпретирует.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// ErrInvalidEvent — не заданы module или action.
var ErrInvalidEvent = errors.New("некорректное событие аудита")

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sd_audit_events_total",
	Help: "Количество записей журнала аудита по модулю и действию.",
}, []string{"module", "action"})

// Writer — хранилище записей аудита (только вставка).
type Writer interface {
	Insert(ctx context.Context, e *model.AuditEntry) error
}

// Event — действие, подлежащее записи в журнал.
type Event struct {
	Module string
	Action string
	// Actor — инициатор, nil для системных действий
	Actor         *model.Actor
	AffectedTable string
	AffectedID    string
	Changes       any
	// Client — переопределяет сведения о клиенте из Actor
	Client      *model.ClientContext
	Description string
}

// Recorder записывает события аудита через Writer.
type Recorder struct {
	writer Writer
	logger *slog.Logger
}

// NewRecorder создаёт Recorder. Внутри транзакции writer должен быть
// привязан к той же транзакции, что и изменение состояния.
func NewRecorder(writer Writer, logger *slog.Logger) *Recorder {
	return &Recorder{
		writer: writer,
		logger: logger.With(slog.String("component", "audit")),
	}
}

// Record добавляет запись в журнал. Ошибка записи возвращается вызывающему:
// операция, для которой не удалось записать аудит, не должна считаться успешной.
func (r *Recorder) Record(ctx context.Context, ev Event) (*model.AuditEntry, error) {
	if ev.Module == "" || ev.Action == "" {
		return nil, fmt.Errorf("%w: module и action обязательны", ErrInvalidEvent)
	}

	entry := &model.AuditEntry{
		Module:        ev.Module,
		Action:        ev.Action,
		Description:   optional(ev.Description),
		AffectedTable: optional(ev.AffectedTable),
		AffectedID:    optional(ev.AffectedID),
		Changes:       ev.Changes,
	}

	client := ev.Client
	if ev.Actor != nil {
		entry.UserID = optional(ev.Actor.ID)
		entry.Username = optional(ev.Actor.Username)
		if client == nil {
			client = &ev.Actor.Client
		}
	}
	if client != nil {
		entry.IPAddress = optional(client.IP)
		entry.UserAgent = optional(client.UserAgent)
	}

	if err := r.writer.Insert(ctx, entry); err != nil {
		r.logger.Error("Ошибка записи аудита",
			slog.String("module", ev.Module),
			slog.String("action", ev.Action),
			slog.String("affected_id", ev.AffectedID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	eventsTotal.WithLabelValues(ev.Module, ev.Action).Inc()
	r.logger.Debug("Запись аудита добавлена",
		slog.Int64("id", entry.ID),
		slog.String("module", ev.Module),
		slog.String("action", ev.Action),
	)
	return entry, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

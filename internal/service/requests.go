// requests.go — жизненный цикл заявок: создание, смена статуса,
// список с учётом прав, удаление.
//
// Каждая изменяющая операция выполняется в одной транзакции вместе
// с записью аудита: ошибка аудита откатывает изменение.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/servicedesk/internal/audit"
	"github.com/bigkaa/servicedesk/internal/domain/lifecycle"
	"github.com/bigkaa/servicedesk/internal/domain/model"
	"github.com/bigkaa/servicedesk/internal/domain/snapshot"
	"github.com/bigkaa/servicedesk/internal/repository"
	"github.com/bigkaa/servicedesk/internal/validation"
)

// maxCodeAttempts — сколько раз повторяется создание при коллизии кода.
const maxCodeAttempts = 3

// Коды ошибок полей вне схемы шаблона.
const (
	CodeServiceNotPublished = "service_not_published"
	CodeTemplateInactive    = "template_inactive"
)

// Prometheus-метрики жизненного цикла заявок.
var (
	requestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sd_requests_created_total",
		Help: "Количество созданных заявок.",
	})
	requestTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sd_request_transitions_total",
		Help: "Количество выполненных смен статуса заявок.",
	}, []string{"from", "to"})
	requestsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sd_requests_deleted_total",
		Help: "Количество удалённых заявок.",
	})
)

// TxManager выполняет fn с репозиториями одной транзакции.
type TxManager interface {
	InTx(ctx context.Context, fn func(repos *repository.Repos) error) error
}

// RequestOptions — настраиваемые правила жизненного цикла.
type RequestOptions struct {
	// CodePrefix — префикс кода заявки (SOL)
	CodePrefix string
	// PageSizeDefault / PageSizeMax — размер страницы списка
	PageSizeDefault int
	PageSizeMax     int
	// DeleteAllowOwner — заявитель может удалить свою заявку в статусе pending
	DeleteAllowOwner bool
}

// RequestService — менеджер жизненного цикла заявок.
type RequestService struct {
	tx        TxManager
	repos     *repository.Repos
	validator *validation.Validator
	opts      RequestOptions
	logger    *slog.Logger

	now     func() time.Time
	newCode func(prefix string, t time.Time) string
}

// NewRequestService создаёт менеджер жизненного цикла заявок.
// repos используется для чтения вне транзакций.
func NewRequestService(
	tx TxManager,
	repos *repository.Repos,
	validator *validation.Validator,
	opts RequestOptions,
	logger *slog.Logger,
) *RequestService {
	return &RequestService{
		tx:        tx,
		repos:     repos,
		validator: validator,
		opts:      opts,
		logger:    logger.With(slog.String("component", "request_service")),
		now:       func() time.Time { return time.Now().UTC() },
		newCode:   GenerateCode,
	}
}

// GenerateCode формирует код заявки <prefix>-<YYYYMMDD>-<6 hex>.
func GenerateCode(prefix string, t time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%s-%X", prefix, t.Format("20060102"), id[:3])
}

// isUUID — идентификаторы сущностей хранятся как UUID.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// CreateInput — данные новой заявки.
type CreateInput struct {
	ServiceID      string
	TemplateID     *string
	FormPayload    map[string]any
	IdempotencyKey *string
}

// Create создаёт заявку.
// Возвращает (заявка, true) для новой заявки и (заявка, false), если заявка
// с тем же ключом идемпотентности уже была создана этим заявителем.
//
// Ошибки:
//   - ErrNotFound — услуга или шаблон не найдены (до проверки данных)
//   - *validation.Error — ошибки полей; ничего не сохраняется
//   - ErrConflict — не удалось подобрать уникальный код
func (s *RequestService) Create(ctx context.Context, in CreateInput, actor model.Actor) (*model.Request, bool, error) {
	key := in.IdempotencyKey
	if key != nil && strings.TrimSpace(*key) == "" {
		key = nil
	}
	if key != nil {
		existing, err := s.repos.Requests.FindByIdempotencyKey(ctx, actor.ID, *key)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("поиск по ключу идемпотентности: %w", err)
		}
	}

	var created *model.Request
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		err := s.tx.InTx(ctx, func(repos *repository.Repos) error {
			req, err := s.buildRequest(ctx, repos, in, key, actor)
			if err != nil {
				return err
			}
			if err := repos.Requests.Create(ctx, req); err != nil {
				return err
			}
			_, err = audit.NewRecorder(repos.Audit, s.logger).Record(ctx, audit.Event{
				Module:        model.AuditModuleRequests,
				Action:        model.AuditActionCreate,
				Actor:         &actor,
				AffectedTable: model.AuditTableRequests,
				AffectedID:    req.ID,
				Changes: map[string]any{
					"code":             req.Code,
					"status":           req.Status,
					"service_id":       req.ServiceID,
					"template_id":      req.TemplateID,
					"template_version": req.TemplateVersion,
				},
			})
			if err != nil {
				return fmt.Errorf("запись аудита: %w", err)
			}
			created = req
			return nil
		})

		switch {
		case err == nil:
			requestsCreatedTotal.Inc()
			s.logger.Info("Заявка создана",
				slog.String("request_id", created.ID),
				slog.String("code", created.Code),
				slog.String("service_id", created.ServiceID),
				slog.String("requester_id", actor.ID),
			)
			return created, true, nil
		case errors.Is(err, repository.ErrConflict):
			s.logger.Warn("Коллизия кода заявки, повтор",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		case errors.Is(err, repository.ErrDuplicateIdempotencyKey):
			// Параллельная отправка с тем же ключом успела раньше
			existing, findErr := s.repos.Requests.FindByIdempotencyKey(ctx, actor.ID, *key)
			if findErr != nil {
				return nil, false, fmt.Errorf("поиск по ключу идемпотентности: %w", findErr)
			}
			return existing, false, nil
		default:
			return nil, false, err
		}
	}

	return nil, false, fmt.Errorf("%w: не удалось сгенерировать уникальный код заявки", ErrConflict)
}

// buildRequest разрешает услугу и шаблон, проверяет данные формы
// и строит заявку со снимками.
func (s *RequestService) buildRequest(
	ctx context.Context,
	repos *repository.Repos,
	in CreateInput,
	key *string,
	actor model.Actor,
) (*model.Request, error) {
	if !isUUID(in.ServiceID) {
		return nil, fmt.Errorf("%w: услуга %s", ErrNotFound, in.ServiceID)
	}
	svc, err := repos.Catalog.GetService(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: услуга %s", ErrNotFound, in.ServiceID)
		}
		return nil, fmt.Errorf("получение услуги: %w", err)
	}

	var tpl *model.Template
	if in.TemplateID != nil {
		if !isUUID(*in.TemplateID) {
			return nil, fmt.Errorf("%w: шаблон %s", ErrNotFound, *in.TemplateID)
		}
		tpl, err = repos.Catalog.GetTemplate(ctx, *in.TemplateID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: шаблон %s", ErrNotFound, *in.TemplateID)
			}
			return nil, fmt.Errorf("получение шаблона: %w", err)
		}
		if tpl.ServiceID != svc.ID {
			return nil, fmt.Errorf("%w: шаблон %s не относится к услуге %s", ErrNotFound, tpl.ID, svc.ID)
		}
	}

	if !svc.IsPublished() {
		return nil, validation.NewFieldError("service_id", CodeServiceNotPublished,
			fmt.Sprintf("Услуга %q не принимает заявки (статус %s)", svc.Name, svc.Status))
	}
	if tpl != nil && !tpl.Active {
		return nil, validation.NewFieldError("template_id", CodeTemplateInactive,
			fmt.Sprintf("Шаблон %q неактивен", tpl.Name))
	}

	var fields []model.TemplateField
	if tpl != nil {
		fields = tpl.Fields
	}
	payload, err := s.validator.Validate(fields, in.FormPayload)
	if err != nil {
		return nil, err
	}

	sla, err := s.activeSLA(ctx, repos, svc)
	if err != nil {
		return nil, err
	}
	serviceSnap, slaSnap := snapshot.Build(svc, sla)

	now := s.now()
	req := &model.Request{
		ID:              uuid.New().String(),
		Code:            s.newCode(s.opts.CodePrefix, now),
		ServiceID:       svc.ID,
		Service:         &model.ServiceRef{ID: svc.ID, Code: svc.Code, Name: svc.Name, Slug: svc.Slug},
		Requester:       model.Requester{ID: actor.ID, Username: actor.Username},
		FormPayload:     payload,
		Status:          model.StatusPending,
		SubmittedAt:     now,
		SLASnapshot:     slaSnap,
		ServiceSnapshot: serviceSnap,
		IdempotencyKey:  key,
	}
	if tpl != nil {
		req.TemplateID = &tpl.ID
		version := tpl.Version
		req.TemplateVersion = &version
	}
	return req, nil
}

// activeSLA возвращает действующую SLA услуги или nil.
func (s *RequestService) activeSLA(ctx context.Context, repos *repository.Repos, svc *model.Service) (*model.SLA, error) {
	if svc.SLAID == nil {
		return nil, nil
	}
	sla, err := repos.Catalog.GetSLA(ctx, *svc.SLAID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("получение SLA: %w", err)
	}
	if !sla.Active {
		return nil, nil
	}
	return sla, nil
}

// Get возвращает заявку. Чужая заявка для не-администратора — ErrNotFound.
func (s *RequestService) Get(ctx context.Context, id string, actor model.Actor) (*model.Request, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, id)
	}
	req, err := s.repos.Requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение заявки: %w", err)
	}
	if !actor.IsAdmin() && req.Requester.ID != actor.ID {
		return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, id)
	}
	return req, nil
}

// Transition меняет статус заявки.
//
// Администратор выполняет любой допустимый переход, заявитель может только
// отменить свою заявку. Статус читается без блокировки, обновление выполняется
// только при неизменном статусе (compare-and-swap): из двух конкурирующих
// вызовов, увидевших один и тот же статус, успешен один, второй получает
// *lifecycle.TransitionError с уже изменённым статусом.
func (s *RequestService) Transition(
	ctx context.Context,
	id string,
	target model.RequestStatus,
	actor model.Actor,
) (*model.Request, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, id)
	}

	current, err := s.repos.Requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение заявки: %w", err)
	}

	if !actor.IsAdmin() {
		if current.Requester.ID != actor.ID {
			return nil, fmt.Errorf("%w: заявка принадлежит другому пользователю", ErrForbidden)
		}
		if target != model.StatusCancelled {
			return nil, fmt.Errorf("%w: заявитель может только отменить заявку", ErrForbidden)
		}
	}

	if err := lifecycle.Check(current.Status, target); err != nil {
		return nil, err
	}

	var redirectedAt *time.Time
	if current.Status == model.StatusPending {
		now := s.now()
		redirectedAt = &now
	}

	var updated *model.Request
	err = s.tx.InTx(ctx, func(repos *repository.Repos) error {
		updated, err = repos.Requests.UpdateStatus(ctx, id, current.Status, target, redirectedAt)
		if err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return staleTransition(ctx, repos, id, target)
			}
			return fmt.Errorf("обновление статуса: %w", err)
		}

		_, err = audit.NewRecorder(repos.Audit, s.logger).Record(ctx, audit.Event{
			Module:        model.AuditModuleRequests,
			Action:        model.AuditActionStatusChange,
			Actor:         &actor,
			AffectedTable: model.AuditTableRequests,
			AffectedID:    id,
			Changes: map[string]any{
				"before": current.Status,
				"after":  target,
			},
		})
		if err != nil {
			return fmt.Errorf("запись аудита: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	requestTransitionsTotal.WithLabelValues(string(current.Status), string(target)).Inc()
	s.logger.Info("Статус заявки изменён",
		slog.String("request_id", id),
		slog.String("from", string(current.Status)),
		slog.String("to", string(target)),
		slog.String("actor_id", actor.ID),
	)
	return updated, nil
}

// staleTransition — статус изменился после чтения: переход отклоняется
// с актуальным статусом заявки.
func staleTransition(ctx context.Context, repos *repository.Repos, id string, target model.RequestStatus) error {
	fresh, err := repos.Requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: заявка %s", ErrNotFound, id)
		}
		return fmt.Errorf("повторное чтение заявки: %w", err)
	}
	te := lifecycle.NewTransitionError(fresh.Status, target)
	te.Message = fmt.Sprintf("статус заявки уже изменён на %s", fresh.Status)
	return te
}

// ListParams — фильтры и пагинация списка заявок.
type ListParams struct {
	Filters repository.RequestFilters
	// Page — номер страницы с 1
	Page    int
	PerPage int
}

// Page — страница результатов.
type Page struct {
	Items   []*model.Request
	Total   int
	Page    int
	PerPage int
}

// List возвращает заявки по фильтрам.
// Для не-администратора фильтр requester_id всегда равен его ID,
// переданное значение игнорируется.
func (s *RequestService) List(ctx context.Context, params ListParams, actor model.Actor) (*Page, error) {
	filters := params.Filters
	if !actor.IsAdmin() {
		own := actor.ID
		filters.RequesterID = &own
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = s.opts.PageSizeDefault
	}
	if perPage > s.opts.PageSizeMax {
		perPage = s.opts.PageSizeMax
	}

	total, err := s.repos.Requests.Count(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("подсчёт заявок: %w", err)
	}

	// Смещение за пределами int — заведомо пустая страница
	items := []*model.Request{}
	if page-1 <= math.MaxInt/perPage {
		items, err = s.repos.Requests.List(ctx, filters, perPage, (page-1)*perPage)
		if err != nil {
			return nil, fmt.Errorf("получение списка заявок: %w", err)
		}
		if items == nil {
			items = []*model.Request{}
		}
	}

	return &Page{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// Delete удаляет заявку без возможности восстановления.
// Разрешено администратору; при DeleteAllowOwner — заявителю для его
// заявки в статусе pending. Запись аудита добавляется до удаления строки.
func (s *RequestService) Delete(ctx context.Context, id string, actor model.Actor) error {
	if !actor.IsAdmin() && !s.opts.DeleteAllowOwner {
		return fmt.Errorf("%w: удаление заявок доступно только администратору", ErrForbidden)
	}
	if !isUUID(id) {
		return fmt.Errorf("%w: заявка %s", ErrNotFound, id)
	}

	err := s.tx.InTx(ctx, func(repos *repository.Repos) error {
		req, err := repos.Requests.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: заявка %s", ErrNotFound, id)
			}
			return fmt.Errorf("получение заявки: %w", err)
		}

		if !actor.IsAdmin() {
			if req.Requester.ID != actor.ID {
				return fmt.Errorf("%w: заявка принадлежит другому пользователю", ErrForbidden)
			}
			if req.Status != model.StatusPending {
				return fmt.Errorf("%w: заявитель может удалить только заявку в статусе pending", ErrForbidden)
			}
		}

		_, err = audit.NewRecorder(repos.Audit, s.logger).Record(ctx, audit.Event{
			Module:        model.AuditModuleRequests,
			Action:        model.AuditActionDelete,
			Actor:         &actor,
			AffectedTable: model.AuditTableRequests,
			AffectedID:    req.ID,
			Changes: map[string]any{
				"before": map[string]any{
					"code":             req.Code,
					"status":           req.Status,
					"service_id":       req.ServiceID,
					"requester_id":     req.Requester.ID,
					"service_snapshot": req.ServiceSnapshot,
					"sla_snapshot":     req.SLASnapshot,
				},
			},
		})
		if err != nil {
			return fmt.Errorf("запись аудита: %w", err)
		}

		if err := repos.Requests.Delete(ctx, id); err != nil {
			return fmt.Errorf("удаление заявки: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	requestsDeletedTotal.Inc()
	s.logger.Info("Заявка удалена",
		slog.String("request_id", id),
		slog.String("actor_id", actor.ID),
	)
	return nil
}

// handler.go — основной обработчик API, реализующий ServerInterface.
// Объединяет health и обработчики заявок, делегируя запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/servicedesk/internal/api/errors"
	"github.com/bigkaa/servicedesk/internal/api/middleware"
	"github.com/bigkaa/servicedesk/internal/audit"
	"github.com/bigkaa/servicedesk/internal/domain/lifecycle"
	"github.com/bigkaa/servicedesk/internal/domain/model"
	"github.com/bigkaa/servicedesk/internal/service"
	"github.com/bigkaa/servicedesk/internal/validation"
)

// RequestManager — операции жизненного цикла заявок.
// Реализуется service.RequestService.
type RequestManager interface {
	Create(ctx context.Context, in service.CreateInput, actor model.Actor) (*model.Request, bool, error)
	Get(ctx context.Context, id string, actor model.Actor) (*model.Request, error)
	Transition(ctx context.Context, id string, target model.RequestStatus, actor model.Actor) (*model.Request, error)
	List(ctx context.Context, params service.ListParams, actor model.Actor) (*service.Page, error)
	Delete(ctx context.Context, id string, actor model.Actor) error
}

// AuditWriter — запись аудита внешними модулями.
// Реализуется service.AuditService.
type AuditWriter interface {
	Record(ctx context.Context, in service.AuditInput, actor model.Actor) (*model.AuditEntry, error)
}

// RoleManager — управление role overrides.
// Реализуется service.RoleOverrideService.
type RoleManager interface {
	Set(ctx context.Context, userID, username, role string, actor model.Actor) (*model.RoleOverride, error)
}

// APIHandler — основной обработчик API Service Desk.
type APIHandler struct {
	health   *HealthHandler
	docs     *DocsHandler
	requests RequestManager
	audit    AuditWriter
	roles    RoleManager
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	docs *DocsHandler,
	requests RequestManager,
	auditWriter AuditWriter,
	roles RoleManager,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		docs:     docs,
		requests: requests,
		audit:    auditWriter,
		roles:    roles,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness-проверка.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness-проверка.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetOpenAPIDocument — OpenAPI документ API.
func (h *APIHandler) GetOpenAPIDocument(w http.ResponseWriter, r *http.Request) {
	h.docs.GetOpenAPIDocument(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// actorFromRequest возвращает субъекта запроса или пишет 401.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return model.Actor{}, false
	}
	return *actor, true
}

// decodeJSON разбирает тело запроса. Числа сохраняются как json.Number,
// чтобы проверка формы видела их без потери точности.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(dst)
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// operation — описание операции для лога и ответа 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, operation string) {
	var fieldErr *validation.Error
	var transitionErr *lifecycle.TransitionError

	switch {
	case errors.As(err, &fieldErr):
		apierrors.FieldErrors(w, fieldErr.Fields)
	case errors.As(err, &transitionErr):
		allowed := make([]string, len(transitionErr.Allowed))
		for i, st := range transitionErr.Allowed {
			allowed[i] = string(st)
		}
		apierrors.InvalidTransition(w, transitionErr.Message, string(transitionErr.From), allowed)
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrInvalidRole), errors.Is(err, audit.ErrInvalidEvent):
		apierrors.ValidationError(w, err.Error())
	default:
		h.logger.Error("Ошибка операции",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка: "+operation)
	}
}

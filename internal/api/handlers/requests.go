// requests.go — обработчики /api/v1/requests endpoints.
// Создание, получение, смена статуса, список и удаление заявок.
package handlers

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/servicedesk/internal/api/errors"
	"github.com/bigkaa/servicedesk/internal/domain/model"
	"github.com/bigkaa/servicedesk/internal/repository"
	"github.com/bigkaa/servicedesk/internal/service"
	"github.com/bigkaa/servicedesk/internal/validation"
)

// --- Представление заявки ---

type serviceRefJSON struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type requesterJSON struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// requestJSON — JSON-представление заявки.
type requestJSON struct {
	ID              string                `json:"id"`
	Code            string                `json:"code"`
	ServiceID       string                `json:"service_id"`
	Service         *serviceRefJSON       `json:"service"`
	Requester       requesterJSON         `json:"requester"`
	TemplateID      *string               `json:"template_id"`
	TemplateVersion *int                  `json:"template_version"`
	FormPayload     map[string]any        `json:"form_payload"`
	Status          model.RequestStatus   `json:"status"`
	StatusLabel     string                `json:"status_label"`
	SubmittedAt     time.Time             `json:"submitted_at"`
	RedirectedAt    *time.Time            `json:"redirected_at"`
	SLASnapshot     *model.SLASnapshot    `json:"sla_snapshot"`
	ServiceSnapshot model.ServiceSnapshot `json:"service_snapshot"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type requestListJSON struct {
	Items      []requestJSON `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	TotalPages int           `json:"total_pages"`
}

func mapRequest(req *model.Request) requestJSON {
	out := requestJSON{
		ID:              req.ID,
		Code:            req.Code,
		ServiceID:       req.ServiceID,
		Requester:       requesterJSON{ID: req.Requester.ID, Username: req.Requester.Username},
		TemplateID:      req.TemplateID,
		TemplateVersion: req.TemplateVersion,
		FormPayload:     req.FormPayload,
		Status:          req.Status,
		StatusLabel:     req.Status.Label(),
		SubmittedAt:     req.SubmittedAt,
		RedirectedAt:    req.RedirectedAt,
		SLASnapshot:     req.SLASnapshot,
		ServiceSnapshot: req.ServiceSnapshot,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
	if req.Service != nil {
		out.Service = &serviceRefJSON{
			ID:   req.Service.ID,
			Code: req.Service.Code,
			Name: req.Service.Name,
			Slug: req.Service.Slug,
		}
	}
	if out.FormPayload == nil {
		out.FormPayload = map[string]any{}
	}
	return out
}

// --- Обработчики ---

type createRequestBody struct {
	ServiceID   string         `json:"service_id"`
	TemplateID  *string        `json:"template_id"`
	FormPayload map[string]any `json:"form_payload"`
}

// CreateRequest — POST /api/v1/requests.
// 201 — заявка создана, 200 — повтор с тем же Idempotency-Key.
// Доступ: аутентифицированный пользователь (RequireUser на маршруте).
func (h *APIHandler) CreateRequest(w http.ResponseWriter, r *http.Request, params CreateRequestParams) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(body.ServiceID) == "" {
		apierrors.FieldErrors(w, []validation.FieldError{{
			Field: "service_id", Code: validation.CodeRequired, Message: "Услуга обязательна",
		}})
		return
	}
	if body.TemplateID != nil && strings.TrimSpace(*body.TemplateID) == "" {
		body.TemplateID = nil
	}

	req, created, err := h.requests.Create(r.Context(), service.CreateInput{
		ServiceID:      body.ServiceID,
		TemplateID:     body.TemplateID,
		FormPayload:    body.FormPayload,
		IdempotencyKey: params.IdempotencyKey,
	}, actor)
	if err != nil {
		h.writeServiceError(w, err, "создание заявки")
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/requests/"+req.ID)
	writeJSON(w, status, mapRequest(req))
}

// GetRequest — GET /api/v1/requests/{id}.
// Доступ: администратор — любая заявка, пользователь — только своя.
func (h *APIHandler) GetRequest(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	req, err := h.requests.Get(r.Context(), id, actor)
	if err != nil {
		h.writeServiceError(w, err, "получение заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapRequest(req))
}

type updateStatusBody struct {
	Status string `json:"status"`
}

// UpdateRequestStatus — PUT /api/v1/requests/{id}/status.
// Статус принимается кодом (in_progress) или названием (En Proceso).
func (h *APIHandler) UpdateRequestStatus(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var body updateStatusBody
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	target, err := model.ParseRequestStatus(body.Status)
	if err != nil {
		apierrors.FieldErrors(w, []validation.FieldError{{
			Field: "status", Code: validation.CodeInvalidOption, Message: err.Error(),
		}})
		return
	}

	req, err := h.requests.Transition(r.Context(), id, target, actor)
	if err != nil {
		h.writeServiceError(w, err, "смена статуса заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapRequest(req))
}

// DeleteRequest — DELETE /api/v1/requests/{id}.
// Доступ: администратор (заявитель — если разрешено конфигурацией).
func (h *APIHandler) DeleteRequest(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.requests.Delete(r.Context(), id, actor); err != nil {
		h.writeServiceError(w, err, "удаление заявки")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRequests — GET /api/v1/requests.
// Для пользователя фильтр requester_id всегда равен его ID.
func (h *APIHandler) ListRequests(w http.ResponseWriter, r *http.Request, params ListRequestsParams) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	filters, err := buildFilters(params)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	lp := service.ListParams{Filters: filters}
	if params.Page != nil {
		lp.Page = *params.Page
	}
	if params.PerPage != nil {
		lp.PerPage = *params.PerPage
	}

	page, err := h.requests.List(r.Context(), lp, actor)
	if err != nil {
		h.writeServiceError(w, err, "получение списка заявок")
		return
	}

	items := make([]requestJSON, len(page.Items))
	for i, req := range page.Items {
		items[i] = mapRequest(req)
	}

	writeJSON(w, http.StatusOK, requestListJSON{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: totalPages(page.Total, page.PerPage),
	})
}

// buildFilters преобразует query-параметры в фильтры репозитория.
func buildFilters(p ListRequestsParams) (repository.RequestFilters, error) {
	var f repository.RequestFilters

	if p.Status != nil && *p.Status != "" {
		st, err := model.ParseRequestStatus(*p.Status)
		if err != nil {
			return f, err
		}
		f.Status = &st
	}
	f.ServiceID = nonEmpty(p.ServiceID)
	if f.ServiceID != nil {
		if _, err := uuid.Parse(*f.ServiceID); err != nil {
			return f, fmt.Errorf("некорректный параметр service_id: %q", *f.ServiceID)
		}
	}
	f.RequesterID = nonEmpty(p.RequesterID)
	f.Search = nonEmpty(p.Search)

	var err error
	if f.SubmittedFrom, err = parseDateParam("date_from", p.DateFrom, false); err != nil {
		return f, err
	}
	if f.SubmittedTo, err = parseDateParam("date_to", p.DateTo, true); err != nil {
		return f, err
	}
	return f, nil
}

// parseDateParam разбирает дату YYYY-MM-DD или RFC3339.
// Для верхней границы дата без времени включает весь день.
func parseDateParam(name string, v *string, upper bool) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, *v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, *v)
	if err != nil {
		return nil, fmt.Errorf("некорректный параметр %s: %q, ожидается YYYY-MM-DD или RFC3339", name, *v)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func nonEmpty(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}

func totalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(perPage)))
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/servicedesk/internal/api/middleware"
	"github.com/bigkaa/servicedesk/internal/audit"
	"github.com/bigkaa/servicedesk/internal/domain/lifecycle"
	"github.com/bigkaa/servicedesk/internal/domain/model"
	"github.com/bigkaa/servicedesk/internal/service"
	"github.com/bigkaa/servicedesk/internal/validation"
)

const reqID = "5f0c6a52-1111-4222-8333-444455556666"

// --- Mocks ---

type mockRequests struct {
	createFn     func(ctx context.Context, in service.CreateInput, actor model.Actor) (*model.Request, bool, error)
	getFn        func(ctx context.Context, id string, actor model.Actor) (*model.Request, error)
	transitionFn func(ctx context.Context, id string, target model.RequestStatus, actor model.Actor) (*model.Request, error)
	listFn       func(ctx context.Context, params service.ListParams, actor model.Actor) (*service.Page, error)
	deleteFn     func(ctx context.Context, id string, actor model.Actor) error
}

func (m *mockRequests) Create(ctx context.Context, in service.CreateInput, actor model.Actor) (*model.Request, bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in, actor)
	}
	return nil, false, errors.New("не настроено")
}

func (m *mockRequests) Get(ctx context.Context, id string, actor model.Actor) (*model.Request, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id, actor)
	}
	return nil, service.ErrNotFound
}

func (m *mockRequests) Transition(ctx context.Context, id string, target model.RequestStatus, actor model.Actor) (*model.Request, error) {
	if m.transitionFn != nil {
		return m.transitionFn(ctx, id, target, actor)
	}
	return nil, service.ErrNotFound
}

func (m *mockRequests) List(ctx context.Context, params service.ListParams, actor model.Actor) (*service.Page, error) {
	if m.listFn != nil {
		return m.listFn(ctx, params, actor)
	}
	return &service.Page{Items: []*model.Request{}, Page: 1, PerPage: 15}, nil
}

func (m *mockRequests) Delete(ctx context.Context, id string, actor model.Actor) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, actor)
	}
	return nil
}

type mockAudit struct {
	recordFn func(ctx context.Context, in service.AuditInput, actor model.Actor) (*model.AuditEntry, error)
}

func (m *mockAudit) Record(ctx context.Context, in service.AuditInput, actor model.Actor) (*model.AuditEntry, error) {
	return m.recordFn(ctx, in, actor)
}

type mockRoles struct {
	setFn func(ctx context.Context, userID, username, role string, actor model.Actor) (*model.RoleOverride, error)
}

func (m *mockRoles) Set(ctx context.Context, userID, username, role string, actor model.Actor) (*model.RoleOverride, error) {
	return m.setFn(ctx, userID, username, role, actor)
}

// --- Helpers ---

var (
	adminActor = &model.Actor{ID: "admin-1", Username: "root", Role: "admin"}
	userActor  = &model.Actor{ID: "user-ana", Username: "ana", Role: "user"}
)

func newTestRouter(reqs RequestManager, aud AuditWriter, roles RoleManager, actor *model.Actor) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAPIHandler(NewHealthHandler(nil, nil), NewDocsHandler([]byte(`{"openapi":"3.0.3"}`)), reqs, aud, roles, logger)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor != nil {
				r = r.WithContext(middleware.WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	})
	return HandlerFromMux(h, router)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorResponse struct {
	Error struct {
		Code          string                  `json:"code"`
		Message       string                  `json:"message"`
		Fields        []validation.FieldError `json:"fields"`
		CurrentStatus string                  `json:"current_status"`
		Allowed       []string                `json:"allowed_transitions"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("невалидный JSON ошибки: %v, тело: %s", err, rec.Body.String())
	}
	return resp
}

func sampleRequest(status model.RequestStatus) *model.Request {
	tpl := "7a7a7a7a-0000-4000-8000-000000000001"
	version := 3
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.Request{
		ID:              reqID,
		Code:            "SOL-20260301-ABC123",
		ServiceID:       "4b3f6f5e-2a0c-4a53-9a51-6f1d3c0b1a01",
		Service:         &model.ServiceRef{ID: "4b3f6f5e-2a0c-4a53-9a51-6f1d3c0b1a01", Code: "VPN", Name: "VPN", Slug: "vpn"},
		Requester:       model.Requester{ID: "user-ana", Username: "ana"},
		TemplateID:      &tpl,
		TemplateVersion: &version,
		FormPayload:     map[string]any{"urgency": "high"},
		Status:          status,
		SubmittedAt:     now,
		SLASnapshot:     &model.SLASnapshot{Name: "Oro", FirstResponseMinutes: 30, ResolutionMinutes: 240},
		ServiceSnapshot: model.ServiceSnapshot{Code: "VPN", Name: "Acceso VPN", Priority: model.PriorityHigh},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// --- Тесты заявок ---

func TestCreateRequest(t *testing.T) {
	var got service.CreateInput
	reqs := &mockRequests{
		createFn: func(_ context.Context, in service.CreateInput, actor model.Actor) (*model.Request, bool, error) {
			got = in
			if actor.ID != "user-ana" {
				t.Errorf("actor = %s, ожидается user-ana", actor.ID)
			}
			return sampleRequest(model.StatusPending), true, nil
		},
	}
	h := newTestRouter(reqs, nil, nil, userActor)

	rec := do(t, h, http.MethodPost, "/api/v1/requests",
		`{"service_id":"4b3f6f5e-2a0c-4a53-9a51-6f1d3c0b1a01","template_id":"7a7a7a7a-0000-4000-8000-000000000001","form_payload":{"urgency":"high","count":3}}`,
		map[string]string{"Idempotency-Key": "k-1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидается 201, тело: %s", rec.Code, rec.Body.String())
	}
	if got.IdempotencyKey == nil || *got.IdempotencyKey != "k-1" {
		t.Errorf("IdempotencyKey = %v, ожидается k-1", got.IdempotencyKey)
	}
	if _, ok := got.FormPayload["count"].(json.Number); !ok {
		t.Errorf("count = %T, ожидается json.Number", got.FormPayload["count"])
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/requests/"+reqID {
		t.Errorf("Location = %q", loc)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "pending" || body["status_label"] != "Pendiente" {
		t.Errorf("status = %v / %v", body["status"], body["status_label"])
	}
	sla, ok := body["sla_snapshot"].(map[string]any)
	if !ok || sla["resolution_minutes"] != float64(240) {
		t.Errorf("sla_snapshot = %v", body["sla_snapshot"])
	}
	snap, ok := body["service_snapshot"].(map[string]any)
	if !ok || snap["priority"] != "high" {
		t.Errorf("service_snapshot = %v", body["service_snapshot"])
	}
	requester, ok := body["requester"].(map[string]any)
	if !ok || requester["username"] != "ana" {
		t.Errorf("requester = %v", body["requester"])
	}
	if body["redirected_at"] != nil {
		t.Errorf("redirected_at = %v, ожидается null", body["redirected_at"])
	}
}

func TestCreateRequest_IdempotentReplay(t *testing.T) {
	reqs := &mockRequests{
		createFn: func(context.Context, service.CreateInput, model.Actor) (*model.Request, bool, error) {
			return sampleRequest(model.StatusPending), false, nil
		},
	}
	h := newTestRouter(reqs, nil, nil, userActor)

	rec := do(t, h, http.MethodPost, "/api/v1/requests",
		`{"service_id":"4b3f6f5e-2a0c-4a53-9a51-6f1d3c0b1a01"}`, map[string]string{"Idempotency-Key": "k-1"})
	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d, ожидается 200", rec.Code)
	}
}

func TestCreateRequest_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		actor      *model.Actor
		err        error
		wantStatus int
		wantCode   string
	}{
		{"без субъекта", `{}`, nil, nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"service account", `{"service_id":"x"}`, &model.Actor{ID: "sa", ServiceAccount: true}, nil, http.StatusForbidden, "FORBIDDEN"},
		{"битый JSON", `{`, userActor, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"без service_id", `{"form_payload":{}}`, userActor, nil, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"услуга не найдена", `{"service_id":"x"}`, userActor, service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"ошибки полей", `{"service_id":"x"}`, userActor,
			&validation.Error{Fields: []validation.FieldError{{Field: "urgency", Code: "required", Message: "обязательно"}}},
			http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"коллизия кода", `{"service_id":"x"}`, userActor, service.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"ошибка БД", `{"service_id":"x"}`, userActor, errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs := &mockRequests{
				createFn: func(context.Context, service.CreateInput, model.Actor) (*model.Request, bool, error) {
					if tt.err == nil {
						t.Error("сервис не должен вызываться")
						return nil, false, errors.New("unexpected")
					}
					return nil, false, tt.err
				},
			}
			h := newTestRouter(reqs, nil, nil, tt.actor)

			rec := do(t, h, http.MethodPost, "/api/v1/requests", tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидается %d, тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Error.Code != tt.wantCode {
				t.Errorf("code = %s, ожидается %s", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

// Service Account отсекается middleware маршрута до разбора тела.
func TestCreateRequest_RouteRequiresUser(t *testing.T) {
	reqs := &mockRequests{
		createFn: func(context.Context, service.CreateInput, model.Actor) (*model.Request, bool, error) {
			t.Error("сервис не должен вызываться")
			return nil, false, errors.New("unexpected")
		},
	}
	h := newTestRouter(reqs, nil, nil, &model.Actor{ID: "sa", ServiceAccount: true})

	rec := do(t, h, http.MethodPost, "/api/v1/requests", `{`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("статус = %d, ожидается 403", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error.Message != "Доступ разрешён только для пользователей" {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestCreateRequest_FieldErrorsListed(t *testing.T) {
	reqs := &mockRequests{
		createFn: func(context.Context, service.CreateInput, model.Actor) (*model.Request, bool, error) {
			return nil, false, &validation.Error{Fields: []validation.FieldError{
				{Field: "urgency", Code: "invalid_option", Message: "недопустимое значение"},
				{Field: "extra", Code: "not_in_schema", Message: "поле не предусмотрено"},
			}}
		},
	}
	h := newTestRouter(reqs, nil, nil, userActor)

	rec := do(t, h, http.MethodPost, "/api/v1/requests", `{"service_id":"x"}`, nil)
	resp := decodeError(t, rec)
	if len(resp.Error.Fields) != 2 {
		t.Fatalf("fields = %v, ожидается 2 ошибки", resp.Error.Fields)
	}
	if resp.Error.Fields[0].Field != "urgency" || resp.Error.Fields[1].Code != "not_in_schema" {
		t.Errorf("fields = %+v", resp.Error.Fields)
	}
}

func TestGetRequest(t *testing.T) {
	reqs := &mockRequests{
		getFn: func(_ context.Context, id string, _ model.Actor) (*model.Request, error) {
			if id != reqID {
				return nil, service.ErrNotFound
			}
			return sampleRequest(model.StatusInProgress), nil
		},
	}
	h := newTestRouter(reqs, nil, nil, userActor)

	rec := do(t, h, http.MethodGet, "/api/v1/requests/"+reqID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status_label"] != "En Proceso" {
		t.Errorf("status_label = %v", body["status_label"])
	}

	rec = do(t, h, http.MethodGet, "/api/v1/requests/other", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус = %d, ожидается 404", rec.Code)
	}
}

func TestUpdateRequestStatus(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		err         error
		wantStatus  int
		wantCode    string
		wantCurrent string
		wantTarget  model.RequestStatus
	}{
		{"код статуса", `{"status":"in_progress"}`, nil, http.StatusOK, "", "", model.StatusInProgress},
		{"название статуса", `{"status":"Resuelta"}`, nil, http.StatusOK, "", "", model.StatusResolved},
		{"неизвестный статус", `{"status":"archived"}`, nil, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "", ""},
		{"недопустимый переход", `{"status":"pending"}`,
			&lifecycle.TransitionError{From: model.StatusResolved, To: model.StatusPending, Message: "нельзя"},
			http.StatusConflict, "INVALID_TRANSITION", "resolved", model.StatusPending},
		{"нет прав", `{"status":"resolved"}`, service.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "", model.StatusResolved},
		{"не найдена", `{"status":"resolved"}`, service.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "", model.StatusResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			reqs := &mockRequests{
				transitionFn: func(_ context.Context, _ string, target model.RequestStatus, _ model.Actor) (*model.Request, error) {
					called = true
					if target != tt.wantTarget {
						t.Errorf("target = %s, ожидается %s", target, tt.wantTarget)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return sampleRequest(target), nil
				},
			}
			h := newTestRouter(reqs, nil, nil, adminActor)

			rec := do(t, h, http.MethodPut, "/api/v1/requests/"+reqID+"/status", tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидается %d, тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantTarget == "" && called {
				t.Error("сервис не должен вызываться для неизвестного статуса")
			}
			if tt.wantCode != "" {
				resp := decodeError(t, rec)
				if resp.Error.Code != tt.wantCode {
					t.Errorf("code = %s, ожидается %s", resp.Error.Code, tt.wantCode)
				}
				if resp.Error.CurrentStatus != tt.wantCurrent {
					t.Errorf("current_status = %q, ожидается %q", resp.Error.CurrentStatus, tt.wantCurrent)
				}
			}
		})
	}
}

func TestUpdateRequestStatus_AllowedTransitions(t *testing.T) {
	tests := []struct {
		name        string
		err         *lifecycle.TransitionError
		wantCurrent string
		wantAllowed []string
	}{
		{"из in_progress", lifecycle.NewTransitionError(model.StatusInProgress, model.StatusPending),
			"in_progress", []string{"cancelled", "resolved"}},
		{"из конечного статуса", lifecycle.NewTransitionError(model.StatusCancelled, model.StatusResolved),
			"cancelled", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs := &mockRequests{
				transitionFn: func(context.Context, string, model.RequestStatus, model.Actor) (*model.Request, error) {
					return nil, tt.err
				},
			}
			h := newTestRouter(reqs, nil, nil, adminActor)

			rec := do(t, h, http.MethodPut, "/api/v1/requests/"+reqID+"/status", `{"status":"resolved"}`, nil)
			if rec.Code != http.StatusConflict {
				t.Fatalf("статус = %d, ожидается 409", rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error.CurrentStatus != tt.wantCurrent {
				t.Errorf("current_status = %q, ожидается %q", resp.Error.CurrentStatus, tt.wantCurrent)
			}
			if !reflect.DeepEqual(resp.Error.Allowed, tt.wantAllowed) {
				t.Errorf("allowed_transitions = %v, ожидается %v", resp.Error.Allowed, tt.wantAllowed)
			}
			if resp.Error.Message != tt.err.Message {
				t.Errorf("message = %q, ожидается %q", resp.Error.Message, tt.err.Message)
			}
		})
	}
}
func TestDeleteRequest(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"удалена", nil, http.StatusNoContent},
		{"нет прав", fmt.Errorf("%w: только администратор", service.ErrForbidden), http.StatusForbidden},
		{"не найдена", service.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs := &mockRequests{
				deleteFn: func(_ context.Context, id string, _ model.Actor) error {
					if id != reqID {
						t.Errorf("id = %s", id)
					}
					return tt.err
				},
			}
			h := newTestRouter(reqs, nil, nil, userActor)

			rec := do(t, h, http.MethodDelete, "/api/v1/requests/"+reqID, "", nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestListRequests(t *testing.T) {
	var got service.ListParams
	reqs := &mockRequests{
		listFn: func(_ context.Context, params service.ListParams, _ model.Actor) (*service.Page, error) {
			got = params
			return &service.Page{
				Items:   []*model.Request{sampleRequest(model.StatusPending)},
				Total:   31,
				Page:    2,
				PerPage: 15,
			}, nil
		},
	}
	h := newTestRouter(reqs, nil, nil, adminActor)

	rec := do(t, h, http.MethodGet,
		"/api/v1/requests?status=Pendiente&service_id=4b3f6f5e-2a0c-4a53-9a51-6f1d3c0b1a01&requester_id=user-ana&date_from=2026-03-01&date_to=2026-03-31&search=VPN&page=2&per_page=15",
		"", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	f := got.Filters
	if f.Status == nil || *f.Status != model.StatusPending {
		t.Errorf("Status = %v", f.Status)
	}
	if f.RequesterID == nil || *f.RequesterID != "user-ana" {
		t.Errorf("RequesterID = %v", f.RequesterID)
	}
	if f.Search == nil || *f.Search != "VPN" {
		t.Errorf("Search = %v", f.Search)
	}
	if f.SubmittedFrom == nil || !f.SubmittedFrom.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("SubmittedFrom = %v", f.SubmittedFrom)
	}
	if f.SubmittedTo == nil || f.SubmittedTo.Day() != 31 || f.SubmittedTo.Hour() != 23 {
		t.Errorf("SubmittedTo = %v, ожидается конец дня 31 марта", f.SubmittedTo)
	}
	if got.Page != 2 || got.PerPage != 15 {
		t.Errorf("Page/PerPage = %d/%d", got.Page, got.PerPage)
	}

	var body requestListJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 31 || body.TotalPages != 3 || len(body.Items) != 1 {
		t.Errorf("страница = total %d, pages %d, items %d", body.Total, body.TotalPages, len(body.Items))
	}
}

func TestListRequests_InvalidParams(t *testing.T) {
	h := newTestRouter(&mockRequests{
		listFn: func(context.Context, service.ListParams, model.Actor) (*service.Page, error) {
			t.Error("сервис не должен вызываться")
			return nil, errors.New("unexpected")
		},
	}, nil, nil, adminActor)

	for _, q := range []string{
		"page=abc",
		"per_page=1.5",
		"status=archived",
		"date_from=01-03-2026",
		"service_id=not-a-uuid",
	} {
		t.Run(q, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/v1/requests?"+q, "", nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("статус = %d, ожидается 400", rec.Code)
			}
		})
	}
}

// --- Аудит и роли ---

func TestCreateAuditLog(t *testing.T) {
	aud := &mockAudit{
		recordFn: func(_ context.Context, in service.AuditInput, actor model.Actor) (*model.AuditEntry, error) {
			if in.Module == "" {
				return nil, fmt.Errorf("%w: module и action обязательны", audit.ErrInvalidEvent)
			}
			if !actor.IsAdmin() {
				return nil, service.ErrForbidden
			}
			module := in.Module
			return &model.AuditEntry{ID: 7, UserID: &actor.ID, Module: module, Action: in.Action,
				Changes: in.Changes, CreatedAt: time.Now()}, nil
		},
	}

	tests := []struct {
		name       string
		body       string
		actor      *model.Actor
		wantStatus int
	}{
		{"администратор", `{"module":"SLA","action":"Update","changes":{"after":120}}`, adminActor, http.StatusCreated},
		{"без module", `{"action":"Update"}`, adminActor, http.StatusBadRequest},
		{"пользователь", `{"module":"SLA","action":"Update"}`, userActor, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&mockRequests{}, aud, nil, tt.actor)
			rec := do(t, h, http.MethodPost, "/api/v1/audit-logs", tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d, тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestSetRoleOverride(t *testing.T) {
	roles := &mockRoles{
		setFn: func(_ context.Context, userID, username, role string, actor model.Actor) (*model.RoleOverride, error) {
			if role != "admin" {
				return nil, service.ErrInvalidRole
			}
			return &model.RoleOverride{UserID: userID, Username: username, AdditionalRole: role, CreatedBy: actor.ID}, nil
		},
	}
	h := newTestRouter(&mockRequests{}, nil, roles, adminActor)

	rec := do(t, h, http.MethodPut, "/api/v1/users/kc-bob/role-override", `{"username":"bob","role":"admin"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	var body roleOverrideJSON
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.UserID != "kc-bob" || body.CreatedBy != "admin-1" {
		t.Errorf("ответ = %+v", body)
	}

	rec = do(t, h, http.MethodPut, "/api/v1/users/kc-bob/role-override", `{"role":"root"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидается 400", rec.Code)
	}
}

// --- Health ---

type staticChecker struct{ status string }

func (c staticChecker) CheckReady() (string, string) { return c.status, "" }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		pg, idp    ReadinessChecker
		wantStatus int
	}{
		{"всё ok", staticChecker{"ok"}, staticChecker{"ok"}, http.StatusOK},
		{"IdP degraded", staticChecker{"ok"}, staticChecker{"degraded"}, http.StatusOK},
		{"PostgreSQL fail", staticChecker{"fail"}, staticChecker{"ok"}, http.StatusServiceUnavailable},
		{"не инициализированы", nil, nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.idp)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	h := newTestRouter(&mockRequests{}, nil, nil, nil)
	rec := do(t, h, http.MethodGet, "/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d, ожидается 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"service":"servicedesk"`) {
		t.Errorf("тело = %s", rec.Body.String())
	}
}

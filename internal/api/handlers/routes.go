// routes.go — маршруты API и привязка параметров запроса.
// Параметры пути, заголовков и query разбираются через oapi-codegen runtime
// так же, как в chi-server обёртке oapi-codegen.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/servicedesk/internal/api/errors"
	"github.com/bigkaa/servicedesk/internal/api/middleware"
)

// CreateRequestParams — параметры POST /api/v1/requests.
type CreateRequestParams struct {
	// IdempotencyKey — заголовок Idempotency-Key
	IdempotencyKey *string
}

// ListRequestsParams — параметры GET /api/v1/requests.
type ListRequestsParams struct {
	Status      *string
	ServiceID   *string
	RequesterID *string
	// DateFrom / DateTo — границы submitted_at (YYYY-MM-DD или RFC3339)
	DateFrom *string
	DateTo   *string
	Search   *string
	Page     *int
	PerPage  *int
}

// ServerInterface — все операции API.
type ServerInterface interface {
	HealthLive(w http.ResponseWriter, r *http.Request)
	HealthReady(w http.ResponseWriter, r *http.Request)
	GetMetrics(w http.ResponseWriter, r *http.Request)
	GetOpenAPIDocument(w http.ResponseWriter, r *http.Request)

	CreateRequest(w http.ResponseWriter, r *http.Request, params CreateRequestParams)
	ListRequests(w http.ResponseWriter, r *http.Request, params ListRequestsParams)
	GetRequest(w http.ResponseWriter, r *http.Request, id string)
	UpdateRequestStatus(w http.ResponseWriter, r *http.Request, id string)
	DeleteRequest(w http.ResponseWriter, r *http.Request, id string)

	CreateAuditLog(w http.ResponseWriter, r *http.Request)
	SetRoleOverride(w http.ResponseWriter, r *http.Request, userID string)
}

// serverInterfaceWrapper разбирает параметры и вызывает ServerInterface.
type serverInterfaceWrapper struct {
	handler ServerInterface
}

// HandlerFromMux регистрирует все маршруты API в router.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	w := &serverInterfaceWrapper{handler: si}

	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.json", si.GetOpenAPIDocument)

		// Заявки подают только пользователи, Service Account получает 403
		r.With(middleware.RequireUser()).Post("/requests", w.CreateRequest)
		r.Get("/requests", w.ListRequests)
		r.Get("/requests/{id}", w.withPathParam("id", si.GetRequest))
		r.Put("/requests/{id}/status", w.withPathParam("id", si.UpdateRequestStatus))
		r.Delete("/requests/{id}", w.withPathParam("id", si.DeleteRequest))

		r.Post("/audit-logs", si.CreateAuditLog)
		r.Put("/users/{user_id}/role-override", w.withPathParam("user_id", si.SetRoleOverride))
	})

	return r
}

// withPathParam привязывает обязательный параметр пути.
func (w *serverInterfaceWrapper) withPathParam(
	name string,
	next func(http.ResponseWriter, *http.Request, string),
) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var value string
		err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &value,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			invalidParam(rw, name, err)
			return
		}
		next(rw, r, value)
	}
}

// CreateRequest разбирает заголовок Idempotency-Key.
func (w *serverInterfaceWrapper) CreateRequest(rw http.ResponseWriter, r *http.Request) {
	var params CreateRequestParams

	if values := r.Header.Values("Idempotency-Key"); len(values) > 0 {
		if len(values) > 1 {
			invalidParam(rw, "Idempotency-Key", fmt.Errorf("ожидается одно значение, получено %d", len(values)))
			return
		}
		var key string
		err := runtime.BindStyledParameterWithOptions("simple", "Idempotency-Key", values[0], &key,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationHeader, Explode: false, Required: false})
		if err != nil {
			invalidParam(rw, "Idempotency-Key", err)
			return
		}
		params.IdempotencyKey = &key
	}

	w.handler.CreateRequest(rw, r, params)
}

// ListRequests разбирает query-параметры фильтров и пагинации.
func (w *serverInterfaceWrapper) ListRequests(rw http.ResponseWriter, r *http.Request) {
	var params ListRequestsParams
	query := r.URL.Query()

	bindings := []struct {
		name string
		dest any
	}{
		{"status", &params.Status},
		{"service_id", &params.ServiceID},
		{"requester_id", &params.RequesterID},
		{"date_from", &params.DateFrom},
		{"date_to", &params.DateTo},
		{"search", &params.Search},
		{"page", &params.Page},
		{"per_page", &params.PerPage},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			invalidParam(rw, b.name, err)
			return
		}
	}

	w.handler.ListRequests(rw, r, params)
}

func invalidParam(w http.ResponseWriter, name string, err error) {
	apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %v", name, err))
}

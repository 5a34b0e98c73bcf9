package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/api/v1/requests", "/api/v1/requests"},
		{"/api/v1/requests/5f0c6a52-1111-4222-8333-444455556666", "/api/v1/requests/{id}"},
		{"/api/v1/requests/5f0c6a52-1111-4222-8333-444455556666/status", "/api/v1/requests/{id}/status"},
		{"/api/v1/users/kc-user-1/role-override", "/api/v1/users/{id}/role-override"},
		{"/api/v1/audit-logs", "/api/v1/audit-logs"},
		{"/health/live", "/health/live"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizePath(tt.input); got != tt.expected {
				t.Errorf("normalizePath(%q) = %q, ожидается %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/x", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"level=WARN", "status=404", "bytes=7", "method=GET", "component=http", "route=/api/v1/requests/{id}"} {
		if !strings.Contains(out, want) {
			t.Errorf("лог не содержит %q: %s", want, out)
		}
	}
}

// Субъект, установленный позже по цепочке, попадает в запись журнала.
func TestRequestLogger_Actor(t *testing.T) {
	tests := []struct {
		name    string
		actor   *model.Actor
		want    []string
		notWant []string
	}{
		{"пользователь", &model.Actor{ID: "user-7"},
			[]string{"actor_id=user-7", "service_account=false", "query=\"page=2&status=pending\""}, nil},
		{"service account", &model.Actor{ID: "sa-1", ServiceAccount: true},
			[]string{"actor_id=sa-1", "service_account=true"}, nil},
		{"без субъекта", nil, nil, []string{"actor_id", "service_account"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			authenticate := func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if tt.actor != nil {
						r = r.WithContext(WithActor(r.Context(), tt.actor))
					}
					next.ServeHTTP(w, r)
				})
			}
			handler := RequestLogger(logger)(authenticate(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/requests?page=2&status=pending", nil))

			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("лог не содержит %q: %s", want, out)
				}
			}
			for _, bad := range tt.notWant {
				if strings.Contains(out, bad) {
					t.Errorf("лог содержит %q: %s", bad, out)
				}
			}
		})
	}
}

func TestStatusLevel(t *testing.T) {
	tests := map[int]slog.Level{
		http.StatusOK:                  slog.LevelInfo,
		http.StatusFound:               slog.LevelInfo,
		http.StatusConflict:            slog.LevelWarn,
		http.StatusInternalServerError: slog.LevelError,
	}
	for status, want := range tests {
		if got := statusLevel(status); got != want {
			t.Errorf("statusLevel(%d) = %v, ожидается %v", status, got, want)
		}
	}
}

package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/servicedesk/internal/api/handlers"
	"github.com/bigkaa/servicedesk/internal/config"
)

func TestAuthWithExclusions(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := authWithExclusions(deny, "/health/", "/metrics", "/api/v1/openapi.json")(ok)

	tests := []struct {
		path     string
		expected int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/openapi.json", http.StatusOK},
		{"/api/v1/requests", http.StatusUnauthorized},
		{"/api/v1/audit-logs", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.expected {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.expected)
			}
		})
	}
}

func TestLimitBody(t *testing.T) {
	read := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := limitBody(16)(read)

	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"в пределах лимита", `{"status":"x"}`, http.StatusOK},
		{"превышение лимита", strings.Repeat("a", 17), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(tt.body)))
			if rec.Code != tt.expected {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.expected)
			}
		})
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := &config.Config{Port: 0, ShutdownTimeout: time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := handlers.NewAPIHandler(handlers.NewHealthHandler(nil, nil), nil, nil, nil, nil, logger)
	srv := New(cfg, logger, api, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() вернул ошибку: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() не завершился после отмены контекста")
	}
}

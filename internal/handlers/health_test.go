package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgu-eportal/rptpay/internal/logger"
	"github.com/lgu-eportal/rptpay/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPinger is a Pinger that returns a fixed error.
type stubPinger struct {
	err   error
	calls int
}

func (p *stubPinger) Ping(ctx context.Context) error {
	p.calls++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("ping without deadline")
	}
	return p.err
}

// setupTestRouter creates a test Gin router with the request-scoped middleware.
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(logger.Nop()))
	return router
}

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler("test")

	router := setupTestRouter()
	router.GET("/health", handler.Health)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, HealthResponse{Status: "healthy"}, response)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name           string
		dbErr          error
		redisErr       error
		expectedStatus int
		expectedBody   ReadyResponse
	}{
		{
			name:           "all dependencies connected",
			expectedStatus: http.StatusOK,
			expectedBody: ReadyResponse{
				Status: "ready",
				Checks: map[string]string{"database": "connected", "redis": "connected"},
			},
		},
		{
			name:           "database down",
			dbErr:          errors.New("connection refused"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody: ReadyResponse{
				Status: "not_ready",
				Checks: map[string]string{"database": "disconnected", "redis": "connected"},
			},
		},
		{
			name:           "redis down",
			redisErr:       errors.New("i/o timeout"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody: ReadyResponse{
				Status: "not_ready",
				Checks: map[string]string{"database": "connected", "redis": "disconnected"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &stubPinger{err: tt.dbErr}
			redis := &stubPinger{err: tt.redisErr}
			handler := NewHealthHandler("test").AddCheck("database", db).AddCheck("redis", redis)

			router := setupTestRouter()
			router.GET("/health/ready", handler.Ready)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			var response ReadyResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedBody, response)
			assert.Equal(t, 1, db.calls)
			assert.Equal(t, 1, redis.calls)
		})
	}

	t.Run("no dependencies registered", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/health/ready", NewHealthHandler("test").Ready)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ready","checks":{}}`, w.Body.String())
	})
}

func TestHealthHandler_Info(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		startTime time.Time
		uptime    string
	}{
		{
			name:      "development environment",
			env:       "development",
			startTime: time.Now().Add(-2 * time.Hour),
		},
		{
			name:      "production environment",
			env:       "production",
			startTime: time.Now().Add(-24 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.env)
			handler.startTime = tt.startTime

			router := setupTestRouter()
			router.GET("/api/v1/info", handler.Info)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			var response InfoResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, APIVersion, response.Version)
			assert.Equal(t, tt.env, response.Environment)
			assert.NotEmpty(t, response.Uptime)
		})
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "0h 0m 45s"},
		{"minutes and seconds", 5*time.Minute + 30*time.Second, "0h 5m 30s"},
		{"hours, minutes and seconds", 2*time.Hour + 15*time.Minute + 45*time.Second, "2h 15m 45s"},
		{"days", 3*24*time.Hour + 5*time.Hour + 30*time.Minute + 15*time.Second, "3d 5h 30m 15s"},
		{"exactly one day", 24 * time.Hour, "1d 0h 0m 0s"},
		{"zero", 0, "0h 0m 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatUptime(tt.duration))
		})
	}
}

func BenchmarkHealthHandler_Health(b *testing.B) {
	handler := NewHealthHandler("test")

	router := setupTestRouter()
	router.GET("/health", handler.Health)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

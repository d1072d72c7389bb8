package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgu-eportal/rptpay/internal/middleware"
)

const (
	// APIVersion is the current version of the API
	APIVersion = "0.1.0"
	// HealthCheckTimeout is the timeout for each dependency check
	HealthCheckTimeout = 2 * time.Second
)

// Pinger is a dependency the readiness check can reach.
type Pinger interface {
	Ping(ctx context.Context) error
}

type namedCheck struct {
	name   string
	pinger Pinger
}

// HealthHandler handles health check and readiness endpoints.
type HealthHandler struct {
	checks    []namedCheck
	startTime time.Time
	env       string
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(env string) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		env:       env,
	}
}

// AddCheck registers a dependency for the readiness check.
func (h *HealthHandler) AddCheck(name string, p Pinger) *HealthHandler {
	h.checks = append(h.checks, namedCheck{name: name, pinger: p})
	return h
}

// HealthResponse represents the basic health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents the readiness check response.
// Checks maps each dependency to "connected" or "disconnected".
type ReadyResponse struct {
	Checks map[string]string `json:"checks"`
	Status string            `json:"status"`
}

// InfoResponse represents the API information response.
type InfoResponse struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Uptime      string `json:"uptime"`
}

// Health handles GET /health endpoint.
// This is a basic liveness check that always returns 200 OK.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// Ready handles GET /health/ready endpoint.
// Returns 200 OK when every registered dependency answers, 503 otherwise.
func (h *HealthHandler) Ready(c *gin.Context) {
	resp := ReadyResponse{
		Status: "ready",
		Checks: make(map[string]string, len(h.checks)),
	}

	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), HealthCheckTimeout)
		err := check.pinger.Ping(ctx)
		cancel()

		if err != nil {
			if log := middleware.GetLogger(c); log != nil {
				log.Error("Dependency health check failed", err, map[string]interface{}{
					"dependency": check.name,
					"timeout":    HealthCheckTimeout.String(),
				})
			}
			resp.Status = "not_ready"
			resp.Checks[check.name] = "disconnected"
			continue
		}
		resp.Checks[check.name] = "connected"
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// Info handles GET /api/v1/info endpoint.
// Returns API metadata including version, environment, and uptime.
func (h *HealthHandler) Info(c *gin.Context) {
	uptime := time.Since(h.startTime)

	c.JSON(http.StatusOK, InfoResponse{
		Version:     APIVersion,
		Environment: h.env,
		Uptime:      formatUptime(uptime),
	})
}

// formatUptime formats a duration into a human-readable string.
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

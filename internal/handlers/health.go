package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

func runCheck(ctx context.Context, p pinger) Check {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// Health pings the relational store and, when configured, Redis.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	checks[h.storeName] = runCheck(ctx, h.store)
	if h.redis != nil {
		checks["redis"] = runCheck(ctx, h.redis)
	}

	status := "healthy"
	statusCode := http.StatusOK
	for _, c := range checks {
		if c.Status != "pass" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root describes the API.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "tarschat",
		Version: version,
		Endpoints: []string{
			"POST /users/me", "GET /users/me", "GET /users", "GET /users/{id}", "PUT /presence",
			"GET /conversations", "POST /conversations/direct", "POST /conversations/group",
			"GET /conversations/{id}", "GET|POST /conversations/{id}/messages",
			"GET|PUT|DELETE /conversations/{id}/typing", "GET|POST /conversations/{id}/read",
			"POST /messages/{id}/reactions", "DELETE /messages/{id}",
			"POST /webhooks/identity", "GET /ws", "GET /health", "GET /stats", "GET /metrics",
		},
	})
}

// Package handler provides HTTP handlers for the capacity API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/api/response"
	"github.com/recreationcalc/recreationcalc/internal/resilience"
)

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig holds configuration for the ops handler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Registry  *resilience.Registry // Optional
	Database  Pinger               // Optional; nil when running in memory
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	database  Pinger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		database:  cfg.Database,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. The service
// is not ready when the database is unreachable or a circuit is open.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	readiness := models.Readiness{
		Status:       models.HealthStatusOK,
		Time:         models.Timestamp(time.Now()),
		Dependencies: []models.DependencyStatus{},
	}

	if h.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.database.Ping(ctx)
		cancel()

		dep := models.DependencyStatus{Name: "database", Status: models.HealthStatusOK}
		if err != nil {
			msg := err.Error()
			dep.Status = models.HealthStatusFail
			dep.Message = &msg
		}
		readiness.Dependencies = append(readiness.Dependencies, dep)
	}

	if h.registry != nil {
		for _, health := range h.registry.GetAllHealth() {
			readiness.Dependencies = append(readiness.Dependencies, toDependencyStatus(health))
		}
	}

	for _, dep := range readiness.Dependencies {
		switch dep.Status {
		case models.HealthStatusFail:
			readiness.Status = models.HealthStatusFail
		case models.HealthStatusDegraded:
			if readiness.Status == models.HealthStatusOK {
				readiness.Status = models.HealthStatusDegraded
			}
		}
	}

	status := http.StatusOK
	if readiness.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, readiness)
}

func toDependencyStatus(health *resilience.DependencyHealth) models.DependencyStatus {
	dep := models.DependencyStatus{
		Name:                health.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        health.CircuitState.String(),
		ConsecutiveFailures: health.Counts.ConsecutiveFailures,
	}

	switch {
	case health.IsUnhealthy():
		dep.Status = models.HealthStatusFail
	case health.IsDegraded():
		dep.Status = models.HealthStatusDegraded
	}

	if health.LastSuccessAt != nil {
		ts := models.Timestamp(*health.LastSuccessAt)
		dep.LastSuccessAt = &ts
	}
	if health.LastFailureAt != nil {
		ts := models.Timestamp(*health.LastFailureAt)
		dep.LastFailureAt = &ts
	}
	if health.LastError != "" {
		msg := health.LastError
		dep.Message = &msg
	}

	return dep
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/internal/scheduler"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck() error
}

// JobRunner is the part of the scheduler the ops API exposes.
type JobRunner interface {
	Jobs() map[string]scheduler.JobInfo
	RunNow(id string) error
	SetEnabled(id string, enabled bool) error
}

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Handler serves health, metrics and job control for the scheduler process.
type Handler struct {
	checks map[string]HealthChecker
	jobs   JobRunner
	logger *logrus.Logger
}

func NewHandler(checks map[string]HealthChecker, jobs JobRunner, logger *logrus.Logger) *Handler {
	return &Handler{checks: checks, jobs: jobs, logger: logger}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.GetHealth)
	router.HEAD("/health", h.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/jobs", h.ListJobs)
		v1.POST("/jobs/:id/run", h.RunJob)
		v1.PUT("/jobs/:id/enabled", h.SetJobEnabled)
	}
	return router
}

func (h *Handler) GetHealth(c *gin.Context) {
	response := HealthStatus{
		Status:    "ok",
		Service:   "match-features",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}
	for name, check := range h.checks {
		if err := check.HealthCheck(); err != nil {
			response.Status = "unhealthy"
			response.Checks[name] = "failed: " + err.Error()
		} else {
			response.Checks[name] = "ok"
		}
	}

	statusCode := http.StatusOK
	if response.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func (h *Handler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.Jobs()})
}

// RunJob runs a job synchronously and reports its outcome.
func (h *Handler) RunJob(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.jobs.Jobs()[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err := h.jobs.RunNow(id); err != nil {
		h.logger.WithError(err).WithField("job_id", id).Warn("Manual job run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.jobs.Jobs()[id])
}

func (h *Handler) SetJobEnabled(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.jobs.SetEnabled(c.Param("id"), *req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.jobs.Jobs()[c.Param("id")])
}

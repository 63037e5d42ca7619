package handler

import (
	"errors"
	"net/http"
	"strconv"

	"entity-learning-service/internal/middleware"
	"entity-learning-service/internal/registry"
	"entity-learning-service/internal/repository"
	"entity-learning-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds request defaults and auth settings of the API
type Config struct {
	DefaultTopN         int
	BlockOnRegression   bool
	RegressionThreshold float64
	JWTSecret           string
}

// Handler handles HTTP requests
type Handler struct {
	learner *service.Learner
	jobs    *service.Jobs
	cfg     Config
	logger  *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(learner *service.Learner, jobs *service.Jobs, cfg Config, logger *zap.Logger) *Handler {
	return &Handler{
		learner: learner,
		jobs:    jobs,
		cfg:     cfg,
		logger:  logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Scenarios and stored data
		api.GET("/scenarios", h.ListScenarios)
		api.POST("/scenarios", h.CreateScenario)
		api.GET("/scenarios/:id", h.GetScenario)
		api.GET("/scenarios/:id/texts", h.ListTexts)
		api.GET("/scenarios/:id/stats", h.GetStats)

		// Active learning loop
		api.POST("/scenarios/:id/predict", h.Predict)
		api.POST("/scenarios/:id/corrections", h.SubmitCorrection)
		api.POST("/scenarios/:id/uncertain", h.EnqueueUncertain)
		api.GET("/scenarios/:id/uncertain", h.ListUncertain)
		api.POST("/uncertain/:id/skip", h.SkipUncertain)

		// Training and evaluation
		api.GET("/scenarios/:id/sessions", h.ListSessions)
		api.GET("/scenarios/:id/jobs", h.ListJobs)
		api.GET("/jobs/:id", h.GetJobStatus)
		api.POST("/scenarios/:id/evaluate", h.Evaluate)

		// Model registry
		api.GET("/models/versions", h.ListVersions)
		api.GET("/models/current", h.CurrentVersion)

		// Export
		api.GET("/scenarios/:id/export/csv", h.ExportCSV)
		api.GET("/scenarios/:id/export/json", h.ExportJSON)

		secured := api.Group("", middleware.AuthMiddleware(h.cfg.JWTSecret, h.logger))
		{
			secured.DELETE("/scenarios/:id", h.DeleteScenario)
			secured.DELETE("/texts/:id", h.DeleteText)
			secured.POST("/scenarios/:id/train", h.StartTraining)
			secured.POST("/jobs/:id/cancel", h.CancelJob)
			secured.POST("/models/publish", h.Publish)
			secured.POST("/models/rollback", h.Rollback)
		}
	}

	// Health check
	r.GET("/health", h.HealthCheck)
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      "entity-learning-service",
		"version":      "1.0.0",
		"model_loaded": h.learner.ModelLoaded(),
	})
}

// idParam parses a numeric path parameter and writes a 400 when it is invalid
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors to status codes
func (h *Handler) respondError(c *gin.Context, err error, action string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, registry.ErrVersionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrBuiltinScenario):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrTrainingInProgress), errors.Is(err, service.ErrJobNotRunning),
		errors.Is(err, registry.ErrRegression), errors.Is(err, registry.ErrChecksumMismatch),
		errors.Is(err, registry.ErrConcurrentUpdate):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrArtifactMissing):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrRegistryDisabled):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("action", action), zap.Error(err))
		c.JSON(status, gin.H{"error": action + " failed"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

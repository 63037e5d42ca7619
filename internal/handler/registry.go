package handler

import (
	"net/http"

	"entity-learning-service/internal/models"
	"entity-learning-service/internal/registry"

	"github.com/gin-gonic/gin"
)

// ListVersions returns published model versions
func (h *Handler) ListVersions(c *gin.Context) {
	versions, err := h.learner.Versions()
	if err != nil {
		h.respondError(c, err, "list versions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"versions": versions,
		"total":    len(versions),
	})
}

// CurrentVersion returns the version in use
func (h *Handler) CurrentVersion(c *gin.Context) {
	current, err := h.learner.CurrentVersion()
	if err != nil {
		h.respondError(c, err, "get current version")
		return
	}
	if current == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no published version"})
		return
	}

	c.JSON(http.StatusOK, current)
}

// Publish archives an artifact as a new version; an empty source publishes the active model
func (h *Handler) Publish(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := registry.PublishOptions{
		Accuracy:            req.Accuracy,
		SampleCount:         req.SampleCount,
		Parameters:          req.Parameters,
		BlockOnRegression:   h.cfg.BlockOnRegression,
		RegressionThreshold: h.cfg.RegressionThreshold,
	}
	if req.BlockOnRegression != nil {
		opts.BlockOnRegression = *req.BlockOnRegression
	}
	if req.RegressionThreshold != nil {
		opts.RegressionThreshold = *req.RegressionThreshold
	}

	info, err := h.learner.Publish(req.SourcePath, opts)
	if err != nil {
		h.respondError(c, err, "publish")
		return
	}

	c.JSON(http.StatusCreated, info)
}

// Rollback restores an archived version and reloads the live model
func (h *Handler) Rollback(c *gin.Context) {
	var req models.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := h.learner.Rollback(req.Version)
	if err != nil {
		h.respondError(c, err, "rollback")
		return
	}

	c.JSON(http.StatusOK, info)
}

package handler

import (
	"fmt"

	"entity-learning-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExportCSV exports annotated texts of a scenario to CSV
func (h *Handler) ExportCSV(c *gin.Context) {
	h.export(c, service.FormatCSV, "text/csv")
}

// ExportJSON exports annotated texts of a scenario to JSON
func (h *Handler) ExportJSON(c *gin.Context) {
	h.export(c, service.FormatJSON, "application/json")
}

func (h *Handler) export(c *gin.Context, format, contentType string) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.learner.GetScenario(id); err != nil {
		h.respondError(c, err, "export")
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=scenario_%d.%s", id, format))

	verifiedOnly := c.DefaultQuery("verified", "true") == "true"
	if err := h.learner.Export(c.Writer, id, format, verifiedOnly); err != nil {
		h.logger.Error("Export failed", zap.Int64("scenario_id", id), zap.Error(err))
	}
}

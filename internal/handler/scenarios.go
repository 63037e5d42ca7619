package handler

import (
	"net/http"

	"entity-learning-service/internal/models"

	"github.com/gin-gonic/gin"
)

// ListScenarios returns all scenarios
func (h *Handler) ListScenarios(c *gin.Context) {
	scenarios, err := h.learner.ListScenarios()
	if err != nil {
		h.respondError(c, err, "list scenarios")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scenarios": scenarios,
		"total":     len(scenarios),
	})
}

// CreateScenario adds a user-defined scenario
func (h *Handler) CreateScenario(c *gin.Context) {
	var req models.ScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scenario, err := h.learner.CreateScenario(req.Name, req.Description, req.EntityTypes)
	if err != nil {
		h.respondError(c, err, "create scenario")
		return
	}

	c.JSON(http.StatusCreated, scenario)
}

// GetScenario returns one scenario
func (h *Handler) GetScenario(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	scenario, err := h.learner.GetScenario(id)
	if err != nil {
		h.respondError(c, err, "get scenario")
		return
	}

	c.JSON(http.StatusOK, scenario)
}

// DeleteScenario removes a user-defined scenario and its data
func (h *Handler) DeleteScenario(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.learner.DeleteScenario(id); err != nil {
		h.respondError(c, err, "delete scenario")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListTexts returns annotated texts; ?verified=true keeps only verified ones
func (h *Handler) ListTexts(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	texts, err := h.learner.Texts(id, c.Query("verified") == "true")
	if err != nil {
		h.respondError(c, err, "list texts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"texts": texts,
		"total": len(texts),
	})
}

// DeleteText removes one annotated text
func (h *Handler) DeleteText(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.learner.DeleteText(id); err != nil {
		h.respondError(c, err, "delete text")
		return
	}

	c.Status(http.StatusNoContent)
}

// GetStats returns queue and dataset counters of a scenario
func (h *Handler) GetStats(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.learner.Stats(id)
	if err != nil {
		h.respondError(c, err, "get stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

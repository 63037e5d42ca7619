package handler

import (
	"net/http"
	"strconv"

	"entity-learning-service/internal/model"
	"entity-learning-service/internal/models"
	"entity-learning-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Predict runs the live model on a text
func (h *Handler) Predict(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req models.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.learner.Predict(req.Text, id)
	if err != nil {
		h.respondError(c, err, "predict")
		return
	}

	c.JSON(http.StatusOK, res)
}

// SubmitCorrection stores a human-verified labelling
func (h *Handler) SubmitCorrection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req models.CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text, err := h.learner.SubmitCorrection(service.Correction{
		ScenarioID:         id,
		RawText:            req.RawText,
		Entities:           req.Entities,
		OriginalConfidence: req.OriginalConfidence,
		UncertainEntryID:   req.UncertainEntryID,
	})
	if err != nil {
		h.respondError(c, err, "submit correction")
		return
	}

	c.JSON(http.StatusOK, text)
}

// EnqueueUncertain scores texts or a document and queues the least confident ones
func (h *Handler) EnqueueUncertain(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req models.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Texts) == 0 && req.Document == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "texts or document is required"})
		return
	}

	topN := req.TopN
	if topN <= 0 {
		topN = h.cfg.DefaultTopN
	}

	var (
		inserted int
		err      error
	)
	if req.Document != "" {
		inserted, err = h.learner.EnqueueDocument(id, req.Document, topN)
	} else {
		inserted, err = h.learner.EnqueueUncertain(id, req.Texts, topN)
	}
	if err != nil {
		h.respondError(c, err, "enqueue")
		return
	}

	c.JSON(http.StatusOK, gin.H{"inserted": inserted})
}

// ListUncertain returns the review queue, least confident first
func (h *Handler) ListUncertain(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.learner.PendingUncertain(id, limit)
	if err != nil {
		h.respondError(c, err, "list uncertain")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

// SkipUncertain closes a queue entry without a correction
func (h *Handler) SkipUncertain(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req models.SkipRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.learner.SkipUncertain(id, req.Reason); err != nil {
		h.respondError(c, err, "skip")
		return
	}

	c.JSON(http.StatusOK, gin.H{"skipped": id})
}

// StartTraining starts an async incremental training job
func (h *Handler) StartTraining(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req models.TrainRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	params := model.Params{
		Epochs:       req.Epochs,
		TestFraction: req.TestFraction,
		MinFrequency: req.MinFrequency,
	}
	if req.Seed != nil {
		params.Seed = *req.Seed
	}

	job, err := h.jobs.Start(id, params)
	if err != nil {
		h.respondError(c, err, "start training")
		return
	}

	h.logger.Info("Training requested", zap.String("job_id", job.ID), zap.Int64("scenario_id", id))
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Training started. Check /api/v1/jobs/" + job.ID + " for status",
	})
}

// GetJobStatus returns training job status
func (h *Handler) GetJobStatus(c *gin.Context) {
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "get job")
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs returns the training jobs of a scenario
func (h *Handler) ListJobs(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	jobs, err := h.jobs.List(id)
	if err != nil {
		h.respondError(c, err, "list jobs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// CancelJob requests cancellation of a running job
func (h *Handler) CancelJob(c *gin.Context) {
	jobID := c.Param("id")
	if err := h.jobs.Cancel(jobID); err != nil {
		h.respondError(c, err, "cancel job")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": "cancelling"})
}

// ListSessions returns the training audit log of a scenario
func (h *Handler) ListSessions(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	sessions, err := h.learner.Sessions(id)
	if err != nil {
		h.respondError(c, err, "list sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// Evaluate runs k-fold evaluation of the live model on verified texts
func (h *Handler) Evaluate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req models.EvaluateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	}

	metrics, err := h.learner.EvaluateCurrent(id, req.Folds, seed)
	if err != nil {
		h.respondError(c, err, "evaluate")
		return
	}

	c.JSON(http.StatusOK, metrics)
}

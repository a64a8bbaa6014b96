package publishing

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/drewmudry/cadence-api/internal/apperr"
	"github.com/drewmudry/cadence-api/models"
	"github.com/drewmudry/cadence-api/tasks"
)

// Enqueuer schedules a tracked background task.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}) (models.BackgroundTask, error)
}

type Handler struct {
	Dispatcher *Dispatcher
	Tasks      Enqueuer
}

func NewHandler(d *Dispatcher, q Enqueuer) *Handler {
	return &Handler{Dispatcher: d, Tasks: q}
}

type PublishNowRequest struct {
	DraftID uint `json:"draftId"`
}

// RunDue handles GET|POST /publishing/run.
func (h *Handler) RunDue(c *gin.Context) {
	limit := DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}

	res, err := h.Dispatcher.RunDue(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("[DISPATCH] run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run due drafts"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// PublishNow handles POST /publishing/publish-now. With ?async=true the
// draft is queued and the tracked task is returned.
func (h *Handler) PublishNow(c *gin.Context) {
	var req PublishNowRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DraftID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "draftId is required"})
		return
	}

	if c.Query("async") == "true" && h.Tasks != nil {
		task, err := h.Tasks.Enqueue(c.Request.Context(), tasks.QueuePublishDraft, tasks.PublishDraftPayload{DraftID: req.DraftID})
		if err != nil {
			logrus.WithError(err).WithField("draft_id", req.DraftID).Error("[DISPATCH] enqueue publish-now failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue publish"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "status": task.Status})
		return
	}

	res, err := h.Dispatcher.PublishNow(c.Request.Context(), req.DraftID)
	if err != nil {
		var nf apperr.NotFoundError
		if errors.As(err, &nf) {
			c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
			return
		}
		logrus.WithError(err).WithField("draft_id", req.DraftID).Error("[DISPATCH] publish-now failed")
		c.JSON(apperr.StatusCode(err), gin.H{"error": "Failed to publish draft"})
		return
	}
	c.JSON(http.StatusOK, res)
}

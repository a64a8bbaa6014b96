package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/drewmudry/cadence-api/drafts"
	"github.com/drewmudry/cadence-api/models"
	"github.com/drewmudry/cadence-api/publishing"
	"github.com/drewmudry/cadence-api/tasks"
)

// HandlePublishDraft processes tasks from QueuePublishDraft.
func HandlePublishDraft(d *publishing.Dispatcher) TaskHandler {
	return func(ctx context.Context, payload []byte) (any, error) {
		var task tasks.PublishDraftPayload
		if err := json.Unmarshal(payload, &task); err != nil {
			return nil, err
		}
		logrus.WithField("draft_id", task.DraftID).Info("[WORKER] publishing draft")
		return d.PublishNow(ctx, task.DraftID)
	}
}

// HandleMaterializeBrand processes tasks from QueueMaterializeBrand.
func HandleMaterializeBrand(n *drafts.Nightly) TaskHandler {
	return func(ctx context.Context, payload []byte) (any, error) {
		var task tasks.MaterializeBrandPayload
		if err := json.Unmarshal(payload, &task); err != nil {
			return nil, err
		}
		logrus.WithField("brand_id", task.BrandID).Info("[WORKER] materializing brand")
		return n.MaterializeBrand(ctx, task.BrandID)
	}
}

// Register wires every task kind onto p.
func Register(p *Processor, d *publishing.Dispatcher, n *drafts.Nightly) {
	p.Register(tasks.QueuePublishDraft, HandlePublishDraft(d))
	p.Register(tasks.QueueMaterializeBrand, HandleMaterializeBrand(n))
}

// GetTask handles GET /tasks/:id.
func GetTask(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var task models.BackgroundTask
		err := db.WithContext(c.Request.Context()).First(&task, "id = ?", c.Param("id")).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load task"})
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

package drafts

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/drewmudry/cadence-api/internal/apperr"
	"github.com/drewmudry/cadence-api/models"
	"github.com/drewmudry/cadence-api/recurrence"
)

type Handler struct {
	DB      *gorm.DB
	Nightly *Nightly
}

func NewHandler(db *gorm.DB, n *Nightly) *Handler {
	return &Handler{DB: db, Nightly: n}
}

// GenerateAll handles POST /drafts/generate-all.
func (h *Handler) GenerateAll(c *gin.Context) {
	res, err := h.Nightly.GenerateAll(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("[NIGHTLY] generate-all failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate drafts"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// OccurrenceRequest creates or patches a specific-date rule. Every field is
// optional on PATCH.
type OccurrenceRequest struct {
	Title         *string  `json:"title"`
	StartDate     *string  `json:"start_date"`
	EndDate       *string  `json:"end_date"`
	DaysBefore    []int    `json:"days_before"`
	DaysDuring    []int    `json:"days_during"`
	TimesOfDay    []string `json:"times_of_day"`
	Channels      []string `json:"channels"`
	Timezone      *string  `json:"timezone"`
	IsActive      *bool    `json:"is_active"`
	FirstRunMonth *string  `json:"first_run_month"`
	LastRunMonth  *string  `json:"last_run_month"`
}

func parseDate(field, s string) (*datatypes.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, apperr.ValidationError(fmt.Sprintf("%s: want YYYY-MM-DD", field))
	}
	d := datatypes.Date(t)
	return &d, nil
}

// apply copies the fields present in req onto rule.
func (req OccurrenceRequest) apply(rule *models.ScheduleRule) error {
	if req.Title != nil {
		rule.Title = *req.Title
	}
	if req.StartDate != nil {
		d, err := parseDate("start_date", *req.StartDate)
		if err != nil {
			return err
		}
		rule.StartDate = d
	}
	if req.EndDate != nil {
		d, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			return err
		}
		rule.EndDate = d
	}
	if req.DaysBefore != nil {
		rule.DaysBefore = req.DaysBefore
	}
	if req.DaysDuring != nil {
		rule.DaysDuring = req.DaysDuring
	}
	if req.TimesOfDay != nil {
		rule.TimesOfDay = req.TimesOfDay
	}
	if req.Channels != nil {
		rule.Channels = req.Channels
	}
	if req.Timezone != nil {
		rule.Timezone = *req.Timezone
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.FirstRunMonth != nil {
		rule.FirstRunMonth = req.FirstRunMonth
	}
	if req.LastRunMonth != nil {
		rule.LastRunMonth = req.LastRunMonth
	}
	return nil
}

func respondError(c *gin.Context, err error, fallback string) {
	var coded apperr.Coded
	if errors.As(err, &coded) {
		c.JSON(coded.StatusCode(), gin.H{"error": coded.Error()})
		return
	}
	logrus.WithError(err).Error("[OCCURRENCES] " + fallback)
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}

// CreateOccurrence handles POST /subcategories/:id/occurrences.
func (h *Handler) CreateOccurrence(c *gin.Context) {
	subID, ok := idParam(c)
	if !ok {
		return
	}

	var req OccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sub models.Subcategory
	if err := h.DB.Preload("Brand").First(&sub, subID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Subcategory not found"})
			return
		}
		respondError(c, err, "Failed to load subcategory")
		return
	}

	rule := models.ScheduleRule{
		BrandID:       sub.BrandID,
		SubcategoryID: sub.ID,
		Frequency:     models.FrequencySpecific,
		Timezone:      sub.Brand.Timezone,
		IsActive:      true,
	}
	if err := req.apply(&rule); err != nil {
		respondError(c, err, "Invalid occurrence")
		return
	}
	if err := recurrence.Validate(rule); err != nil {
		respondError(c, err, "Invalid occurrence")
		return
	}

	if err := h.DB.Create(&rule).Error; err != nil {
		respondError(c, err, "Failed to create occurrence")
		return
	}
	// is_active defaults to true in the schema, so an explicit false needs
	// its own write.
	if !rule.IsActive {
		if err := h.DB.Model(&rule).Update("is_active", false).Error; err != nil {
			respondError(c, err, "Failed to create occurrence")
			return
		}
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) loadOccurrence(c *gin.Context) (models.ScheduleRule, bool) {
	var rule models.ScheduleRule
	id, ok := idParam(c)
	if !ok {
		return rule, false
	}
	err := h.DB.Where("frequency = ?", models.FrequencySpecific).First(&rule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Occurrence not found"})
		return rule, false
	}
	if err != nil {
		respondError(c, err, "Failed to load occurrence")
		return rule, false
	}
	return rule, true
}

// UpdateOccurrence handles PATCH /occurrences/:id.
func (h *Handler) UpdateOccurrence(c *gin.Context) {
	rule, ok := h.loadOccurrence(c)
	if !ok {
		return
	}

	var req OccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.apply(&rule); err != nil {
		respondError(c, err, "Invalid occurrence")
		return
	}
	if err := recurrence.Validate(rule); err != nil {
		respondError(c, err, "Invalid occurrence")
		return
	}

	if err := h.DB.Save(&rule).Error; err != nil {
		respondError(c, err, "Failed to update occurrence")
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteOccurrence handles DELETE /occurrences/:id as a soft delete.
func (h *Handler) DeleteOccurrence(c *gin.Context) {
	rule, ok := h.loadOccurrence(c)
	if !ok {
		return
	}
	if err := h.DB.Delete(&rule).Error; err != nil {
		respondError(c, err, "Failed to delete occurrence")
		return
	}
	c.Status(http.StatusNoContent)
}

// Package drafts turns computed occurrences into persisted drafts and exposes
// the nightly batch and occurrence endpoints.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/drewmudry/cadence-api/internal/metrics"
	"github.com/drewmudry/cadence-api/models"
	"github.com/drewmudry/cadence-api/processing"
	"github.com/drewmudry/cadence-api/recurrence"
)

// Result counts what happened to each occurrence handed to Materialize.
type Result struct {
	Created   int `json:"created"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Generated int `json:"generated"`
}

func (r *Result) add(o Result) {
	r.Created += o.Created
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Generated += o.Generated
}

// Materializer creates one draft and its post jobs per new occurrence.
type Materializer struct {
	DB        *gorm.DB
	Generator processing.Generator
}

func NewMaterializer(db *gorm.DB, gen processing.Generator) *Materializer {
	if gen == nil {
		gen = processing.Noop{}
	}
	return &Materializer{DB: db, Generator: gen}
}

// Materialize is safe to re-run: occurrences that already have an active
// draft are skipped. A failure on one occurrence does not stop the others.
// The returned error is only set when the brand cannot be loaded or ctx is
// cancelled.
func (m *Materializer) Materialize(ctx context.Context, brandID uint, occs []recurrence.Occurrence) (Result, error) {
	var res Result

	var brand models.Brand
	if err := m.DB.WithContext(ctx).First(&brand, brandID).Error; err != nil {
		return res, fmt.Errorf("load brand %d: %w", brandID, err)
	}

	subs := make(map[uint]*models.Subcategory)
	for _, occ := range occs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		entry := logrus.WithFields(logrus.Fields{
			"brand_id":       brandID,
			"subcategory_id": occ.SubcategoryID,
			"scheduled_for":  occ.ScheduledFor,
			"offset_key":     occ.OffsetKey,
		})

		exists, err := m.activeDraftExists(ctx, occ)
		if err != nil {
			entry.WithError(err).Error("[MATERIALIZE] existence check failed")
			res.Failed++
			metrics.DraftsMaterialized.WithLabelValues("failed").Inc()
			continue
		}
		if exists {
			res.Skipped++
			metrics.DraftsMaterialized.WithLabelValues("skipped").Inc()
			continue
		}

		sub, ok := subs[occ.SubcategoryID]
		if !ok {
			sub = &models.Subcategory{}
			if err := m.DB.WithContext(ctx).First(sub, occ.SubcategoryID).Error; err != nil {
				entry.WithError(err).Warn("[MATERIALIZE] subcategory lookup failed, generating without theme")
				sub = &models.Subcategory{ID: occ.SubcategoryID}
			}
			subs[occ.SubcategoryID] = sub
		}

		text, genErr := m.Generator.Generate(ctx, processing.Request{
			BrandName:    brand.Name,
			Subcategory:  sub.Name,
			Theme:        sub.Prompt,
			Channels:     occ.Channels,
			ScheduledFor: occ.ScheduledFor,
			Timezone:     occ.Timezone,
		})
		if genErr != nil {
			entry.WithError(genErr).Warn("[MATERIALIZE] copy generation failed, creating empty draft")
			text = processing.Copy{}
		} else {
			res.Generated++
		}

		switch err := m.insert(ctx, brandID, occ, text); {
		case err == nil:
			res.Created++
			metrics.DraftsMaterialized.WithLabelValues("created").Inc()
		case isUniqueViolation(err):
			entry.Debug("[MATERIALIZE] draft created concurrently, skipping")
			res.Skipped++
			metrics.DraftsMaterialized.WithLabelValues("skipped").Inc()
		default:
			entry.WithError(err).Error("[MATERIALIZE] insert failed")
			res.Failed++
			metrics.DraftsMaterialized.WithLabelValues("failed").Inc()
		}
	}

	logrus.WithFields(logrus.Fields{
		"brand_id":  brandID,
		"created":   res.Created,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
		"generated": res.Generated,
	}).Info("[MATERIALIZE] brand done")
	return res, nil
}

func (m *Materializer) activeDraftExists(ctx context.Context, occ recurrence.Occurrence) (bool, error) {
	var n int64
	err := m.DB.WithContext(ctx).Model(&models.Draft{}).
		Where("subcategory_id = ? AND scheduled_for = ? AND occurrence_key = ? AND archived_at IS NULL",
			occ.SubcategoryID, occ.ScheduledFor.UTC(), occ.OffsetKey).
		Count(&n).Error
	return n > 0, err
}

func (m *Materializer) insert(ctx context.Context, brandID uint, occ recurrence.Occurrence, text processing.Copy) error {
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ruleID := occ.RuleID
		draft := models.Draft{
			BrandID:        brandID,
			SubcategoryID:  occ.SubcategoryID,
			ScheduledFor:   occ.ScheduledFor.UTC(),
			OccurrenceKey:  occ.OffsetKey,
			Approved:       false,
			Status:         models.DraftStatusDraft,
			ScheduleSource: models.ScheduleSourceFramework,
			Caption:        text.Caption,
			Hashtags:       text.Hashtags,
			MediaURLs:      []string{},
		}
		if ruleID != 0 {
			draft.ScheduleRuleID = &ruleID
		}
		if draft.Hashtags == nil {
			draft.Hashtags = []string{}
		}
		if err := tx.Omit("PostJobs").Create(&draft).Error; err != nil {
			return err
		}

		jobs := make([]models.PostJob, 0, len(occ.Channels))
		for _, ch := range occ.Channels {
			jobs = append(jobs, models.PostJob{
				DraftID: draft.ID,
				Channel: ch,
				Status:  models.PostJobStatusPending,
			})
		}
		if len(jobs) == 0 {
			return nil
		}
		return tx.Create(&jobs).Error
	})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

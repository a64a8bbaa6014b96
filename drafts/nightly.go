package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/drewmudry/cadence-api/internal/apperr"
	"github.com/drewmudry/cadence-api/internal/clock"
	"github.com/drewmudry/cadence-api/models"
	"github.com/drewmudry/cadence-api/recurrence"
)

// BrandResult is the outcome of materializing one brand.
type BrandResult struct {
	BrandID      uint `json:"brand_id"`
	TargetsFound int  `json:"targets_found"`
	InvalidRules int  `json:"invalid_rules"`
	Result
}

type BrandError struct {
	BrandID uint   `json:"brand_id"`
	Error   string `json:"error"`
}

// BatchResult accumulates counts across every active brand.
type BatchResult struct {
	Brands       int          `json:"brands"`
	TargetsFound int          `json:"targets_found"`
	InvalidRules int          `json:"invalid_rules"`
	BrandErrors  []BrandError `json:"brand_errors"`
	Result
}

// Nightly expands and materializes every active rule for the current month
// and MonthsAhead following months.
type Nightly struct {
	DB           *gorm.DB
	Materializer *Materializer
	Clock        clock.Clock
	MonthsAhead  int
}

func NewNightly(db *gorm.DB, m *Materializer, clk clock.Clock, monthsAhead int) *Nightly {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Nightly{DB: db, Materializer: m, Clock: clk, MonthsAhead: monthsAhead}
}

// GenerateAll walks every active brand. A brand that fails is recorded and
// the walk continues; only failing to list brands returns an error.
func (n *Nightly) GenerateAll(ctx context.Context) (BatchResult, error) {
	res := BatchResult{BrandErrors: []BrandError{}}

	var brandIDs []uint
	if err := n.DB.WithContext(ctx).Model(&models.Brand{}).
		Where("is_active = ?", true).Order("id").Pluck("id", &brandIDs).Error; err != nil {
		return res, fmt.Errorf("list active brands: %w", err)
	}

	for _, id := range brandIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Brands++
		br, err := n.MaterializeBrand(ctx, id)
		res.TargetsFound += br.TargetsFound
		res.InvalidRules += br.InvalidRules
		res.add(br.Result)
		if err != nil {
			logrus.WithError(err).WithField("brand_id", id).Error("[NIGHTLY] brand failed, continuing")
			res.BrandErrors = append(res.BrandErrors, BrandError{BrandID: id, Error: err.Error()})
		}
	}

	logrus.WithFields(logrus.Fields{
		"brands":        res.Brands,
		"targets_found": res.TargetsFound,
		"created":       res.Created,
		"skipped":       res.Skipped,
		"generated":     res.Generated,
		"failed":        res.Failed,
		"brand_errors":  len(res.BrandErrors),
	}).Info("[NIGHTLY] generate-all finished")
	return res, nil
}

// MaterializeBrand expands one brand's active rules. Rules that fail
// validation are counted and skipped.
func (n *Nightly) MaterializeBrand(ctx context.Context, brandID uint) (BrandResult, error) {
	res := BrandResult{BrandID: brandID}

	var brand models.Brand
	if err := n.DB.WithContext(ctx).First(&brand, brandID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return res, apperr.NotFoundError(fmt.Sprintf("brand %d not found", brandID))
		}
		return res, fmt.Errorf("load brand %d: %w", brandID, err)
	}

	var rules []models.ScheduleRule
	if err := n.DB.WithContext(ctx).
		Where("brand_id = ? AND is_active = ?", brandID, true).
		Order("id").Find(&rules).Error; err != nil {
		return res, fmt.Errorf("load rules for brand %d: %w", brandID, err)
	}

	now := n.Clock.Now()
	start := recurrence.MonthOf(now.In(brandLocation(brand)))

	var occs []recurrence.Occurrence
	for _, rule := range rules {
		for i := 0; i <= n.MonthsAhead; i++ {
			got, err := recurrence.Expand(rule, start.Add(i), now)
			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"brand_id": brandID,
					"rule_id":  rule.ID,
				}).Warn("[NIGHTLY] skipping invalid rule")
				res.InvalidRules++
				break
			}
			occs = append(occs, got...)
		}
	}
	res.TargetsFound = len(occs)

	mr, err := n.Materializer.Materialize(ctx, brandID, occs)
	res.Result = mr
	return res, err
}

func brandLocation(b models.Brand) *time.Location {
	if b.Timezone != "" {
		if loc, err := time.LoadLocation(b.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

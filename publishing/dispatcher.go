// Package publishing drives approved drafts through their per-channel
// publish attempts and explains the result.
package publishing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/drewmudry/cadence-api/internal/apperr"
	"github.com/drewmudry/cadence-api/internal/clock"
	"github.com/drewmudry/cadence-api/internal/metrics"
	"github.com/drewmudry/cadence-api/models"
	"github.com/drewmudry/cadence-api/providers"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// PublisherSource resolves a channel to the adapter that publishes it.
type PublisherSource interface {
	For(ch models.Channel) (providers.Publisher, models.Provider, bool)
}

type JobView struct {
	ID            uint                 `json:"id"`
	Channel       models.Channel       `json:"channel"`
	Status        models.PostJobStatus `json:"status"`
	ErrorKind     *models.ErrorKind    `json:"error_kind,omitempty"`
	Error         *string              `json:"error,omitempty"`
	ExternalURL   *string              `json:"external_url,omitempty"`
	LastAttemptAt *time.Time           `json:"last_attempt_at,omitempty"`
}

// DraftResult is the state of one draft after a dispatch pass.
type DraftResult struct {
	DraftID     uint               `json:"draft_id"`
	Status      models.DraftStatus `json:"status"`
	Attempted   int                `json:"attempted"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Jobs        []JobView          `json:"jobs"`
	Remediation *Remediation       `json:"remediation,omitempty"`
}

type RunResult struct {
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Drafts    []DraftResult `json:"drafts"`
}

// Dispatcher publishes pending post jobs. Every job write is guarded by the
// job's prior status, so overlapping runs never double-record an outcome.
type Dispatcher struct {
	DB          *gorm.DB
	Publishers  PublisherSource
	Clock       clock.Clock
	Concurrency int
}

func NewDispatcher(db *gorm.DB, pubs PublisherSource, clk clock.Clock, concurrency int) *Dispatcher {
	if clk == nil {
		clk = clock.Real{}
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{DB: db, Publishers: pubs, Clock: clk, Concurrency: concurrency}
}

// ClampLimit applies the default and the upper bound to a requested limit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// RunDue dispatches approved drafts that are due, oldest first. Drafts
// without pending jobs are not selected.
func (d *Dispatcher) RunDue(ctx context.Context, limit int) (RunResult, error) {
	res := RunResult{Drafts: []DraftResult{}}
	limit = ClampLimit(limit)

	var ids []uint
	err := d.DB.WithContext(ctx).Model(&models.Draft{}).
		Where("approved = ? AND status IN ? AND scheduled_for <= ? AND archived_at IS NULL",
			true, DispatchableStatuses, d.Clock.Now()).
		Where("EXISTS (SELECT 1 FROM post_jobs WHERE post_jobs.draft_id = drafts.id AND post_jobs.status = ?)",
			models.PostJobStatusPending).
		Order("scheduled_for ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return res, fmt.Errorf("select due drafts: %w", err)
	}

	results := make([]*DraftResult, len(ids))
	var g errgroup.Group
	g.SetLimit(d.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			dr, err := d.dispatchDraft(ctx, id)
			if err != nil {
				logrus.WithError(err).WithField("draft_id", id).Error("[DISPATCH] draft pass failed")
				return nil
			}
			results[i] = &dr
			return nil
		})
	}
	_ = g.Wait()

	for _, dr := range results {
		if dr == nil {
			continue
		}
		res.Attempted += dr.Attempted
		res.Succeeded += dr.Succeeded
		res.Failed += dr.Failed
		res.Drafts = append(res.Drafts, *dr)
	}
	metrics.DispatchRuns.Inc()

	logrus.WithFields(logrus.Fields{
		"drafts":    len(res.Drafts),
		"attempted": res.Attempted,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
	}).Info("[DISPATCH] run finished")
	return res, nil
}

// PublishNow re-queues a draft's failed jobs and dispatches it immediately.
func (d *Dispatcher) PublishNow(ctx context.Context, draftID uint) (DraftResult, error) {
	var draft models.Draft
	if err := d.DB.WithContext(ctx).Where("archived_at IS NULL").First(&draft, draftID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DraftResult{}, apperr.NotFoundError(fmt.Sprintf("draft %d not found", draftID))
		}
		return DraftResult{}, fmt.Errorf("load draft %d: %w", draftID, err)
	}

	reset := d.DB.WithContext(ctx).Model(&models.PostJob{}).
		Where("draft_id = ? AND status = ?", draftID, models.PostJobStatusFailed).
		Updates(map[string]any{
			"status":     models.PostJobStatusPending,
			"error_kind": nil,
			"error":      nil,
		})
	if reset.Error != nil {
		return DraftResult{}, fmt.Errorf("reset failed jobs: %w", reset.Error)
	}
	if reset.RowsAffected > 0 {
		logrus.WithFields(logrus.Fields{"draft_id": draftID, "jobs": reset.RowsAffected}).Info("[DISPATCH] failed jobs reset for retry")
	}

	return d.dispatchDraft(ctx, draftID)
}

func (d *Dispatcher) dispatchDraft(ctx context.Context, draftID uint) (DraftResult, error) {
	res := DraftResult{DraftID: draftID}

	var draft models.Draft
	if err := d.DB.WithContext(ctx).Preload("PostJobs").First(&draft, draftID).Error; err != nil {
		return res, fmt.Errorf("load draft %d: %w", draftID, err)
	}

	accounts, err := d.accounts(ctx, draft.BrandID)
	if err != nil {
		return res, err
	}

	content := func(ch models.Channel) providers.Content {
		return providers.Content{
			Channel:   ch,
			Caption:   draft.Caption,
			Hashtags:  draft.Hashtags,
			MediaURLs: draft.MediaURLs,
		}
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(d.Concurrency)
	for _, job := range draft.PostJobs {
		if job.Status != models.PostJobStatusPending {
			continue
		}
		g.Go(func() error {
			out, recorded := d.attempt(ctx, job, accounts, content(job.Channel))
			if !recorded {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			res.Attempted++
			if out.Success() {
				res.Succeeded++
			} else {
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	// Committed outcomes are folded even when ctx was cancelled mid-pass.
	return d.refresh(context.WithoutCancel(ctx), draft, res)
}

// attempt publishes one job and records the outcome. recorded is false when
// the outcome was discarded because ctx ended or another run got there first.
func (d *Dispatcher) attempt(ctx context.Context, job models.PostJob, accounts map[models.Provider]models.SocialAccount, content providers.Content) (providers.Outcome, bool) {
	entry := logrus.WithFields(logrus.Fields{"draft_id": job.DraftID, "job_id": job.ID, "channel": job.Channel})

	var out providers.Outcome
	pub, provider, ok := d.Publishers.For(job.Channel)
	acct, connected := accounts[provider]
	switch {
	case !ok:
		out = providers.Outcome{Kind: providers.OutcomePermanent, Message: fmt.Sprintf("unsupported channel %q", job.Channel)}
	case !connected:
		out = providers.Outcome{Kind: providers.OutcomeAuth, Message: fmt.Sprintf("no %s account is connected", provider.Label())}
	case !acct.Connected():
		out = providers.Outcome{Kind: providers.OutcomeAuth, Message: fmt.Sprintf("%s account is %s", provider.Label(), acct.Status)}
	default:
		out = pub.Publish(ctx, acct, content)
	}

	if ctx.Err() != nil {
		if !out.Success() {
			entry.Warn("[DISPATCH] context ended, leaving job pending")
			return out, false
		}
		// Successes are committed even after ctx ends.
		ctx = context.WithoutCancel(ctx)
	}

	recorded, err := d.record(ctx, job, acct, connected, out)
	if err != nil {
		entry.WithError(err).Error("[DISPATCH] failed to record outcome")
		return out, false
	}
	if !recorded {
		entry.Info("[DISPATCH] job already recorded by another run")
		return out, false
	}

	metrics.PublishAttempts.WithLabelValues(string(provider), string(out.Kind)).Inc()
	if out.Success() {
		entry.WithField("external_id", out.ExternalID).Info("[DISPATCH] published")
	} else {
		entry.WithFields(logrus.Fields{"kind": out.Kind, "message": out.Message}).Warn("[DISPATCH] publish failed")
	}
	return out, true
}

func (d *Dispatcher) record(ctx context.Context, job models.PostJob, acct models.SocialAccount, hasAccount bool, out providers.Outcome) (bool, error) {
	now := d.Clock.Now()
	recorded := false

	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
		}
		if out.Success() {
			updates["status"] = models.PostJobStatusSuccess
			updates["error_kind"] = nil
			updates["error"] = nil
			updates["external_post_id"] = out.ExternalID
			updates["external_url"] = out.ExternalURL
		} else {
			updates["status"] = models.PostJobStatusFailed
			updates["error_kind"] = out.ErrorKind()
			updates["error"] = out.Message
		}

		result := tx.Model(&models.PostJob{}).
			Where("id = ? AND status = ?", job.ID, models.PostJobStatusPending).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		recorded = true

		if out.Success() {
			if err := tx.Create(&models.Publish{
				PostJobID:      job.ID,
				DraftID:        job.DraftID,
				Channel:        job.Channel,
				ExternalPostID: out.ExternalID,
				ExternalURL:    out.ExternalURL,
				PublishedAt:    now,
			}).Error; err != nil {
				return err
			}
		}

		if out.Kind == providers.OutcomeAuth && hasAccount {
			return tx.Model(&models.SocialAccount{}).
				Where("id = ? AND status = ?", acct.ID, models.AccountStatusConnected).
				Updates(map[string]any{
					"status":        models.AccountStatusExpired,
					"status_reason": out.Message,
				}).Error
		}
		return nil
	})
	return recorded, err
}

// refresh reloads the jobs, folds them into the draft status and attaches a
// remediation when the draft failed or partially published.
func (d *Dispatcher) refresh(ctx context.Context, draft models.Draft, res DraftResult) (DraftResult, error) {
	var jobs []models.PostJob
	if err := d.DB.WithContext(ctx).Where("draft_id = ?", draft.ID).Order("id").Find(&jobs).Error; err != nil {
		return res, fmt.Errorf("reload jobs for draft %d: %w", draft.ID, err)
	}

	status := FoldJobs(jobs)
	updates := map[string]any{"status": status}
	if status == models.DraftStatusPublished && draft.PublishedAt == nil {
		updates["published_at"] = d.Clock.Now()
	}
	if err := d.DB.WithContext(ctx).Model(&models.Draft{}).Where("id = ?", draft.ID).Updates(updates).Error; err != nil {
		return res, fmt.Errorf("update draft %d status: %w", draft.ID, err)
	}

	res.Status = status
	res.Jobs = make([]JobView, len(jobs))
	for i, j := range jobs {
		res.Jobs[i] = JobView{
			ID:            j.ID,
			Channel:       j.Channel,
			Status:        j.Status,
			ErrorKind:     j.ErrorKind,
			Error:         j.Error,
			ExternalURL:   j.ExternalURL,
			LastAttemptAt: j.LastAttemptAt,
		}
	}

	if NeedsRemediation(status) {
		accounts, err := d.accounts(ctx, draft.BrandID)
		if err != nil {
			return res, err
		}
		list := make([]models.SocialAccount, 0, len(accounts))
		for _, a := range accounts {
			list = append(list, a)
		}
		if r, ok := Resolve(draft.BrandID, status, jobs, list, d.Clock.Now()); ok {
			res.Remediation = &r
		}
	}
	return res, nil
}

func (d *Dispatcher) accounts(ctx context.Context, brandID uint) (map[models.Provider]models.SocialAccount, error) {
	var list []models.SocialAccount
	if err := d.DB.WithContext(ctx).Where("brand_id = ?", brandID).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("load accounts for brand %d: %w", brandID, err)
	}
	out := make(map[models.Provider]models.SocialAccount, len(list))
	for _, a := range list {
		out[a.Provider] = a
	}
	return out, nil
}

package publishing

import (
	"context"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewmudry/cadence-api/drafts"
	"github.com/drewmudry/cadence-api/models"
	"github.com/drewmudry/cadence-api/processing"
	"github.com/drewmudry/cadence-api/providers"
	"github.com/drewmudry/cadence-api/recurrence"
)

// A weekly Monday/Thursday rule in Auckland goes from expansion through a
// dispatch where Instagram rejects the token and Facebook succeeds.
func TestWeeklyAucklandEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.account(t, models.ProviderFacebook, models.AccountStatusConnected)
	f.account(t, models.ProviderInstagram, models.AccountStatusConnected)
	f.pub.outcomes[models.ChannelInstagramFeed] = providers.Outcome{Kind: providers.OutcomeAuth, Message: "Error validating access token (code 190)"}

	rule := models.ScheduleRule{
		ID:            1,
		BrandID:       f.brand.ID,
		SubcategoryID: f.sub.ID,
		Frequency:     models.FrequencyWeekly,
		DaysOfWeek:    []int{1, 4},
		TimesOfDay:    []string{"10:00"},
		Timezone:      "Pacific/Auckland",
		Channels:      []string{"facebook", "instagram_feed"},
		IsActive:      true,
	}
	now := time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)
	occs, err := recurrence.Expand(rule, recurrence.Month{Year: 2026, Month: time.March}, now)
	require.NoError(t, err)
	require.Len(t, occs, 9)

	m := drafts.NewMaterializer(f.db, processing.Noop{})
	res, err := m.Materialize(context.Background(), f.brand.ID, occs)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Created)

	again, err := m.Materialize(context.Background(), f.brand.ID, occs)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 9, again.Skipped)

	var all []models.Draft
	require.NoError(t, f.db.Preload("PostJobs").Order("scheduled_for").Find(&all).Error)
	require.Len(t, all, 9)
	for _, d := range all {
		require.Len(t, d.PostJobs, 2)
		assert.Equal(t, models.DraftStatusDraft, d.Status)
		assert.Equal(t, models.ScheduleSourceFramework, d.ScheduleSource)
		assert.False(t, d.Approved)
	}

	first := all[0]
	require.NoError(t, f.db.Model(&first).Update("approved", true).Error)
	f.clock.Set(first.ScheduledFor.Add(time.Minute))

	run, err := f.d.RunDue(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, run.Drafts, 1, "unapproved and future drafts are not dispatched")

	dr := run.Drafts[0]
	assert.Equal(t, first.ID, dr.DraftID)
	assert.Equal(t, models.DraftStatusPartiallyPublished, dr.Status)
	require.NotNil(t, dr.Remediation)

	r := dr.Remediation
	assert.Equal(t, SeverityWarning, r.Severity)
	assert.Equal(t, "Published to Facebook, but failed on Instagram Feed", r.Headline)

	var reconnect, retry []Action
	for _, a := range r.Actions {
		switch a.Type {
		case ActionReconnect:
			reconnect = append(reconnect, a)
		case ActionRetry:
			retry = append(retry, a)
		}
	}
	require.Len(t, reconnect, 1)
	assert.Equal(t, models.ProviderInstagram, reconnect[0].Provider)
	assert.Equal(t, fmt.Sprintf("/oauth/instagram/start?brandId=%d", f.brand.ID), reconnect[0].URL)
	require.Len(t, retry, 1)
	assert.Equal(t, []models.Channel{models.ChannelInstagramFeed}, retry[0].Channels)
}

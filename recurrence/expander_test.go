package recurrence

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/drewmudry/cadence-api/internal/apperr"
	"github.com/drewmudry/cadence-api/models"
)

var march2026 = Month{Year: 2026, Month: time.March}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func date(y int, m time.Month, d int) *datatypes.Date {
	v := datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	return &v
}

func baseRule(freq models.Frequency) models.ScheduleRule {
	return models.ScheduleRule{
		ID:            7,
		BrandID:       1,
		SubcategoryID: 3,
		Frequency:     freq,
		TimesOfDay:    []string{"09:00"},
		Channels:      []string{"facebook"},
		Timezone:      "UTC",
		IsActive:      true,
	}
}

func localDates(occs []Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.LocalDate
	}
	return out
}

func TestExpandWeeklyAuckland(t *testing.T) {
	rule := baseRule(models.FrequencyWeekly)
	rule.DaysOfWeek = []int{1, 4}
	rule.TimesOfDay = []string{"10:00"}
	rule.Timezone = "Pacific/Auckland"
	rule.Channels = []string{"facebook", "instagram_feed"}

	now := time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)
	occs, err := Expand(rule, march2026, now)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"2026-03-02", "2026-03-05", "2026-03-09", "2026-03-12", "2026-03-16",
		"2026-03-19", "2026-03-23", "2026-03-26", "2026-03-30",
	}, localDates(occs))

	loc, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)
	for _, o := range occs {
		local := o.ScheduledFor.In(loc)
		assert.Equal(t, 10, local.Hour(), o.LocalDate)
		assert.Equal(t, 0, local.Minute(), o.LocalDate)
		assert.Contains(t, []time.Weekday{time.Monday, time.Thursday}, local.Weekday())
		assert.Equal(t, []models.Channel{models.ChannelFacebook, models.ChannelInstagramFeed}, o.Channels)
		assert.Equal(t, "", o.OffsetKey)
		assert.Equal(t, time.UTC, o.ScheduledFor.Location())
	}

	// NZDT is UTC+13 in March.
	assert.Equal(t, time.Date(2026, time.March, 1, 21, 0, 0, 0, time.UTC), occs[0].ScheduledFor)
}

func TestExpandResolvesDSTPerOccurrence(t *testing.T) {
	rule := baseRule(models.FrequencyWeekly)
	rule.DaysOfWeek = []int{1}
	rule.TimesOfDay = []string{"10:00"}
	rule.Timezone = "Pacific/Auckland"

	april := Month{Year: 2026, Month: time.April}
	occs, err := Expand(rule, april, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, occs)

	// DST ends on 5 April 2026; the first Monday after is at UTC+12.
	assert.Equal(t, "2026-04-06", occs[0].LocalDate)
	assert.Equal(t, time.Date(2026, time.April, 5, 22, 0, 0, 0, time.UTC), occs[0].ScheduledFor)
}

func TestExpandDeterministic(t *testing.T) {
	rule := baseRule(models.FrequencyDaily)
	rule.TimesOfDay = []string{"18:30", "08:15", "18:30"}
	rule.Channels = []string{"x", "linkedin", "x"}
	rule.Timezone = "America/New_York"
	now := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)

	a, err := Expand(rule, march2026, now)
	require.NoError(t, err)
	b, err := Expand(rule, march2026, now)
	require.NoError(t, err)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	assert.Equal(t, string(ja), string(jb))
	assert.Len(t, a, 31*2)
	assert.Equal(t, []models.Channel{models.ChannelX, models.ChannelLinkedIn}, a[0].Channels)
	assert.Equal(t, "08:15", a[0].TimeOfDay)

	for i := 1; i < len(a); i++ {
		assert.True(t, a[i-1].ScheduledFor.Before(a[i].ScheduledFor), "sorted at %d", i)
	}
}

func TestExpandDropsPastOccurrences(t *testing.T) {
	rule := baseRule(models.FrequencyDaily)
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	occs, err := Expand(rule, march2026, now)
	require.NoError(t, err)
	require.Len(t, occs, 16)
	assert.Equal(t, "2026-03-16", occs[0].LocalDate)

	// An occurrence exactly at now is not in the future.
	now = time.Date(2026, time.March, 31, 9, 0, 0, 0, time.UTC)
	occs, err = Expand(rule, march2026, now)
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestSelectWeekdays(t *testing.T) {
	tests := []struct {
		name  string
		count *int
		days  []int
		want  []time.Weekday
	}{
		{"one per week", intPtr(1), nil, []time.Weekday{time.Monday}},
		{"two per week", intPtr(2), nil, []time.Weekday{time.Monday, time.Thursday}},
		{"three per week", intPtr(3), nil, []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{"every day", intPtr(7), nil, []time.Weekday{1, 2, 3, 4, 5, 6, 0}},
		{"explicit set", nil, []int{4, 1, 4}, []time.Weekday{time.Monday, time.Thursday}},
		{"count trims lowest first", intPtr(2), []int{5, 0, 3}, []time.Weekday{time.Sunday, time.Wednesday}},
		{"count above set size", intPtr(5), []int{2}, []time.Weekday{time.Tuesday}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := baseRule(models.FrequencyWeekly)
			rule.TimesPerWeek = tt.count
			rule.DaysOfWeek = tt.days
			assert.Equal(t, tt.want, selectWeekdays(rule))
		})
	}
}

func TestExpandMonthlyClampsDayOfMonth(t *testing.T) {
	rule := baseRule(models.FrequencyMonthly)
	rule.DaysOfMonth = []int{31}
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	occs, err := Expand(rule, Month{Year: 2026, Month: time.April}, now)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, "2026-04-30", occs[0].LocalDate)

	occs, err = Expand(rule, Month{Year: 2026, Month: time.February}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-28"}, localDates(occs))

	// Clamped days that collide collapse into one slot.
	rule.DaysOfMonth = []int{30, 31, 1}
	occs, err = Expand(rule, Month{Year: 2026, Month: time.April}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-04-01", "2026-04-30"}, localDates(occs))
}

func TestExpandMonthlyNthWeekday(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		nth     int
		weekday int
		want    string
	}{
		{"third tuesday", 3, 2, "2026-03-17"},
		{"first sunday", 1, 0, "2026-03-01"},
		{"last tuesday", -1, 2, "2026-03-31"},
		{"fifth thursday clamps to last", 5, 4, "2026-03-26"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := baseRule(models.FrequencyMonthly)
			rule.NthWeek = intPtr(tt.nth)
			rule.Weekday = intPtr(tt.weekday)
			occs, err := Expand(rule, march2026, now)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, localDates(occs))
		})
	}
}

func TestExpandSpecific(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	rule := baseRule(models.FrequencySpecific)
	rule.StartDate = date(2026, time.March, 10)
	rule.EndDate = date(2026, time.March, 12)
	rule.DaysBefore = []int{14, 2}

	occs, err := Expand(rule, march2026, now)
	require.NoError(t, err)

	var keys []string
	for _, o := range occs {
		keys = append(keys, o.LocalDate+" "+o.OffsetKey)
	}
	assert.Equal(t, []string{
		"2026-03-08 before:2",
		"2026-03-10 during:0",
		"2026-03-11 during:1",
		"2026-03-12 during:2",
	}, keys)

	feb, err := Expand(rule, Month{Year: 2026, Month: time.February}, now)
	require.NoError(t, err)
	require.Len(t, feb, 1)
	assert.Equal(t, "before:14", feb[0].OffsetKey)
	assert.Equal(t, "2026-02-24", feb[0].LocalDate)

	rule.DaysBefore = nil
	rule.DaysDuring = []int{5, 0}
	occs, err = Expand(rule, march2026, now)
	require.NoError(t, err)
	require.Len(t, occs, 1, "offsets past end_date are dropped")
	assert.Equal(t, "during:0", occs[0].OffsetKey)
}

func TestExpandSkipsInactiveAndOutOfWindow(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	rule := baseRule(models.FrequencyDaily)
	rule.IsActive = false
	occs, err := Expand(rule, march2026, now)
	require.NoError(t, err)
	assert.Empty(t, occs)

	rule = baseRule(models.FrequencyDaily)
	rule.FirstRunMonth = strPtr("2026-04")
	occs, err = Expand(rule, march2026, now)
	require.NoError(t, err)
	assert.Empty(t, occs)

	rule.FirstRunMonth = strPtr("2026-01")
	rule.LastRunMonth = strPtr("2026-02")
	occs, err = Expand(rule, march2026, now)
	require.NoError(t, err)
	assert.Empty(t, occs)

	rule.LastRunMonth = strPtr("2026-03")
	occs, err = Expand(rule, march2026, now)
	require.NoError(t, err)
	assert.Len(t, occs, 31)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.ScheduleRule)
	}{
		{"unknown frequency", func(r *models.ScheduleRule) { r.Frequency = "hourly" }},
		{"bad timezone", func(r *models.ScheduleRule) { r.Timezone = "Mars/Olympus" }},
		{"missing timezone", func(r *models.ScheduleRule) { r.Timezone = "" }},
		{"bad time", func(r *models.ScheduleRule) { r.TimesOfDay = []string{"25:00"} }},
		{"no times", func(r *models.ScheduleRule) { r.TimesOfDay = []string{} }},
		{"unknown channel", func(r *models.ScheduleRule) { r.Channels = []string{"myspace"} }},
		{"no channels", func(r *models.ScheduleRule) { r.Channels = nil }},
		{"weekly fields on daily", func(r *models.ScheduleRule) { r.DaysOfWeek = []int{1} }},
		{"weekly without days", func(r *models.ScheduleRule) { r.Frequency = models.FrequencyWeekly }},
		{"weekday out of range", func(r *models.ScheduleRule) {
			r.Frequency = models.FrequencyWeekly
			r.DaysOfWeek = []int{7}
		}},
		{"monthly both forms", func(r *models.ScheduleRule) {
			r.Frequency = models.FrequencyMonthly
			r.DaysOfMonth = []int{1}
			r.NthWeek = intPtr(1)
			r.Weekday = intPtr(1)
		}},
		{"monthly nth without weekday", func(r *models.ScheduleRule) {
			r.Frequency = models.FrequencyMonthly
			r.NthWeek = intPtr(2)
		}},
		{"monthly day zero", func(r *models.ScheduleRule) {
			r.Frequency = models.FrequencyMonthly
			r.DaysOfMonth = []int{0}
		}},
		{"bad nth", func(r *models.ScheduleRule) {
			r.Frequency = models.FrequencyMonthly
			r.NthWeek = intPtr(6)
			r.Weekday = intPtr(1)
		}},
		{"specific start after end", func(r *models.ScheduleRule) {
			r.Frequency = models.FrequencySpecific
			r.StartDate = date(2026, time.March, 5)
			r.EndDate = date(2026, time.March, 1)
		}},
		{"specific negative offset", func(r *models.ScheduleRule) {
			r.Frequency = models.FrequencySpecific
			r.StartDate = date(2026, time.March, 1)
			r.EndDate = date(2026, time.March, 1)
			r.DaysBefore = []int{-1}
		}},
		{"bad run month", func(r *models.ScheduleRule) { r.FirstRunMonth = strPtr("March") }},
		{"window reversed", func(r *models.ScheduleRule) {
			r.FirstRunMonth = strPtr("2026-05")
			r.LastRunMonth = strPtr("2026-04")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := baseRule(models.FrequencyDaily)
			tt.mutate(&rule)
			err := Validate(rule)
			require.Error(t, err)

			var ve apperr.ValidationError
			assert.True(t, errors.As(err, &ve), "want ValidationError, got %T", err)

			_, expandErr := Expand(rule, march2026, time.Time{})
			assert.Error(t, expandErr)
		})
	}

	assert.NoError(t, Validate(baseRule(models.FrequencyDaily)))
}

func TestMonth(t *testing.T) {
	m, err := ParseMonth("2026-12")
	require.NoError(t, err)
	assert.Equal(t, "2026-12", m.String())
	assert.Equal(t, "2027-01", m.Next().String())
	assert.Equal(t, 31, m.Days())
	assert.Equal(t, 29, Month{Year: 2028, Month: time.February}.Days())
	assert.True(t, m.Before(m.Next()))

	_, err = ParseMonth("2026-13")
	assert.Error(t, err)
}

// Package recurrence expands declarative schedule rules into concrete,
// time-zone aware post slots for one calendar month.
package recurrence

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"

	"github.com/drewmudry/cadence-api/models"
)

// Occurrence is one computed post slot. It is never persisted; the
// materializer turns it into a Draft.
type Occurrence struct {
	RuleID        uint             `json:"rule_id"`
	BrandID       uint             `json:"brand_id"`
	SubcategoryID uint             `json:"subcategory_id"`
	LocalDate     string           `json:"local_date"`
	TimeOfDay     string           `json:"time_of_day"`
	Timezone      string           `json:"timezone"`
	ScheduledFor  time.Time        `json:"scheduled_for"`
	Channels      []models.Channel `json:"channels"`
	// OffsetKey distinguishes lead-up and during slots on specific rules,
	// e.g. "before:3" or "during:0". Empty for every other frequency.
	OffsetKey string `json:"offset_key"`
}

// slot is a local calendar date plus its offset discriminator.
type slot struct {
	date time.Time
	key  string
}

// Expand computes the occurrences of rule whose local date falls in month
// and whose instant is after now. The result is sorted by (ScheduledFor,
// OffsetKey), and expanding the same inputs twice yields identical output.
func Expand(rule models.ScheduleRule, month Month, now time.Time) ([]Occurrence, error) {
	if !rule.IsActive {
		return nil, nil
	}
	if err := Validate(rule); err != nil {
		return nil, err
	}
	if !inWindow(rule, month) {
		return nil, nil
	}

	loc, err := time.LoadLocation(rule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load location %s: %w", rule.Timezone, err)
	}

	var slots []slot
	switch rule.Frequency {
	case models.FrequencyDaily:
		slots = dailySlots(month)
	case models.FrequencyWeekly:
		slots = weeklySlots(month, selectWeekdays(rule))
	case models.FrequencyMonthly:
		slots = monthlySlots(rule, month)
	case models.FrequencySpecific:
		slots = specificSlots(rule, month)
	}

	times := sortedUnique(rule.TimesOfDay)
	channels := uniqueChannels(rule.Channels)

	out := make([]Occurrence, 0, len(slots)*len(times))
	for _, s := range slots {
		for _, tod := range times {
			hour, minute, _ := parseClock(tod)
			local := time.Date(s.date.Year(), s.date.Month(), s.date.Day(), hour, minute, 0, 0, loc)
			at := local.UTC()
			if !at.After(now) {
				continue
			}

			chs := make([]models.Channel, len(channels))
			copy(chs, channels)
			out = append(out, Occurrence{
				RuleID:        rule.ID,
				BrandID:       rule.BrandID,
				SubcategoryID: rule.SubcategoryID,
				LocalDate:     s.date.Format("2006-01-02"),
				TimeOfDay:     tod,
				Timezone:      rule.Timezone,
				ScheduledFor:  at,
				Channels:      chs,
				OffsetKey:     s.key,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].OffsetKey < out[j].OffsetKey
	})

	// A wall time inside a DST gap normalizes onto the next hour and can
	// collide with an explicit time of day.
	deduped := out[:0]
	for i, occ := range out {
		if i > 0 && occ.ScheduledFor.Equal(out[i-1].ScheduledFor) && occ.OffsetKey == out[i-1].OffsetKey {
			continue
		}
		deduped = append(deduped, occ)
	}
	return deduped, nil
}

func inWindow(rule models.ScheduleRule, month Month) bool {
	if rule.FirstRunMonth != nil {
		if first, err := ParseMonth(*rule.FirstRunMonth); err == nil && month.Before(first) {
			return false
		}
	}
	if rule.LastRunMonth != nil {
		if last, err := ParseMonth(*rule.LastRunMonth); err == nil && month.After(last) {
			return false
		}
	}
	return true
}

func dailySlots(month Month) []slot {
	out := make([]slot, 0, month.Days())
	for d := 1; d <= month.Days(); d++ {
		out = append(out, slot{date: month.Date(d)})
	}
	return out
}

func weeklySlots(month Month, weekdays []time.Weekday) []slot {
	want := make(map[time.Weekday]bool, len(weekdays))
	for _, wd := range weekdays {
		want[wd] = true
	}
	var out []slot
	for d := 1; d <= month.Days(); d++ {
		date := month.Date(d)
		if want[date.Weekday()] {
			out = append(out, slot{date: date})
		}
	}
	return out
}

// selectWeekdays resolves the weekly day set. An explicit set is trimmed to
// times_per_week keeping the lowest indices; a bare count is spread evenly
// across the week starting on Monday.
func selectWeekdays(rule models.ScheduleRule) []time.Weekday {
	if len(rule.DaysOfWeek) > 0 {
		days := sortedUniqueInts(rule.DaysOfWeek)
		if rule.TimesPerWeek != nil && *rule.TimesPerWeek < len(days) {
			days = days[:*rule.TimesPerWeek]
		}
		out := make([]time.Weekday, len(days))
		for i, d := range days {
			out[i] = time.Weekday(d)
		}
		return out
	}

	n := *rule.TimesPerWeek
	out := make([]time.Weekday, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, time.Weekday((i*7/n+1)%7))
	}
	return out
}

func monthlySlots(rule models.ScheduleRule, month Month) []slot {
	last := month.Days()
	if len(rule.DaysOfMonth) > 0 {
		seen := make(map[int]bool)
		var days []int
		for _, d := range rule.DaysOfMonth {
			if d > last {
				d = last
			}
			if !seen[d] {
				seen[d] = true
				days = append(days, d)
			}
		}
		sort.Ints(days)
		out := make([]slot, len(days))
		for i, d := range days {
			out[i] = slot{date: month.Date(d)}
		}
		return out
	}

	wd := time.Weekday(*rule.Weekday)
	var matches []int
	for d := 1; d <= last; d++ {
		if month.Date(d).Weekday() == wd {
			matches = append(matches, d)
		}
	}
	nth := *rule.NthWeek
	idx := nth - 1
	if nth == -1 || idx >= len(matches) {
		idx = len(matches) - 1
	}
	return []slot{{date: month.Date(matches[idx])}}
}

// specificSlots anchors on start_date. days_during offsets land inside the
// start..end range (every day of it when unset); days_before offsets are
// lead-up days before the start.
func specificSlots(rule models.ScheduleRule, month Month) []slot {
	start := dateOf(*rule.StartDate)
	end := dateOf(*rule.EndDate)

	var out []slot
	add := func(date time.Time, key string) {
		if month.Contains(date) {
			out = append(out, slot{date: date, key: key})
		}
	}

	for _, n := range sortedUniqueInts(rule.DaysBefore) {
		add(start.AddDate(0, 0, -n), fmt.Sprintf("before:%d", n))
	}

	if len(rule.DaysDuring) == 0 {
		for k, d := 0, start; !d.After(end); k, d = k+1, d.AddDate(0, 0, 1) {
			add(d, fmt.Sprintf("during:%d", k))
		}
		return out
	}
	for _, n := range sortedUniqueInts(rule.DaysDuring) {
		d := start.AddDate(0, 0, n)
		if d.After(end) {
			continue
		}
		add(d, fmt.Sprintf("during:%d", n))
	}
	return out
}

// dateOf drops the clock and zone from a stored date.
func dateOf(d datatypes.Date) time.Time {
	t := time.Time(d)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sortedUnique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func sortedUniqueInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, n := range in {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func uniqueChannels(in []string) []models.Channel {
	seen := make(map[string]bool, len(in))
	out := make([]models.Channel, 0, len(in))
	for _, c := range in {
		if !seen[c] {
			seen[c] = true
			out = append(out, models.Channel(c))
		}
	}
	return out
}

package recurrence

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/drewmudry/cadence-api/internal/apperr"
	"github.com/drewmudry/cadence-api/models"
)

// Validate checks that a rule is well formed and that exactly one
// frequency-specific field set is populated, consistent with its frequency.
func Validate(rule models.ScheduleRule) error {
	err := validation.ValidateStruct(&rule,
		validation.Field(&rule.Frequency, validation.Required, validation.In(
			models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly, models.FrequencySpecific,
		)),
		validation.Field(&rule.Timezone, validation.Required, validation.By(loadableZone)),
		validation.Field(&rule.TimesOfDay, validation.By(nonEmpty), validation.Each(validation.By(clockTime))),
		validation.Field(&rule.Channels, validation.By(nonEmpty), validation.Each(validation.By(knownChannel))),
		validation.Field(&rule.TimesPerWeek, validation.By(intBetween(1, 7))),
		validation.Field(&rule.DaysOfWeek, validation.Each(validation.By(intBetween(0, 6)))),
		validation.Field(&rule.DaysOfMonth, validation.Each(validation.By(intBetween(1, 31)))),
		validation.Field(&rule.NthWeek, validation.By(nthWeek)),
		validation.Field(&rule.Weekday, validation.By(intBetween(0, 6))),
		validation.Field(&rule.DaysBefore, validation.Each(validation.By(intBetween(0, 366)))),
		validation.Field(&rule.DaysDuring, validation.Each(validation.By(intBetween(0, 366)))),
		validation.Field(&rule.FirstRunMonth, validation.By(monthString)),
		validation.Field(&rule.LastRunMonth, validation.By(monthString)),
	)
	if err != nil {
		return apperr.ValidationError(err.Error())
	}
	if err := checkFieldSet(rule); err != nil {
		return apperr.ValidationError(err.Error())
	}
	return nil
}

func checkFieldSet(rule models.ScheduleRule) error {
	weekly := rule.TimesPerWeek != nil || len(rule.DaysOfWeek) > 0
	monthlyDays := len(rule.DaysOfMonth) > 0
	monthlyNth := rule.NthWeek != nil || rule.Weekday != nil
	specific := rule.StartDate != nil || rule.EndDate != nil || len(rule.DaysBefore) > 0 || len(rule.DaysDuring) > 0

	set := map[string]bool{
		"weekly":   weekly,
		"monthly":  monthlyDays || monthlyNth,
		"specific": specific,
	}
	for name, populated := range set {
		if populated && name != string(rule.Frequency) {
			return fmt.Errorf("%s fields are not allowed on a %s rule", name, rule.Frequency)
		}
	}

	switch rule.Frequency {
	case models.FrequencyWeekly:
		if !weekly {
			return errors.New("weekly rule needs days_of_week or times_per_week")
		}
	case models.FrequencyMonthly:
		if monthlyDays && monthlyNth {
			return errors.New("monthly rule takes days_of_month or nth_week/weekday, not both")
		}
		if !monthlyDays && (rule.NthWeek == nil || rule.Weekday == nil) {
			return errors.New("monthly rule needs days_of_month or both nth_week and weekday")
		}
	case models.FrequencySpecific:
		if rule.StartDate == nil || rule.EndDate == nil {
			return errors.New("specific rule needs start_date and end_date")
		}
		if dateOf(*rule.StartDate).After(dateOf(*rule.EndDate)) {
			return errors.New("start_date must not be after end_date")
		}
	}

	if rule.FirstRunMonth != nil && rule.LastRunMonth != nil {
		first, _ := ParseMonth(*rule.FirstRunMonth)
		last, _ := ParseMonth(*rule.LastRunMonth)
		if last.Before(first) {
			return errors.New("last_run_month must not be before first_run_month")
		}
	}
	return nil
}

// nonEmpty stands in for validation.Required on JSON slice columns, whose
// driver.Valuer form is never empty.
func nonEmpty(value interface{}) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return errors.New("cannot be blank")
	}
	return nil
}

func loadableZone(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.LoadLocation(s); err != nil {
		return fmt.Errorf("unknown time zone %q", s)
	}
	return nil
}

func clockTime(value interface{}) error {
	s, _ := value.(string)
	if _, _, err := parseClock(s); err != nil {
		return err
	}
	return nil
}

func knownChannel(value interface{}) error {
	s, _ := value.(string)
	if !models.Channel(s).Valid() {
		return fmt.Errorf("unknown channel %q (want one of %s)", s, strings.Join(models.KnownChannels(), ", "))
	}
	return nil
}

func intBetween(lo, hi int) validation.RuleFunc {
	return func(value interface{}) error {
		v, isNil := validation.Indirect(value)
		if isNil {
			return nil
		}
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("must be an integer")
		}
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

func nthWeek(value interface{}) error {
	v, isNil := validation.Indirect(value)
	if isNil {
		return nil
	}
	n, _ := v.(int)
	if n == -1 || (n >= 1 && n <= 5) {
		return nil
	}
	return errors.New("must be 1..5 or -1 for last")
}

func monthString(value interface{}) error {
	v, isNil := validation.Indirect(value)
	if isNil {
		return nil
	}
	s, _ := v.(string)
	_, err := ParseMonth(s)
	return err
}

// parseClock parses "HH:MM" on a 24-hour clock.
func parseClock(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

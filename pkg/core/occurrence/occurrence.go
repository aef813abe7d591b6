// Package occurrence computes candidate shift dates for schedule models.
// All functions are pure: same inputs always produce the same ordered dates,
// which the reconciliation pipeline relies on for idempotence.
package occurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/schedops/shiftgen/pkg/db"
)

var rruleWeekdays = [7]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Weekly returns the dates a weekly model should occur on within the horizon:
// every matching day of week in the advanceDays-day window starting the day
// after ref. The current day is never included.
func Weekly(model db.ScheduleModel, ref time.Time, advanceDays int) ([]time.Time, error) {
	if advanceDays <= 0 {
		return nil, fmt.Errorf("advance days must be positive, got %d", advanceDays)
	}

	windowStart := Tomorrow(ref)
	windowEnd := windowStart.AddDate(0, 0, advanceDays-1)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   windowStart,
		Byweekday: []rrule.Weekday{rruleWeekdays[model.DayOfWeek]},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build weekly rule: %w", err)
	}

	return rule.Between(windowStart, windowEnd, true), nil
}

// Monthly returns the dates a monthly model should occur on: one per calendar
// month for monthsAhead months, starting with the first occurrence of the
// model's day of month on or after the day after ref. When the day of month
// exceeds the target month's length (31 in February), the date clamps to the
// last day of that month. Clamping is deterministic so regeneration reconciles
// against the same dates.
func Monthly(model db.ScheduleModel, ref time.Time, monthsAhead int) ([]time.Time, error) {
	if monthsAhead <= 0 {
		return nil, fmt.Errorf("months ahead must be positive, got %d", monthsAhead)
	}
	if model.DayOfMonth < 1 || model.DayOfMonth > 31 {
		return nil, fmt.Errorf("day of month must be 1-31, got %d", model.DayOfMonth)
	}

	tomorrow := Tomorrow(ref)

	// Months are advanced from the reference year/month, never from a clamped
	// date, so a clamp in one month does not shift later months.
	year, month := tomorrow.Year(), tomorrow.Month()
	if clampedDate(year, month, model.DayOfMonth).Before(tomorrow) {
		month++
	}

	dates := make([]time.Time, 0, monthsAhead)
	for i := 0; i < monthsAhead; i++ {
		dates = append(dates, clampedDate(year, month+time.Month(i), model.DayOfMonth))
	}

	return dates, nil
}

// Tomorrow returns the day after ref at midnight UTC, the earliest date
// generation is allowed to touch.
func Tomorrow(ref time.Time) time.Time {
	ref = ref.UTC()
	return time.Date(ref.Year(), ref.Month(), ref.Day()+1, 0, 0, 0, 0, time.UTC)
}

// clampedDate builds the date for day within the given month, clamped to the
// month's last day. time.Date normalizes out-of-range months.
func clampedDate(year int, month time.Month, day int) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

package db

import (
	"fmt"
	"time"
)

// Cadence identifies how often a schedule model recurs
type Cadence string

const (
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// ScheduleModel is a company-scoped template describing a recurring shift.
// Models are created and edited by an external system; the engine only reads them.
type ScheduleModel struct {
	ID         int64
	CompanyID  int64
	Cadence    Cadence
	DayOfWeek  time.Weekday // weekly cadence only
	DayOfMonth int          // monthly cadence only, 1-31
	StartTime  TimeOfDay
	EndTime    TimeOfDay
	Active     bool
}

// Shift is one concrete dated occurrence of a shift.
// ModelID is nil for manually created shifts, which the generator never touches.
// Linked shifts are externally associated and excluded from reset/cleanup deletion.
type Shift struct {
	ID        string
	CompanyID int64
	ModelID   *int64
	Date      time.Time // midnight UTC
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Linked    bool
}

// RunAudit records the outcome of one generation run
type RunAudit struct {
	RunID             string
	TriggeredBy       string
	Status            string
	ShiftsCreated     int
	DuplicatesSkipped int
	OverlapsBlocked   int
	OrphanedDeleted   int
	ResetDeleted      int
	WeeklyModels      int
	MonthlyModels     int
	StartedAt         time.Time
	Duration          time.Duration
}

// TimeOfDay is a time within a day expressed as minutes from midnight
type TimeOfDay int

// ParseTimeOfDay parses a "15:04" clock string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// String formats the time of day as "15:04"
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Overlaps reports whether the half-open windows [aStart,aEnd) and [bStart,bEnd)
// share any time. A shift ending exactly when another starts does not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}

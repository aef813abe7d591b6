package services

import "time"

// Status is the terminal outcome of a generation run
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Defaults carries the configured horizons applied when a run supplies none
type Defaults struct {
	AdvanceDays        int
	MonthlyMonthsAhead int
}

// RunParams selects the scope of one generation run.
// Zero-valued fields mean "no filter" / "use the configured default".
type RunParams struct {
	CompanyID          int64
	ModelID            int64
	AdvanceDays        int
	MonthlyMonthsAhead int

	// Reset deletes the model's future unlinked shifts before generation.
	// Callers must validate that ModelID is positive before setting it.
	Reset bool

	// Reference is the instant the run computes horizons from; zero means now
	Reference time.Time

	// TriggeredBy records what invoked the run ("console", "http", "timer")
	TriggeredBy string
}

// RunResult aggregates the counters of one run. One instance per invocation,
// write-once, returned to the caller for logging and response payloads.
type RunResult struct {
	RunID             string
	Status            Status
	ShiftsCreated     int
	DuplicatesSkipped int
	OverlapsBlocked   int
	OrphanedDeleted   int
	ResetDeleted      int
	WeeklyModels      int
	MonthlyModels     int
	Conflicts         int
	AuditEntries      int
	Duration          time.Duration
	ErrorMessage      string
}

// GenerationResult holds the counters from one weekly or monthly generation stage
type GenerationResult struct {
	Created           int
	DuplicatesSkipped int
	OverlapsBlocked   int
}

func (r *GenerationResult) add(other GenerationResult) {
	r.Created += other.Created
	r.DuplicatesSkipped += other.DuplicatesSkipped
	r.OverlapsBlocked += other.OverlapsBlocked
}

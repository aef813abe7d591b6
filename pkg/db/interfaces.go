package db

import (
	"context"
	"time"
)

// Store defines the storage operations the generation engine performs.
// Zero-valued companyID/modelID filters mean "no filter on that dimension".
type Store interface {
	// GetActiveModels returns active schedule models matching the optional filters,
	// ordered by company then model id.
	GetActiveModels(ctx context.Context, companyID, modelID int64) ([]ScheduleModel, error)

	// GetShiftDates returns the dates in [from, to] already materialized for a model.
	// Used for duplicate suppression.
	GetShiftDates(ctx context.Context, companyID, modelID int64, from, to time.Time) ([]time.Time, error)

	// HasOverlap reports whether any shift for the company on the given date has a
	// time window overlapping [start, end), regardless of owning model.
	HasOverlap(ctx context.Context, companyID int64, date time.Time, start, end TimeOfDay) (bool, error)

	// InsertShifts inserts a batch of shift instances and returns the count inserted.
	InsertShifts(ctx context.Context, shifts []Shift) (int, error)

	// DeleteFutureUnlinkedShifts deletes unlinked shifts owned by the model dated
	// on or after from. Used by reset.
	DeleteFutureUnlinkedShifts(ctx context.Context, modelID int64, from time.Time) (int, error)

	// DeleteOrphanedShifts deletes unlinked model-owned shifts dated on or after from
	// whose model id is not in validModelIDs, scoped by the optional filters.
	// Shifts with a null model id are never touched.
	DeleteOrphanedShifts(ctx context.Context, companyID, modelID int64, validModelIDs []int64, from time.Time) (int, error)

	// InsertRunAudit records the outcome of one generation run.
	InsertRunAudit(ctx context.Context, audit *RunAudit) error
}

// TxRunner executes a unit of work inside a single storage transaction.
// The transaction commits when fn returns nil and rolls back otherwise, so a
// failed unit of work leaves no visible side effects and is safe to retry.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

// Database defines the full storage contract consumed by the engine.
// Both the Postgres-backed postgres.DB and in-memory test fakes implement it.
type Database interface {
	Store
	TxRunner
}

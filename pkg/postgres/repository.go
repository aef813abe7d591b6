package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/schedops/shiftgen/pkg/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same store
// operations run directly against the pool or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ops implements db.Store against a querier
type ops struct {
	q querier
}

// InTx runs fn against a transaction-bound store. The transaction commits when
// fn returns nil and rolls back otherwise, so a failed unit of work leaves no
// visible side effects.
func (d *DB) InTx(ctx context.Context, fn func(db.Store) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	if err := fn(ops{q: tx}); err != nil {
		return err
	}

	// Serialization conflicts can surface at commit time
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}

	return nil
}

// GetActiveModels retrieves active schedule models, optionally filtered by
// company and model id (zero means no filter)
func (o ops) GetActiveModels(ctx context.Context, companyID, modelID int64) ([]db.ScheduleModel, error) {
	rows, err := o.q.Query(ctx, `
		SELECT id, company_id, cadence, COALESCE(day_of_week, 0), COALESCE(day_of_month, 0), start_time, end_time, active
		FROM schedule_model
		WHERE active
		  AND ($1 = 0 OR company_id = $1)
		  AND ($2 = 0 OR id = $2)
		ORDER BY company_id, id
	`, companyID, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule models: %w", classify(err))
	}
	defer rows.Close()

	var models []db.ScheduleModel
	for rows.Next() {
		var m db.ScheduleModel
		var dayOfWeek, startTime, endTime int
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.Cadence, &dayOfWeek, &m.DayOfMonth, &startTime, &endTime, &m.Active); err != nil {
			return nil, fmt.Errorf("failed to scan schedule model: %w", err)
		}
		m.DayOfWeek = time.Weekday(dayOfWeek)
		m.StartTime = db.TimeOfDay(startTime)
		m.EndTime = db.TimeOfDay(endTime)
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule models: %w", classify(err))
	}

	return models, nil
}

// GetShiftDates retrieves the dates already materialized for a model in [from, to]
func (o ops) GetShiftDates(ctx context.Context, companyID, modelID int64, from, to time.Time) ([]time.Time, error) {
	rows, err := o.q.Query(ctx, `
		SELECT shift_date
		FROM shift
		WHERE company_id = $1 AND model_id = $2 AND shift_date >= $3 AND shift_date <= $4
		ORDER BY shift_date
	`, companyID, modelID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift dates: %w", classify(err))
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan shift date: %w", err)
		}
		dates = append(dates, d.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shift dates: %w", classify(err))
	}

	return dates, nil
}

// HasOverlap reports whether any shift for the company on the date overlaps
// the half-open window [start, end)
func (o ops) HasOverlap(ctx context.Context, companyID int64, date time.Time, start, end db.TimeOfDay) (bool, error) {
	var exists bool
	err := o.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM shift
			WHERE company_id = $1 AND shift_date = $2 AND start_time < $4 AND end_time > $3
		)
	`, companyID, date, int(start), int(end)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", classify(err))
	}
	return exists, nil
}

// InsertShifts inserts a batch of shift instances
func (o ops) InsertShifts(ctx context.Context, shifts []db.Shift) (int, error) {
	inserted := 0
	for _, s := range shifts {
		_, err := o.q.Exec(ctx, `
			INSERT INTO shift (id, company_id, model_id, shift_date, start_time, end_time, linked)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, s.ID, s.CompanyID, s.ModelID, s.Date, int(s.StartTime), int(s.EndTime), s.Linked)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert shift: %w", classify(err))
		}
		inserted++
	}
	return inserted, nil
}

// DeleteFutureUnlinkedShifts deletes unlinked shifts owned by the model dated
// on or after from
func (o ops) DeleteFutureUnlinkedShifts(ctx context.Context, modelID int64, from time.Time) (int, error) {
	tag, err := o.q.Exec(ctx, `
		DELETE FROM shift
		WHERE model_id = $1 AND NOT linked AND shift_date >= $2
	`, modelID, from)
	if err != nil {
		return 0, fmt.Errorf("failed to delete future unlinked shifts: %w", classify(err))
	}
	return int(tag.RowsAffected()), nil
}

// DeleteOrphanedShifts deletes unlinked model-owned shifts dated on or after
// from whose model id is not in validModelIDs. Shifts with a null model id are
// never touched.
func (o ops) DeleteOrphanedShifts(ctx context.Context, companyID, modelID int64, validModelIDs []int64, from time.Time) (int, error) {
	if validModelIDs == nil {
		validModelIDs = []int64{}
	}
	tag, err := o.q.Exec(ctx, `
		DELETE FROM shift
		WHERE model_id IS NOT NULL
		  AND NOT linked
		  AND shift_date >= $1
		  AND NOT (model_id = ANY($2))
		  AND ($3 = 0 OR company_id = $3)
		  AND ($4 = 0 OR model_id = $4)
	`, from, validModelIDs, companyID, modelID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned shifts: %w", classify(err))
	}
	return int(tag.RowsAffected()), nil
}

// InsertRunAudit records the outcome of one generation run
func (o ops) InsertRunAudit(ctx context.Context, audit *db.RunAudit) error {
	_, err := o.q.Exec(ctx, `
		INSERT INTO run_audit (
			id, triggered_by, status,
			shifts_created, duplicates_skipped, overlaps_blocked,
			orphaned_deleted, reset_deleted, weekly_models, monthly_models,
			started_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, audit.RunID, audit.TriggeredBy, audit.Status,
		audit.ShiftsCreated, audit.DuplicatesSkipped, audit.OverlapsBlocked,
		audit.OrphanedDeleted, audit.ResetDeleted, audit.WeeklyModels, audit.MonthlyModels,
		audit.StartedAt, audit.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert run audit: %w", classify(err))
	}
	return nil
}

// Transient SQLSTATEs retried by the engine: serialization failure, deadlock
// detected, lock not available.
var transientCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

// classify marks transient contention failures so the retry handler re-executes
// the unit of work; everything else passes through as fatal.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientCodes[pgErr.Code] {
		return db.MarkTransient(err)
	}
	return err
}

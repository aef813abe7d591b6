package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/schedops/shiftgen/pkg/core/occurrence"
	"github.com/schedops/shiftgen/pkg/core/retry"
	"github.com/schedops/shiftgen/pkg/db"
)

// candidatesFunc computes the candidate dates for one model
type candidatesFunc func(model db.ScheduleModel, ref time.Time) ([]time.Time, error)

// GenerateWeekly materializes shifts for weekly-cadence models over the
// advanceDays horizon. Returns the counters accumulated so far even on error.
func GenerateWeekly(ctx context.Context, database db.Database, retrier *retry.Runner, models []db.ScheduleModel, ref time.Time, advanceDays int) (GenerationResult, error) {
	return generate(ctx, database, retrier, models, ref, func(m db.ScheduleModel, ref time.Time) ([]time.Time, error) {
		return occurrence.Weekly(m, ref, advanceDays)
	})
}

// GenerateMonthly materializes shifts for monthly-cadence models over the
// monthsAhead horizon. Returns the counters accumulated so far even on error.
func GenerateMonthly(ctx context.Context, database db.Database, retrier *retry.Runner, models []db.ScheduleModel, ref time.Time, monthsAhead int) (GenerationResult, error) {
	return generate(ctx, database, retrier, models, ref, func(m db.ScheduleModel, ref time.Time) ([]time.Time, error) {
		return occurrence.Monthly(m, ref, monthsAhead)
	})
}

func generate(ctx context.Context, database db.Database, retrier *retry.Runner, models []db.ScheduleModel, ref time.Time, candidates candidatesFunc) (GenerationResult, error) {
	var total GenerationResult

	for _, model := range models {
		// Cancellation is observed between models, never inside a transaction
		if err := ctx.Err(); err != nil {
			return total, err
		}

		dates, err := candidates(model, ref)
		if err != nil {
			return total, fmt.Errorf("failed to compute occurrences for model %d: %w", model.ID, err)
		}
		if len(dates) == 0 {
			continue
		}

		result, err := reconcileModel(ctx, database, retrier, model, dates)
		if err != nil {
			return total, fmt.Errorf("failed to generate shifts for model %d: %w", model.ID, err)
		}
		total.add(result)
	}

	return total, nil
}

// reconcileModel diffs one model's candidate dates against the shifts that
// already exist and inserts the missing ones, all inside a single retry-wrapped
// transaction. Dates are processed in chronological order against a snapshot
// taken at the start of the batch. An already-existing occurrence is counted
// as a duplicate, never as a blocked overlap.
func reconcileModel(ctx context.Context, database db.Database, retrier *retry.Runner, model db.ScheduleModel, dates []time.Time) (GenerationResult, error) {
	var result GenerationResult

	err := retrier.Do(ctx, func(ctx context.Context) error {
		return database.InTx(ctx, func(tx db.Store) error {
			// Counters restart on every attempt: a rolled-back transaction
			// must not leave counts behind either.
			var attempt GenerationResult

			existing, err := tx.GetShiftDates(ctx, model.CompanyID, model.ID, dates[0], dates[len(dates)-1])
			if err != nil {
				return err
			}
			existingSet := make(map[string]bool, len(existing))
			for _, d := range existing {
				existingSet[d.Format("2006-01-02")] = true
			}

			var staged []db.Shift
			for _, date := range dates {
				if existingSet[date.Format("2006-01-02")] {
					attempt.DuplicatesSkipped++
					continue
				}

				overlaps, err := tx.HasOverlap(ctx, model.CompanyID, date, model.StartTime, model.EndTime)
				if err != nil {
					return err
				}
				if overlaps {
					attempt.OverlapsBlocked++
					continue
				}

				staged = append(staged, db.Shift{
					ID:        uuid.New().String(),
					CompanyID: model.CompanyID,
					ModelID:   &model.ID,
					Date:      date,
					StartTime: model.StartTime,
					EndTime:   model.EndTime,
				})
			}

			if len(staged) > 0 {
				inserted, err := tx.InsertShifts(ctx, staged)
				if err != nil {
					return err
				}
				attempt.Created = inserted
			}

			result = attempt
			return nil
		})
	})
	if err != nil {
		return GenerationResult{}, err
	}

	return result, nil
}

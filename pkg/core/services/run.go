package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/schedops/shiftgen/pkg/core/occurrence"
	"github.com/schedops/shiftgen/pkg/core/retry"
	"github.com/schedops/shiftgen/pkg/db"
)

// SchedulerJob orchestrates one full generation run:
// reset (optional), cleanup, weekly generation, monthly generation, audit.
// Stages execute sequentially; a fatal error from any stage aborts the run with
// the counters accumulated so far. The job never logs; callers log the result.
type SchedulerJob struct {
	database db.Database
	retrier  *retry.Runner
	defaults Defaults
}

// NewSchedulerJob creates a scheduler job with explicit dependencies
func NewSchedulerJob(database db.Database, retrier *retry.Runner, defaults Defaults) *SchedulerJob {
	return &SchedulerJob{
		database: database,
		retrier:  retrier,
		defaults: defaults,
	}
}

// Run executes one generation run. The outcome is always carried in the
// returned result: StatusFailed with a message on fatal errors, StatusCancelled
// when the context is cancelled between units of work. Counters accumulated
// before an abort are still returned for diagnostics.
func (j *SchedulerJob) Run(ctx context.Context, params RunParams) RunResult {
	started := time.Now()
	ref := params.Reference
	if ref.IsZero() {
		ref = time.Now().UTC()
	}

	result := RunResult{RunID: uuid.New().String()}

	fail := func(err error) RunResult {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			result.Status = StatusCancelled
		} else {
			result.Status = StatusFailed
			result.ErrorMessage = err.Error()
		}
		result.Conflicts = result.DuplicatesSkipped + result.OverlapsBlocked
		result.Duration = time.Since(started)
		// Best effort: a run that already failed should still leave a trace
		if j.writeAudit(ctx, &result, params, started) == nil {
			result.AuditEntries = 1
		}
		return result
	}

	if params.Reset {
		// ModelID is validated positive at the boundary before the engine runs
		deleted, err := j.reset(ctx, params.ModelID, ref)
		if err != nil {
			return fail(err)
		}
		result.ResetDeleted = deleted
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	orphaned, err := Cleanup(ctx, j.database, j.retrier, params.CompanyID, params.ModelID, ref)
	if err != nil {
		return fail(err)
	}
	result.OrphanedDeleted = orphaned
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	weekly, monthly, err := j.loadModels(ctx, params.CompanyID, params.ModelID)
	if err != nil {
		return fail(err)
	}
	result.WeeklyModels = len(weekly)
	result.MonthlyModels = len(monthly)

	advanceDays := params.AdvanceDays
	if advanceDays <= 0 {
		advanceDays = j.defaults.AdvanceDays
	}
	monthsAhead := params.MonthlyMonthsAhead
	if monthsAhead <= 0 {
		monthsAhead = j.defaults.MonthlyMonthsAhead
	}

	weeklyRes, err := GenerateWeekly(ctx, j.database, j.retrier, weekly, ref, advanceDays)
	result.ShiftsCreated += weeklyRes.Created
	result.DuplicatesSkipped += weeklyRes.DuplicatesSkipped
	result.OverlapsBlocked += weeklyRes.OverlapsBlocked
	if err != nil {
		return fail(err)
	}

	monthlyRes, err := GenerateMonthly(ctx, j.database, j.retrier, monthly, ref, monthsAhead)
	result.ShiftsCreated += monthlyRes.Created
	result.DuplicatesSkipped += monthlyRes.DuplicatesSkipped
	result.OverlapsBlocked += monthlyRes.OverlapsBlocked
	if err != nil {
		return fail(err)
	}

	result.Conflicts = result.DuplicatesSkipped + result.OverlapsBlocked
	result.Status = StatusSucceeded
	result.Duration = time.Since(started)

	if err := j.writeAudit(ctx, &result, params, started); err != nil {
		result.Status = StatusFailed
		result.ErrorMessage = err.Error()
		result.Duration = time.Since(started)
		return result
	}
	result.AuditEntries = 1

	return result
}

// reset deletes all future unlinked shifts owned by the model before generation
func (j *SchedulerJob) reset(ctx context.Context, modelID int64, ref time.Time) (int, error) {
	from := occurrence.Tomorrow(ref)

	var deleted int
	err := j.retrier.Do(ctx, func(ctx context.Context) error {
		return j.database.InTx(ctx, func(tx db.Store) error {
			n, err := tx.DeleteFutureUnlinkedShifts(ctx, modelID, from)
			if err != nil {
				return err
			}
			deleted = n
			return nil
		})
	})
	return deleted, err
}

// loadModels fetches the active models in scope, split by cadence
func (j *SchedulerJob) loadModels(ctx context.Context, companyID, modelID int64) (weekly, monthly []db.ScheduleModel, err error) {
	var models []db.ScheduleModel
	err = j.retrier.Do(ctx, func(ctx context.Context) error {
		return j.database.InTx(ctx, func(tx db.Store) error {
			loaded, err := tx.GetActiveModels(ctx, companyID, modelID)
			if err != nil {
				return err
			}
			models = loaded
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	for _, m := range models {
		switch m.Cadence {
		case db.CadenceWeekly:
			weekly = append(weekly, m)
		case db.CadenceMonthly:
			monthly = append(monthly, m)
		}
	}
	return weekly, monthly, nil
}

// writeAudit records the run outcome. The parent context may already be
// cancelled when a run aborts, so the audit write detaches from cancellation.
func (j *SchedulerJob) writeAudit(ctx context.Context, result *RunResult, params RunParams, started time.Time) error {
	audit := &db.RunAudit{
		RunID:             result.RunID,
		TriggeredBy:       params.TriggeredBy,
		Status:            string(result.Status),
		ShiftsCreated:     result.ShiftsCreated,
		DuplicatesSkipped: result.DuplicatesSkipped,
		OverlapsBlocked:   result.OverlapsBlocked,
		OrphanedDeleted:   result.OrphanedDeleted,
		ResetDeleted:      result.ResetDeleted,
		WeeklyModels:      result.WeeklyModels,
		MonthlyModels:     result.MonthlyModels,
		StartedAt:         started.UTC(),
		Duration:          result.Duration,
	}

	ctx = context.WithoutCancel(ctx)
	return j.retrier.Do(ctx, func(ctx context.Context) error {
		return j.database.InTx(ctx, func(tx db.Store) error {
			return tx.InsertRunAudit(ctx, audit)
		})
	})
}

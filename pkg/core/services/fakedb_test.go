package services

import (
	"context"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/schedops/shiftgen/pkg/db"
)

// fakeDB is an in-memory db.Database with transaction rollback semantics and
// per-operation failure injection, so the engine can be exercised without
// Postgres. A failed unit of work restores the pre-transaction state, matching
// the real store's guarantee that no partial side effects survive.
type fakeDB struct {
	models []db.ScheduleModel
	shifts []db.Shift
	audits []db.RunAudit

	failures map[string][]error
}

func newFakeDB() *fakeDB {
	return &fakeDB{failures: make(map[string][]error)}
}

// failNext queues errors returned by the next calls to the named operation
func (f *fakeDB) failNext(op string, errs ...error) {
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *fakeDB) takeFailure(op string) error {
	queue := f.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	f.failures[op] = queue[1:]
	return err
}

func (f *fakeDB) InTx(ctx context.Context, fn func(db.Store) error) error {
	shifts := slices.Clone(f.shifts)
	audits := slices.Clone(f.audits)
	if err := fn(f); err != nil {
		f.shifts = shifts
		f.audits = audits
		return err
	}
	return nil
}

func (f *fakeDB) GetActiveModels(ctx context.Context, companyID, modelID int64) ([]db.ScheduleModel, error) {
	if err := f.takeFailure("GetActiveModels"); err != nil {
		return nil, err
	}
	var models []db.ScheduleModel
	for _, m := range f.models {
		if !m.Active {
			continue
		}
		if companyID != 0 && m.CompanyID != companyID {
			continue
		}
		if modelID != 0 && m.ID != modelID {
			continue
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].CompanyID != models[j].CompanyID {
			return models[i].CompanyID < models[j].CompanyID
		}
		return models[i].ID < models[j].ID
	})
	return models, nil
}

func (f *fakeDB) GetShiftDates(ctx context.Context, companyID, modelID int64, from, to time.Time) ([]time.Time, error) {
	if err := f.takeFailure("GetShiftDates"); err != nil {
		return nil, err
	}
	var dates []time.Time
	for _, s := range f.shifts {
		if s.CompanyID != companyID || !ownedBy(s, modelID) {
			continue
		}
		if s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		dates = append(dates, s.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (f *fakeDB) HasOverlap(ctx context.Context, companyID int64, date time.Time, start, end db.TimeOfDay) (bool, error) {
	if err := f.takeFailure("HasOverlap"); err != nil {
		return false, err
	}
	for _, s := range f.shifts {
		if s.CompanyID == companyID && s.Date.Equal(date) && db.Overlaps(s.StartTime, s.EndTime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDB) InsertShifts(ctx context.Context, shifts []db.Shift) (int, error) {
	if err := f.takeFailure("InsertShifts"); err != nil {
		return 0, err
	}
	f.shifts = append(f.shifts, shifts...)
	return len(shifts), nil
}

func (f *fakeDB) DeleteFutureUnlinkedShifts(ctx context.Context, modelID int64, from time.Time) (int, error) {
	if err := f.takeFailure("DeleteFutureUnlinkedShifts"); err != nil {
		return 0, err
	}
	return f.deleteShifts(func(s db.Shift) bool {
		return ownedBy(s, modelID) && !s.Linked && !s.Date.Before(from)
	}), nil
}

func (f *fakeDB) DeleteOrphanedShifts(ctx context.Context, companyID, modelID int64, validModelIDs []int64, from time.Time) (int, error) {
	if err := f.takeFailure("DeleteOrphanedShifts"); err != nil {
		return 0, err
	}
	valid := make(map[int64]bool, len(validModelIDs))
	for _, id := range validModelIDs {
		valid[id] = true
	}
	return f.deleteShifts(func(s db.Shift) bool {
		if s.ModelID == nil || s.Linked || s.Date.Before(from) {
			return false
		}
		if companyID != 0 && s.CompanyID != companyID {
			return false
		}
		if modelID != 0 && *s.ModelID != modelID {
			return false
		}
		return !valid[*s.ModelID]
	}), nil
}

func (f *fakeDB) InsertRunAudit(ctx context.Context, audit *db.RunAudit) error {
	if err := f.takeFailure("InsertRunAudit"); err != nil {
		return err
	}
	f.audits = append(f.audits, *audit)
	return nil
}

func (f *fakeDB) deleteShifts(match func(db.Shift) bool) int {
	deleted := 0
	kept := f.shifts[:0:0]
	for _, s := range f.shifts {
		if match(s) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	f.shifts = kept
	return deleted
}

func (f *fakeDB) shiftIDs() []string {
	ids := make([]string, 0, len(f.shifts))
	for _, s := range f.shifts {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

func ownedBy(s db.Shift, modelID int64) bool {
	return s.ModelID != nil && *s.ModelID == modelID
}

// Test data helpers

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func tod(t *testing.T, s string) db.TimeOfDay {
	t.Helper()
	v, err := db.ParseTimeOfDay(s)
	require.NoError(t, err)
	return v
}

// makeShift builds a shift instance; modelID 0 means manually created (nil model)
func makeShift(t *testing.T, id string, companyID, modelID int64, day, start, end string, linked bool) db.Shift {
	t.Helper()
	s := db.Shift{
		ID:        id,
		CompanyID: companyID,
		Date:      date(t, day),
		StartTime: tod(t, start),
		EndTime:   tod(t, end),
		Linked:    linked,
	}
	if modelID != 0 {
		s.ModelID = &modelID
	}
	return s
}

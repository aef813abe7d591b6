package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedops/shiftgen/pkg/core/retry"
	"github.com/schedops/shiftgen/pkg/db"
)

func TestCleanup_DeletesOrphansOfDeactivatedModel(t *testing.T) {
	fake := newFakeDB()
	fake.models = []db.ScheduleModel{
		weeklyTestModel(t, 1, 1, time.Friday, "09:00", "17:00"), // active
		// model 2 deactivated: not in the active set
	}
	fake.shifts = []db.Shift{
		// Five future shifts owned by the deactivated model 2
		makeShift(t, "orphan-1", 1, 2, "2025-03-13", "09:00", "17:00", false),
		makeShift(t, "orphan-2", 1, 2, "2025-03-20", "09:00", "17:00", false),
		makeShift(t, "orphan-3", 1, 2, "2025-03-27", "09:00", "17:00", false),
		makeShift(t, "orphan-4", 1, 2, "2025-04-03", "09:00", "17:00", false),
		makeShift(t, "orphan-5", 1, 2, "2025-04-10", "09:00", "17:00", false),
		// Survivors: past shift, linked shift, manual shift, active model's shift
		makeShift(t, "past", 1, 2, "2025-03-01", "09:00", "17:00", false),
		makeShift(t, "linked", 1, 2, "2025-03-20", "18:00", "20:00", true),
		makeShift(t, "manual", 1, 0, "2025-03-20", "21:00", "22:00", false),
		makeShift(t, "active-model", 1, 1, "2025-03-14", "09:00", "17:00", false),
	}

	deleted, err := Cleanup(context.Background(), fake, testRetrier(), 0, 0, testRef)
	require.NoError(t, err)

	assert.Equal(t, 5, deleted)
	assert.Equal(t, []string{"active-model", "linked", "manual", "past"}, fake.shiftIDs())
}

func TestCleanup_CompanyScopeLeavesOtherCompaniesAlone(t *testing.T) {
	fake := newFakeDB()
	// No active models anywhere: every owned future shift is an orphan
	fake.shifts = []db.Shift{
		makeShift(t, "company-1", 1, 5, "2025-03-20", "09:00", "17:00", false),
		makeShift(t, "company-2", 2, 6, "2025-03-20", "09:00", "17:00", false),
	}

	deleted, err := Cleanup(context.Background(), fake, testRetrier(), 1, 0, testRef)
	require.NoError(t, err)

	assert.Equal(t, 1, deleted)
	assert.Equal(t, []string{"company-2"}, fake.shiftIDs())
}

func TestCleanup_ModelScope(t *testing.T) {
	fake := newFakeDB()
	fake.shifts = []db.Shift{
		makeShift(t, "target", 1, 5, "2025-03-20", "09:00", "17:00", false),
		makeShift(t, "other-model", 1, 6, "2025-03-20", "18:00", "20:00", false),
	}

	deleted, err := Cleanup(context.Background(), fake, testRetrier(), 0, 5, testRef)
	require.NoError(t, err)

	assert.Equal(t, 1, deleted)
	assert.Equal(t, []string{"other-model"}, fake.shiftIDs())
}

func TestCleanup_NothingToDelete(t *testing.T) {
	fake := newFakeDB()
	fake.models = []db.ScheduleModel{weeklyTestModel(t, 1, 1, time.Friday, "09:00", "17:00")}
	fake.shifts = []db.Shift{
		makeShift(t, "owned", 1, 1, "2025-03-14", "09:00", "17:00", false),
	}

	deleted, err := Cleanup(context.Background(), fake, testRetrier(), 0, 0, testRef)
	require.NoError(t, err)

	assert.Equal(t, 0, deleted)
	assert.Len(t, fake.shifts, 1)
}

func TestCleanup_TransientFailureRetried(t *testing.T) {
	fake := newFakeDB()
	fake.failNext("GetActiveModels", db.MarkTransient(errors.New("deadlock detected")))
	fake.shifts = []db.Shift{
		makeShift(t, "orphan", 1, 9, "2025-03-20", "09:00", "17:00", false),
	}

	deleted, err := Cleanup(context.Background(), fake, testRetrier(), 0, 0, testRef)
	require.NoError(t, err)

	assert.Equal(t, 1, deleted)
}

func TestCleanup_ExhaustedRetriesSurface(t *testing.T) {
	fake := newFakeDB()
	transient := db.MarkTransient(errors.New("deadlock detected"))
	fake.failNext("GetActiveModels", transient, transient, transient)

	_, err := Cleanup(context.Background(), fake, testRetrier(), 0, 0, testRef)

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/schedops/shiftgen/pkg/core/occurrence"
	"github.com/schedops/shiftgen/pkg/core/retry"
	"github.com/schedops/shiftgen/pkg/db"
)

// Cleanup deletes future generator-owned shifts whose owning model is no
// longer among the active models (deleted or deactivated), scoped by the
// optional company/model filters. Shifts with a null model id and linked
// shifts are never touched. Runs before generation so stale occurrences do
// not cause false overlap blocks.
func Cleanup(ctx context.Context, database db.Database, retrier *retry.Runner, companyID, modelID int64, ref time.Time) (int, error) {
	from := occurrence.Tomorrow(ref)

	var deleted int
	err := retrier.Do(ctx, func(ctx context.Context) error {
		return database.InTx(ctx, func(tx db.Store) error {
			// The valid set and the delete read from the same transaction, so
			// a model edited mid-cleanup cannot be half-orphaned.
			models, err := tx.GetActiveModels(ctx, companyID, modelID)
			if err != nil {
				return err
			}

			validIDs := make([]int64, 0, len(models))
			for _, m := range models {
				validIDs = append(validIDs, m.ID)
			}

			n, err := tx.DeleteOrphanedShifts(ctx, companyID, modelID, validIDs, from)
			if err != nil {
				return err
			}
			deleted = n
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up orphaned shifts: %w", err)
	}

	return deleted, nil
}

package ops

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThan time.Duration // required, > 0
	Now       time.Time     // zero means time.Now()
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Cutoff  int64  `json:"cutoff"`
	Message string `json:"message"`
}

// Purge permanently deletes recordings saved before now - OlderThan.
// The recording timestamp is the retention key.
func Purge(ctx context.Context, database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThan <= 0 {
		return nil, errors.NewInvalidRequest("older_than must be positive")
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-input.OlderThan).UnixMilli()

	count, err := db.DeleteOlderThan(ctx, database, cutoff)
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  int(count),
		Cutoff:  cutoff,
		Message: formatPurgeMessage(int(count), input.OlderThan),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, olderThan time.Duration) string {
	if count == 0 {
		return "No recordings to purge"
	}

	word := "recording"
	if count > 1 {
		word = "recordings"
	}

	return fmt.Sprintf("Permanently deleted %d %s older than %s", count, word, formatAge(olderThan))
}

func formatAge(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
	return d.String()
}

package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/recording"
)

// Put stores a recording, overwriting any recording with the same id.
// A missing id is minted, a missing timestamp is set to now, and a missing
// session id falls back to the recording id (standalone capture).
// Returns the record as stored.
func Put(ctx context.Context, database *sql.DB, rec recording.Recording) (*recording.Recording, error) {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		id, err := recording.NewRecordingID()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		rec.ID = id
	}
	if rec.SessionID == "" {
		rec.SessionID = rec.ID
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	if rec.Events == nil {
		rec.Events = []recording.Event{}
	}

	if err := db.Put(ctx, database, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

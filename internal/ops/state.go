package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabrec/internal/db"
)

// LoadState returns the persisted recording flag and session id.
// Both are zero when nothing was saved.
func LoadState(ctx context.Context, database *sql.DB) (isRecording bool, sessionID string, err error) {
	state, _, err := db.LoadState(ctx, database)
	if err != nil {
		return false, "", err
	}
	return state.IsRecording, state.SessionID, nil
}

// SaveState persists the recording flag and session id.
func SaveState(ctx context.Context, database *sql.DB, isRecording bool, sessionID string) error {
	return db.SaveState(ctx, database, db.State{IsRecording: isRecording, SessionID: sessionID})
}

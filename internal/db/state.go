package db

import (
	"context"
	"database/sql"
	"time"
)

// State is the durable slice of the coordinator state: whether a session
// is recording and under which id. Tab tracking is never persisted since
// tab ids do not survive a restart of the tab host.
type State struct {
	IsRecording bool
	SessionID   string
	UpdatedAt   int64
}

// LoadState returns the saved coordinator state. ok is false when nothing
// has been saved yet.
func LoadState(ctx context.Context, db *sql.DB) (state State, ok bool, err error) {
	var (
		recording int
		sessionID sql.NullString
	)
	row := db.QueryRowContext(ctx, `SELECT is_recording, session_id, updated_at FROM coordinator_state WHERE id = 1`)
	err = row.Scan(&recording, &sessionID, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, storeErr(err)
	}
	state.IsRecording = recording != 0
	state.SessionID = fromNullString(sessionID)
	return state, true, nil
}

// SaveState overwrites the saved coordinator state.
func SaveState(ctx context.Context, db *sql.DB, state State) error {
	recording := 0
	if state.IsRecording {
		recording = 1
	}
	updated := state.UpdatedAt
	if updated == 0 {
		updated = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO coordinator_state (id, is_recording, session_id, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_recording = excluded.is_recording,
			session_id = excluded.session_id,
			updated_at = excluded.updated_at
	`
	return RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, recording, toNullString(state.SessionID), updated)
		return storeErr(err)
	})
}

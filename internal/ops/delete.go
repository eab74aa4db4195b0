package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/errors"
)

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete permanently removes one recording.
func Delete(ctx context.Context, database *sql.DB, id string) (*DeleteOutput, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	if err := db.DeleteByID(ctx, database, id); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: id}, nil
}

// ClearOutput contains the result of the Clear operation.
type ClearOutput struct {
	Deleted int `json:"deleted"`
}

// Clear removes every recording.
func Clear(ctx context.Context, database *sql.DB) (*ClearOutput, error) {
	n, err := db.DeleteAll(ctx, database)
	if err != nil {
		return nil, err
	}
	return &ClearOutput{Deleted: int(n)}, nil
}

// DeleteSessionOutput contains the result of the DeleteSession operation.
type DeleteSessionOutput struct {
	SessionID string `json:"session_id"`
	Deleted   int    `json:"deleted"`
}

// DeleteSession removes every recording of a session, which removes the
// session itself since sessions are derived.
func DeleteSession(ctx context.Context, database *sql.DB, sessionID string) (*DeleteSessionOutput, error) {
	sessionID, err := requireID("session_id", sessionID)
	if err != nil {
		return nil, err
	}
	n, err := db.DeleteBySession(ctx, database, sessionID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.NewNotFound("session", sessionID)
	}
	return &DeleteSessionOutput{SessionID: sessionID, Deleted: int(n)}, nil
}

package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/recording"
)

const recordingColumns = `id, session_id, tab_id, url, title, timestamp, event_count, events_json`

// Put inserts or overwrites a recording by id in a single transaction.
func Put(ctx context.Context, db *sql.DB, r *recording.Recording) error {
	eventsJSON, err := encodeEvents(r.Events)
	if err != nil {
		return err
	}

	var tabID sql.NullString
	if r.TabID != nil {
		tabID = sql.NullString{String: string(*r.TabID), Valid: true}
	}

	query := `
		INSERT INTO recordings (` + recordingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			tab_id = excluded.tab_id,
			url = excluded.url,
			title = excluded.title,
			timestamp = excluded.timestamp,
			event_count = excluded.event_count,
			events_json = excluded.events_json
	`

	return RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			r.ID, toNullString(r.SessionID), tabID, r.URL, r.Title,
			r.Timestamp, len(r.Events), string(eventsJSON),
		)
		return storeErr(err)
	})
}

// encodeEvents joins compacted events into a JSON array, leaving <, > and &
// unescaped so stored bytes match what was captured.
func encodeEvents(events []recording.Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range events {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := json.Compact(&buf, e); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("event %d is not valid JSON: %v", i, err))
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// GetByID retrieves a recording by id.
func GetByID(ctx context.Context, db *sql.DB, id string) (*recording.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = ?`

	r, err := scanRecording(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("recording", id)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return r, nil
}

// ListAll returns every recording ordered by timestamp, then id.
func ListAll(ctx context.Context, db *sql.DB) ([]recording.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings ORDER BY timestamp ASC, id ASC`
	return queryRecordings(ctx, db, query)
}

// ListBySession returns every recording of a session in arrival order.
// Legacy rows without a session id match on their own id.
func ListBySession(ctx context.Context, db *sql.DB, sessionID string) ([]recording.Recording, error) {
	query := `
		SELECT ` + recordingColumns + ` FROM recordings
		WHERE session_id = ? OR (session_id IS NULL AND id = ?)
		ORDER BY timestamp ASC, id ASC
	`
	return queryRecordings(ctx, db, query, sessionID, sessionID)
}

// ListSummaries returns recording metadata without decoding event payloads.
func ListSummaries(ctx context.Context, db *sql.DB) ([]recording.Summary, error) {
	query := `
		SELECT id, session_id, tab_id, url, title, timestamp, event_count
		FROM recordings
		ORDER BY timestamp DESC, id DESC
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []recording.Summary
	for rows.Next() {
		var (
			s         recording.Summary
			sessionID sql.NullString
			tabID     sql.NullString
		)
		if err := rows.Scan(&s.ID, &sessionID, &tabID, &s.URL, &s.Title, &s.Timestamp, &s.EventCount); err != nil {
			return nil, storeErr(err)
		}
		s.SessionID = sessionID.String
		if s.SessionID == "" {
			s.SessionID = s.ID
		}
		if tabID.Valid {
			s.TabID = recording.TabPtr(recording.TabID(tabID.String))
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// DeleteByID removes one recording. Sessions are derived, nothing cascades.
func DeleteByID(ctx context.Context, db *sql.DB, id string) error {
	var affected int64
	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
		if err != nil {
			return storeErr(err)
		}
		affected, err = res.RowsAffected()
		return storeErr(err)
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NewNotFound("recording", id)
	}
	return nil
}

// DeleteBySession removes every recording of a session and returns how many went.
func DeleteBySession(ctx context.Context, db *sql.DB, sessionID string) (int64, error) {
	return deleteWhere(ctx, db,
		`DELETE FROM recordings WHERE session_id = ? OR (session_id IS NULL AND id = ?)`,
		sessionID, sessionID)
}

// DeleteAll removes every recording.
func DeleteAll(ctx context.Context, db *sql.DB) (int64, error) {
	return deleteWhere(ctx, db, `DELETE FROM recordings`)
}

// DeleteOlderThan removes recordings whose timestamp (unix ms) is before cutoff.
func DeleteOlderThan(ctx context.Context, db *sql.DB, cutoff int64) (int64, error) {
	return deleteWhere(ctx, db, `DELETE FROM recordings WHERE timestamp < ?`, cutoff)
}

func deleteWhere(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	var affected int64
	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return storeErr(err)
		}
		affected, err = res.RowsAffected()
		return storeErr(err)
	})
	return affected, err
}

func queryRecordings(ctx context.Context, db *sql.DB, query string, args ...any) ([]recording.Recording, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []recording.Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecording scans a single row into a Recording.
func scanRecording(row scanner) (*recording.Recording, error) {
	var (
		r          recording.Recording
		sessionID  sql.NullString
		tabID      sql.NullString
		eventCount int
		eventsJSON string
	)

	err := row.Scan(&r.ID, &sessionID, &tabID, &r.URL, &r.Title, &r.Timestamp, &eventCount, &eventsJSON)
	if err != nil {
		return nil, err
	}

	r.SessionID = fromNullString(sessionID)
	if tabID.Valid {
		r.TabID = recording.TabPtr(recording.TabID(tabID.String))
	}

	r.Events = make([]recording.Event, 0, eventCount)
	if eventsJSON != "" {
		if err := json.Unmarshal([]byte(eventsJSON), &r.Events); err != nil {
			return nil, err
		}
	}

	return &r, nil
}

// toNullString maps "" to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// fromNullString maps NULL to "".
func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

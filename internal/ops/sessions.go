package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/recording"
)

// GetBySession returns every recording of a session in arrival order.
// An unknown session yields an empty slice.
func GetBySession(ctx context.Context, database *sql.DB, sessionID string) ([]recording.Recording, error) {
	sessionID, err := requireID("session_id", sessionID)
	if err != nil {
		return nil, err
	}
	recs, err := db.ListBySession(ctx, database, sessionID)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []recording.Recording{}
	}
	return recs, nil
}

// GetAllSessions groups every recording into sessions, most recent first.
func GetAllSessions(ctx context.Context, database *sql.DB) ([]recording.Session, error) {
	recs, err := db.ListAll(ctx, database)
	if err != nil {
		return nil, err
	}
	sessions := recording.GroupSessions(recs)
	if sessions == nil {
		sessions = []recording.Session{}
	}
	return sessions, nil
}

// GetSession returns one session with its recordings.
func GetSession(ctx context.Context, database *sql.DB, sessionID string) (*recording.Session, error) {
	recs, err := GetBySession(ctx, database, sessionID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.NewNotFound("session", sessionID)
	}
	sessions := recording.GroupSessions(recs)
	return &sessions[0], nil
}

// ListSessionsInput contains parameters for the ListSessions operation.
type ListSessionsInput struct {
	Limit  int
	Offset int
}

// ListSessionsOutput contains the result of the ListSessions operation.
type ListSessionsOutput struct {
	Items      []recording.SessionSummary `json:"items"`
	Pagination Pagination                 `json:"pagination"`
	Sort       string                     `json:"sort"`
}

// ListSessions returns session summaries, most recent first.
func ListSessions(ctx context.Context, database *sql.DB, input ListSessionsInput) (*ListSessionsOutput, error) {
	sessions, err := GetAllSessions(ctx, database)
	if err != nil {
		return nil, err
	}

	start, end, page := paginate(input.Limit, input.Offset, len(sessions))
	items := make([]recording.SessionSummary, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, sessions[i].Summary())
	}

	return &ListSessionsOutput{
		Items:      items,
		Pagination: page,
		Sort:       "first_timestamp_desc",
	}, nil
}

// SessionEventsOutput contains the merged playback stream of a session.
type SessionEventsOutput struct {
	SessionID string            `json:"session_id"`
	Count     int               `json:"count"`
	Events    []recording.Event `json:"events"`
}

// SessionEvents merges every recording of a session and sorts the events
// by timestamp, ready for playback.
func SessionEvents(ctx context.Context, database *sql.DB, sessionID string) (*SessionEventsOutput, error) {
	session, err := GetSession(ctx, database, sessionID)
	if err != nil {
		return nil, err
	}
	events := recording.MergeEvents(session.Recordings)
	return &SessionEventsOutput{
		SessionID: session.SessionID,
		Count:     len(events),
		Events:    events,
	}, nil
}

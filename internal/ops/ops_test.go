package ops

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/recording"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// seed stores a recording with n events stamped from ts.
func seed(t *testing.T, database *sql.DB, id, sessionID string, ts int64, n int) *recording.Recording {
	t.Helper()
	events := make([]recording.Event, n)
	for i := range events {
		events[i] = recording.Event(fmt.Sprintf(`{"type":3,"timestamp":%d}`, ts+int64(i)))
	}
	out, err := Put(context.Background(), database, recording.Recording{
		ID:        id,
		SessionID: sessionID,
		URL:       "https://example.com/" + id,
		Title:     id,
		Timestamp: ts,
		Events:    events,
	})
	if err != nil {
		t.Fatalf("Put(%s) failed: %v", id, err)
	}
	return out
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name                 string
		limit, offset, total int
		wantStart, wantEnd   int
		wantLimit            int
		wantHasMore          bool
	}{
		{"defaults", 0, 0, 50, 0, 20, 20, true},
		{"clamped", 10000, 0, 3, 0, 3, MaxListLimit, false},
		{"offset past end", 5, 10, 3, 3, 3, 5, false},
		{"negative offset", 2, -4, 3, 0, 2, 2, true},
		{"last page", 2, 2, 3, 2, 3, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, p := paginate(tt.limit, tt.offset, tt.total)
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("window = [%d,%d), want [%d,%d)", start, end, tt.wantStart, tt.wantEnd)
			}
			if p.Limit != tt.wantLimit || p.HasMore != tt.wantHasMore || p.Total != tt.total {
				t.Errorf("pagination = %+v", p)
			}
		})
	}
}

func TestRequireID(t *testing.T) {
	if _, err := requireID("id", "  "); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("requireID(blank) error = %v, want INVALID_REQUEST", err)
	}
	got, err := requireID("id", " abc ")
	if err != nil || got != "abc" {
		t.Errorf("requireID = %q, %v", got, err)
	}
}

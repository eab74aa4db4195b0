package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hpungsan/tabrec/internal/coordinator"
	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/ops"
	"github.com/hpungsan/tabrec/internal/recording"
	"github.com/hpungsan/tabrec/internal/upload"
)

type stubUploader struct {
	calls []string
}

func (u *stubUploader) Upload(_ context.Context, sessionID string, events []recording.Event) (*upload.Result, error) {
	u.calls = append(u.calls, sessionID)
	return &upload.Result{SessionID: sessionID, Segments: 1, Events: len(events)}, nil
}

type testEnv struct {
	db       *sql.DB
	coord    *coordinator.Coordinator
	uploader *stubUploader
	handler  http.Handler
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := ops.NewRecorder(database)
	uploader := &stubUploader{}
	coord := coordinator.New(coordinator.Options{Store: store, State: store, Uploader: uploader})
	t.Cleanup(coord.Close)

	handler, err := NewRouter(database, coord, "test")
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return &testEnv{db: database, coord: coord, uploader: uploader, handler: handler}
}

func (e *testEnv) do(t *testing.T, method, path, tab, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if tab != "" {
		req.Header.Set(TabHeader, tab)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error.Code
}

const saveBody = `{"type":"save-recording","url":"https://example.com","title":"Example",
	"events":[{"type":2,"timestamp":10},{"type":3,"timestamp":11}],"isFinalRecording":%s}`

func save(final bool) string {
	if final {
		return strings.Replace(saveBody, "%s", "true", 1)
	}
	return strings.Replace(saveBody, "%s", "false", 1)
}

// --- POST /v1/messages ---

func TestHandleMessage_RecordingFlow(t *testing.T) {
	e := setupTest(t)

	rec := e.do(t, "POST", "/v1/messages", "7", `{"type":"recording-started"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var started coordinator.SessionResponse
	decodeBody(t, rec, &started)
	if !strings.HasPrefix(started.SessionID, recording.SessionPrefix) {
		t.Fatalf("sessionId = %q, want %s prefix", started.SessionID, recording.SessionPrefix)
	}

	rec = e.do(t, "POST", "/v1/messages", "7", save(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var saved coordinator.SaveResponse
	decodeBody(t, rec, &saved)
	if saved.SessionID != started.SessionID {
		t.Errorf("sessionId = %q, want %q", saved.SessionID, started.SessionID)
	}
	if saved.Upload == nil || saved.Upload.Events != 2 {
		t.Errorf("upload = %+v, want 2 events", saved.Upload)
	}
	if len(e.uploader.calls) != 1 || e.uploader.calls[0] != started.SessionID {
		t.Errorf("upload calls = %v", e.uploader.calls)
	}

	recs, err := ops.GetBySession(context.Background(), e.db, started.SessionID)
	if err != nil {
		t.Fatalf("GetBySession: %v", err)
	}
	if len(recs) != 1 || recs[0].TabID == nil || *recs[0].TabID != "7" {
		t.Errorf("stored recordings = %+v, want one from tab 7", recs)
	}
}

func TestHandleMessage_GetTabID(t *testing.T) {
	e := setupTest(t)

	rec := e.do(t, "POST", "/v1/messages", "42", `{"type":"get-tab-id"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"tabId":"42"}` {
		t.Errorf("body = %s", got)
	}
}

func TestHandleMessage_Errors(t *testing.T) {
	e := setupTest(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid json", `{nope`, 400, "INVALID_REQUEST"},
		{"unknown type", `{"type":"open-popup"}`, 400, "INVALID_REQUEST"},
		{"empty events", `{"type":"save-recording","events":[]}`, 400, "INVALID_REQUEST"},
		{"missing recording", `{"type":"delete-recording","recordingId":"nope"}`, 404, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, "POST", "/v1/messages", "", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

// --- query routes ---

func TestHandleState(t *testing.T) {
	e := setupTest(t)
	e.do(t, "POST", "/v1/messages", "7", `{"type":"recording-started"}`)

	rec := e.do(t, "GET", "/v1/state", "", "")
	var state coordinator.State
	decodeBody(t, rec, &state)
	if !state.IsRecording || state.CurrentTabID != "7" {
		t.Errorf("state = %+v", state)
	}
}

func TestHandleSessions_AndSession(t *testing.T) {
	e := setupTest(t)
	e.do(t, "POST", "/v1/messages", "7", `{"type":"recording-started"}`)
	e.do(t, "POST", "/v1/messages", "7", save(false))
	sessionID := e.coord.Snapshot().CurrentSessionID

	rec := e.do(t, "GET", "/v1/sessions", "", "")
	var list ops.ListSessionsOutput
	decodeBody(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].SessionID != sessionID || list.Items[0].TotalEvents != 2 {
		t.Fatalf("sessions = %+v", list.Items)
	}

	rec = e.do(t, "GET", "/v1/sessions/"+sessionID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var session recording.Session
	decodeBody(t, rec, &session)
	if len(session.Recordings) != 1 {
		t.Errorf("recordings = %d, want 1", len(session.Recordings))
	}

	rec = e.do(t, "GET", "/v1/sessions/"+sessionID+"/events", "", "")
	var events ops.SessionEventsOutput
	decodeBody(t, rec, &events)
	if events.Count != 2 {
		t.Errorf("events count = %d, want 2", events.Count)
	}

	rec = e.do(t, "GET", "/v1/sessions/session-missing", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", rec.Code)
	}
}

func TestHandleRecordings_List(t *testing.T) {
	e := setupTest(t)
	e.do(t, "POST", "/v1/messages", "7", save(false))
	e.do(t, "POST", "/v1/messages", "7", save(false))

	rec := e.do(t, "GET", "/v1/recordings?limit=1", "", "")
	var out ops.ListOutput
	decodeBody(t, rec, &out)
	if len(out.Items) != 1 || !out.Pagination.HasMore || out.Pagination.Total != 2 {
		t.Errorf("list = %+v", out)
	}
}

func TestHandleDeleteRecording(t *testing.T) {
	e := setupTest(t)
	rec := e.do(t, "POST", "/v1/messages", "", save(false))
	var saved coordinator.SaveResponse
	decodeBody(t, rec, &saved)

	rec = e.do(t, "DELETE", "/v1/recordings/"+saved.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = e.do(t, "DELETE", "/v1/recordings/"+saved.ID, "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestHandleDeleteSession(t *testing.T) {
	e := setupTest(t)
	e.do(t, "POST", "/v1/messages", "7", `{"type":"recording-started"}`)
	e.do(t, "POST", "/v1/messages", "7", save(false))
	e.do(t, "POST", "/v1/messages", "9", save(false))
	sessionID := e.coord.Snapshot().CurrentSessionID

	rec := e.do(t, "DELETE", "/v1/sessions/"+sessionID, "", "")
	var out ops.DeleteSessionOutput
	decodeBody(t, rec, &out)
	if out.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", out.Deleted)
	}

	rec = e.do(t, "GET", "/v1/sessions", "", "")
	var list ops.ListSessionsOutput
	decodeBody(t, rec, &list)
	if len(list.Items) != 0 {
		t.Errorf("sessions after delete = %+v", list.Items)
	}
}

func TestHandleUpload(t *testing.T) {
	e := setupTest(t)
	e.do(t, "POST", "/v1/messages", "7", `{"type":"recording-started"}`)
	e.do(t, "POST", "/v1/messages", "7", save(false))
	sessionID := e.coord.Snapshot().CurrentSessionID

	rec := e.do(t, "POST", "/v1/sessions/"+sessionID+"/upload", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out coordinator.FinalizeResult
	decodeBody(t, rec, &out)
	if out.Recordings != 1 || out.Events != 2 {
		t.Errorf("finalize = %+v", out)
	}

	rec = e.do(t, "POST", "/v1/sessions/session-missing/upload", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", rec.Code)
	}
}

// --- GET / ---

func TestHandleStatus(t *testing.T) {
	e := setupTest(t)
	e.do(t, "POST", "/v1/messages", "7", `{"type":"recording-started"}`)
	e.do(t, "POST", "/v1/messages", "7", strings.Replace(save(false), "Example", "Pipe | Title", 1))

	rec := e.do(t, "GET", "/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<table>", "recording", e.coord.Snapshot().CurrentSessionID, "Pipe | Title"} {
		if !strings.Contains(body, want) {
			t.Errorf("status page missing %q", want)
		}
	}
	if got := rec.Header().Get("Content-Security-Policy"); got == "" {
		t.Error("expected Content-Security-Policy header")
	}
}

func TestHandleStatus_Empty(t *testing.T) {
	e := setupTest(t)

	rec := e.do(t, "GET", "/", "", "")
	if !strings.Contains(rec.Body.String(), "No recordings stored.") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStaticAssets(t *testing.T) {
	e := setupTest(t)

	rec := e.do(t, "GET", "/static/style.css", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.in); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeCell(t *testing.T) {
	if got := escapeCell(" a|b\nc "); got != `a\|b c` {
		t.Errorf("escapeCell = %q", got)
	}
}

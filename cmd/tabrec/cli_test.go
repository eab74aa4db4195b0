package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hpungsan/tabrec/internal/config"
	"github.com/hpungsan/tabrec/internal/coordinator"
	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/ops"
	"github.com/hpungsan/tabrec/internal/recording"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	cleanup := func() {
		database.Close()
	}
	return database, cleanup
}

// runCLI runs the app with args and returns what it wrote to stdout.
func runCLI(t *testing.T, database *sql.DB, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()

	app := newCLIApp(database, cfg)
	err := app.RunContext(context.Background(), append([]string{"tabrec"}, args...))
	return buf.String(), err
}

func seedRecording(t *testing.T, database *sql.DB, id, sessionID string, ts int64) {
	t.Helper()
	_, err := ops.Put(context.Background(), database, recording.Recording{
		ID:        id,
		SessionID: sessionID,
		URL:       "https://example.com",
		Timestamp: ts,
		Events: []recording.Event{
			json.RawMessage(`{"type":4,"timestamp":1}`),
			json.RawMessage(`{"type":2,"timestamp":2}`),
		},
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func decodeOutput(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	return m
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{name: "valid days", input: "7d", expected: 7},
		{name: "zero days", input: "0d", expected: 0},
		{name: "large number", input: "365d", expected: 365},
		{name: "negative days", input: "-7d", expectError: true},
		{name: "no suffix", input: "7", expectError: true},
		{name: "wrong suffix", input: "7h", expectError: true},
		{name: "invalid number", input: "abcd", expectError: true},
		{name: "empty string", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestCLIRecordings(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	cfg := config.DefaultConfig()

	seedRecording(t, database, "r1", "s1", 1000)
	seedRecording(t, database, "r2", "s2", 2000)

	out, err := runCLI(t, database, cfg, "recordings", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var list ops.ListOutput
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if len(list.Items) != 2 || list.Items[0].ID != "r2" {
		t.Errorf("items = %+v, want r2 first", list.Items)
	}

	out, err = runCLI(t, database, cfg, "recordings", "list", "--session=s1")
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].SessionID != "s1" {
		t.Errorf("items = %+v, want only s1", list.Items)
	}

	if _, err := runCLI(t, database, cfg, "recordings", "delete", "r1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := runCLI(t, database, cfg, "recordings", "clear"); err == nil {
		t.Error("clear without --yes should fail")
	}

	out, err = runCLI(t, database, cfg, "recordings", "clear", "--yes")
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if got := decodeOutput(t, out)["deleted"]; got != float64(1) {
		t.Errorf("deleted = %v, want 1", got)
	}
}

func TestCLISessions(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	cfg := config.DefaultConfig()

	seedRecording(t, database, "r1", "s1", 1000)
	seedRecording(t, database, "r2", "s1", 2000)

	out, err := runCLI(t, database, cfg, "sessions", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if items := decodeOutput(t, out)["items"].([]any); len(items) != 1 {
		t.Errorf("sessions = %d, want 1", len(items))
	}

	out, err = runCLI(t, database, cfg, "sessions", "show", "s1")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	var sess recording.Session
	if err := json.Unmarshal([]byte(out), &sess); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(sess.Recordings) != 2 || sess.TotalEvents != 4 {
		t.Errorf("session = %d recordings / %d events, want 2 / 4", len(sess.Recordings), sess.TotalEvents)
	}

	out, err = runCLI(t, database, cfg, "sessions", "events", "s1")
	if err != nil {
		t.Fatalf("events failed: %v", err)
	}
	if got := decodeOutput(t, out)["count"]; got != float64(4) {
		t.Errorf("count = %v, want 4", got)
	}

	if _, err := runCLI(t, database, cfg, "sessions", "delete", "s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := runCLI(t, database, cfg, "sessions", "show", "s1"); err == nil {
		t.Error("show after delete should fail")
	}
}

func TestCLISessionUpload(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.UploadToken = "secret"
	seedRecording(t, database, "r1", "s1", 1000)

	t.Run("without endpoint", func(t *testing.T) {
		if _, err := runCLI(t, database, cfg, "sessions", "upload", "s1"); err == nil {
			t.Error("expected error without an endpoint")
		}
	})

	t.Run("endpoint flag", func(t *testing.T) {
		out, err := runCLI(t, database, cfg, "sessions", "upload", "--endpoint="+srv.URL, "s1")
		if err != nil {
			t.Fatalf("upload failed: %v", err)
		}
		got := decodeOutput(t, out)
		if got["session_id"] != "s1" || got["events"] != float64(2) {
			t.Errorf("output = %v", got)
		}
		if hits.Load() != 1 {
			t.Errorf("segments sent = %d, want 1", hits.Load())
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if _, err := runCLI(t, database, cfg, "sessions", "upload", "--endpoint="+srv.URL, "nope"); err == nil {
			t.Error("expected NOT_FOUND error")
		}
	})
}

func TestCLIPurge(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	cfg := config.DefaultConfig()

	now := time.Now()
	seedRecording(t, database, "old", "s1", now.Add(-10*24*time.Hour).UnixMilli())
	seedRecording(t, database, "new", "s2", now.UnixMilli())

	if _, err := runCLI(t, database, cfg, "purge"); err == nil {
		t.Error("purge without threshold or retention should fail")
	}

	out, err := runCLI(t, database, cfg, "purge", "--older-than=7d")
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if got := decodeOutput(t, out)["purged"]; got != float64(1) {
		t.Errorf("purged = %v, want 1", got)
	}

	cfg.RetentionDays = 1
	seedRecording(t, database, "older", "s3", now.Add(-3*24*time.Hour).UnixMilli())
	out, err = runCLI(t, database, cfg, "purge")
	if err != nil {
		t.Fatalf("purge with retention failed: %v", err)
	}
	if got := decodeOutput(t, out)["purged"]; got != float64(1) {
		t.Errorf("purged = %v, want 1", got)
	}
}

func TestCLIState(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	cfg := config.DefaultConfig()

	out, err := runCLI(t, database, cfg, "state")
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if got := decodeOutput(t, out)["is_recording"]; got != false {
		t.Errorf("is_recording = %v, want false", got)
	}

	if err := ops.SaveState(context.Background(), database, true, "s9"); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	out, err = runCLI(t, database, cfg, "state")
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	got := decodeOutput(t, out)
	if got["is_recording"] != true || got["session_id"] != "s9" {
		t.Errorf("state = %v, want recording s9", got)
	}
}

func TestCLIErrorHandling(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	cfg := config.DefaultConfig()

	t.Run("show missing session", func(t *testing.T) {
		_, err := runCLI(t, database, cfg, "sessions", "show", "nonexistent")
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if err.Error() != "[NOT_FOUND] session not found: nonexistent" {
			t.Errorf("error = %q", err.Error())
		}
	})

	t.Run("delete without id", func(t *testing.T) {
		if _, err := runCLI(t, database, cfg, "recordings", "delete"); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("invalid duration format", func(t *testing.T) {
		if _, err := runCLI(t, database, cfg, "purge", "--older-than=invalid"); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

func TestNewCoordinator_RestoresState(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := ops.SaveState(ctx, database, true, "s1"); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	coord, err := newCoordinator(ctx, database, config.DefaultConfig(), offlineHost{})
	if err != nil {
		t.Fatalf("newCoordinator: %v", err)
	}
	defer coord.Close()

	st := coord.Snapshot()
	if !st.IsRecording || st.CurrentSessionID != "s1" {
		t.Errorf("snapshot = %+v, want recording s1", st)
	}
}

func TestOfflineHost(t *testing.T) {
	ctx := context.Background()
	var h offlineHost

	if _, err := h.Tab(ctx, "7"); !errors.Is(err, errors.ErrTabUnreachable) {
		t.Errorf("Tab() error = %v, want TAB_UNREACHABLE", err)
	}
	if err := h.Send(ctx, "7", coordinator.CommandStart); !errors.Is(err, errors.ErrTabUnreachable) {
		t.Errorf("Send() error = %v, want TAB_UNREACHABLE", err)
	}
}

func TestLateHandler(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	var late lateHandler
	if _, err := late.Handle(ctx, "7", coordinator.GetTabID{}); err == nil {
		t.Error("expected error before the coordinator is set")
	}

	coord, err := newCoordinator(ctx, database, config.DefaultConfig(), offlineHost{})
	if err != nil {
		t.Fatalf("newCoordinator: %v", err)
	}
	defer coord.Close()
	late.set(coord)

	resp, err := late.Handle(ctx, "7", coordinator.GetTabID{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if r, ok := resp.(coordinator.TabIDResponse); !ok || r.TabID == nil || *r.TabID != "7" {
		t.Errorf("response = %#v, want tab 7", resp)
	}
}

func TestReadEngine(t *testing.T) {
	if src, err := readEngine(""); err != nil || src != "" {
		t.Errorf("readEngine(\"\") = %q, %v", src, err)
	}

	path := filepath.Join(t.TempDir(), "engine.js")
	if err := os.WriteFile(path, []byte("window.rrweb = {};"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src, err := readEngine(path)
	if err != nil || src != "window.rrweb = {};" {
		t.Errorf("readEngine() = %q, %v", src, err)
	}

	if _, err := readEngine(filepath.Join(t.TempDir(), "missing.js")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestResolveArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		terminal bool
		want     []string
	}{
		{"piped bare invocation runs mcp", []string{"tabrec"}, false, []string{"tabrec", "mcp"}},
		{"terminal bare invocation unchanged", []string{"tabrec"}, true, []string{"tabrec"}},
		{"explicit command unchanged", []string{"tabrec", "state"}, false, []string{"tabrec", "state"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveArgs(tt.args, tt.terminal)
			if len(got) != len(tt.want) {
				t.Fatalf("resolveArgs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("resolveArgs() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"tabrec"}, false},
		{[]string{"tabrec", "--help"}, true},
		{[]string{"tabrec", "-h"}, true},
		{[]string{"tabrec", "--version"}, true},
		{[]string{"tabrec", "-v"}, true},
		{[]string{"tabrec", "help"}, true},
		{[]string{"tabrec", "serve"}, false},
	}

	for _, tt := range tests {
		if got := isHelpOrVersion(tt.args); got != tt.want {
			t.Errorf("isHelpOrVersion(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestBaseDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)

	got, err := baseDir()
	if err != nil {
		t.Fatalf("baseDir: %v", err)
	}
	if got != dir {
		t.Errorf("baseDir() = %q, want %q", got, dir)
	}
}

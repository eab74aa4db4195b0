package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/ops"
	"github.com/hpungsan/tabrec/internal/recording"
	"github.com/hpungsan/tabrec/internal/upload"
	"github.com/stretchr/testify/require"
)

type sentCmd struct {
	tab recording.TabID
	cmd Command
}

type fakeTab struct {
	url     string
	title   string
	loaded  bool
	running bool
	starts  int
}

// fakeHost is a tab facility whose capture engines behave like the real
// one: start on a running engine is ignored, stop flushes a recording.
type fakeHost struct {
	mu      sync.Mutex
	coord   *Coordinator
	tabs    map[recording.TabID]*fakeTab
	sent    []sentCmd
	gone    map[recording.TabID]bool
	clock   int64
	handled []error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		tabs: make(map[recording.TabID]*fakeTab),
		gone: make(map[recording.TabID]bool),
	}
}

func (h *fakeHost) addTab(id recording.TabID, url string, loaded bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs[id] = &fakeTab{url: url, title: "tab " + string(id), loaded: loaded}
}

func (h *fakeHost) setLoaded(id recording.TabID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs[id].loaded = true
}

func (h *fakeHost) Tab(_ context.Context, id recording.TabID) (TabInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tab, ok := h.tabs[id]
	if !ok || h.gone[id] {
		return TabInfo{}, errors.NewTabUnreachable(string(id), fmt.Errorf("no such tab"))
	}
	return TabInfo{ID: id, URL: tab.url, Title: tab.title, Loaded: tab.loaded}, nil
}

func (h *fakeHost) Send(ctx context.Context, id recording.TabID, cmd Command) error {
	h.mu.Lock()
	h.sent = append(h.sent, sentCmd{tab: id, cmd: cmd})
	tab, ok := h.tabs[id]
	if !ok || h.gone[id] {
		h.mu.Unlock()
		return errors.NewTabUnreachable(string(id), fmt.Errorf("no receiving end"))
	}

	switch cmd {
	case CommandStart:
		if tab.running {
			h.mu.Unlock()
			return nil
		}
		tab.running = true
		tab.starts++
		h.mu.Unlock()
		_, err := h.coord.Handle(ctx, id, RecordingStarted{})
		h.record(err)
		return nil
	case CommandStop:
		if !tab.running {
			h.mu.Unlock()
			return nil
		}
		tab.running = false
		save := h.flushLocked(tab, false)
		h.mu.Unlock()
		_, err := h.coord.Handle(ctx, id, save)
		h.record(err)
		return nil
	}
	h.mu.Unlock()
	return fmt.Errorf("unknown command %q", cmd)
}

// flushLocked builds the save-recording message a stopping engine posts.
func (h *fakeHost) flushLocked(tab *fakeTab, final bool) SaveRecording {
	events := make([]recording.Event, 2)
	for i := range events {
		h.clock++
		events[i] = recording.Event(fmt.Sprintf(`{"type":3,"timestamp":%d}`, h.clock))
	}
	return SaveRecording{URL: tab.url, Title: tab.title, Events: events, IsFinalRecording: final}
}

func (h *fakeHost) record(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, err)
}

// userStart simulates the user starting capture on a tab.
func (h *fakeHost) userStart(t *testing.T, id recording.TabID) {
	t.Helper()
	require.NoError(t, h.Send(context.Background(), id, CommandStart))
}

// userFinalStop simulates the user ending the session from tab id.
func (h *fakeHost) userFinalStop(t *testing.T, id recording.TabID) SaveResponse {
	t.Helper()
	h.mu.Lock()
	tab := h.tabs[id]
	tab.running = false
	save := h.flushLocked(tab, true)
	h.mu.Unlock()

	resp, err := h.coord.Handle(context.Background(), id, save)
	require.NoError(t, err)
	return resp.(SaveResponse)
}

func (h *fakeHost) commands() []sentCmd {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sentCmd(nil), h.sent...)
}

func (h *fakeHost) startsOn(id recording.TabID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tabs[id].starts
}

func (h *fakeHost) errs() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.handled...)
}

type uploadCall struct {
	sessionID string
	events    []recording.Event
}

type fakeUploader struct {
	mu    sync.Mutex
	calls []uploadCall
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, sessionID string, events []recording.Event) (*upload.Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, uploadCall{sessionID: sessionID, events: events})
	if u.err != nil {
		return &upload.Result{SessionID: sessionID}, u.err
	}
	return &upload.Result{SessionID: sessionID, Segments: 1, Events: len(events)}, nil
}

// gatedUploader holds each upload until release is closed, then reports
// whether its context was cancelled meanwhile.
type gatedUploader struct {
	started chan struct{}
	release chan struct{}
}

func newGatedUploader() *gatedUploader {
	return &gatedUploader{started: make(chan struct{}), release: make(chan struct{})}
}

func (u *gatedUploader) Upload(ctx context.Context, sessionID string, events []recording.Event) (*upload.Result, error) {
	close(u.started)
	<-u.release
	if err := ctx.Err(); err != nil {
		return &upload.Result{SessionID: sessionID}, errors.NewUploadFailed(sessionID, 1, 0, err)
	}
	return &upload.Result{SessionID: sessionID, Segments: 1, Events: len(events)}, nil
}

// failingStore is a recording store whose writes fail.
type failingStore struct {
	*ops.Recorder
}

func (failingStore) Put(context.Context, recording.Recording) (*recording.Recording, error) {
	return nil, errors.NewStoreUnavailable(fmt.Errorf("database is locked"))
}

func (u *fakeUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

type harness struct {
	coord    *Coordinator
	host     *fakeHost
	store    *ops.Recorder
	uploader *fakeUploader
}

// newHarness wires a coordinator to a fake host, a temp database and a
// fake uploader. Delays are zero unless opts sets them.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	h := &harness{
		host:     newFakeHost(),
		store:    ops.NewRecorder(database),
		uploader: &fakeUploader{},
	}
	opts.Host = h.host
	opts.Store = h.store
	opts.State = h.store
	if opts.Uploader == nil {
		opts.Uploader = h.uploader
	}
	if opts.Now == nil {
		var tick atomic.Int64
		opts.Now = func() time.Time {
			return time.UnixMilli(1_700_000_000_000 + tick.Add(1))
		}
	}
	h.coord = New(opts)
	h.host.coord = h.coord
	t.Cleanup(h.coord.Close)
	return h
}

func (h *harness) handle(t *testing.T, sender recording.TabID, n Notification) any {
	t.Helper()
	resp, err := h.coord.Handle(context.Background(), sender, n)
	require.NoError(t, err)
	return resp
}

func (h *harness) sessionRecordings(t *testing.T, sessionID string) []recording.Recording {
	t.Helper()
	recs, err := h.store.GetBySession(context.Background(), sessionID)
	require.NoError(t, err)
	return recs
}

// Package coordinator owns the recording session state machine: session
// identity, tab tracking, cross-tab handoff, persistence of captures and
// the finalize-and-upload sequence.
package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/logx"
	"github.com/hpungsan/tabrec/internal/recording"
	"github.com/hpungsan/tabrec/internal/upload"
)

// Default timing for tab handoff.
const (
	DefaultHandoffDelay = 500 * time.Millisecond
	DefaultSettleDelay  = 250 * time.Millisecond
)

// DefaultExcludedURLPrefixes are browser-internal pages capture never runs on.
var DefaultExcludedURLPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"edge://",
	"about:",
	"devtools://",
}

// TabInfo is the tab metadata the coordinator needs.
type TabInfo struct {
	ID     recording.TabID `json:"id"`
	URL    string          `json:"url"`
	Title  string          `json:"title"`
	Loaded bool            `json:"loaded"`
}

// TabHost is the browser's tab-management facility.
type TabHost interface {
	Tab(ctx context.Context, id recording.TabID) (TabInfo, error)
	Send(ctx context.Context, id recording.TabID, cmd Command) error
}

// Store is the recording store as seen by the coordinator.
type Store interface {
	Put(ctx context.Context, rec recording.Recording) (*recording.Recording, error)
	GetAll(ctx context.Context) ([]recording.Recording, error)
	GetBySession(ctx context.Context, sessionID string) ([]recording.Recording, error)
	GetAllSessions(ctx context.Context) ([]recording.Session, error)
	DeleteByID(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// StateStore persists the recording flag and session id across restarts.
type StateStore interface {
	LoadState(ctx context.Context) (isRecording bool, sessionID string, err error)
	SaveState(ctx context.Context, isRecording bool, sessionID string) error
}

// Uploader delivers a finalized session.
type Uploader interface {
	Upload(ctx context.Context, sessionID string, events []recording.Event) (*upload.Result, error)
}

// Options configures a Coordinator.
type Options struct {
	Host  TabHost
	Store Store

	// State is optional; without it the state is lost on restart.
	State StateStore

	// Uploader is optional; without it finalized sessions stay local.
	Uploader Uploader

	HandoffDelay        time.Duration
	SettleDelay         time.Duration
	ExcludedURLPrefixes []string

	// NewSessionID and Now are overridable for tests.
	NewSessionID func() (string, error)
	Now          func() time.Time
}

// State is a copy of the coordinator state.
type State struct {
	IsRecording      bool              `json:"is_recording"`
	CurrentSessionID string            `json:"current_session_id,omitempty"`
	CurrentTabID     recording.TabID   `json:"current_tab_id,omitempty"`
	ActiveTabs       []recording.TabID `json:"active_tabs"`
}

// Coordinator is the single owner of the recording state. It is safe for
// concurrent use; the state lock is never held across store, tab or
// network I/O, so notifications keep flowing while one of them waits.
type Coordinator struct {
	host     TabHost
	store    Store
	state    StateStore
	uploader Uploader

	handoffDelay time.Duration
	settleDelay  time.Duration
	excluded     []string
	newSession   func() (string, error)
	now          func() time.Time

	mu          sync.Mutex
	isRecording bool
	sessionID   string
	currentTab  recording.TabID
	activeTabs  map[recording.TabID]struct{}
	// generation invalidates pending delayed steps when it moves.
	generation    uint64
	handoffTarget recording.TabID

	persistMu sync.Mutex

	pending   sync.WaitGroup
	life      context.Context
	closeLife context.CancelFunc
}

// New returns a Coordinator in the Idle state.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		host:         opts.Host,
		store:        opts.Store,
		state:        opts.State,
		uploader:     opts.Uploader,
		handoffDelay: opts.HandoffDelay,
		settleDelay:  opts.SettleDelay,
		excluded:     opts.ExcludedURLPrefixes,
		newSession:   opts.NewSessionID,
		now:          opts.Now,
		activeTabs:   make(map[recording.TabID]struct{}),
	}
	if c.handoffDelay < 0 {
		c.handoffDelay = 0
	}
	if c.settleDelay < 0 {
		c.settleDelay = 0
	}
	if c.excluded == nil {
		c.excluded = DefaultExcludedURLPrefixes
	}
	if c.newSession == nil {
		c.newSession = recording.NewSessionID
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.life, c.closeLife = context.WithCancel(context.Background())
	return c
}

// Restore reloads the persisted recording flag and session id. Tab
// tracking starts empty: capture resumes on the next tab activation, and
// any recordings already flushed under the session are finalized with it.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.state == nil {
		return nil
	}
	isRecording, sessionID, err := c.state.LoadState(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.isRecording = isRecording && sessionID != ""
	c.sessionID = sessionID
	c.currentTab = ""
	clear(c.activeTabs)
	c.mu.Unlock()

	if sessionID != "" {
		logx.WithSession(logx.Ctx(ctx), sessionID).Info("coordinator state restored", "recording", isRecording)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	tabs := make([]recording.TabID, 0, len(c.activeTabs))
	for id := range c.activeTabs {
		tabs = append(tabs, id)
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i] < tabs[j] })

	return State{
		IsRecording:      c.isRecording,
		CurrentSessionID: c.sessionID,
		CurrentTabID:     c.currentTab,
		ActiveTabs:       tabs,
	}
}

// Wait blocks until every pending handoff or restart step has finished.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

// Close cancels pending delayed steps and waits for them to return.
func (c *Coordinator) Close() {
	c.closeLife()
	c.pending.Wait()
}

// Handle dispatches one notification from sender ("" when the sender is
// not a tab) and returns the response payload for the caller.
func (c *Coordinator) Handle(ctx context.Context, sender recording.TabID, n Notification) (any, error) {
	if n == nil {
		return nil, errors.NewInvalidRequest("notification is required")
	}
	ctx = logx.ContextWithTabLogger(ctx, string(sender))
	logx.Ctx(ctx).Debug("notification", "type", n.Type())

	switch n := n.(type) {
	case GetTabID:
		return TabIDResponse{TabID: recording.TabPtr(sender)}, nil
	case RecordingStarted:
		return c.recordingStarted(ctx, sender)
	case RecordingSaved:
		c.untrack(sender)
		return AckResponse{Success: true}, nil
	case SaveRecording:
		return c.saveRecording(ctx, sender, n)
	case RecordingStopped:
		c.recordingStopped(ctx)
		return AckResponse{Success: true}, nil
	case GetAllRecordings:
		recs, err := c.store.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		return RecordingsResponse{Success: true, Recordings: recs}, nil
	case GetAllSessions:
		sessions, err := c.store.GetAllSessions(ctx)
		if err != nil {
			return nil, err
		}
		return SessionsResponse{Success: true, Sessions: sessions}, nil
	case GetSessionRecordings:
		recs, err := c.store.GetBySession(ctx, n.SessionID)
		if err != nil {
			return nil, err
		}
		return RecordingsResponse{Success: true, Recordings: recs}, nil
	case DeleteRecording:
		if err := c.store.DeleteByID(ctx, n.RecordingID); err != nil {
			return nil, err
		}
		return AckResponse{Success: true}, nil
	case ClearAllRecordings:
		if err := c.store.Clear(ctx); err != nil {
			return nil, err
		}
		return AckResponse{Success: true}, nil
	case TabActivated:
		c.tabActivated(ctx, n.TabID)
		return AckResponse{Success: true}, nil
	case TabNavigationComplete:
		c.tabNavigationComplete(ctx, n.TabID)
		return AckResponse{Success: true}, nil
	case TabCreated:
		logx.Ctx(ctx).Debug("tab created", "created", string(n.TabID))
		return AckResponse{Success: true}, nil
	case TabRemoved:
		c.tabRemoved(ctx, n.TabID)
		return AckResponse{Success: true}, nil
	default:
		return nil, errors.NewInvalidRequest("unhandled notification " + n.Type())
	}
}

func (c *Coordinator) recordingStarted(ctx context.Context, sender recording.TabID) (any, error) {
	c.mu.Lock()
	sessionID := c.sessionID
	minted := false
	if sessionID == "" {
		id, err := c.newSession()
		if err != nil {
			c.mu.Unlock()
			return nil, errors.NewInternal(err)
		}
		sessionID = id
		c.sessionID = id
		minted = true
	}
	wasRecording := c.isRecording
	c.isRecording = true
	if sender != "" {
		// A background tab restarted after navigation joins the session
		// without taking over the current tab.
		if !wasRecording || c.currentTab == "" || c.currentTab == sender {
			c.currentTab = sender
		}
		c.activeTabs[sender] = struct{}{}
	}
	c.mu.Unlock()

	log := logx.WithSessionTab(ctx, sessionID, string(sender))
	if minted {
		log.Info("recording session started")
	} else {
		log.Debug("recording started on tab")
	}
	if minted || !wasRecording {
		c.persist(ctx)
	}
	return SessionResponse{SessionID: sessionID}, nil
}

func (c *Coordinator) recordingStopped(ctx context.Context) {
	c.mu.Lock()
	wasRecording := c.isRecording
	c.isRecording = false
	c.generation++
	c.handoffTarget = ""
	sessionID := c.sessionID
	c.mu.Unlock()

	logx.WithSession(logx.Ctx(ctx), sessionID).Info("recording stop requested")
	if wasRecording {
		c.persist(ctx)
	}
}

func (c *Coordinator) untrack(tab recording.TabID) {
	if tab == "" {
		return
	}
	c.mu.Lock()
	delete(c.activeTabs, tab)
	c.mu.Unlock()
}

func (c *Coordinator) tabRemoved(ctx context.Context, tab recording.TabID) {
	c.mu.Lock()
	delete(c.activeTabs, tab)
	if c.currentTab == tab {
		c.currentTab = ""
	}
	if c.handoffTarget == tab {
		c.generation++
		c.handoffTarget = ""
	}
	c.mu.Unlock()
	logx.Ctx(ctx).Debug("tab removed", "removed", string(tab))
}

// excludedURL reports whether capture must not run on url.
func (c *Coordinator) excludedURL(url string) bool {
	if strings.TrimSpace(url) == "" {
		return true
	}
	for _, prefix := range c.excluded {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// persist writes the durable slice of the state. Writes are serialized and
// always carry the latest values, so concurrent callers cannot reorder them.
func (c *Coordinator) persist(ctx context.Context) {
	if c.state == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	isRecording, sessionID := c.isRecording, c.sessionID
	c.mu.Unlock()

	if err := c.state.SaveState(ctx, isRecording, sessionID); err != nil {
		logx.WithSession(logx.Ctx(ctx), sessionID).With("err", err).Error("persist coordinator state failed")
	}
}

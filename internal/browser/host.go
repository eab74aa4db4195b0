// Package browser drives Chrome over the DevTools protocol and exposes its
// tabs to the coordinator: tab lookup, directed capture commands, and
// notifications forwarded from an injected page bridge.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"pkt.systems/pslog"

	"github.com/hpungsan/tabrec/internal/config"
	"github.com/hpungsan/tabrec/internal/coordinator"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/logx"
	"github.com/hpungsan/tabrec/internal/recording"
)

// Handler receives notifications from tabs.
type Handler interface {
	Handle(ctx context.Context, sender recording.TabID, n coordinator.Notification) (any, error)
}

// Config configures a Host.
type Config struct {
	// RemoteURL is the DevTools websocket URL of a running Chrome.
	// Empty launches a local Chrome.
	RemoteURL string

	Headless bool

	// Stealth opens new tabs with anti-detection patches applied.
	Stealth bool

	// Engine is the capture engine source injected after the bridge.
	Engine string
}

// ConfigFrom builds a Config from application config and engine source.
func ConfigFrom(cfg *config.Config, engine string) Config {
	return Config{
		RemoteURL: cfg.BrowserRemoteURL,
		Headless:  cfg.BrowserHeadless,
		Stealth:   cfg.BrowserStealth,
		Engine:    engine,
	}
}

var _ coordinator.TabHost = (*Host)(nil)

// Host implements coordinator.TabHost over a Chrome instance.
type Host struct {
	cfg     Config
	handler Handler

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	pages   map[recording.TabID]*rod.Page
	ctx     context.Context
	cancel  context.CancelFunc
	log     pslog.Logger
}

// New returns a Host that forwards tab notifications to handler.
// Call Start to connect.
func New(cfg Config, handler Handler) *Host {
	return &Host{
		cfg:     cfg,
		handler: handler,
		pages:   make(map[recording.TabID]*rod.Page),
	}
}

// Start launches or connects to Chrome, attaches the bridge to every open
// page and follows target creation and destruction until ctx is done.
func (h *Host) Start(ctx context.Context) error {
	log := logx.Ctx(ctx)

	wsURL := h.cfg.RemoteURL
	var lnch *launcher.Launcher
	if wsURL != "" {
		log.Info("browser connecting to remote", "url", wsURL)
	} else {
		lnch = launcher.New().
			Headless(h.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := lnch.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		log.Info("browser launched local chrome", "url", wsURL, "headless", h.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return fmt.Errorf("browser: connect: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.browser = b
	h.lnch = lnch
	h.ctx = runCtx
	h.cancel = cancel
	h.log = log
	h.mu.Unlock()

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		log.Warn("browser target discovery failed", "err", err)
	}

	wait := b.Context(runCtx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			if e.TargetInfo == nil || e.TargetInfo.Type != proto.TargetTargetInfoTypePage {
				return
			}
			h.attachTarget(e.TargetInfo.TargetID)
			h.dispatch(recording.TabID(e.TargetInfo.TargetID), coordinator.TabCreated{TabID: recording.TabID(e.TargetInfo.TargetID)})
		},
		func(e *proto.TargetTargetDestroyed) {
			id := recording.TabID(e.TargetID)
			if !h.detach(id) {
				return
			}
			h.dispatch("", coordinator.TabRemoved{TabID: id})
		},
	)
	go wait()

	pages, err := b.Pages()
	if err != nil {
		return fmt.Errorf("browser: list pages: %w", err)
	}
	for _, page := range pages {
		h.attach(page)
	}
	return nil
}

// Open creates a new tab at url. With stealth enabled the tab is patched
// before the first navigation.
func (h *Host) Open(ctx context.Context, url string) (recording.TabID, error) {
	b := h.currentBrowser()
	if b == nil {
		return "", errors.NewInvalidRequest("browser is not started")
	}

	var (
		page *rod.Page
		err  error
	)
	if h.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return "", fmt.Errorf("browser: create tab: %w", err)
	}
	id := h.attach(page)

	if url != "" {
		if err := page.Context(ctx).Navigate(url); err != nil {
			return id, fmt.Errorf("browser: navigate %s: %w", url, err)
		}
	}
	return id, nil
}

// Tab returns url, title and load state of a tab.
func (h *Host) Tab(ctx context.Context, id recording.TabID) (coordinator.TabInfo, error) {
	page, err := h.page(id)
	if err != nil {
		return coordinator.TabInfo{}, err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return coordinator.TabInfo{}, errors.NewTabUnreachable(string(id), err)
	}
	state, err := page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return coordinator.TabInfo{}, errors.NewTabUnreachable(string(id), err)
	}
	return coordinator.TabInfo{
		ID:     id,
		URL:    info.URL,
		Title:  info.Title,
		Loaded: state.Value.Str() == "complete",
	}, nil
}

// Send posts a capture command to the tab's page.
func (h *Host) Send(ctx context.Context, id recording.TabID, cmd coordinator.Command) error {
	msg, err := pageMessage(cmd)
	if err != nil {
		return err
	}
	page, err := h.page(id)
	if err != nil {
		return err
	}
	if _, err := page.Context(ctx).Eval(`(type) => window.postMessage({ type }, "*")`, msg); err != nil {
		return errors.NewTabUnreachable(string(id), err)
	}
	return nil
}

// Close disconnects from Chrome and stops a locally launched instance.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	var err error
	if h.browser != nil {
		err = h.browser.Close()
		h.browser = nil
	}
	if h.lnch != nil {
		h.lnch.Cleanup()
		h.lnch = nil
	}
	clear(h.pages)
	return err
}

func (h *Host) currentBrowser() *rod.Browser {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.browser
}

func (h *Host) page(id recording.TabID) (*rod.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	page, ok := h.pages[id]
	if !ok {
		return nil, errors.NewTabUnreachable(string(id), fmt.Errorf("no such tab"))
	}
	return page, nil
}

func (h *Host) attachTarget(id proto.TargetTargetID) {
	b := h.currentBrowser()
	if b == nil {
		return
	}
	page, err := b.PageFromTarget(id)
	if err != nil {
		h.log.Warn("browser attach target failed", "target", string(id), "err", err)
		return
	}
	h.attach(page)
}

// attach installs the binding and bridge on page once and starts
// forwarding its bridge calls.
func (h *Host) attach(page *rod.Page) recording.TabID {
	id := recording.TabID(page.TargetID)

	h.mu.Lock()
	if _, ok := h.pages[id]; ok {
		h.mu.Unlock()
		return id
	}
	h.pages[id] = page
	ctx, log := h.ctx, h.log
	h.mu.Unlock()

	log = logx.WithTab(log, string(id))
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		log.Warn("browser add binding failed", "err", err)
	}

	script := pageScript(h.cfg.Engine)
	if _, err := page.EvalOnNewDocument(script); err != nil {
		log.Warn("browser bridge install failed", "err", err)
	}

	wait := page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		n, err := decodeBridge(id, e.Payload)
		if err != nil {
			log.Warn("browser bridge payload rejected", "err", err)
			return
		}
		h.dispatch(id, n)
	})
	go wait()

	// Pages already loaded get the bridge now; new documents get it from
	// the on-new-document script.
	if _, err := (proto.RuntimeEvaluate{Expression: script}).Call(page); err != nil {
		log.Debug("browser bridge eval failed", "err", err)
	}
	log.Debug("browser tab attached")
	return id
}

func (h *Host) detach(id recording.TabID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.pages[id]; !ok {
		return false
	}
	delete(h.pages, id)
	return true
}

func (h *Host) dispatch(sender recording.TabID, n coordinator.Notification) {
	h.mu.Lock()
	ctx, log := h.ctx, h.log
	h.mu.Unlock()

	ctx = pslog.ContextWithLogger(ctx, log)
	if _, err := h.handler.Handle(ctx, sender, n); err != nil {
		logx.WithTab(log, string(sender)).Warn("notification failed", "type", n.Type(), "err", err)
	}
}

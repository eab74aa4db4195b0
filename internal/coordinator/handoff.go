package coordinator

import (
	"context"
	"time"

	"github.com/hpungsan/tabrec/internal/logx"
	"github.com/hpungsan/tabrec/internal/recording"
)

// tabActivated migrates capture to newTab: stop the old tab, wait the
// grace delay, then start the new one if its page allows capture.
func (c *Coordinator) tabActivated(ctx context.Context, newTab recording.TabID) {
	c.mu.Lock()
	if !c.isRecording || newTab == "" {
		c.mu.Unlock()
		return
	}
	if newTab == c.handoffTarget || (c.handoffTarget == "" && newTab == c.currentTab) {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	c.handoffTarget = newTab
	oldTab := c.currentTab
	_, oldActive := c.activeTabs[oldTab]
	sessionID := c.sessionID
	c.mu.Unlock()

	log := logx.WithSessionTab(ctx, sessionID, string(newTab))
	log.Info("tab handoff", "from", string(oldTab))

	c.spawn(ctx, func(ctx context.Context) {
		if oldTab != "" && oldActive {
			if err := c.host.Send(ctx, oldTab, CommandStop); err != nil {
				log.Warn("stop on previous tab failed", "from", string(oldTab), "err", err)
			}
		}
		if !sleepCtx(ctx, c.handoffDelay) {
			return
		}
		if !c.stillCurrent(gen) {
			log.Debug("handoff superseded")
			return
		}

		info, err := c.host.Tab(ctx, newTab)
		if err != nil {
			log.Warn("tab lookup failed", "err", err)
			c.finishHandoff(gen, "")
			return
		}
		if c.excludedURL(info.URL) {
			log.Info("capture paused on excluded page", "url", info.URL)
			c.finishHandoff(gen, "")
			return
		}
		if !info.Loaded {
			// Capture starts on the navigation-complete notification.
			log.Debug("tab still loading, start deferred")
			c.finishHandoff(gen, newTab)
			return
		}
		if err := c.host.Send(ctx, newTab, CommandStart); err != nil {
			log.Warn("start on activated tab failed", "err", err)
			c.finishHandoff(gen, "")
			return
		}
		c.finishHandoff(gen, newTab)
	})
}

// tabNavigationComplete re-injects capture into a freshly loaded page.
// Starting an engine that is already running is a no-op on the page side.
func (c *Coordinator) tabNavigationComplete(ctx context.Context, tab recording.TabID) {
	c.mu.Lock()
	if !c.isRecording || tab == "" {
		c.mu.Unlock()
		return
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	log := logx.WithSessionTab(ctx, sessionID, string(tab))

	c.spawn(ctx, func(ctx context.Context) {
		if !sleepCtx(ctx, c.settleDelay) {
			return
		}
		c.mu.Lock()
		still := c.isRecording && c.sessionID == sessionID
		c.mu.Unlock()
		if !still {
			return
		}

		info, err := c.host.Tab(ctx, tab)
		if err != nil {
			log.Warn("tab lookup failed", "err", err)
			return
		}
		if c.excludedURL(info.URL) {
			log.Debug("navigation to excluded page", "url", info.URL)
			return
		}
		if err := c.host.Send(ctx, tab, CommandStart); err != nil {
			log.Warn("restart after navigation failed", "err", err)
			return
		}
		log.Debug("capture restarted after navigation")
	})
}

func (c *Coordinator) stillCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.isRecording
}

// finishHandoff commits the handoff outcome unless a newer event
// superseded it while the tab was being contacted.
func (c *Coordinator) finishHandoff(gen uint64, current recording.TabID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.handoffTarget = ""
	if c.isRecording {
		c.currentTab = current
	}
}

// spawn runs fn on its own goroutine. fn outlives the request context but
// not the coordinator.
func (c *Coordinator) spawn(ctx context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.life, cancel)

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer cancel()
		defer stop()
		fn(ctx)
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package coordinator

import (
	"context"

	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/logx"
	"github.com/hpungsan/tabrec/internal/recording"
)

// saveRecording persists one capture from sender. A final save closes the
// session and runs finalize once the recording is stored.
func (c *Coordinator) saveRecording(ctx context.Context, sender recording.TabID, n SaveRecording) (any, error) {
	if len(n.Events) == 0 {
		return nil, errors.NewInvalidRequest("events must not be empty")
	}

	id := n.RecordingID
	if id == "" {
		minted, err := recording.NewRecordingID()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		id = minted
	}

	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		sessionID = id
	}

	stored, err := c.store.Put(ctx, recording.Recording{
		ID:        id,
		SessionID: sessionID,
		TabID:     recording.TabPtr(sender),
		URL:       n.URL,
		Title:     n.Title,
		Timestamp: c.now().UnixMilli(),
		Events:    n.Events,
	})
	log := logx.WithSessionTab(ctx, sessionID, string(sender))
	if err != nil {
		log.With("err", err).Error("save recording failed", "recording", id)
		return nil, err
	}
	c.untrack(sender)
	log.Info("recording saved", "recording", stored.ID, "events", len(stored.Events), "final", n.IsFinalRecording)

	resp := SaveResponse{Success: true, ID: stored.ID, SessionID: stored.SessionID}
	if !n.IsFinalRecording {
		return resp, nil
	}

	// The session is closed once the final capture is stored. Closing and
	// uploading outlive the caller and stop only with the coordinator.
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	c.endSession(bg, stored.SessionID)

	if c.uploader == nil {
		log.Info("upload not configured, session kept locally")
		return resp, nil
	}
	result, err := c.Finalize(bg, stored.SessionID)
	if err != nil {
		log.With("err", err).Error("session upload failed")
		resp.UploadError = err.Error()
		if result != nil {
			resp.Upload = result.Upload
		}
		return resp, nil
	}
	resp.Upload = result.Upload
	return resp, nil
}

// endSession returns the coordinator to Idle if sessionID is the open session.
func (c *Coordinator) endSession(ctx context.Context, sessionID string) {
	c.mu.Lock()
	if c.sessionID != "" && c.sessionID != sessionID {
		c.mu.Unlock()
		return
	}
	c.isRecording = false
	c.sessionID = ""
	c.currentTab = ""
	c.handoffTarget = ""
	clear(c.activeTabs)
	c.generation++
	c.mu.Unlock()

	logx.WithSession(logx.Ctx(ctx), sessionID).Info("recording session ended")
	c.persist(ctx)
}

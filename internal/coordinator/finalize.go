package coordinator

import (
	"context"

	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/logx"
	"github.com/hpungsan/tabrec/internal/recording"
	"github.com/hpungsan/tabrec/internal/upload"
)

// FinalizeResult describes one finalize run.
type FinalizeResult struct {
	SessionID  string         `json:"session_id"`
	Recordings int            `json:"recordings"`
	Events     int            `json:"events"`
	Upload     *upload.Result `json:"upload,omitempty"`
}

// Finalize reads back every recording of sessionID, concatenates their
// events in recording order and uploads them. Stored recordings are never
// modified, so a failed run can be repeated.
func (c *Coordinator) Finalize(ctx context.Context, sessionID string) (*FinalizeResult, error) {
	if sessionID == "" {
		return nil, errors.NewInvalidRequest("session_id is required")
	}
	if c.uploader == nil {
		return nil, errors.NewInvalidRequest("upload endpoint is not configured")
	}

	recs, err := c.store.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.NewNotFound("session", sessionID)
	}

	events := recording.ConcatEvents(recs)
	out := &FinalizeResult{
		SessionID:  sessionID,
		Recordings: len(recs),
		Events:     len(events),
	}

	log := logx.WithSession(logx.Ctx(ctx), sessionID)
	log.Info("finalizing session", "recordings", len(recs), "events", len(events))

	result, err := c.uploader.Upload(ctx, sessionID, events)
	out.Upload = result
	if err != nil {
		return out, err
	}
	return out, nil
}

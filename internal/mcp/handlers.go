package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tabrec/internal/config"
	"github.com/hpungsan/tabrec/internal/coordinator"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/ops"
)

// Finalizer uploads a stored session.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID string) (*coordinator.FinalizeResult, error)
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db        *sql.DB
	cfg       *config.Config
	finalizer Finalizer
}

// NewHandlers creates a new Handlers instance. finalizer may be nil.
func NewHandlers(db *sql.DB, cfg *config.Config, finalizer Finalizer) *Handlers {
	return &Handlers{db: db, cfg: cfg, finalizer: finalizer}
}

// RecordingListRequest represents the arguments for recording_list.
type RecordingListRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// RecordingDeleteRequest represents the arguments for recording_delete.
type RecordingDeleteRequest struct {
	ID string `json:"id"`
}

// RecordingClearRequest represents the arguments for recording_clear.
type RecordingClearRequest struct {
	Confirm bool `json:"confirm"`
}

// RecordingPurgeRequest represents the arguments for recording_purge.
type RecordingPurgeRequest struct {
	OlderThanDays int `json:"older_than_days,omitempty"`
}

// SessionListRequest represents the arguments for session_list.
type SessionListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// SessionRequest addresses one session.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// HandleRecordingList handles the recording_list tool.
func (h *Handlers) HandleRecordingList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[RecordingListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		SessionID: r.SessionID,
		Limit:     r.Limit,
		Offset:    r.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRecordingDelete handles the recording_delete tool.
func (h *Handlers) HandleRecordingDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[RecordingDeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.db, r.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRecordingClear handles the recording_clear tool.
func (h *Handlers) HandleRecordingClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[RecordingClearRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if !r.Confirm {
		return errorResult(errors.NewInvalidRequest("confirm must be true to clear all recordings")), nil
	}

	result, err := ops.Clear(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRecordingPurge handles the recording_purge tool.
func (h *Handlers) HandleRecordingPurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[RecordingPurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	days := r.OlderThanDays
	if days == 0 && h.cfg != nil {
		days = h.cfg.RetentionDays
	}
	if days <= 0 {
		return errorResult(errors.NewInvalidRequest("older_than_days is required when no retention is configured")), nil
	}

	result, err := ops.Purge(ctx, h.db, ops.PurgeInput{
		OlderThan: time.Duration(days) * 24 * time.Hour,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionList handles the session_list tool.
func (h *Handlers) HandleSessionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[SessionListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListSessions(ctx, h.db, ops.ListSessionsInput{
		Limit:  r.Limit,
		Offset: r.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionRecordings handles the session_recordings tool.
func (h *Handlers) HandleSessionRecordings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetSession(ctx, h.db, r.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionEvents handles the session_events tool.
func (h *Handlers) HandleSessionEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionEvents(ctx, h.db, r.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionDelete handles the session_delete tool.
func (h *Handlers) HandleSessionDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteSession(ctx, h.db, r.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionUpload handles the session_upload tool.
func (h *Handlers) HandleSessionUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.finalizer == nil {
		return errorResult(errors.NewInvalidRequest("upload endpoint is not configured")), nil
	}

	result, err := h.finalizer.Finalize(ctx, r.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult creates an MCP error result from any error.
// RecorderErrors are found through wrapping; the wrapper text is kept in
// the message. Anything else is reported as an opaque INTERNAL error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if rErr, ok := errors.As(err); ok {
		msg := rErr.Message
		if outer := err.Error(); outer != rErr.Error() {
			msg = strings.TrimSuffix(outer, rErr.Error()) + rErr.Message
		}
		errorObj := map[string]any{
			"code":    rErr.Code,
			"message": msg,
			"status":  rErr.Status,
		}
		// Internal errors can carry file paths or SQL text
		if rErr.Code != errors.ErrInternal && rErr.Details != nil {
			errorObj["details"] = rErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}

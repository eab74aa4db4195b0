package web

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/tabrec/internal/coordinator"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/logx"
	"github.com/hpungsan/tabrec/internal/ops"
	"github.com/hpungsan/tabrec/internal/recording"
)

// TabHeader carries the sender tab of a posted notification.
const TabHeader = "X-Tab-Id"

// maxMessageBytes bounds one posted notification. A save carries a whole
// recording, so the bound is generous.
const maxMessageBytes = 256 << 20

// Handlers contains the ingress route handlers.
type Handlers struct {
	db       *sql.DB
	coord    Coordinator
	renderer *Renderer
}

// HandleMessage handles POST /v1/messages: one notification envelope from
// a capture context or tab host, answered with the coordinator response.
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		renderAPIError(w, r, errors.NewInvalidRequest(fmt.Sprintf("read body: %v", err)))
		return
	}

	n, err := coordinator.DecodeNotification(body)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}

	sender := recording.TabID(strings.TrimSpace(r.Header.Get(TabHeader)))
	resp, err := h.coord.Handle(r.Context(), sender, n)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, resp)
}

// HandleState handles GET /v1/state.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.coord.Snapshot())
}

// HandleRecordings handles GET /v1/recordings.
func (h *Handlers) HandleRecordings(w http.ResponseWriter, r *http.Request) {
	out, err := ops.List(r.Context(), h.db, ops.ListInput{
		SessionID: r.URL.Query().Get("session_id"),
		Limit:     parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:    parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleSessions handles GET /v1/sessions.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListSessions(r.Context(), h.db, ops.ListSessionsInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleSession handles GET /v1/sessions/{id}.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	session, err := ops.GetSession(r.Context(), h.db, chi.URLParam(r, "id"))
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, session)
}

// HandleSessionEvents handles GET /v1/sessions/{id}/events: the session's
// events merged by timestamp.
func (h *Handlers) HandleSessionEvents(w http.ResponseWriter, r *http.Request) {
	out, err := ops.SessionEvents(r.Context(), h.db, chi.URLParam(r, "id"))
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleDeleteSession handles DELETE /v1/sessions/{id}.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteSession(r.Context(), h.db, chi.URLParam(r, "id"))
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleUpload handles POST /v1/sessions/{id}/upload: a manual finalize.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx := logx.ContextWithSessionLogger(r.Context(), sessionID)

	out, err := h.coord.Finalize(ctx, sessionID)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleDeleteRecording handles DELETE /v1/recordings/{id}.
func (h *Handlers) HandleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Delete(r.Context(), h.db, chi.URLParam(r, "id"))
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleStatus handles GET /: the recorder state and recent sessions as a
// rendered Markdown report.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	sessions, err := ops.ListSessions(r.Context(), h.db, ops.ListSessionsInput{
		Limit: parseIntParam(r, "limit", ops.DefaultListLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	md := statusMarkdown(h.coord.Snapshot(), sessions)
	h.renderer.renderPage(w, r, "status", StatusPageData{
		PageData: PageData{
			Title:   "Status",
			Version: h.renderer.version,
		},
		Body: renderMarkdown(md),
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// renderAPIError writes the JSON error payload for the /v1 routes.
func renderAPIError(w http.ResponseWriter, r *http.Request, err error) {
	rErr, ok := errors.As(err)
	if !ok {
		rErr = errors.NewInternal(err)
	}
	if rErr.Status >= 500 {
		logx.Ctx(r.Context()).Error("request failed", "path", r.URL.Path, "code", string(rErr.Code), "err", err)
	}
	renderJSON(w, rErr.Status, errorPayload(rErr))
}

func errorPayload(rErr *errors.RecorderError) map[string]any {
	body := map[string]any{
		"code":    string(rErr.Code),
		"message": rErr.Message,
		"status":  rErr.Status,
	}
	if len(rErr.Details) > 0 {
		body["details"] = rErr.Details
	}
	return map[string]any{"error": body}
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

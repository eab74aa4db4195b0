// Package web serves the local ingress: the notification endpoint the
// capture contexts post to, the JSON query API and a status page.
package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"pkt.systems/pslog"

	"github.com/hpungsan/tabrec/internal/coordinator"
	"github.com/hpungsan/tabrec/internal/logx"
	"github.com/hpungsan/tabrec/internal/recording"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const shutdownTimeout = 5 * time.Second

// Coordinator is the part of the session coordinator the ingress drives.
type Coordinator interface {
	Handle(ctx context.Context, sender recording.TabID, n coordinator.Notification) (any, error)
	Snapshot() coordinator.State
	Finalize(ctx context.Context, sessionID string) (*coordinator.FinalizeResult, error)
}

// NewRouter builds the ingress routes.
func NewRouter(db *sql.DB, coord Coordinator, version string) (http.Handler, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		db:       db,
		coord:    coord,
		renderer: NewRenderer(templateSub, version),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withRequestLogging)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/", h.HandleStatus)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", h.HandleMessage)
		r.Get("/state", h.HandleState)
		r.Get("/recordings", h.HandleRecordings)
		r.Get("/sessions", h.HandleSessions)
		r.Get("/sessions/{id}", h.HandleSession)
		r.Get("/sessions/{id}/events", h.HandleSessionEvents)
		r.Delete("/sessions/{id}", h.HandleDeleteSession)
		r.Post("/sessions/{id}/upload", h.HandleUpload)
		r.Delete("/recordings/{id}", h.HandleDeleteRecording)
	})

	return r, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// withRequestLogging binds a request-scoped logger and logs each request
// once it completes.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := pslog.Ctx(r.Context())
		if id := middleware.GetReqID(r.Context()); id != "" {
			log = log.With("request", id)
		}
		ctx := pslog.ContextWithLogger(r.Context(), log)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", status,
			"bytes", ww.BytesWritten(), "duration_ms", time.Since(start).Milliseconds())
	})
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	log := logx.Ctx(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          pslog.LogLoggerWithLevel(log, pslog.ErrorLevel),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("ingress listening", "addr", "http://"+addr)
	if strings.HasPrefix(addr, "0.0.0.0") || strings.HasPrefix(addr, "[::]") {
		log.Warn("ingress is binding to all interfaces and may be reachable from the network")
	}

	select {
	case <-ctx.Done():
		log.Info("ingress shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

package mcp

import (
	"database/sql"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/tabrec/internal/config"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"recording_list": {
		def:     recordingListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRecordingList },
	},
	"recording_delete": {
		def:     recordingDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRecordingDelete },
	},
	"recording_clear": {
		def:     recordingClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRecordingClear },
	},
	"recording_purge": {
		def:     recordingPurgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRecordingPurge },
	},
	"session_list": {
		def:     sessionListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionList },
	},
	"session_recordings": {
		def:     sessionRecordingsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionRecordings },
	},
	"session_events": {
		def:     sessionEventsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionEvents },
	},
	"session_delete": {
		def:     sessionDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionDelete },
	},
	"session_upload": {
		def:     sessionUploadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionUpload },
	},
}

// AllToolNames returns every valid tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the recording tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, finalizer Finalizer, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"tabrec",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, finalizer)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, finalizer Finalizer, version string) error {
	s := NewServer(db, cfg, finalizer, version)
	return server.ServeStdio(s)
}

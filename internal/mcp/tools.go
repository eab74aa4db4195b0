package mcp

import "github.com/mark3labs/mcp-go/mcp"

var recordingListToolDef = mcp.NewTool("recording_list",
	mcp.WithDescription("List stored recordings newest first, without event payloads. Optionally filter by session."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("session_id", mcp.Description("Only list recordings of this session")),
	mcp.WithNumber("limit", mcp.Description("Max items to return (default 20, max 500)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var recordingDeleteToolDef = mcp.NewTool("recording_delete",
	mcp.WithDescription("Delete one stored recording by id. Returns NOT_FOUND if no recording has that id."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Recording id")),
)

var recordingClearToolDef = mcp.NewTool("recording_clear",
	mcp.WithDescription("Delete every stored recording. Requires confirm=true."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
)

var recordingPurgeToolDef = mcp.NewTool("recording_purge",
	mcp.WithDescription("Permanently delete recordings saved more than older_than_days ago. Defaults to the configured retention."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithNumber("older_than_days", mcp.Description("Age threshold in days")),
)

var sessionListToolDef = mcp.NewTool("session_list",
	mcp.WithDescription("List recording sessions, most recently active first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("limit", mcp.Description("Max items to return (default 20, max 500)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var sessionRecordingsToolDef = mcp.NewTool("session_recordings",
	mcp.WithDescription("Fetch one session with all of its recordings in save order."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var sessionEventsToolDef = mcp.NewTool("session_events",
	mcp.WithDescription("Return the concatenated event stream of a session, as it would be uploaded."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var sessionDeleteToolDef = mcp.NewTool("session_delete",
	mcp.WithDescription("Delete every recording of a session."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var sessionUploadToolDef = mcp.NewTool("session_upload",
	mcp.WithDescription("Upload a stored session to the configured endpoint as checksummed segments. Safe to repeat after a failure."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

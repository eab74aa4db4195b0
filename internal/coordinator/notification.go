package coordinator

import "github.com/hpungsan/tabrec/internal/recording"

// Notification is an inbound message for the coordinator. The set of
// variants is closed: only types in this package implement it.
type Notification interface {
	// Type returns the wire name of the notification.
	Type() string
	sealed()
}

// Capture-context notifications.
type (
	// GetTabID asks for the sender's tab id.
	GetTabID struct{}

	// RecordingStarted reports that the sender's capture engine is running.
	RecordingStarted struct{}

	// RecordingSaved reports that the sender flushed its capture and the
	// engine has terminated.
	RecordingSaved struct{}

	// SaveRecording persists one capture from the sender.
	SaveRecording struct {
		RecordingID      string            `json:"recordingId,omitempty"`
		URL              string            `json:"url"`
		Title            string            `json:"title"`
		Events           []recording.Event `json:"events"`
		IsFinalRecording bool              `json:"isFinalRecording"`
	}

	// RecordingStopped marks a stop intent; the session stays open until
	// the final recording is saved.
	RecordingStopped struct{}
)

// Query and maintenance notifications.
type (
	GetAllRecordings struct{}

	GetAllSessions struct{}

	GetSessionRecordings struct {
		SessionID string `json:"sessionId"`
	}

	DeleteRecording struct {
		RecordingID string `json:"recordingId"`
	}

	ClearAllRecordings struct{}
)

// Tab-host notifications.
type (
	TabActivated struct {
		TabID recording.TabID `json:"tabId"`
	}

	TabNavigationComplete struct {
		TabID recording.TabID `json:"tabId"`
	}

	TabCreated struct {
		TabID recording.TabID `json:"tabId"`
	}

	TabRemoved struct {
		TabID recording.TabID `json:"tabId"`
	}
)

// Wire names.
const (
	TypeGetTabID              = "get-tab-id"
	TypeRecordingStarted      = "recording-started"
	TypeRecordingSaved        = "recording-saved"
	TypeSaveRecording         = "save-recording"
	TypeRecordingStopped      = "recording-stopped"
	TypeGetAllRecordings      = "get-all-recordings"
	TypeGetAllSessions        = "get-all-sessions"
	TypeGetSessionRecordings  = "get-session-recordings"
	TypeDeleteRecording       = "delete-recording"
	TypeClearAllRecordings    = "clear-all-recordings"
	TypeTabActivated          = "tab-activated"
	TypeTabNavigationComplete = "tab-navigation-complete"
	TypeTabCreated            = "tab-created"
	TypeTabRemoved            = "tab-removed"
)

func (GetTabID) Type() string              { return TypeGetTabID }
func (RecordingStarted) Type() string      { return TypeRecordingStarted }
func (RecordingSaved) Type() string        { return TypeRecordingSaved }
func (SaveRecording) Type() string         { return TypeSaveRecording }
func (RecordingStopped) Type() string      { return TypeRecordingStopped }
func (GetAllRecordings) Type() string      { return TypeGetAllRecordings }
func (GetAllSessions) Type() string        { return TypeGetAllSessions }
func (GetSessionRecordings) Type() string  { return TypeGetSessionRecordings }
func (DeleteRecording) Type() string       { return TypeDeleteRecording }
func (ClearAllRecordings) Type() string    { return TypeClearAllRecordings }
func (TabActivated) Type() string          { return TypeTabActivated }
func (TabNavigationComplete) Type() string { return TypeTabNavigationComplete }
func (TabCreated) Type() string            { return TypeTabCreated }
func (TabRemoved) Type() string            { return TypeTabRemoved }

func (GetTabID) sealed()              {}
func (RecordingStarted) sealed()      {}
func (RecordingSaved) sealed()        {}
func (SaveRecording) sealed()         {}
func (RecordingStopped) sealed()      {}
func (GetAllRecordings) sealed()      {}
func (GetAllSessions) sealed()        {}
func (GetSessionRecordings) sealed()  {}
func (DeleteRecording) sealed()       {}
func (ClearAllRecordings) sealed()    {}
func (TabActivated) sealed()          {}
func (TabNavigationComplete) sealed() {}
func (TabCreated) sealed()            {}
func (TabRemoved) sealed()            {}

// Command is a directed message to a tab's capture context.
type Command string

const (
	CommandStart Command = "start-recording-auto"
	CommandStop  Command = "stop-recording-auto"
)

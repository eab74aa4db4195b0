package coordinator

import (
	"github.com/hpungsan/tabrec/internal/recording"
	"github.com/hpungsan/tabrec/internal/upload"
)

// Responses returned by Handle, one shape per notification family.
type (
	TabIDResponse struct {
		TabID *recording.TabID `json:"tabId"`
	}

	SessionResponse struct {
		SessionID string `json:"sessionId"`
	}

	SaveResponse struct {
		Success     bool           `json:"success"`
		ID          string         `json:"id"`
		SessionID   string         `json:"sessionId"`
		Upload      *upload.Result `json:"upload,omitempty"`
		UploadError string         `json:"uploadError,omitempty"`
	}

	RecordingsResponse struct {
		Success    bool                  `json:"success"`
		Recordings []recording.Recording `json:"recordings"`
	}

	SessionsResponse struct {
		Success  bool                `json:"success"`
		Sessions []recording.Session `json:"sessions"`
	}

	AckResponse struct {
		Success bool `json:"success"`
	}
)

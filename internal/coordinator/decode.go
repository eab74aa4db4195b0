package coordinator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/recording"
)

type envelope struct {
	Type string `json:"type"`
}

// tabEnvelope accepts tab ids as JSON numbers (extension tabs) or strings
// (DevTools targets).
type tabEnvelope struct {
	TabID json.RawMessage `json:"tabId"`
}

// DecodeNotification parses a {"type": ...} envelope into its variant.
func DecodeNotification(data []byte) (Notification, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid notification: %v", err))
	}

	switch env.Type {
	case TypeGetTabID:
		return GetTabID{}, nil
	case TypeRecordingStarted:
		return RecordingStarted{}, nil
	case TypeRecordingSaved:
		return RecordingSaved{}, nil
	case TypeRecordingStopped:
		return RecordingStopped{}, nil
	case TypeGetAllRecordings:
		return GetAllRecordings{}, nil
	case TypeGetAllSessions:
		return GetAllSessions{}, nil
	case TypeClearAllRecordings:
		return ClearAllRecordings{}, nil
	case TypeSaveRecording:
		return decodeInto[SaveRecording](data)
	case TypeGetSessionRecordings:
		return decodeInto[GetSessionRecordings](data)
	case TypeDeleteRecording:
		return decodeInto[DeleteRecording](data)
	case TypeTabActivated:
		id, err := decodeTabID(data)
		return TabActivated{TabID: id}, err
	case TypeTabNavigationComplete:
		id, err := decodeTabID(data)
		return TabNavigationComplete{TabID: id}, err
	case TypeTabCreated:
		id, err := decodeTabID(data)
		return TabCreated{TabID: id}, err
	case TypeTabRemoved:
		id, err := decodeTabID(data)
		return TabRemoved{TabID: id}, err
	case "":
		return nil, errors.NewInvalidRequest("notification type is required")
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown notification type %q", env.Type))
	}
}

func decodeInto[T Notification](data []byte) (Notification, error) {
	var n T
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid %s payload: %v", n.Type(), err))
	}
	return n, nil
}

func decodeTabID(data []byte) (recording.TabID, error) {
	var env tabEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid tab notification: %v", err))
	}
	id, err := ParseTabID(env.TabID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.NewInvalidRequest("tabId is required")
	}
	return id, nil
}

// ParseTabID reads a tab id given as a JSON string or number.
// null or absent yields "".
func ParseTabID(raw json.RawMessage) (recording.TabID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.NewInvalidRequest(fmt.Sprintf("invalid tabId: %v", err))
		}
		return recording.TabID(strings.TrimSpace(s)), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid tabId: %v", err))
	}
	return recording.TabID(n.String()), nil
}

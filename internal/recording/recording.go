// Package recording holds the recording domain types and the pure
// session aggregation used by the store, the coordinator and the player
// surfaces.
package recording

import "encoding/json"

// TabID identifies a browser tab. Extension tab ids are rendered in
// decimal; DevTools target ids are used verbatim.
type TabID string

// Event is one opaque capture-engine record. The only field read by
// tabrec is the numeric "timestamp".
type Event = json.RawMessage

// Recording is one continuous capture on one tab.
// Immutable once persisted: there is no update path.
type Recording struct {
	// ID uniquely identifies this recording (ULID unless the capture context supplied one)
	ID string `json:"id"`

	// SessionID groups recordings; equals ID in standalone-capture mode
	SessionID string `json:"sessionId"`

	// TabID is the origin tab (nullable)
	TabID *TabID `json:"tabId,omitempty"`

	// URL and Title are the page identity at stop time
	URL   string `json:"url"`
	Title string `json:"title"`

	// Timestamp is the save time in unix milliseconds
	Timestamp int64 `json:"timestamp"`

	// Events are ordered by capture time
	Events []Event `json:"events"`
}

// SessionKey returns the session a recording belongs to, falling back to
// its own id for rows written before sessions existed.
func (r *Recording) SessionKey() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.ID
}

// TabPtr returns a pointer to id, or nil when id is empty.
func TabPtr(id TabID) *TabID {
	if id == "" {
		return nil
	}
	return &id
}

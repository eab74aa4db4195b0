package recording

// Summary is a recording's metadata without its event payload.
// Used by list surfaces to keep responses small.
type Summary struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	TabID      *TabID `json:"tabId,omitempty"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Timestamp  int64  `json:"timestamp"`
	EventCount int    `json:"eventCount"`
}

// ToSummary converts a Recording to a Summary by stripping the events.
func (r *Recording) ToSummary() Summary {
	return Summary{
		ID:         r.ID,
		SessionID:  r.SessionKey(),
		TabID:      r.TabID,
		URL:        r.URL,
		Title:      r.Title,
		Timestamp:  r.Timestamp,
		EventCount: len(r.Events),
	}
}

// Summaries converts a slice of recordings.
func Summaries(recs []Recording) []Summary {
	out := make([]Summary, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].ToSummary())
	}
	return out
}

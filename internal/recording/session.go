package recording

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Session is the derived aggregate of recordings sharing a session id.
// It is never stored.
type Session struct {
	SessionID      string      `json:"sessionId"`
	Recordings     []Recording `json:"recordings"`
	TotalEvents    int         `json:"totalEvents"`
	FirstTimestamp int64       `json:"firstTimestamp"`
}

// SessionSummary is a Session with recording payloads stripped.
type SessionSummary struct {
	SessionID      string    `json:"sessionId"`
	Recordings     []Summary `json:"recordings"`
	TotalEvents    int       `json:"totalEvents"`
	FirstTimestamp int64     `json:"firstTimestamp"`
}

// Summary strips the events from every recording in the session.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		SessionID:      s.SessionID,
		Recordings:     Summaries(s.Recordings),
		TotalEvents:    s.TotalEvents,
		FirstTimestamp: s.FirstTimestamp,
	}
}

// SortByArrival orders recordings by timestamp ascending, then id.
func SortByArrival(recs []Recording) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Timestamp != recs[j].Timestamp {
			return recs[i].Timestamp < recs[j].Timestamp
		}
		return recs[i].ID < recs[j].ID
	})
}

// GroupSessions groups recordings by session key, computes totals and
// returns the sessions ordered by FirstTimestamp descending (most recent
// first). Ties break on session id so the order is deterministic.
func GroupSessions(recs []Recording) []Session {
	index := make(map[string]int)
	var sessions []Session

	for _, r := range recs {
		key := r.SessionKey()
		i, ok := index[key]
		if !ok {
			i = len(sessions)
			index[key] = i
			sessions = append(sessions, Session{
				SessionID:      key,
				FirstTimestamp: r.Timestamp,
			})
		}
		s := &sessions[i]
		s.Recordings = append(s.Recordings, r)
		s.TotalEvents += len(r.Events)
		if r.Timestamp < s.FirstTimestamp {
			s.FirstTimestamp = r.Timestamp
		}
	}

	for i := range sessions {
		SortByArrival(sessions[i].Recordings)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].FirstTimestamp != sessions[j].FirstTimestamp {
			return sessions[i].FirstTimestamp > sessions[j].FirstTimestamp
		}
		return sessions[i].SessionID < sessions[j].SessionID
	})
	return sessions
}

// ConcatEvents appends every recording's events in the given order.
// This is the upload order for a finalized session.
func ConcatEvents(recs []Recording) []Event {
	total := 0
	for i := range recs {
		total += len(recs[i].Events)
	}
	out := make([]Event, 0, total)
	for i := range recs {
		out = append(out, recs[i].Events...)
	}
	return out
}

// MergeEvents concatenates events across recordings and re-sorts them by
// timestamp for playback, since captures from different tabs interleave.
// The sort is stable so events sharing a timestamp keep capture order.
func MergeEvents(recs []Recording) []Event {
	events := ConcatEvents(recs)
	stamps := make([]int64, len(events))
	for i, e := range events {
		stamps[i] = EventTimestamp(e)
	}
	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return stamps[idx[a]] < stamps[idx[b]]
	})
	out := make([]Event, len(events))
	for i, j := range idx {
		out[i] = events[j]
	}
	return out
}

// EventTimestamp extracts the numeric "timestamp" field of an event.
// Events without one sort first (0).
func EventTimestamp(e Event) int64 {
	var probe struct {
		Timestamp json.Number `json:"timestamp"`
	}
	dec := json.NewDecoder(bytes.NewReader(e))
	dec.UseNumber()
	if err := dec.Decode(&probe); err != nil || probe.Timestamp == "" {
		return 0
	}
	if n, err := probe.Timestamp.Int64(); err == nil {
		return n
	}
	if f, err := probe.Timestamp.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

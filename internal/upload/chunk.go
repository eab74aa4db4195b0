package upload

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/recording"
)

// DefaultChunkSize bounds the serialized size of one segment.
const DefaultChunkSize = 2 * 1024 * 1024

// Segment is one sealed chunk, ready to send.
type Segment struct {
	// Sequence is 1-based and strictly increasing within an upload
	Sequence int
	// Events is how many events the segment carries
	Events int
	// Body is the serialized event array
	Body []byte
	// Checksum is the lowercase hex MD5 of Body
	Checksum string
}

// Chunk splits events into segments whose serialized size stays within
// limit. Events are appended one at a time; when the candidate outgrows
// limit and holds more than one event, the last event is moved into a
// fresh candidate. A single event larger than limit is never split and
// becomes its own segment. Concatenating the segments' events in order
// reproduces the input exactly.
func Chunk(events []recording.Event, limit int) ([]Segment, error) {
	if limit <= 0 {
		limit = DefaultChunkSize
	}
	compacted, err := compactAll(events)
	if err != nil {
		return nil, err
	}

	var (
		segments []Segment
		start    int
		size     = 2 // "[]"
	)
	seal := func(end int) {
		body := join(compacted[start:end])
		segments = append(segments, Segment{
			Sequence: len(segments) + 1,
			Events:   end - start,
			Body:     body,
			Checksum: Checksum(body),
		})
	}

	for i, e := range compacted {
		grown := size + len(e)
		if i > start {
			grown++ // separator
		}
		if grown > limit && i > start {
			seal(i)
			start = i
			grown = 2 + len(e)
		}
		size = grown
	}
	if start < len(compacted) {
		seal(len(compacted))
	}
	return segments, nil
}

// Encode serializes events exactly as Chunk serializes a segment body.
func Encode(events []recording.Event) ([]byte, error) {
	compacted, err := compactAll(events)
	if err != nil {
		return nil, err
	}
	return join(compacted), nil
}

// Checksum returns the lowercase hex MD5 digest the ingestion endpoint verifies.
func Checksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func compactAll(events []recording.Event) ([][]byte, error) {
	out := make([][]byte, len(events))
	for i, e := range events {
		var buf bytes.Buffer
		if err := json.Compact(&buf, e); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("event %d is not valid JSON: %v", i, err))
		}
		out[i] = buf.Bytes()
	}
	return out, nil
}

func join(parts [][]byte) []byte {
	n := 2
	for i, p := range parts {
		if i > 0 {
			n++
		}
		n += len(p)
	}
	body := make([]byte, 0, n)
	body = append(body, '[')
	for i, p := range parts {
		if i > 0 {
			body = append(body, ',')
		}
		body = append(body, p...)
	}
	return append(body, ']')
}

package recording

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// SessionPrefix marks identifiers minted for recording sessions.
const SessionPrefix = "session-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRecordingID returns a ULID, monotonic within this process so that
// recordings saved in the same millisecond still get distinct, ordered ids.
func NewRecordingID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewSessionID returns "session-" followed by a UUIDv7, which is time
// ordered and never reused.
func NewSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return SessionPrefix + id.String(), nil
}

// Package upload delivers a session's events to the remote ingestion
// endpoint as ordered, size-bounded, checksummed segments.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/tabrec/internal/config"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/logx"
	"github.com/hpungsan/tabrec/internal/recording"
)

// DefaultSegmentType tags every segment as a DOM replay stream.
const DefaultSegmentType = "rrweb"

// Client uploads sessions segment by segment.
type Client struct {
	Endpoint    string
	Token       string
	SegmentType string
	ChunkSize   int

	// Retries is how many extra attempts a failed segment gets. A retry
	// re-sends the same sequence number and checksum. 0 is fail-fast.
	Retries      int
	RetryBackoff time.Duration

	HTTPClient *http.Client
}

// Result describes a completed upload.
type Result struct {
	SessionID string `json:"session_id"`
	Segments  int    `json:"segments"`
	Events    int    `json:"events"`
	Bytes     int64  `json:"bytes"`
}

// NewClient builds a Client from config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		Endpoint:     cfg.UploadEndpoint,
		Token:        cfg.UploadToken,
		SegmentType:  cfg.UploadSegmentType,
		ChunkSize:    cfg.UploadChunkBytes,
		Retries:      cfg.UploadRetries,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Upload chunks events and posts the segments strictly in order. Any
// non-2xx response or transport error aborts the remaining segments; the
// returned error carries the failed sequence number and how many segments
// were delivered before it. Segments already delivered are not retracted.
// An empty event list is a logged no-op.
func (c *Client) Upload(ctx context.Context, sessionID string, events []recording.Event) (*Result, error) {
	if strings.TrimSpace(c.Token) == "" {
		return nil, errors.NewInvalidRequest("upload token is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.NewInvalidRequest("session id is required for upload")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return nil, errors.NewInvalidRequest("upload endpoint is not configured")
	}
	base, err := url.Parse(c.Endpoint)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid upload endpoint %q", c.Endpoint))
	}

	log := logx.WithSession(logx.Ctx(ctx), sessionID)
	result := &Result{SessionID: sessionID}
	if len(events) == 0 {
		log.Warn("upload skipped", "reason", "no events")
		return result, nil
	}

	segments, err := Chunk(events, c.ChunkSize)
	if err != nil {
		return nil, err
	}

	for _, seg := range segments {
		if err := c.sendWithRetry(ctx, base, sessionID, seg); err != nil {
			log.With("err", err).Error("segment upload failed",
				"sequence", seg.Sequence, "delivered", result.Segments, "total", len(segments))
			return result, errors.NewUploadFailed(sessionID, seg.Sequence, result.Segments, err)
		}
		result.Segments++
		result.Events += seg.Events
		result.Bytes += int64(len(seg.Body))
		log.Debug("segment uploaded", "sequence", seg.Sequence, "bytes", len(seg.Body), "events", seg.Events)
	}

	log.Info("session uploaded", "segments", result.Segments, "events", result.Events, "bytes", result.Bytes)
	return result, nil
}

func (c *Client) sendWithRetry(ctx context.Context, base *url.URL, sessionID string, seg Segment) error {
	attempts := 1 + max(c.Retries, 0)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.send(ctx, base, sessionID, seg)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == attempts {
			break
		}
		logx.Ctx(ctx).Warn("segment retry", "sequence", seg.Sequence, "attempt", attempt, "err", lastErr)
		timer := time.NewTimer(c.RetryBackoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, base *url.URL, sessionID string, seg Segment) error {
	segmentType := c.SegmentType
	if segmentType == "" {
		segmentType = DefaultSegmentType
	}

	target := *base
	q := target.Query()
	q.Set("session_id", sessionID)
	q.Set("sequence_number", strconv.Itoa(seg.Sequence))
	q.Set("checksum", seg.Checksum)
	q.Set("segment_type", segmentType)
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(seg.Body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

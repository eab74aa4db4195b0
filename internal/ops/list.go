package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/recording"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	SessionID string // optional filter
	Limit     int    // default: 20, max: 500
	Offset    int
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []recording.Summary `json:"items"`
	Pagination Pagination          `json:"pagination"`
	Sort       string              `json:"sort"`
}

// List returns recording summaries, newest first, without event payloads.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	summaries, err := db.ListSummaries(ctx, database)
	if err != nil {
		return nil, err
	}

	if input.SessionID != "" {
		filtered := summaries[:0]
		for _, s := range summaries {
			if s.SessionID == input.SessionID {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}

	start, end, page := paginate(input.Limit, input.Offset, len(summaries))
	items := make([]recording.Summary, 0, end-start)
	items = append(items, summaries[start:end]...)

	return &ListOutput{
		Items:      items,
		Pagination: page,
		Sort:       "timestamp_desc",
	}, nil
}

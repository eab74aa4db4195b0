package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/recording"
)

// Get retrieves one recording with its events.
func Get(ctx context.Context, database *sql.DB, id string) (*recording.Recording, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	return db.GetByID(ctx, database, id)
}

// GetAll returns every recording, oldest first.
func GetAll(ctx context.Context, database *sql.DB) ([]recording.Recording, error) {
	recs, err := db.ListAll(ctx, database)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []recording.Recording{}
	}
	return recs, nil
}

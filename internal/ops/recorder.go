package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabrec/internal/recording"
)

// Recorder binds the store operations to one database handle so they can
// be handed to the coordinator as a collaborator.
type Recorder struct {
	db *sql.DB
}

// NewRecorder returns a Recorder over database.
func NewRecorder(database *sql.DB) *Recorder {
	return &Recorder{db: database}
}

func (r *Recorder) Put(ctx context.Context, rec recording.Recording) (*recording.Recording, error) {
	return Put(ctx, r.db, rec)
}

func (r *Recorder) GetAll(ctx context.Context) ([]recording.Recording, error) {
	return GetAll(ctx, r.db)
}

func (r *Recorder) GetBySession(ctx context.Context, sessionID string) ([]recording.Recording, error) {
	return GetBySession(ctx, r.db, sessionID)
}

func (r *Recorder) GetAllSessions(ctx context.Context) ([]recording.Session, error) {
	return GetAllSessions(ctx, r.db)
}

func (r *Recorder) DeleteByID(ctx context.Context, id string) error {
	_, err := Delete(ctx, r.db, id)
	return err
}

func (r *Recorder) Clear(ctx context.Context) error {
	_, err := Clear(ctx, r.db)
	return err
}

func (r *Recorder) LoadState(ctx context.Context) (bool, string, error) {
	return LoadState(ctx, r.db)
}

func (r *Recorder) SaveState(ctx context.Context, isRecording bool, sessionID string) error {
	return SaveState(ctx, r.db, isRecording, sessionID)
}

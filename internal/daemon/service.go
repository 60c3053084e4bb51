package daemon

import (
	"context"

	"git.home.luguber.info/inful/rombuilder/internal/pipeline"
	"git.home.luguber.info/inful/rombuilder/internal/state"
	"git.home.luguber.info/inful/rombuilder/internal/status"
)

// buildService adapts the sequencer, tracker, and store to the narrow
// interface the HTTP handlers consume.
type buildService struct {
	sequencer *pipeline.Sequencer
	tracker   *status.Tracker
	store     state.Store
}

func (s *buildService) StartBuild(ctx context.Context, cfg state.BuildConfig) (string, error) {
	return s.sequencer.StartBuild(ctx, cfg)
}

func (s *buildService) Status() status.Snapshot {
	return s.tracker.Snapshot()
}

func (s *buildService) Logs() []string {
	return s.tracker.Logs()
}

func (s *buildService) History(ctx context.Context, limit int) ([]state.BuildRecord, error) {
	return s.store.List(ctx, limit)
}

func (s *buildService) GetBuild(ctx context.Context, id string) (*state.BuildRecord, error) {
	return s.store.Get(ctx, id)
}

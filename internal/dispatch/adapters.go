package dispatch

import (
	"context"

	"github.com/fnal-sbnd/rrarchiver/internal/archivestore"
	"github.com/fnal-sbnd/rrarchiver/internal/cfgstore"
	"github.com/fnal-sbnd/rrarchiver/internal/report"
	"github.com/fnal-sbnd/rrarchiver/internal/state"
)

// fsSourceLister adapts the source filesystem to recovery.SourceLister for
// the import direction.
type fsSourceLister struct {
	dir string
}

func (f fsSourceLister) ListSourceRuns(ctx context.Context) ([]int, error) {
	return report.FilesystemLister{RunRecordsDir: f.dir}.ListFilesystemRuns()
}

// cfgStoreLister adapts cfgstore.Store to recovery.SourceLister (migrate
// direction) and recovery.DestinationLister (import direction).
type cfgStoreLister struct {
	store cfgstore.Store
}

func (c cfgStoreLister) ListSourceRuns(ctx context.Context) ([]int, error) {
	return c.store.ListRuns(ctx)
}

func (c cfgStoreLister) ListDestinationRuns(ctx context.Context) ([]int, error) {
	return c.store.ListRuns(ctx)
}

// archiveStoreLister adapts archivestore.Store to recovery.DestinationLister
// for the migrate direction.
type archiveStoreLister struct {
	store *archivestore.Store
}

func (a archiveStoreLister) ListDestinationRuns(ctx context.Context) ([]int, error) {
	set, err := a.store.ExistingRuns(ctx)
	if err != nil {
		return nil, err
	}
	runs := make([]int, 0, len(set))
	for r := range set {
		runs = append(runs, r)
	}
	return runs, nil
}

func failureLogRuns(path string) []int {
	return state.ParseFailureLog(path)
}

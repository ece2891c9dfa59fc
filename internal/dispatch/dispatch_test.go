package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fnal-sbnd/rrarchiver/pkg/types"
)

func TestResolveMode_NoFlags_FullPipeline(t *testing.T) {
	mode, err := resolveMode(Options{})
	require.NoError(t, err)
	assert.Equal(t, types.ModeFullPipeline, mode)
}

func TestResolveMode_SingleFlag_SelectsMode(t *testing.T) {
	cases := []struct {
		opts Options
		want types.ExecutionMode
	}{
		{Options{ImportOnly: true}, types.ModeImportOnly},
		{Options{MigrateOnly: true}, types.ModeMigrateOnly},
		{Options{RetryFailedImport: true}, types.ModeRetryFailedImport},
		{Options{RetryFailedMigrate: true}, types.ModeRetryFailedMigrate},
		{Options{ReportStatus: true}, types.ModeReportStatus},
		{Options{RecoverImportState: true}, types.ModeRecoverImportState},
		{Options{RecoverMigrateState: true}, types.ModeRecoverMigrateState},
	}
	for _, c := range cases {
		mode, err := resolveMode(c.opts)
		require.NoError(t, err)
		assert.Equal(t, c.want, mode)
	}
}

func TestResolveMode_IncrementalDoesNotCountAsAMode(t *testing.T) {
	mode, err := resolveMode(Options{Incremental: true, ImportOnly: true})
	require.NoError(t, err)
	assert.Equal(t, types.ModeImportOnly, mode)
}

func TestResolveMode_TwoModeFlags_Errors(t *testing.T) {
	_, err := resolveMode(Options{ImportOnly: true, MigrateOnly: true})
	assert.Error(t, err)
}

func TestExitFromStageCode(t *testing.T) {
	assert.Equal(t, types.ExitSuccess, exitFromStageCode(0))
	assert.Equal(t, types.ExitError, exitFromStageCode(1))
}

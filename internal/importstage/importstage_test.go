package importstage

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fnal-sbnd/rrarchiver/internal/config"
)

type fakeStore struct {
	runs      []int
	inserted  map[int]string
	updated   map[int]string
	failInsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{inserted: map[int]string{}, updated: map[int]string{}}
}

func (f *fakeStore) ListRuns(ctx context.Context) ([]int, error) { return f.runs, nil }
func (f *fakeStore) ResolveConfigName(ctx context.Context, run int) (string, error) {
	return f.inserted[run], nil
}
func (f *fakeStore) Insert(ctx context.Context, run int, configName, dir string) error {
	if f.failInsert {
		return assert.AnError
	}
	f.inserted[run] = configName
	return nil
}
func (f *fakeStore) Update(ctx context.Context, run int, configName, dir string) error {
	f.updated[run] = configName
	return nil
}
func (f *fakeStore) Export(ctx context.Context, run int, configName, destDir string) error {
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	schemaDir := filepath.Join(root, "schema")
	require.NoError(t, os.MkdirAll(schemaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "schema.fcl"), []byte("schema: {}\n"), 0o644))

	runRecords := filepath.Join(root, "run_records")
	require.NoError(t, os.MkdirAll(runRecords, 0o755))

	cfg := &config.Config{}
	cfg.App.WorkDir = filepath.Join(root, "work")
	cfg.App.ImportStateFile = filepath.Join(cfg.App.WorkDir, "import_state.json")
	cfg.App.ImportFailureLog = filepath.Join(cfg.App.WorkDir, "import_failures.log")
	cfg.App.BatchSize = 50
	cfg.SourceFiles.RunRecordsDir = runRecords
	cfg.ConfigurationStore.SchemaDir = schemaDir
	return cfg
}

func writeRun(t *testing.T, cfg *config.Config, run int, metadata string) {
	t.Helper()
	dir := filepath.Join(cfg.SourceFiles.RunRecordsDir, strconv.Itoa(run))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if metadata != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.txt"), []byte(metadata), 0o644))
	}
}

func TestDiscover_ExcludesAlreadyArchived(t *testing.T) {
	cfg := testConfig(t)
	writeRun(t, cfg, 100, "")
	writeRun(t, cfg, 101, "")
	store := newFakeStore()
	store.runs = []int{100}

	s := &Stage{Cfg: cfg, Store: store}
	runs, err := s.Discover(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []int{101}, runs)
}

func TestProcessOne_MissingRunDir_ReturnsFalseNoError(t *testing.T) {
	cfg := testConfig(t)
	store := newFakeStore()
	s := &Stage{Cfg: cfg, Store: store}

	ok, err := s.ProcessOne(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessOne_NoRunHistory2Config_SkipsUpdatePhase(t *testing.T) {
	cfg := testConfig(t)
	writeRun(t, cfg, 100, "Config name: standard\nDAQInterface start time: 2026-01-01\nDAQInterface stop time: 2026-01-02\n")
	store := newFakeStore()
	s := &Stage{Cfg: cfg, Store: store}

	ok, err := s.ProcessOne(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "standard", store.inserted[100])
	assert.Empty(t, store.updated)
}

func TestProcessOne_RunHistory2Enabled_WithTimes_CallsUpdate(t *testing.T) {
	cfg := testConfig(t)
	cfg.FhiclizeGenerate.Enabled = []string{"RunHistory2"}
	writeRun(t, cfg, 100, "Config name: standard\nDAQInterface start time: 2026-01-01 00:00:00\nDAQInterface stop time: 2026-01-01 01:00:00\n")
	store := newFakeStore()
	s := &Stage{Cfg: cfg, Store: store}

	ok, err := s.ProcessOne(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "standard", store.updated[100])
}

func TestProcessOne_RunHistory2Enabled_NoTimes_SkipsUpdate(t *testing.T) {
	cfg := testConfig(t)
	cfg.FhiclizeGenerate.Enabled = []string{"RunHistory2"}
	writeRun(t, cfg, 100, "Config name: standard\n")
	store := newFakeStore()
	s := &Stage{Cfg: cfg, Store: store}

	ok, err := s.ProcessOne(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, store.updated)
}

func TestProcessOne_RunHistory2Enabled_StartTimeOnly_SkipsUpdate(t *testing.T) {
	cfg := testConfig(t)
	cfg.FhiclizeGenerate.Enabled = []string{"RunHistory2"}
	writeRun(t, cfg, 100, "Config name: standard\nDAQInterface start time: 2026-01-01 00:00:00\n")
	store := newFakeStore()
	s := &Stage{Cfg: cfg, Store: store}

	ok, err := s.ProcessOne(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, store.updated)
}

func TestProcessOne_InsertFails_ReturnsError(t *testing.T) {
	cfg := testConfig(t)
	writeRun(t, cfg, 100, "")
	store := newFakeStore()
	store.failInsert = true
	s := &Stage{Cfg: cfg, Store: store}

	_, err := s.ProcessOne(context.Background(), 100)
	require.Error(t, err)
}

func TestResolveConfigName_DefaultsToStandard(t *testing.T) {
	cfg := testConfig(t)
	writeRun(t, cfg, 100, "")
	name := resolveConfigName(filepath.Join(cfg.SourceFiles.RunRecordsDir, "100"))
	assert.Equal(t, "standard", name)
}

func TestResolveConfigName_SlashesReplacedWithUnderscore(t *testing.T) {
	cfg := testConfig(t)
	writeRun(t, cfg, 100, "Config name: a/b/c\n")
	name := resolveConfigName(filepath.Join(cfg.SourceFiles.RunRecordsDir, "100"))
	assert.Equal(t, "a_b_c", name)
}

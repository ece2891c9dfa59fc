package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fnal-sbnd/rrarchiver/internal/archivestore"
	"github.com/fnal-sbnd/rrarchiver/internal/state"
)

func TestFsSourceLister_ListsNumericDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "100"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "101"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	runs, err := fsSourceLister{dir: dir}.ListSourceRuns(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{100, 101}, runs)
}

func TestFailureLogRuns_ParsesDecimalLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.log")
	require.NoError(t, state.WriteFailureLog(path, []int{5, 7}))

	runs := failureLogRuns(path)
	assert.ElementsMatch(t, []int{5, 7}, runs)
}

func TestArchiveStoreLister_FlattensPresenceSet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/app/version", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("1")) })
	mux.HandleFunc("/app/data/f/o/versions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Join([]string{"10", "20"}, "\n")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store, err := archivestore.New(context.Background(), archivestore.Config{URL: srv.URL, FolderName: "f", ObjectName: "o"})
	require.NoError(t, err)

	runs, err := archiveStoreLister{store: store}.ListDestinationRuns(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{10, 20}, runs)
}

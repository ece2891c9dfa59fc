package blob

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestPack_TailOrdering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "zzz.fcl", "z-content\n")
	writeFile(t, dir, "aaa.fcl", "a-content\n")
	writeFile(t, dir, "metadata.fcl", "meta-content\n")
	writeFile(t, dir, "boot.fcl", "boot-content\n")

	doc, err := Pack(42, dir)
	require.NoError(t, err)

	aIdx := indexOf(doc, "aaa.fcl:")
	zIdx := indexOf(doc, "zzz.fcl:")
	bootIdx := indexOf(doc, "boot.fcl:")
	metaIdx := indexOf(doc, "metadata.fcl:")

	assert.True(t, aIdx < zIdx, "regular files sorted case-insensitively")
	assert.True(t, zIdx < bootIdx, "regular files precede tail files")
	assert.True(t, bootIdx < metaIdx, "tail files follow fixed tail order")
}

func TestPack_HeaderFooterExactFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.fcl", "x: 1\n")

	doc, err := Pack(7, dir)
	require.NoError(t, err)

	startMatches := regexp.MustCompile(`Start of Record\nRun Number: 7\n`).FindAllString(doc, -1)
	endMatches := regexp.MustCompile(`End of Record\nRun Number: 7\n`).FindAllString(doc, -1)
	assert.Len(t, startMatches, 1)
	assert.Len(t, endMatches, 1)
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "metadata.fcl", "config_name: \"standard\"\n")
	writeFile(t, dir, "settings.fcl", "max_events: 100\n")

	doc, err := Pack(123, dir)
	require.NoError(t, err)

	files, order, err := Unpack(doc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"metadata.fcl", "settings.fcl"}, order)
	assert.Equal(t, "config_name: \"standard\"\n", files["metadata.fcl"])
	assert.Equal(t, "max_events: 100\n", files["settings.fcl"])
}

func TestPackUnpack_RoundTrip_PreservesTrailingNewlineOnNonTailFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.fcl", "x\n")
	writeFile(t, dir, "boot.fcl", "boot-content\n")

	doc, err := Pack(5, dir)
	require.NoError(t, err)

	files, _, err := Unpack(doc)
	require.NoError(t, err)
	assert.Equal(t, "x\n", files["a.fcl"])
	assert.Equal(t, "boot-content\n", files["boot.fcl"])
}

func TestUnpack_NoDelimiters(t *testing.T) {
	_, _, err := Unpack("just some text with no structure")
	assert.Error(t, err)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

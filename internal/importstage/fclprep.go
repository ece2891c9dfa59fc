package importstage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fnal-sbnd/rrarchiver/internal/convert"
)

// copyRunDirNormalized copies src into dst, normalizing directory/file
// permissions (0755/0644) before converting any file, so every prepared
// working directory has predictable permissions regardless of the source
// tree's own.
func copyRunDirNormalized(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// applyConverters walks every *.txt file directly under dir, converts it
// with the registered converter if enabled in the configuration, writes the
// .fcl sibling, and removes the source .txt — matching
// prepare_fcl_for_archive's per-file loop.
func applyConverters(dir string, shouldConvert func(name string) bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".txt")
		if !shouldConvert(base) {
			continue
		}
		converter, ok := convert.Registry[base]
		if !ok {
			continue
		}
		srcPath := filepath.Join(dir, e.Name())
		content, err := os.ReadFile(srcPath)
		if err != nil {
			return err
		}
		converted := converter(string(content))
		if err := os.WriteFile(filepath.Join(dir, base+".fcl"), []byte(converted), 0o644); err != nil {
			return err
		}
		if err := os.Remove(srcPath); err != nil {
			return err
		}
	}
	return nil
}

// generateRunHistory writes RunHistory.fcl from metadata.txt in dir, if
// present, and returns whether it did so.
func generateRunHistory(dir string, runNumber int) (bool, error) {
	metadataPath := filepath.Join(dir, "metadata.txt")
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	content := convert.GenerateRunHistory(string(data), &runNumber)
	if err := os.WriteFile(filepath.Join(dir, "RunHistory.fcl"), []byte(content), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func copySchema(schemaDir, dst string) error {
	schemaSrc := filepath.Join(schemaDir, "schema.fcl")
	data, err := os.ReadFile(schemaSrc)
	if err != nil {
		return fmt.Errorf("schema not found at %s: %w", schemaSrc, err)
	}
	return os.WriteFile(filepath.Join(dst, "schema.fcl"), data, 0o644)
}

var configNameLinePattern = regexp.MustCompile(`^Config name:\s+(.*)`)

// resolveConfigName reads metadata.txt's "Config name:" line, replacing any
// "/" with "_", defaulting to "standard" when absent.
func resolveConfigName(runDir string) string {
	data, err := os.ReadFile(filepath.Join(runDir, "metadata.txt"))
	if err != nil {
		return "standard"
	}
	for _, line := range strings.Split(string(data), "\n") {
		if m := configNameLinePattern.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				return strings.ReplaceAll(name, "/", "_")
			}
		}
	}
	return "standard"
}

var (
	stopTimePattern  = regexp.MustCompile(`^DAQInterface stop time:\s+(.*)`)
	startTimePattern = regexp.MustCompile(`^DAQInterface start time:\s+(.*)`)
)

// buildRunHistory2 extracts the DAQInterface start/stop time lines from
// metadata.txt and renders them as FHiCL key/value pairs. The update phase
// only ever fires once both a start and a stop time are present; an
// in-progress run with a start time but no stop time returns empty so the
// second update is skipped entirely.
func buildRunHistory2(runDir string) string {
	data, err := os.ReadFile(filepath.Join(runDir, "metadata.txt"))
	if err != nil {
		return ""
	}
	var startLine, stopLine string
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimRight(raw, "\r")
		if m := stopTimePattern.FindStringSubmatch(line); m != nil {
			stopLine = fmt.Sprintf(`DAQInterface_stop_time: "%s"`, cleanNonASCII(m[1]))
		}
		if m := startTimePattern.FindStringSubmatch(line); m != nil {
			startLine = fmt.Sprintf(`DAQInterface_start_time: "%s"`, cleanNonASCII(m[1]))
		}
	}
	if startLine == "" || stopLine == "" {
		return ""
	}
	return startLine + "\n" + stopLine + "\n"
}

func cleanNonASCII(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

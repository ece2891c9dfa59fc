// Package blob implements the archive blob codec: packing a prepared
// export directory into a single delimited UTF-8 text document, and
// unpacking that document back into a filename->content map.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fnal-sbnd/rrarchiver/internal/errs"
)

// tailOrder is the fixed ordering applied, after the regular files, to
// files that exist and exactly match one of these relative names.
var tailOrder = []string{
	"boot.fcl", "known_boardreaders_list.fcl", "setup.fcl", "environment.fcl",
	"metadata.fcl", "settings.fcl", "ranks.fcl", "RunHistory.fcl", "RunHistory2.fcl",
}

// Pack reads every regular file under dir and emits the archive blob
// document for runNumber: non-tail files sorted case-insensitively by name,
// then tail-set files (that exist) in tailOrder, wrapped in the
// Start/End-of-Record header and footer.
func Pack(runNumber int, dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		r := runNumber
		return "", errs.New(errs.KindBlobCreation, "Migration", &r, err, map[string]any{"dir": dir})
	}

	tailSet := make(map[string]bool, len(tailOrder))
	for _, t := range tailOrder {
		tailSet[t] = true
	}

	var regular, tail []string
	present := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		present[e.Name()] = true
	}
	for name := range present {
		if tailSet[name] {
			continue
		}
		regular = append(regular, name)
	}
	sort.Slice(regular, func(i, j int) bool {
		return strings.ToLower(regular[i]) < strings.ToLower(regular[j])
	})
	for _, name := range tailOrder {
		if present[name] {
			tail = append(tail, name)
		}
	}

	ordered := append(regular, tail...)

	ts := formatPackTimestamp(time.Now().UTC())

	var b strings.Builder
	fmt.Fprintf(&b, "Start of Record\nRun Number: %d\nPacked on %s\n", runNumber, ts)

	for _, name := range ordered {
		content, err := readPermissive(filepath.Join(dir, name))
		if err != nil {
			r := runNumber
			return "", errs.New(errs.KindBlobCreation, "Migration", &r, err, map[string]any{"file": name})
		}
		fmt.Fprintf(&b, "\n#####\n%s:\n#####\n%s", name, content)
	}

	fmt.Fprintf(&b, "\nEnd of Record\nRun Number: %d\nPacked on %s\n", runNumber, ts)
	return b.String(), nil
}

// formatPackTimestamp renders the pack timestamp using a fixed-layout
// time.Format call, which always renders English month abbreviations
// regardless of the process locale, with no locale-switching code needed.
func formatPackTimestamp(t time.Time) string {
	return t.Format("Jan 02 15:04") + " UTC"
}

func readPermissive(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if isValidUTF8(data) {
		return string(data), nil
	}
	return string(toASCIIPermissive(data)), nil
}

func isValidUTF8(b []byte) bool {
	return strings.ToValidUTF8(string(b), "\uFFFD") == string(b)
}

func toASCIIPermissive(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 128 {
			out = append(out, c)
		}
	}
	return out
}

var delimiterPattern = regexp.MustCompile(`(?s)\n#####\n(.+?):\n#####\n`)

// Unpack parses a packed blob document into an ordered filename->content
// map. Returns a KindBlobCreation error ("no delimiters found in blob") if
// the regex matches zero files.
func Unpack(doc string) (map[string]string, []string, error) {
	matches := delimiterPattern.FindAllStringSubmatchIndex(doc, -1)
	if len(matches) == 0 {
		return nil, nil, errs.New(errs.KindBlobCreation, "Migration", nil, fmt.Errorf("no delimiters found in blob"), nil)
	}

	files := make(map[string]string, len(matches))
	var order []string

	footerIdx := strings.Index(doc, "\nEnd of Record\n")

	for i, m := range matches {
		name := doc[m[2]:m[3]]
		contentStart := m[1]
		var contentEnd int
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		} else if footerIdx >= 0 && footerIdx >= contentStart {
			contentEnd = footerIdx
		} else {
			contentEnd = len(doc)
		}
		files[name] = doc[contentStart:contentEnd]
		order = append(order, name)
	}

	return files, order, nil
}

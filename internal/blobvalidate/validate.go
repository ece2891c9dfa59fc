// Package blobvalidate checks a packed archive blob against a declared
// parameter spec: for each listed file and fhicl key, exactly one matching
// line must be present, never throwing — errors are reported per parameter
// label instead.
package blobvalidate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fnal-sbnd/rrarchiver/internal/blob"
	"github.com/fnal-sbnd/rrarchiver/pkg/types"
)

// DefaultParameterSpec is the default validation spec: metadata.fcl's
// components/config_name/project-version fields.
var DefaultParameterSpec = types.ParameterSpec{
	"metadata.fcl": {
		"components":               "components",
		"configuration":            "Config_name",
		"projectversion":           "sbndaq_commit_or_version",
	},
}

// Validate unpacks blobDoc and, for each file named in spec, looks for
// exactly one line matching "^<fhicl_key>:\s+(.+)$" per parameter. Zero or
// multiple matches is an error for that parameter. Missing files mark all
// of that file's parameters as errors. Never returns an error itself —
// failures are reported through the returned ValidationResult.
func Validate(blobDoc string, spec types.ParameterSpec) types.ValidationResult {
	result := types.ValidationResult{Values: map[string]string{}}

	files, _, err := blob.Unpack(blobDoc)
	if err != nil {
		for _, params := range spec {
			for label := range params {
				result.Values[label] = fmt.Sprintf("error: could not unpack blob: %v", err)
				result.ErrorCount++
			}
		}
		return result
	}

	for filename, params := range spec {
		content, ok := files[filename]
		if !ok {
			for label := range params {
				result.Values[label] = fmt.Sprintf("error: file %s not present in blob", filename)
				result.ErrorCount++
			}
			continue
		}
		for label, fhiclKey := range params {
			value, err := extractSingle(content, fhiclKey)
			if err != nil {
				result.Values[label] = err.Error()
				result.ErrorCount++
				continue
			}
			result.Values[label] = value
		}
	}

	return result
}

func extractSingle(content, fhiclKey string) (string, error) {
	pattern := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(fhiclKey) + `:\s+(.+)$`)
	matches := pattern.FindAllStringSubmatch(content, -1)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no matches for parameter %s", fhiclKey)
	case 1:
		return strings.Trim(matches[0][1], `"`), nil
	default:
		return "", fmt.Errorf("multiple matches for parameter %s", fhiclKey)
	}
}

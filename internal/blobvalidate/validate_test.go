package blobvalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fnal-sbnd/rrarchiver/pkg/types"
)

func packedDoc(files map[string]string) string {
	doc := "Start of Record\nRun Number: 1\nPacked on Jan 01 00:00 UTC\n\n"
	for name, content := range files {
		doc += "#####\n" + name + ":\n#####\n" + content + "\n"
	}
	doc += "\nEnd of Record\nRun Number: 1\nPacked on Jan 01 00:00 UTC\n"
	return doc
}

func TestValidate_MissingFile_ErrorCountOne(t *testing.T) {
	spec := types.ParameterSpec{
		"metadata.fcl": {"configuration": "Config_name"},
	}
	doc := packedDoc(map[string]string{"settings.fcl": "x: 1"})

	result := Validate(doc, spec)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Contains(t, result.Values["configuration"], "not present")
}

func TestValidate_SingleMatch(t *testing.T) {
	spec := types.ParameterSpec{
		"metadata.fcl": {"configuration": "Config_name"},
	}
	doc := packedDoc(map[string]string{"metadata.fcl": `Config_name: "standard"`})

	result := Validate(doc, spec)
	assert.Equal(t, 0, result.ErrorCount)
	assert.Equal(t, "standard", result.Values["configuration"])
}

func TestValidate_MultipleMatches_IsError(t *testing.T) {
	spec := types.ParameterSpec{
		"metadata.fcl": {"configuration": "Config_name"},
	}
	doc := packedDoc(map[string]string{
		"metadata.fcl": "Config_name: \"standard\"\nConfig_name: \"other\"",
	})

	result := Validate(doc, spec)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Contains(t, result.Values["configuration"], "multiple matches")
}

func TestValidate_NeverPanics_OnGarbageInput(t *testing.T) {
	assert.NotPanics(t, func() {
		Validate("not a valid blob at all", DefaultParameterSpec)
	})
}

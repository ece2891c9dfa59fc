// Package convert implements the text-to-FHiCL converter registry: a set
// of pure string->string functions, one per recognized source file kind,
// plus the separate RunHistory generator. Every converter is deterministic:
// the same input always yields byte-identical output.
package convert

// Registry maps a converter name to its pure conversion function. Unknown
// names are rejected at config-load time (see internal/config), not at
// runtime.
var Registry = map[string]func(string) string{
	"metadata":                FhiclizeMetadata,
	"boot":                    FhiclizeBoot,
	"settings":                FhiclizeSettings,
	"setup":                   FhiclizeSetup,
	"environment":             FhiclizeEnvironment,
	"ranks":                   FhiclizeRanks,
	"known_boardreaders_list": FhiclizeKnownBoardreadersList,
}

// Names lists the supported converter kinds, for validation and for
// iterating over applicable files during FCL preparation.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}

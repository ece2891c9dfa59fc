// Package cfgstore implements the configuration-store adapter: the
// intermediate store that holds per-run FHiCL configurations between the
// import and migrate stages. Three transport variants exist behind one
// Store interface — an in-process driver, a local CLI tool, and a CLI tool
// invoked on a remote host over a tar-over-ssh pipe.
package cfgstore

import (
	"context"
)

// Store is the narrow-contract collaborator the stage engines depend on.
// DriverStore and CLIStore are the two concrete implementations.
// DriverStore reports missing and duplicate records with errors that
// IsNotFound and IsAlreadyExists recognize; CLIStore reports every tool
// failure as a plain configuration-store error without that distinction.
type Store interface {
	// ListRuns returns every run number currently present in the store.
	ListRuns(ctx context.Context) ([]int, error)

	// ResolveConfigName returns the config name recorded for run. Fails
	// with a not-found error if run is absent.
	ResolveConfigName(ctx context.Context, run int) (string, error)

	// Insert stores the contents of dir under (run, configName). Fails
	// with an already-exists error if a record already exists for that
	// key.
	Insert(ctx context.Context, run int, configName string, dir string) error

	// Update copies the files in dir over the record stored under (run,
	// configName), replacing files of the same name and keeping the rest.
	// Fails with a not-found error if no record exists.
	Update(ctx context.Context, run int, configName string, dir string) error

	// Export writes the flat file contents of (run, configName) into
	// destDir.
	Export(ctx context.Context, run int, configName string, destDir string) error
}

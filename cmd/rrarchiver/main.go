package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/fnal-sbnd/rrarchiver/internal/dispatch"
	"github.com/fnal-sbnd/rrarchiver/pkg/types"
)

var version = "dev"

func main() {
	opts := dispatch.Options{}

	root := &cobra.Command{
		Use:     "rrarchiver [config_file]",
		Short:   "Archives run-record configurations from source filesystem through the configuration store to the archive store",
		Args:    cobra.MaximumNArgs(1),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigFile = "config.yaml"
			if len(args) == 1 {
				opts.ConfigFile = args[0]
			}
			code := dispatch.Execute(context.Background(), opts)
			os.Exit(int(code))
			return nil
		},
	}

	flags := root.Flags()
	flags.BoolVar(&opts.Incremental, "incremental", false, "skip work at or below the incremental watermark")
	flags.BoolVar(&opts.ImportOnly, "import-only", false, "run the import stage only")
	flags.BoolVar(&opts.MigrateOnly, "migrate-only", false, "run the migrate stage only")
	flags.BoolVar(&opts.RetryFailedImport, "retry-failed-import", false, "process runs listed in the import failure log")
	flags.BoolVar(&opts.RetryFailedMigrate, "retry-failed-migrate", false, "process runs listed in the migrate failure log")
	flags.BoolVar(&opts.ReportStatus, "report-status", false, "generate a presence/gap report")
	flags.BoolVar(&opts.CompareState, "compare-state", false, "with --report-status, cross-check against watermarks")
	flags.BoolVar(&opts.RecoverImportState, "recover-import-state", false, "rebuild the import watermark and failure log from the stores")
	flags.BoolVar(&opts.RecoverMigrateState, "recover-migrate-state", false, "rebuild the migrate watermark and failure log from the stores")
	flags.BoolVar(&opts.Validate, "validate", false, "in migrate, add an end-to-end MD5 round-trip check")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug log level")

	if err := root.Execute(); err != nil {
		os.Exit(int(types.ExitUnexpectedError))
	}
}

// Package cmd provides the CLI commands for indexer-core.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/localsearch/indexer-core/internal/logging"
	"github.com/localsearch/indexer-core/pkg/version"
)

var (
	dataDir   string
	modelSpec string
	debugMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the indexer-core CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "indexer-core",
		Short: "Local semantic-search indexing core",
		Long: `indexer-core watches one or more directories, extracts and chunks their
text, embeds the chunks through an isolated subsidiary process, and stores
the resulting vectors for nearest-neighbour search.

It is the indexing engine, not the search UI: searching the index is the
concern of whatever desktop shell embeds it.`,
		PersistentPreRunE:  setupLogging,
		PersistentPostRunE: teardownLogging,
		Version:            version.Short(),
	}
	root.SetVersionTemplate(version.String() + "\n")

	root.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "index data directory (ledger, vectors, config)")
	root.PersistentFlags().StringVar(&modelSpec, "model", "static", `embedding model ("static" or "native:<path>")`)
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	root.AddCommand(newWatchCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newLedgerCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newDashboardCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Println(version.String())
			return err
		},
	}
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

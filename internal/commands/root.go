package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pfinance-dev/pfinance/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var dir string

	rootCmd := &cobra.Command{
		Use:     "pfinance",
		Short:   "Personal finance statement ingestion",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dir, "dir", ".", "project directory holding pfinance.yaml")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newIngestCommand(&dir))
	rootCmd.AddCommand(newReportCommand(&dir))
	rootCmd.AddCommand(newRulesCommand(&dir))
	rootCmd.AddCommand(newAddCommand(&dir))
	rootCmd.AddCommand(newSearchCommand(&dir))
	rootCmd.AddCommand(newDeleteCommand(&dir))
	rootCmd.AddCommand(newLogCommand(&dir))
	rootCmd.AddCommand(newServeCommand(&dir))

	return rootCmd
}

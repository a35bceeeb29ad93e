package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "conveyor",
	Short: "A single-node CI pipeline execution engine",
	Long: `conveyor runs declarative build pipelines: ordered and parallel stages,
best-effort scan steps, timed human-approval gates, and outcome-scoped
post hooks for archiving and notification.

All state is stored in ~/.conveyor/ (SQLite for the event trail, JSON
for build records and artifacts). One build runs at a time.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(buildsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(serveCmd)
}

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/conveyor/internal/record"
)

var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "Inspect retained build records",
}

var buildsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all retained builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := record.DefaultStore()
		if err != nil {
			return fmt.Errorf("open build store: %w", err)
		}

		records, err := store.List()
		if err != nil {
			return fmt.Errorf("list builds: %w", err)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No builds found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-8s %-11s %-22s %-10s %s\n", "BUILD", "STATUS", "STARTED", "ARTIFACTS", "PIPELINE")
		fmt.Fprintf(w, "%-8s %-11s %-22s %-10s %s\n",
			strings.Repeat("-", 8),
			strings.Repeat("-", 11),
			strings.Repeat("-", 22),
			strings.Repeat("-", 10),
			strings.Repeat("-", 8))
		for _, rec := range records {
			fmt.Fprintf(w, "%-8d %-11s %-22s %-10d %s\n",
				rec.Number, rec.Status, rec.StartedAt, len(rec.Artifacts), rec.Pipeline)
		}
		return nil
	},
}

var buildsShowCmd = &cobra.Command{
	Use:   "show <build-number>",
	Short: "Show the per-stage status tree of a build",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid build number: %s", args[0])
		}

		store, err := record.DefaultStore()
		if err != nil {
			return fmt.Errorf("open build store: %w", err)
		}

		rec, err := store.Get(number)
		if err != nil {
			return err
		}

		printBuild(cmd, rec)
		return nil
	},
}

func init() {
	buildsCmd.AddCommand(buildsListCmd)
	buildsCmd.AddCommand(buildsShowCmd)
}

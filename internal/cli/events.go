package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events <build-number>",
	Short: "Dump the event trail for a build",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid build number: %s", args[0])
		}

		_, database, cleanup, err := openDeps()
		if err != nil {
			return err
		}
		defer cleanup()

		events, err := database.GetBuildEvents(number)
		if err != nil {
			return fmt.Errorf("get build events: %w", err)
		}
		if len(events) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No events for build %d.\n", number)
			return nil
		}

		w := cmd.OutOrStdout()
		for _, e := range events {
			stage := e.Stage
			if stage == "" {
				stage = "-"
			}
			detail := ""
			if e.Detail != "" {
				detail = "  " + e.Detail
			}
			fmt.Fprintf(w, "%s  %-18s %s%s\n", e.Timestamp, e.Event, stage, detail)
		}
		return nil
	},
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/conveyor/internal/config"
	"github.com/lucasnoah/conveyor/internal/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate [pipeline-file]",
	Short: "Validate a pipeline definition without running it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadPipeline(args)
		if err != nil {
			return err
		}

		if errs := config.Validate(cfg); len(errs) > 0 {
			return validationFailure(errs)
		}

		root, err := graph.Build(&cfg.Pipeline)
		if err != nil {
			return fmt.Errorf("build stage graph: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %q is valid (%d stages)\n",
			cfg.Pipeline.Name, root.Count()-1)
		return nil
	},
}

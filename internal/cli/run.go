package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/conveyor/internal/command"
	"github.com/lucasnoah/conveyor/internal/config"
	"github.com/lucasnoah/conveyor/internal/db"
	"github.com/lucasnoah/conveyor/internal/envctx"
	"github.com/lucasnoah/conveyor/internal/executor"
	"github.com/lucasnoah/conveyor/internal/gate"
	"github.com/lucasnoah/conveyor/internal/graph"
	"github.com/lucasnoah/conveyor/internal/record"
	"github.com/lucasnoah/conveyor/internal/web"
)

var runCmd = &cobra.Command{
	Use:   "run [pipeline-file]",
	Short: "Run a pipeline build",
	Long: `Run a build of the given pipeline definition (or the default one found
in the current directory). With --listen, a local API server is started
for the duration of the build so gates can be approved over HTTP.`,
	Args: cobra.MaximumNArgs(1),
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

		workDir, _ := cmd.Flags().GetString("workdir")
		if workDir == "" {
			workDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("get workdir: %w", err)
			}
		}

		store, database, cleanup, err := openDeps()
		if err != nil {
			return err
		}
		defer cleanup()

		invoker := command.NewInvoker(&command.ExecRunner{})
		invoker.SetOutputLimit(cfg.Pipeline.Options.OutputLimit)
		gates := gate.NewController()

		exec := executor.New(invoker, gates, store, database)
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			exec.SetProgress(cmd.ErrOrStderr())
		}

		// Optional API server for gate approvals during the build.
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			server := web.NewServer(store, database, gates, listen)
			errCh := server.StartBackground()
			defer func() {
				_ = server.Shutdown()
				<-errCh
			}()
		}

		var timeout time.Duration
		if cfg.Pipeline.Options.BuildTimeout != "" {
			timeout, err = time.ParseDuration(cfg.Pipeline.Options.BuildTimeout)
			if err != nil {
				return fmt.Errorf("build_timeout: %w", err)
			}
		}

		rec, err := exec.Run(root, envctx.New(cfg.Pipeline.Env), executor.Options{
			WorkDir:      workDir,
			BuildTimeout: timeout,
			DiscardCount: cfg.Pipeline.Options.DiscardCount,
		})
		if err != nil {
			return err
		}

		printBuild(cmd, rec)
		if rec.Status != graph.StatusSucceeded {
			return fmt.Errorf("build #%d %s", rec.Number, rec.Status)
		}
		return nil
	},
}

// loadPipeline loads the definition from the argument or default locations.
func loadPipeline(args []string) (*config.File, error) {
	if len(args) > 0 {
		return config.Load(args[0])
	}
	return config.LoadDefault()
}

// validationFailure formats validation errors into a single error.
func validationFailure(errs []config.ValidationError) error {
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, "  "+e.Error())
	}
	return fmt.Errorf("invalid pipeline definition:\n%s", strings.Join(lines, "\n"))
}

// openDeps opens the record store and event database.
func openDeps() (*record.Store, *db.DB, func(), error) {
	store, err := record.DefaultStore()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open build store: %w", err)
	}

	dbPath, err := db.DefaultDBPath()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db path: %w", err)
	}
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, nil, fmt.Errorf("migrate db: %w", err)
	}

	return store, database, func() { database.Close() }, nil
}

// printBuild renders the per-stage status tree of a finished build.
func printBuild(cmd *cobra.Command, rec *record.BuildRecord) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Build #%d (%s): %s\n", rec.Number, rec.Pipeline, rec.Status)
	printResult(cmd, rec.Root, 1)
	if len(rec.Artifacts) > 0 {
		fmt.Fprintf(w, "  Artifacts:\n")
		for _, a := range rec.Artifacts {
			fmt.Fprintf(w, "    %s/%s (%d bytes)\n", a.Stage, a.Name, a.Size)
		}
	}
}

func printResult(cmd *cobra.Command, res *record.StageResult, depth int) {
	if res == nil {
		return
	}
	w := cmd.OutOrStdout()
	indent := strings.Repeat("  ", depth)

	detail := ""
	if res.Reason != "" {
		detail = " (" + res.Reason + ")"
	}
	if res.Approver != "" {
		detail = " (approved by " + res.Approver + ")"
	}
	if res.Status != res.Propagated {
		detail += fmt.Sprintf(" [propagated %s]", res.Propagated)
	}
	fmt.Fprintf(w, "%s%s: %s%s\n", indent, res.ID, res.Status, detail)

	for _, c := range res.Children {
		printResult(cmd, c, depth+1)
	}
}

func init() {
	runCmd.Flags().String("workdir", "", "Directory commands run in (default: current directory)")
	runCmd.Flags().String("listen", "", "Address for the build-local API server (e.g. :8344)")
	runCmd.Flags().Bool("quiet", false, "Suppress live progress output")
}

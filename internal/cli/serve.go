package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/conveyor/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API server",
	Long: `Start a read-only JSON API over retained build records and the event
trail. Gate approval endpoints only work on the server started by
"conveyor run --listen", which shares the running build's gates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		store, database, cleanup, err := openDeps()
		if err != nil {
			return err
		}
		defer cleanup()

		return web.NewServer(store, database, nil, fmt.Sprintf(":%d", port)).Start()
	},
}

func init() {
	serveCmd.Flags().Int("port", 8344, "Port to listen on")
}

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve <gate-id>",
	Short: "Approve a pending gate of the running build",
	Long: `Submit an approval decision to the API server started by
"conveyor run --listen" or "conveyor serve". The first decision wins;
approving an already-resolved gate is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		approver, _ := cmd.Flags().GetString("by")
		if approver == "" {
			approver = os.Getenv("USER")
		}
		if approver == "" {
			return fmt.Errorf("approver identity required (use --by)")
		}

		body, err := json.Marshal(map[string]string{"approver": approver})
		if err != nil {
			return err
		}

		url := fmt.Sprintf("http://%s/api/gates/%s/approve", addr, args[0])
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("submit approval: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("approval rejected (%s): %s", resp.Status, bytes.TrimSpace(data))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Gate %s approved by %s\n", args[0], approver)
		return nil
	},
}

func init() {
	approveCmd.Flags().String("addr", "localhost:8344", "Address of the conveyor API server")
	approveCmd.Flags().String("by", "", "Approver identity recorded for the audit trail (default: $USER)")
}

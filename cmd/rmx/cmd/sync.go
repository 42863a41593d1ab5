package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bring the local mirror up to date",
	Long:  "Compare the remote root hash with the local cache and rebuild the hierarchy if it changed.",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	res, err := client.Sync(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	state := "rebuilt"
	if res.FromCache {
		state = "unchanged"
	}
	fmt.Fprintf(os.Stderr, "Root %s (%s), %d entries", res.RootHash, state, res.Hierarchy.Len())
	if len(res.Skipped) > 0 {
		fmt.Fprintf(os.Stderr, ", %d skipped", len(res.Skipped))
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

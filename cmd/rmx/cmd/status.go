package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check remote reachability and cache freshness",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ptr, err := client.Remote().GetRootPointer(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "remote unreachable or not authenticated")
	}

	fmt.Fprintf(os.Stdout, "remote root: %s (generation %d)\n", ptr.Hash, ptr.Generation)

	cached := client.RootHash()
	switch {
	case cached == "":
		fmt.Fprintln(os.Stdout, "local cache: cold, next sync will rebuild")
	case cached == ptr.Hash:
		fmt.Fprintf(os.Stdout, "local cache: in sync (fetched %s)\n", humanize.Time(client.CachedAt()))
	default:
		fmt.Fprintf(os.Stdout, "local cache: stale (fetched %s)\n", humanize.Time(client.CachedAt()))
	}
	return nil
}

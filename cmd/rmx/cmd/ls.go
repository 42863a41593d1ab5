package cmd

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a folder of the mirrored hierarchy",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	if _, err := client.Sync(cmd.Context()); err != nil {
		return err
	}

	node, err := client.Lookup(path)
	if err != nil {
		return err
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("TYPE", "NAME", "SIZE", "MODIFIED")
	for _, child := range node.Children {
		kind := "doc"
		size := humanize.Bytes(uint64(child.Entry.Size))
		if child.IsDir() {
			kind = "dir"
			size = "-"
		}
		name := child.Name()
		if child.Entry.Pinned {
			name += " *"
		}
		modified := "-"
		if !child.Entry.LastModified.IsZero() {
			modified = humanize.Time(child.Entry.LastModified)
		}
		table.Append(kind, name, size, modified)
	}
	return table.Render()
}

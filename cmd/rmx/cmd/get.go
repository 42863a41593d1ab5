package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Export a document or folder subtree",
	Long:  "Export a document to a portable file, or a whole folder recursively with -r.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringP("output", "o", ".", "output directory")
	getCmd.Flags().BoolP("recursive", "r", false, "export a folder recursively")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("output")
	recursive, _ := cmd.Flags().GetBool("recursive")

	out, err := homedir.Expand(out)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	if _, err := client.Sync(cmd.Context()); err != nil {
		return err
	}

	node, err := client.Lookup(args[0])
	if err != nil {
		return err
	}

	if node.IsDir() {
		if !recursive {
			return errors.Errorf("%s is a folder, use -r to export recursively", args[0])
		}

		report, err := client.ExportTree(cmd.Context(), node, out)
		if report != nil {
			for _, f := range report.Failed {
				log.WithError(f.Err).WithField("path", f.Path).Error("export failed")
			}
			fmt.Fprintf(os.Stderr, "Exported %d documents, %d failed\n",
				report.Completed(), report.FailedCount())
		}
		if err != nil {
			return err
		}
		if report.Completed() == 0 {
			return errors.New("nothing exported")
		}
		return nil
	}

	exported, err := client.Export(cmd.Context(), node.Entry.ID, filepath.Join(out, node.Name()))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %s\n", exported.Path)
	return nil
}

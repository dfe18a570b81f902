package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deploy.evalgo.org/dist"
)

func init() {
	RootCmd.AddCommand(releaseCmd)
	releaseCmd.Flags().Bool("release-testing", false, "skip the version control checks, the tag and the upload")
	releaseCmd.Flags().String("folder", "", "app or project folder (default: the current folder)")
}

var releaseCmd = &cobra.Command{
	Use:   "release PREFIX PYPIRC",
	Short: "package the app or project in the current folder and upload it",
	Long: `Package the app or project in the current folder and upload it e.g.

  deploy release pkimber dev

PREFIX is prepended to the package name, PYPIRC names the index in ~/.pypirc.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		if folder == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			folder = wd
		}
		testing, _ := cmd.Flags().GetBool("release-testing")
		version, err := dist.Release(cmd.Context(), dist.ReleaseOptions{
			Folder:   folder,
			Prefix:   args[0],
			PyPIRC:   args[1],
			Testing:  testing,
			Exec:     localExecutor,
			Prompter: prompter,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "released version %s\n", version)
		return nil
	},
}

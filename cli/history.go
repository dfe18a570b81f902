package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"deploy.evalgo.org/history"
	"deploy.evalgo.org/version"
)

func init() {
	RootCmd.AddCommand(historyCmd, versionCmd)
	historyCmd.Flags().IntP("limit", "n", 10, "number of deploys to show (0 for all)")
	versionCmd.Flags().Bool("json", false, "print the build information as JSON")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "list the deploys made from this workstation (all sites without --site)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		siteName, _ := cmd.Flags().GetString("site")
		records, err := store.List(siteName)
		if err != nil {
			return err
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(records) > limit {
			records = records[:limit]
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SITE\tSERVER\tVERSION\tSTATUS\tSTARTED\tUSER")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Site, r.Server, r.Version, r.Status, humanize.Time(r.Started), r.User)
		}
		return w.Flush()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "show the version of the deploy tool",
	Args:  cobra.NoArgs,
	// no configuration needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(version.GetBuildInfo(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deploy %s\n", version.GetVersion())
		if ssh := version.GetDependency("golang.org/x/crypto"); ssh != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "ssh: %s %s\n", ssh.Path, ssh.Version)
		}
		return nil
	},
}

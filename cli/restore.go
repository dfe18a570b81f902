package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"deploy.evalgo.org/backup"
	"deploy.evalgo.org/common"
	"deploy.evalgo.org/db"
	"deploy.evalgo.org/duplicity"
	"deploy.evalgo.org/storage"
)

func init() {
	RootCmd.AddCommand(listCurrentCmd, restoreCmd, localDBCmd, listOffsiteCmd)
}

var listCurrentCmd = &cobra.Command{
	Use:       "list-current backup|files",
	Short:     "list the backup sets of the site",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{duplicity.Backup, duplicity.Files},
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := loadSite(cmd, siteOptions{})
		if err != nil {
			return err
		}
		d, err := duplicity.New(info, args[0], duplicity.Options{Exec: localExecutor, Prompter: prompter})
		if err != nil {
			return err
		}
		out, err := d.ListCurrent(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore backup|files",
	Short: "restore the latest backup of the site to the workstation",
	Long: `Restore the latest backup of the site to the workstation.

'backup' loads the newest database dump into the local postgres database of
the site. 'files' replaces the media folders of the local project.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{duplicity.Backup, duplicity.Files},
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := loadSite(cmd, siteOptions{})
		if err != nil {
			return err
		}
		opts := duplicity.Options{Exec: localExecutor, Prompter: prompter}
		switch args[0] {
		case duplicity.Backup:
			local, err := db.OpenLocalPostgres(cfg.LocalDB.PostgresDSN, localExecutor)
			if err != nil {
				return err
			}
			defer local.Close()
			opts.Database = local
		case duplicity.Files:
			p, err := backup.NewPath(info.SiteName(), "files")
			if err != nil {
				return err
			}
			if opts.ProjectFolder, err = p.LocalProjectFolder(info.SiteName()); err != nil {
				return err
			}
		}
		d, err := duplicity.New(info, args[0], opts)
		if err != nil {
			return err
		}
		return d.Restore(cmd.Context())
	},
}

var localDBCmd = &cobra.Command{
	Use:   "local-db",
	Short: "check the database and user of the site exist on the workstation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := loadSite(cmd, siteOptions{})
		if err != nil {
			return err
		}
		user, err := info.DBUser()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		var checker interface {
			DatabaseExists(ctx context.Context, name string) (bool, error)
			UserExists(ctx context.Context, user string) (bool, error)
		}
		switch {
		case info.IsMySQL():
			local, err := db.OpenLocalMySQL(ctx, cfg.LocalDB.MySQLUser, cfg.LocalDB.MySQLPassword, cfg.LocalDB.MySQLAddr)
			if err != nil {
				return err
			}
			defer local.Close()
			checker = local
		case info.IsPostgres():
			local, err := db.OpenLocalPostgres(cfg.LocalDB.PostgresDSN, localExecutor)
			if err != nil {
				return err
			}
			defer local.Close()
			checker = local
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "'%s' does not have a database\n", info.SiteName())
			return nil
		}
		dbExists, err := checker.DatabaseExists(ctx, info.DBName())
		if err != nil {
			return err
		}
		userExists, err := checker.UserExists(ctx, user)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "database %s: %s\n", info.DBName(), existsText(dbExists))
		fmt.Fprintf(out, "user %s: %s\n", user, existsText(userExists))
		return nil
	},
}

func existsText(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

// listOffsiteCmd lists the offsite copies, by default those of --site.
var listOffsiteCmd = &cobra.Command{
	Use:   "list-offsite [PREFIX]",
	Short: "list the backup copies in the offsite bucket",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Backup.S3.Enabled() {
			return common.NewTaskError("offsite copies are not configured (backup.s3.bucket)")
		}
		prefix, _ := cmd.Flags().GetString("site")
		if len(args) == 1 {
			prefix = args[0]
		}
		if prefix != "" && prefix[len(prefix)-1] != '/' {
			prefix += "/"
		}
		store, err := storage.NewS3Store(cmd.Context(), cfg.Backup.S3)
		if err != nil {
			return err
		}
		objects, err := store.List(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		for _, o := range objects {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", o.Key, humanize.Bytes(uint64(o.Size)), humanize.Time(o.LastModified))
		}
		return nil
	},
}

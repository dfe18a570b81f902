package cli

import (
	"context"
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/db"
	"deploy.evalgo.org/deploy"
	"deploy.evalgo.org/executor"
	"deploy.evalgo.org/history"
	"deploy.evalgo.org/site"
	"deploy.evalgo.org/storage"
)

func init() {
	RootCmd.AddCommand(
		deployCmd,
		createDBCmd,
		dropDBCmd,
		backupDBCmd,
		backupFilesCmd,
		backupFTPCmd,
		backupPHPSiteCmd,
		sslCmd,
		okCmd,
		validCmd,
		reindexCmd,
		haystackIndexClearCmd,
		kernelCmd,
		solrStatusCmd,
		drupalCmd,
		serverNameCmd,
	)
	okCmd.Flags().Bool("sitemap", false, "fetch every page listed in sitemap.xml as well")
	drupalCmd.Flags().String("downloads", "~/Downloads/drupal", "folder holding the drupal archives")
}

var deployCmd = &cobra.Command{
	Use:   "deploy VERSION",
	Short: "install a version of the site and make it live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSite(cmd, siteOptions{}, func(info *site.Info, remote executor.Remote) error {
			opts := deployOptions(info, remote)
			tester, err := newTester(info)
			if err != nil {
				return err
			}
			opts.Tester = tester
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			opts.History = store
			return deploy.NewDeployer(info, opts).Deploy(cmd.Context(), args[0])
		})
	},
}

var createDBCmd = &cobra.Command{
	Use:   "create-db [TABLE_SPACE]",
	Short: "create the database and database user of the site",
	Long: `Create the database and database user of the site.

TABLE_SPACE is optional (postgres only) e.g. 'cbs' for a block storage volume.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableSpace := ""
		if len(args) == 1 {
			tableSpace = args[0]
		}
		return withSite(cmd, siteOptions{}, func(info *site.Info, remote executor.Remote) error {
			return deploy.NewDeployer(info, deployOptions(info, remote)).CreateDB(cmd.Context(), tableSpace)
		})
	},
}

var dropDBCmd = &cobra.Command{
	Use:   "drop-db DATE_CHECK",
	Short: "drop the database and database user of the site",
	Long: `Drop the database and database user of the site.

DATE_CHECK must be the current date and time e.g. 18/10/2026-09:15`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSite(cmd, siteOptions{}, func(info *site.Info, remote executor.Remote) error {
			return deploy.NewDeployer(info, deployOptions(info, remote)).DropDB(cmd.Context(), args[0])
		})
	},
}

// withOffsite adds the offsite store to opts when a bucket is configured.
func withOffsite(ctx context.Context, opts *deploy.Options) error {
	if !cfg.Backup.S3.Enabled() {
		return nil
	}
	store, err := storage.NewS3Store(ctx, cfg.Backup.S3)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}
	opts.Offsite = store
	return nil
}

// backupCommand runs one of the backup tasks and prints the local file.
func backupCommand(use, short string, task func(d *deploy.Deployer, ctx context.Context) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSite(cmd, siteOptions{}, func(info *site.Info, remote executor.Remote) error {
				opts := deployOptions(info, remote)
				if err := withOffsite(cmd.Context(), &opts); err != nil {
					return err
				}
				file, err := task(deploy.NewDeployer(info, opts), cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), file)
				return nil
			})
		},
	}
}

var backupFilesCmd = backupCommand("backup-files", "backup the files folder of the server", (*deploy.Deployer).BackupFiles)

var backupFTPCmd = backupCommand("backup-ftp", "backup the FTP folder of the site", (*deploy.Deployer).BackupFTP)

var backupPHPSiteCmd = backupCommand("backup-php-site", "backup the folder of a PHP site", (*deploy.Deployer).BackupPHPSite)

var backupDBCmd = &cobra.Command{
	Use:   "backup-db",
	Short: "dump the database of the site and restore it locally as a test database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSite(cmd, siteOptions{}, func(info *site.Info, remote executor.Remote) error {
			opts := deployOptions(info, remote)
			if err := withOffsite(cmd.Context(), &opts); err != nil {
				return err
			}
			if info.IsPostgres() {
				local, err := db.OpenLocalPostgres(cfg.LocalDB.PostgresDSN, localExecutor)
				if err != nil {
					return err
				}
				defer local.Close()
				opts.LocalDB = local
			}
			file, err := deploy.NewDeployer(info, opts).BackupDB(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), file)
			return nil
		})
	},
}

var sslCmd = &cobra.Command{
	Use:   "ssl",
	Short: "copy the SSL certificate and key of the site to the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSite(cmd, siteOptions{certificates: true}, func(info *site.Info, remote executor.Remote) error {
			return deploy.NewDeployer(info, deployOptions(info, remote)).InstallSSL(cmd.Context())
		})
	},
}

var okCmd = &cobra.Command{
	Use:   "ok",
	Short: "test the live site (done automatically at the end of a deploy)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := loadSite(cmd, siteOptions{})
		if err != nil {
			return err
		}
		tester, err := newTester(info)
		if err != nil {
			return err
		}
		defer tester.Close()
		if err := tester.Test(cmd.Context()); err != nil {
			return err
		}
		if sitemap, _ := cmd.Flags().GetBool("sitemap"); sitemap {
			return tester.TestSitemap(cmd.Context())
		}
		return nil
	},
}

var validCmd = &cobra.Command{
	Use:   "valid",
	Short: "check the pillar configuration of the site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := loadSite(cmd, siteOptions{certificates: true})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "The configuration for '%s' on '%s' appears to be valid\n", info.SiteName(), info.MinionID())
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "rebuild the Haystack search index of the site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSite(cmd, siteOptions{}, func(info *site.Info, remote executor.Remote) error {
			return deploy.NewDeployer(info, deployOptions(info, remote)).Reindex(cmd.Context())
		})
	},
}

var haystackIndexClearCmd = &cobra.Command{
	Use:   "haystack-index-clear",
	Short: "clear the Haystack search index of the site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSite(cmd, siteOptions{}, func(info *site.Info, remote executor.Remote) error {
			return deploy.NewDeployer(info, deployOptions(info, remote)).HaystackIndexClear(cmd.Context())
		})
	},
}

// serverCommand prints the output of a command run on the server of the
// site, or on --host.
func serverCommand(use, short string, task func(ctx context.Context, e executor.Executor) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			host := hostName(cmd, "")
			if host == "" {
				info, err := loadSite(cmd, siteOptions{})
				if err != nil {
					return err
				}
				host = info.Domain()
			}
			remote, err := dial(cmd.Context(), sshConfig(host))
			if err != nil {
				return err
			}
			defer remote.Close()
			out, err := task(cmd.Context(), remote)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

var kernelCmd = serverCommand("kernel", "show the kernel release of the server", deploy.Kernel)

var solrStatusCmd = serverCommand("solr-status", "show the Solr admin page of the server", deploy.SolrStatus)

var drupalCmd = &cobra.Command{
	Use:   "drupal SITE ARCHIVE",
	Short: "unpack a drupal release into the PHP folder of a site",
	Long: `Unpack a drupal release into the PHP folder of a site e.g.

  deploy --host drop-temp drupal hatherleigh_net drupal-6.29.tar.gz`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := hostName(cmd, "")
		if host == "" {
			return common.NewTaskError("the server is required e.g. --host drop-temp")
		}
		downloads, _ := cmd.Flags().GetString("downloads")
		downloads, err := homedir.Expand(downloads)
		if err != nil {
			return err
		}
		remote, err := dial(cmd.Context(), sshConfig(host))
		if err != nil {
			return err
		}
		defer remote.Close()
		return deploy.InstallDrupal(cmd.Context(), remote, downloads, args[0], args[1])
	},
}

var serverNameCmd = &cobra.Command{
	Use:   "server-name",
	Short: "show the server hosting the site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		siteName, _ := cmd.Flags().GetString("site")
		if siteName == "" {
			return common.NewTaskError("the name of the site is required e.g. --site csw_web")
		}
		folder, err := cfg.Folders.PillarFolder()
		if err != nil {
			return err
		}
		testing, _ := cmd.Flags().GetBool("testing")
		server, err := site.FindServerName(folder, siteName, testing)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), server)
		return nil
	},
}

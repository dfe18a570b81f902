// Package cli wires the deploy tasks to the command line.
//
// Site tasks resolve the server from the pillar (or --server), build and
// validate the site settings, and only then connect to the server:
//
//	deploy --site csw_web deploy 1.2.34
//	deploy --site csw_web --testing ok
//	deploy --site hatherleigh_net backup-php-site
//
// Configuration is read by the config package; flags override the file
// and the DEPLOY_ environment variables.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/config"
)

var (
	// cfgFile is the --config flag
	cfgFile string

	// cfg is loaded before any command runs
	cfg *config.Config

	// prompter answers confirmations; replaced in tests
	prompter common.Prompter = common.NewStdinPrompter(os.Stdin, os.Stdout)
)

// RootCmd is the deploy command.
var RootCmd = &cobra.Command{
	Use:   "deploy",
	Short: "deploy and maintain the sites described in the salt pillar",
	Long: `Deploy and maintain Django and PHP sites.

Site settings are read from the salt pillar on the workstation and validated
before anything is run on a server. Tasks run over SSH as the configured
user (default 'web').`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is deploy.yaml in ., $HOME/.deploy or /etc/deploy)")
	flags.StringP("site", "s", "", "site name as used in the pillar e.g. csw_web")
	flags.String("server", "", "minion id of the server (default: found in the pillar)")
	flags.String("host", "", "host to connect to (default: the site domain)")
	flags.Bool("testing", false, "work on the testing server of the site")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig reads the configuration and sets up the global logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	overrides := map[string]interface{}{}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		overrides["logging.level"] = level
	}
	loaded, err := config.LoadConfig(cfgFile, overrides)
	if err != nil {
		return err
	}
	cfg = loaded
	loggerConfig := common.DefaultLoggerConfig()
	loggerConfig.Level = common.ParseLogLevel(cfg.Logging.Level)
	if cfg.Logging.Format != "" {
		loggerConfig.Format = cfg.Logging.Format
	}
	common.ConfigureLogger(common.Logger, loggerConfig)
	return nil
}

// Execute runs the root command and reports the error, if any. An
// interrupt cancels the running task.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := RootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

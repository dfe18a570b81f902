package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"deploy.evalgo.org/browser"
	"deploy.evalgo.org/common"
	"deploy.evalgo.org/deploy"
	"deploy.evalgo.org/executor"
	"deploy.evalgo.org/network"
	"deploy.evalgo.org/site"
)

// dial opens the connection to a server. Tests replace it with a mock.
var dial = func(ctx context.Context, sshConfig network.SSHConfig) (executor.Remote, error) {
	return network.Dial(ctx, sshConfig)
}

// localExecutor runs commands on the workstation.
var localExecutor executor.Executor = executor.NewCommandExecutor()

// siteOptions control how the site settings are loaded.
type siteOptions struct {
	// certificates checks the SSL certificates of the server
	certificates bool
}

// loadSite finds the server of --site and loads the validated settings.
func loadSite(cmd *cobra.Command, opts siteOptions) (*site.Info, error) {
	siteName, _ := cmd.Flags().GetString("site")
	if siteName == "" {
		return nil, common.NewTaskError("the name of the site is required e.g. --site csw_web")
	}
	folder, err := cfg.Folders.PillarFolder()
	if err != nil {
		return nil, err
	}
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		testing, _ := cmd.Flags().GetBool("testing")
		if server, err = site.FindServerName(folder, siteName, testing); err != nil {
			return nil, err
		}
	}
	siteOpts := site.Options{PillarFolder: folder}
	if opts.certificates {
		if siteOpts.CertificateFolder, err = cfg.Folders.CertificateFolder(); err != nil {
			return nil, err
		}
	}
	info, err := site.New(server, siteName, siteOpts)
	if err != nil {
		return nil, err
	}
	common.SiteLogger(info.SiteName(), info.MinionID()).Debugf("domain: %s", info.Domain())
	return info, nil
}

// sshConfig is the configured connection to host.
func sshConfig(host string) network.SSHConfig {
	return network.SSHConfig{
		Host:       host,
		Port:       cfg.SSH.Port,
		User:       cfg.SSH.User,
		KeyFile:    cfg.SSH.KeyFile,
		CertFile:   cfg.SSH.CertFile,
		KnownHosts: cfg.SSH.KnownHosts,
		UseAgent:   cfg.SSH.UseAgent,
		Timeout:    cfg.SSH.Timeout,
	}
}

// hostName is --host, else def.
func hostName(cmd *cobra.Command, def string) string {
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		return host
	}
	return def
}

// connect opens the connection to the server of the site.
func connect(cmd *cobra.Command, info *site.Info) (executor.Remote, error) {
	return dial(cmd.Context(), sshConfig(hostName(cmd, info.Domain())))
}

// newTester builds the smoke test of the site from the test folder.
func newTester(info *site.Info) (*browser.Driver, error) {
	folder, err := cfg.Folders.TestFolder()
	if err != nil {
		return nil, err
	}
	client := network.NewHTTPClient(cfg.Browser.Timeout)
	return browser.New(info, folder, browser.NewHTTPBrowser(client), browser.Options{
		Timeout:      cfg.Browser.Timeout,
		PollInterval: cfg.Browser.PollInterval,
		Client:       client,
	})
}

// deployOptions are the options shared by every site task.
func deployOptions(info *site.Info, remote executor.Remote) deploy.Options {
	opts := deploy.Options{
		Remote:        remote,
		Local:         localExecutor,
		SSH:           sshConfig(remote.Host()),
		UploadFolder:  cfg.Folders.Upload,
		PythonVersion: info.PythonVersion(),
		Prompter:      prompter,
	}
	if _, err := os.Stat(cfg.Folders.PostDeploy); err == nil {
		opts.PostDeployFolder = cfg.Folders.PostDeploy
	}
	return opts
}

// withSite loads the site, connects to its server and runs fn.
func withSite(cmd *cobra.Command, opts siteOptions, fn func(info *site.Info, remote executor.Remote) error) error {
	info, err := loadSite(cmd, opts)
	if err != nil {
		return err
	}
	remote, err := connect(cmd, info)
	if err != nil {
		return err
	}
	defer remote.Close()
	return fn(info, remote)
}

package deploy

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
	"deploy.evalgo.org/folder"
	"deploy.evalgo.org/history"
	"deploy.evalgo.org/manage"
	"deploy.evalgo.org/network"
)

// Tester is the post deploy smoke test. *browser.Driver implements it.
type Tester interface {
	Test(ctx context.Context) error
	Close() error
}

// Options wire a Deployer to the server and the workstation.
type Options struct {
	// Remote runs commands on the server
	Remote executor.Remote

	// Local runs rsync and post deploy scripts on the workstation
	Local executor.Executor

	// SSH is the connection used by rsync
	SSH network.SSHConfig

	// UploadFolder holds the PHP package archives on the workstation
	UploadFolder string

	// PostDeployFolder may hold a <site>.sh script run after the smoke test
	PostDeployFolder string

	// Tester runs after the live link is switched, when set
	Tester Tester

	// History records the deploy, when set
	History *history.Store

	// PythonVersion of the virtual environment (default 3)
	PythonVersion int

	// Prompter asks before destructive tasks
	Prompter common.Prompter

	// LocalDB receives postgres dumps as a test database, when set
	LocalDB Restorer

	// Offsite keeps a copy of each backup, when set
	Offsite Offsite
}

// Deployer installs versions of one site.
type Deployer struct {
	site Site
	opts Options
	log  *common.ContextLogger
	now  func() time.Time
	user string
}

func NewDeployer(s Site, opts Options) *Deployer {
	if opts.PythonVersion == 0 {
		opts.PythonVersion = 3
	}
	return &Deployer{
		site: s,
		opts: opts,
		log:  common.SiteLogger(s.SiteName(), s.MinionID()),
		now:  time.Now,
		user: folder.CurrentUser(),
	}
}

// Deploy installs version into a new date stamped folder, switches the
// live link to it and runs the smoke test. An existing install folder is
// never overwritten.
func (d *Deployer) Deploy(ctx context.Context, version string) (err error) {
	fi := folder.NewAt(d.site, version, d.now(), d.user)
	install, err := fi.Install()
	if err != nil {
		return err
	}
	remote := d.opts.Remote
	exists, err := executor.Exists(ctx, remote, install, false)
	if err != nil {
		return err
	}
	if exists {
		return common.NewTaskError("Install folder %s already exists", install)
	}

	if d.opts.History != nil {
		rec, herr := d.opts.History.Start(d.site.SiteName(), d.site.MinionID(), version, install)
		if herr != nil {
			return herr
		}
		defer func() {
			if herr := d.opts.History.Finish(rec, err); herr != nil {
				d.log.WithError(herr).Warn("cannot record deploy")
			}
		}()
	}

	return common.LogOperation(d.log.WithField("version", version), "deploy", func() error {
		d.log.Info(install)
		exists, err := executor.Exists(ctx, remote, fi.Deploy(), false)
		if err != nil {
			return err
		}
		if !exists {
			if err := run(ctx, remote, "mkdir "+executor.QuotePath(fi.Deploy())); err != nil {
				return err
			}
		}
		temp, _ := fi.InstallTemp()
		for _, f := range []string{install, temp} {
			if err := run(ctx, remote, "mkdir "+executor.QuotePath(f)); err != nil {
				return err
			}
		}
		if d.site.IsPHP() {
			err = d.DeployPHP(ctx, fi)
		} else {
			err = d.DeployDjango(ctx, fi, version)
		}
		if err != nil {
			return err
		}
		if err := LinkInstallToLiveFolder(ctx, remote, install, fi.Live()); err != nil {
			return err
		}
		if d.site.IsDjango() {
			if err := DjangoPostDeploy(ctx, remote, fi); err != nil {
				return err
			}
		}
		if err := d.RunPostDeployTest(ctx); err != nil {
			return err
		}
		return d.runPostDeployScript(ctx, version)
	})
}

// DeployDjango installs the project package with its requirements into a
// new virtual environment, then prepares static files and the database.
func (d *Deployer) DeployDjango(ctx context.Context, fi *folder.Info, version string) error {
	remote := d.opts.Remote
	prefix, err := d.site.Prefix()
	if err != nil {
		return err
	}
	install, _ := fi.Install()
	temp, _ := fi.InstallTemp()
	venv, _ := fi.InstallVenv()
	name := d.site.SiteName()

	if err := DownloadPackage(ctx, remote, prefix, name, version, temp); err != nil {
		return err
	}
	if err := ExtractProjectPackage(ctx, remote, install, temp, prefix, name, version); err != nil {
		return err
	}
	if err := MkVirtualenv(ctx, remote, venv, d.opts.PythonVersion); err != nil {
		return err
	}
	result, err := remote.Run(ctx, executor.Command{Line: "ls -l " + executor.QuotePath(install)})
	if err != nil {
		return err
	}
	d.log.Debug(result.Trimmed())
	if err := InstallRequirements(ctx, remote, install, venv); err != nil {
		return err
	}
	command := manage.New(remote, install, venv, d.site)
	steps := []func(context.Context) error{
		command.CollectStatic,
		command.Compress,
		command.MigrateDatabase,
		command.InitProject,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DjangoPostDeploy restarts the site (and its celery workers) in uWSGI.
func DjangoPostDeploy(ctx context.Context, e executor.Executor, fi *folder.Info) error {
	for _, ini := range fi.Vassals() {
		if err := TouchVassalIni(ctx, e, ini); err != nil {
			return err
		}
	}
	return nil
}

// RsyncLine copies the contents of localFolder into remoteFolder on the
// server in cfg.
func RsyncLine(cfg network.SSHConfig, localFolder, remoteFolder string) string {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	target := fmt.Sprintf("%s@%s:%s", cfg.User, cfg.Host, strings.TrimSuffix(remoteFolder, "/")+"/")
	return fmt.Sprintf("rsync -pthrvz --rsh=%s %s %s",
		executor.Quote(fmt.Sprintf("ssh -p %d", port)),
		executor.Quote(strings.TrimSuffix(localFolder, "/")+"/"),
		executor.Quote(target),
	)
}

// DeployPHP copies the upload folder to the server, then unpacks each
// package of the site into the install folder (or a sub folder of it).
func (d *Deployer) DeployPHP(ctx context.Context, fi *folder.Info) error {
	remote := d.opts.Remote
	packages, err := d.site.Packages()
	if err != nil {
		return err
	}
	if _, err := d.opts.Local.Run(ctx, executor.Command{Line: RsyncLine(d.opts.SSH, d.opts.UploadFolder, fi.Upload())}); err != nil {
		return err
	}
	install, _ := fi.Install()
	for _, p := range packages {
		d.log.Info(p.Name)
		target := install
		if p.Folder != "" {
			target = path.Join(install, p.Folder)
			exists, err := executor.Exists(ctx, remote, target, false)
			if err != nil {
				return err
			}
			if !exists {
				d.log.Infof("  %s", target)
				if err := run(ctx, remote, "mkdir -p "+executor.QuotePath(target)); err != nil {
					return err
				}
			}
		}
		d.log.Infof("  %s %s", p.Archive, p.Tar)
		parts := []string{"tar"}
		if p.Tar != "" {
			parts = append(parts, p.Tar)
		}
		parts = append(parts, "-xzf", executor.QuotePath(path.Join(fi.Upload(), p.Archive)))
		if _, err := remote.Run(ctx, executor.Command{Line: strings.Join(parts, " "), Dir: target}); err != nil {
			return err
		}
	}
	return nil
}

// RunPostDeployTest runs the smoke test, when there is one.
func (d *Deployer) RunPostDeployTest(ctx context.Context) error {
	if d.opts.Tester == nil {
		return nil
	}
	defer d.opts.Tester.Close()
	return d.opts.Tester.Test(ctx)
}

// runPostDeployScript runs <post deploy folder>/<site>.sh on the
// workstation when it exists.
func (d *Deployer) runPostDeployScript(ctx context.Context, version string) error {
	if d.opts.PostDeployFolder == "" {
		return nil
	}
	script := filepath.Join(d.opts.PostDeployFolder, d.site.SiteName()+".sh")
	if _, err := os.Stat(script); err != nil {
		return nil
	}
	d.log.Infof("post deploy: %s", script)
	_, err := d.opts.Local.Run(ctx, executor.Command{
		Line: "bash " + executor.Quote(script),
		Dir:  d.opts.PostDeployFolder,
		Env: map[string]string{
			"DEPLOY_SITE":    d.site.SiteName(),
			"DEPLOY_SERVER":  d.site.MinionID(),
			"DEPLOY_DOMAIN":  d.site.Domain(),
			"DEPLOY_VERSION": version,
		},
	})
	return err
}

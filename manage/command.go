// Package manage runs Django management commands on a server.
package manage

import (
	"context"
	"path"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
)

// Site is the part of the site settings a management command needs.
type Site interface {
	SiteName() string
	Env() (map[string]string, error)
	IsAmazon() (bool, error)
}

// DjangoCommand runs manage.py from siteFolder with the python of
// venvFolder and the site environment exported.
type DjangoCommand struct {
	remote     executor.Executor
	siteFolder string
	venvFolder string
	site       Site
}

func New(remote executor.Executor, siteFolder, venvFolder string, site Site) *DjangoCommand {
	return &DjangoCommand{
		remote:     remote,
		siteFolder: siteFolder,
		venvFolder: venvFolder,
		site:       site,
	}
}

// Line is the shell line for a management command.
func (d *DjangoCommand) Line(command string) string {
	return path.Join(d.venvFolder, "bin", "python") + " " + path.Join(d.siteFolder, "manage.py") + " " + command
}

// Run runs any management command.
func (d *DjangoCommand) Run(ctx context.Context, command string) error {
	env, err := d.site.Env()
	if err != nil {
		return err
	}
	common.Logger.WithField("site", d.site.SiteName()).Infof("manage.py %s", command)
	_, err = d.remote.Run(ctx, executor.Command{
		Line: d.Line(command),
		Dir:  d.siteFolder,
		Env:  env,
	})
	return err
}

func (d *DjangoCommand) CollectStatic(ctx context.Context) error {
	return d.Run(ctx, "collectstatic --noinput")
}

// Compress compresses static files, for sites serving them from amazon.
func (d *DjangoCommand) Compress(ctx context.Context) error {
	amazon, err := d.site.IsAmazon()
	if err != nil || !amazon {
		return err
	}
	return d.Run(ctx, "compress")
}

func (d *DjangoCommand) HaystackIndex(ctx context.Context) error {
	return d.Run(ctx, "update_index")
}

func (d *DjangoCommand) HaystackIndexClear(ctx context.Context) error {
	return d.Run(ctx, "clear_index --noinput")
}

func (d *DjangoCommand) InitProject(ctx context.Context) error {
	return d.Run(ctx, "init_project")
}

func (d *DjangoCommand) MigrateDatabase(ctx context.Context) error {
	return d.Run(ctx, "migrate --noinput")
}

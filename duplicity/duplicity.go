// Package duplicity lists and restores the offsite backups of a site.
//
// Backups are kept by duplicity on an rsync.net account, one repository
// per site and kind:
//
//	scp://<user>@<server>/<site>/backup   database dumps
//	scp://<user>@<server>/<site>/files    public and private media
package duplicity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
)

// Kinds of repository.
const (
	Backup = "backup"
	Files  = "files"
)

var sqlTimestamp = regexp.MustCompile(`(\d{8}_\d{4})`)

// Site is the part of the site settings a restore needs.
type Site interface {
	SiteName() string
	DBName() string
	RsyncSSH() (string, error)
	RsyncGPGPassword() (string, error)
}

// Database is the local database server restored into.
type Database interface {
	DatabaseExists(ctx context.Context, name string) (bool, error)
	DropDatabase(ctx context.Context, name string) error
	CreateDatabase(ctx context.Context, name string) error
}

// Options wire a Duplicity to the workstation.
type Options struct {
	// Exec runs duplicity and psql locally
	Exec executor.Executor

	// Prompter asks before anything local is replaced
	Prompter common.Prompter

	// Database receives restored dumps (backup only)
	Database Database

	// RestoreTo is an empty folder for duplicity to restore into. When
	// empty a temporary folder is made inside ProjectFolder (files) so the
	// restored folders can be renamed into place, or in the system temp
	// folder (backup).
	RestoreTo string

	// ProjectFolder holds the media and media-private folders (files only)
	ProjectFolder string
}

// Duplicity works on one repository of one site.
type Duplicity struct {
	site          Site
	backupOrFiles string
	opts          Options
	log           *common.ContextLogger
}

// New checks backupOrFiles and returns a Duplicity for the site.
func New(site Site, backupOrFiles string, opts Options) (*Duplicity, error) {
	if backupOrFiles != Backup && backupOrFiles != Files {
		return nil, common.Abort(
			"Only 'backup' and 'files' are valid operations for duplicity commands (not '%s')",
			backupOrFiles,
		)
	}
	return &Duplicity{
		site:          site,
		backupOrFiles: backupOrFiles,
		opts:          opts,
		log:           common.NewContextLogger(common.Logger, map[string]interface{}{"site": site.SiteName(), "kind": backupOrFiles}),
	}, nil
}

// Repo is the duplicity URL of the repository.
func (d *Duplicity) Repo() (string, error) {
	rsync, err := d.site.RsyncSSH()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s/%s", rsync, d.site.SiteName(), d.backupOrFiles), nil
}

func (d *Duplicity) env() (map[string]string, error) {
	pass, err := d.site.RsyncGPGPassword()
	if err != nil {
		return nil, err
	}
	return map[string]string{"PASSPHRASE": pass}, nil
}

func (d *Duplicity) run(ctx context.Context, line string) (*executor.Result, error) {
	env, err := d.env()
	if err != nil {
		return nil, err
	}
	return d.opts.Exec.Run(ctx, executor.Command{Line: line, Env: env})
}

// ListCurrent shows the backup sets in the repository.
func (d *Duplicity) ListCurrent(ctx context.Context) (string, error) {
	repo, err := d.Repo()
	if err != nil {
		return "", err
	}
	d.log.Infof("list: %s for %s", d.backupOrFiles, d.site.SiteName())
	result, err := d.run(ctx, "duplicity collection-status "+executor.Quote(repo))
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

// Restore restores the latest backup set, then loads the newest dump into
// the local database or moves the media into the local project.
func (d *Duplicity) Restore(ctx context.Context) error {
	repo, err := d.Repo()
	if err != nil {
		return err
	}
	restoreTo := d.opts.RestoreTo
	if restoreTo == "" {
		parent := ""
		if d.backupOrFiles == Files && d.opts.ProjectFolder != "" {
			if err := os.MkdirAll(d.opts.ProjectFolder, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", d.opts.ProjectFolder, err)
			}
			parent = d.opts.ProjectFolder
		}
		temp, err := os.MkdirTemp(parent, ".duplicity-")
		if err != nil {
			return fmt.Errorf("failed to create restore folder: %w", err)
		}
		defer os.RemoveAll(temp)
		restoreTo = filepath.Join(temp, d.backupOrFiles)
	}
	d.log.Infof("restore %s to %s", repo, restoreTo)
	line := fmt.Sprintf("duplicity restore %s %s", executor.Quote(repo), executor.Quote(restoreTo))
	if _, err := d.run(ctx, line); err != nil {
		return err
	}
	if d.backupOrFiles == Backup {
		return d.restoreDatabase(ctx, restoreTo)
	}
	return d.restoreFiles(restoreTo)
}

func (d *Duplicity) restoreDatabase(ctx context.Context, restoreTo string) error {
	sqlFile, err := FindSQL(restoreTo)
	if err != nil {
		return err
	}
	name := d.site.DBName()
	exists, err := d.opts.Database.DatabaseExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		ok, err := common.Confirm(d.opts.Prompter, fmt.Sprintf("Drop local database '%s'?", name))
		if err != nil {
			return err
		}
		if !ok {
			return common.Abort("exit... (local database '%s' was not dropped)", name)
		}
		if err := d.opts.Database.DropDatabase(ctx, name); err != nil {
			return err
		}
	}
	if err := d.opts.Database.CreateDatabase(ctx, name); err != nil {
		return err
	}
	load := fmt.Sprintf("psql -X --set ON_ERROR_STOP=on -U postgres -d %s --file %s", name, executor.Quote(sqlFile))
	if _, err := d.opts.Exec.Run(ctx, executor.Command{Line: load}); err != nil {
		return err
	}
	d.log.Infof("restored %s into database %s", filepath.Base(sqlFile), name)
	return nil
}

func (d *Duplicity) restoreFiles(restoreTo string) error {
	var pairs [][2]string
	for _, m := range []struct{ from, to string }{
		{"public", "media"},
		{"private", "media-private"},
	} {
		from := filepath.Join(restoreTo, m.from)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		found, err := FromTo(from, filepath.Join(d.opts.ProjectFolder, m.to))
		if err != nil {
			return err
		}
		pairs = append(pairs, found...)
	}
	if len(pairs) == 0 {
		return common.NewTaskError("nothing to restore in %s", restoreTo)
	}
	for _, p := range pairs {
		d.log.Infof("%s -> %s", p[0], p[1])
	}
	ok, err := common.Confirm(d.opts.Prompter, "Replace the local folders listed above?")
	if err != nil {
		return err
	}
	if !ok {
		return common.Abort("exit... (files were not restored)")
	}
	for _, p := range pairs {
		if err := replaceFolder(p[0], p[1]); err != nil {
			return err
		}
	}
	d.log.Infof("restored %d folders", len(pairs))
	return nil
}

// FindSQL returns the '.sql' file in folder with the newest YYYYMMDD_HHMM
// timestamp in its name.
func FindSQL(folder string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(folder, "*.sql"))
	if err != nil {
		return "", err
	}
	var newest string
	var newestAt time.Time
	for _, m := range matches {
		stamp := sqlTimestamp.FindString(filepath.Base(m))
		if stamp == "" {
			continue
		}
		at, err := time.Parse("20060102_1504", stamp)
		if err != nil {
			continue
		}
		if newest == "" || at.After(newestAt) {
			newest, newestAt = m, at
		}
	}
	if newest == "" {
		return "", common.NewTaskError("Cannot find a '.sql' file with a timestamp in %s", folder)
	}
	return newest, nil
}

// FromTo pairs every entry of from with the same name in to, sorted by name.
func FromTo(from, to string) ([][2]string, error) {
	entries, err := os.ReadDir(from)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", from, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	result := make([][2]string, 0, len(names))
	for _, name := range names {
		result = append(result, [2]string{filepath.Join(from, name), filepath.Join(to, name)})
	}
	return result, nil
}

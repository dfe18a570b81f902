package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deploy.evalgo.org/archive"
	"deploy.evalgo.org/backup"
	"deploy.evalgo.org/common"
	"deploy.evalgo.org/db"
	"deploy.evalgo.org/executor"
	"deploy.evalgo.org/folder"
	"deploy.evalgo.org/manage"
	"deploy.evalgo.org/storage"
)

// Restorer loads a SQL dump into a local database.
type Restorer interface {
	Restore(ctx context.Context, opts db.RestoreOptions) error
}

// Offsite copies a local backup file to object storage.
type Offsite interface {
	Upload(ctx context.Context, localFile, key string) (storage.UploadResult, error)
}

const wwwData = "www-data:www-data"

// InstallSSL copies the certificate and server key of the site to
// /srv/ssl/<domain>/ on the server, readable by the web server only.
func (d *Deployer) InstallSSL(ctx context.Context) error {
	if !d.site.SSL() {
		return common.Abort("'%s' is not set-up for SSL in the Salt pillar", d.site.Domain())
	}
	remote := d.opts.Remote
	fi := folder.New(d.site, "")
	exists, err := executor.Exists(ctx, remote, fi.SrvFolder(), true)
	if err != nil {
		return err
	}
	if !exists {
		return common.Abort("%s folder does not exist on the server", fi.SrvFolder())
	}
	for _, f := range []string{fi.SSLFolder(), fi.SSLCertFolder()} {
		exists, err := executor.Exists(ctx, remote, f, true)
		if err != nil {
			return err
		}
		if exists {
			d.log.Infof("folder exists: %s", f)
			continue
		}
		d.log.Infof("create folder: %s", f)
		for _, line := range []string{
			"mkdir " + executor.QuotePath(f),
			"chown " + wwwData + " " + executor.QuotePath(f),
			"chmod 0400 " + executor.QuotePath(f),
		} {
			if _, err := remote.Run(ctx, executor.Command{Line: line, Sudo: true}); err != nil {
				return err
			}
		}
	}
	files := [][2]string{
		{d.site.SSLCert(), fi.SSLCert()},
		{d.site.SSLServerKey(), fi.SSLServerKey()},
	}
	for _, f := range files {
		if err := remote.Put(ctx, f[0], f[1], executor.PutOptions{Mode: 0o400, Sudo: true}); err != nil {
			return err
		}
		if _, err := remote.Run(ctx, executor.Command{Line: "chown " + wwwData + " " + executor.QuotePath(f[1]), Sudo: true}); err != nil {
			return err
		}
		d.log.Info(f[1])
	}
	return nil
}

func (d *Deployer) backupPath(name, fileType string) (*backup.Path, error) {
	return backup.NewPathAt(name, fileType, d.now(), d.user)
}

// tarBackup archives dir on the server into the remote backup file and
// downloads it.
func (d *Deployer) tarBackup(ctx context.Context, p *backup.Path, dir, options string) (string, error) {
	remote := d.opts.Remote
	if err := run(ctx, remote, "mkdir -p "+executor.QuotePath(p.RemoteFolder())); err != nil {
		return "", err
	}
	line := fmt.Sprintf("tar %s %s .", options, executor.QuotePath(p.RemoteFile()))
	if _, err := remote.Run(ctx, executor.Command{Line: line, Dir: dir}); err != nil {
		return "", err
	}
	local, err := d.download(ctx, p)
	if err != nil {
		return "", err
	}
	summary, err := archive.Inspect(local)
	if err != nil {
		return "", err
	}
	d.log.Info(summary.String())
	return local, nil
}

func (d *Deployer) download(ctx context.Context, p *backup.Path) (string, error) {
	local, err := p.LocalFile()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", err
	}
	if err := d.opts.Remote.Get(ctx, p.RemoteFile(), local); err != nil {
		return "", err
	}
	return local, nil
}

// offsite uploads the backup when an offsite store is configured.
func (d *Deployer) offsite(ctx context.Context, p *backup.Path, local, siteName string) error {
	if d.opts.Offsite == nil {
		return nil
	}
	result, err := d.opts.Offsite.Upload(ctx, local, p.ObjectKey(siteName))
	if err != nil {
		return err
	}
	if result.Skipped {
		d.log.Infof("offsite copy unchanged: %s", result.ObjectKey)
	}
	return nil
}

// BackupFiles archives the shared files folder of the server. The backup
// is named after the host rather than a site.
func (d *Deployer) BackupFiles(ctx context.Context) (string, error) {
	host := d.opts.Remote.Host()
	d.log.Infof("backup files on '%s'", host)
	p, err := d.backupPath(host, "files")
	if err != nil {
		return "", err
	}
	local, err := d.tarBackup(ctx, p, p.FilesFolder(), "-czf")
	if err != nil {
		return "", err
	}
	if pos := strings.Index(host, "@"); pos >= 0 {
		host = host[pos+1:]
	}
	return local, d.offsite(ctx, p, local, host)
}

// BackupFTP archives the FTP folder of the site.
func (d *Deployer) BackupFTP(ctx context.Context) (string, error) {
	name := d.site.SiteName()
	if !d.site.IsFTP() {
		return "", common.Abort("'%s' is not set-up for 'ftp'", name)
	}
	d.log.Infof("backup FTP files on '%s'", d.opts.Remote.Host())
	p, err := d.backupPath(name, "ftp")
	if err != nil {
		return "", err
	}
	local, err := d.tarBackup(ctx, p, p.FTPFolder(name), "-cvzf")
	if err != nil {
		return "", err
	}
	return local, d.offsite(ctx, p, local, name)
}

// BackupPHPSite archives the folder named by the site's backup settings.
func (d *Deployer) BackupPHPSite(ctx context.Context) (string, error) {
	name := d.site.SiteName()
	settings, err := d.site.Backup()
	if err != nil {
		return "", err
	}
	if settings.Path == "" {
		return "", common.NewTaskError("site '%s' does not have a backup 'path'", name)
	}
	p, err := d.backupPath(name, "files")
	if err != nil {
		return "", err
	}
	d.log.Info(p.RemoteFolder())
	local, err := d.tarBackup(ctx, p, settings.Path, "-cvzf")
	if err != nil {
		return "", err
	}
	return local, d.offsite(ctx, p, local, name)
}

// BackupDB dumps the site database on the server and downloads it. A
// postgres dump is then loaded into a local test database owned by the
// operator.
func (d *Deployer) BackupDB(ctx context.Context) (string, error) {
	name := d.site.SiteName()
	d.log.Infof("backup database '%s'", d.site.DBName())
	var p *backup.Path
	var err error
	switch {
	case d.site.IsMySQL():
		p, err = d.backupPath(name, "mysql")
	case d.site.IsPostgres():
		p, err = d.backupPath(name, "postgres")
	default:
		return "", common.Abort("'%s' does not have a database", name)
	}
	if err != nil {
		return "", err
	}
	remote := d.opts.Remote
	if err := run(ctx, remote, "mkdir -p "+executor.QuotePath(p.RemoteFolder())); err != nil {
		return "", err
	}
	if d.site.IsMySQL() {
		settings, err := d.site.Backup()
		if err != nil {
			return "", err
		}
		dump := db.DumpSettings{Host: settings.Host, User: settings.User, Pass: settings.Pass, Name: settings.Name}
		if err := db.NewMySQLRemote(remote).Dump(ctx, dump, p.RemoteFile()); err != nil {
			return "", err
		}
	} else {
		pg, err := d.postgres()
		if err != nil {
			return "", err
		}
		if err := pg.Dump(ctx, d.site.DBName(), p.RemoteFile()); err != nil {
			return "", err
		}
	}
	local, err := d.download(ctx, p)
	if err != nil {
		return "", err
	}
	if d.site.IsPostgres() && d.opts.LocalDB != nil {
		d.log.Info("restore to test database")
		owner, err := d.site.DBUser()
		if err != nil {
			return "", err
		}
		err = d.opts.LocalDB.Restore(ctx, db.RestoreOptions{
			Database:      p.TestDatabaseName(),
			File:          local,
			Owner:         owner,
			OwnerPassword: owner,
			ReassignTo:    p.UserName(),
		})
		if err != nil {
			return "", err
		}
	}
	return local, d.offsite(ctx, p, local, name)
}

func (d *Deployer) postgres() (*db.PostgresRemote, error) {
	host, err := d.site.DBHost()
	if err != nil {
		return nil, err
	}
	pass := ""
	if host != "" {
		if pass, err = d.site.PostgresPass(); err != nil {
			return nil, err
		}
	}
	return db.NewPostgresRemote(d.opts.Remote, host, pass), nil
}

// CreateDB creates the database of the site and its user. tableSpace is
// optional and only used by postgres.
func (d *Deployer) CreateDB(ctx context.Context, tableSpace string) error {
	name := d.site.DBName()
	d.log.Infof("create '%s' database on '%s'", name, d.opts.Remote.Host())
	user, err := d.site.DBUser()
	if err != nil {
		return err
	}
	pass, err := d.site.DBPass()
	if err != nil {
		return err
	}
	switch {
	case d.site.IsMySQL():
		mysql := db.NewMySQLRemote(d.opts.Remote)
		if err := mysql.UserCreate(ctx, user, pass); err != nil {
			return err
		}
		if err := mysql.DatabaseCreate(ctx, name); err != nil {
			return err
		}
		return mysql.Grant(ctx, name, user, pass)
	case d.site.IsPostgres():
		pg, err := d.postgres()
		if err != nil {
			return err
		}
		exists, err := pg.UserExists(ctx, user)
		if err != nil {
			return err
		}
		if !exists {
			if err := pg.UserCreate(ctx, user, pass); err != nil {
				return err
			}
		}
		return pg.DatabaseCreate(ctx, name, user, tableSpace)
	}
	return common.Abort("'%s' does not have a database", d.site.SiteName())
}

// DropDB drops the database and user of the site. dateCheck must be the
// current date and time (dd/mm/yyyy-hh:mm), then the operator has to type
// the current month and confirm.
func (d *Deployer) DropDB(ctx context.Context, dateCheck string) error {
	now := d.now()
	name := d.site.DBName()
	d.log.Infof("drop '%s' database on '%s'", name, d.opts.Remote.Host())
	if check := now.Format("02/01/2006-15:04"); check != dateCheck {
		return common.Abort(
			"You cannot drop a database unless you enter the current date and time as a parameter e.g:\ndrop-db %s",
			check,
		)
	}
	month, err := d.opts.Prompter.Prompt("To drop the database, enter the name of the current month?", "")
	if err != nil {
		return err
	}
	if check := now.Format("January"); month != check {
		return common.Abort("exit... (the current month is '%s')", check)
	}
	ok, err := common.Confirm(d.opts.Prompter, "Are you sure you want to drop the database")
	if err != nil {
		return err
	}
	if !ok {
		return common.Abort("exit... (you did not enter 'Y' to drop the database)")
	}
	d.log.Warn("deleting...")
	user, err := d.site.DBUser()
	if err != nil {
		return err
	}
	if d.site.IsMySQL() {
		mysql := db.NewMySQLRemote(d.opts.Remote)
		if err := mysql.DropDatabase(ctx, name); err != nil {
			return err
		}
		return mysql.DropUser(ctx, user)
	}
	pg, err := d.postgres()
	if err != nil {
		return err
	}
	exists, err := pg.DatabaseExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if err := pg.DropDatabase(ctx, name); err != nil {
			return err
		}
	}
	exists, err = pg.UserExists(ctx, user)
	if err != nil {
		return err
	}
	if exists {
		return pg.DropUser(ctx, user)
	}
	return nil
}

func (d *Deployer) liveCommand() *manage.DjangoCommand {
	fi := folder.New(d.site, "")
	return manage.New(d.opts.Remote, fi.Live(), fi.LiveVenv(), d.site)
}

// Reindex rebuilds the Haystack search index of the live site.
func (d *Deployer) Reindex(ctx context.Context) error {
	d.log.Infof("haystack reindex on '%s'", d.opts.Remote.Host())
	return d.liveCommand().HaystackIndex(ctx)
}

// HaystackIndexClear empties the search index after confirmation.
func (d *Deployer) HaystackIndexClear(ctx context.Context) error {
	ok, err := common.Confirm(d.opts.Prompter, "Are you sure you want to clear the Haystack index")
	if err != nil {
		return err
	}
	if !ok {
		return common.Abort("exit")
	}
	return d.liveCommand().HaystackIndexClear(ctx)
}

// Kernel returns the kernel release of the server.
func Kernel(ctx context.Context, e executor.Executor) (string, error) {
	result, err := e.Run(ctx, executor.Command{Line: "uname -r"})
	if err != nil {
		return "", err
	}
	return result.Trimmed(), nil
}

// SolrStatus returns the Solr admin page as served on the server.
func SolrStatus(ctx context.Context, e executor.Executor) (string, error) {
	result, err := e.Run(ctx, executor.Command{Line: "curl http://localhost:8080/solr/"})
	if err != nil {
		return "", err
	}
	return result.Trimmed(), nil
}

type phpSite string

func (s phpSite) SiteName() string { return string(s) }
func (s phpSite) Domain() string   { return "" }
func (s phpSite) IsCelery() bool   { return false }

// InstallDrupal copies a Drupal release from downloadsFolder to the
// server (once) and unpacks it into the PHP folder of siteName.
func InstallDrupal(ctx context.Context, remote executor.Remote, downloadsFolder, siteName, archiveName string) error {
	log := common.SiteLogger(siteName, remote.Host())
	log.Infof("install drupal: %s", archiveName)
	local := filepath.Join(downloadsFolder, archiveName)
	if _, err := os.Stat(local); err != nil {
		return common.Abort("local copy of drupal archive does not exist.\n%s\nPlease download a copy...", local)
	}
	fi := folder.New(phpSite(siteName), "")
	remoteFile := fi.Temp() + "/" + archiveName
	exists, err := executor.Exists(ctx, remote, remoteFile, false)
	if err != nil {
		return err
	}
	if !exists {
		if err := remote.Put(ctx, local, remoteFile, executor.PutOptions{}); err != nil {
			return err
		}
	}
	install := fi.PHPInstall(siteName)
	log.Infof("install drupal to: %s", install)
	_, err = remote.Run(ctx, executor.Command{
		Line: "tar --strip-components=1 -xzf " + executor.QuotePath(remoteFile),
		Dir:  install,
	})
	return err
}

// Package backup names the files written by the backup tasks.
package backup

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/folder"
)

// File types and their extensions.
var extensions = map[string]string{
	"mysql":    "sql",
	"postgres": "sql",
	"files":    "tar.gz",
	"ftp":      "ftp.tar.gz",
}

var validName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var nameReplacer = strings.NewReplacer(".", "_", "-", "_")

// Path describes one backup file, e.g. for site csw_web:
//
//	~/repo/backup/postgres/csw_web_20261018_091500_patrick.sql
type Path struct {
	fileType  string
	extension string
	user      string
	name      string
	testName  string
}

// NewPath creates a path for a backup taken now by the current user.
func NewPath(name, fileType string) (*Path, error) {
	return NewPathAt(name, fileType, time.Now(), folder.CurrentUser())
}

// NewPathAt is NewPath with a fixed time and user. An "ssh user@" prefix on
// name is removed.
func NewPathAt(name, fileType string, now time.Time, userName string) (*Path, error) {
	extension, ok := extensions[fileType]
	if !ok {
		return nil, common.NewTaskError("invalid file type: '%s'", fileType)
	}
	if pos := strings.Index(name, "@"); pos >= 0 {
		name = name[pos+1:]
	}
	name = nameReplacer.Replace(name)
	userName = nameReplacer.Replace(userName)
	p := &Path{
		fileType:  fileType,
		extension: extension,
		user:      userName,
		name:      fmt.Sprintf("%s_%s_%s", name, now.Format("20060102_150405"), userName),
		testName:  fmt.Sprintf("test_%s_%s", name, userName),
	}
	if !validName.MatchString(p.name) {
		return nil, common.NewTaskError("name contains invalid characters: %s", p.name)
	}
	return p, nil
}

func (p *Path) FileType() string { return p.fileType }

// Name is <name>_<YYYYMMDD_HHMMSS>_<user>.
func (p *Path) Name() string { return p.name }

func (p *Path) UserName() string { return p.user }

func (p *Path) BackupFileName() string {
	return p.name + "." + p.extension
}

// DatabaseName is the name of a database restored from this backup.
func (p *Path) DatabaseName() string { return p.name }

func (p *Path) TestDatabaseName() string { return p.testName }

// FilesFolder is where sites keep uploaded files on the server.
func (p *Path) FilesFolder() string {
	return "/home/web/repo/files"
}

// FTPFolder is the home of the FTP user of a site.
func (p *Path) FTPFolder(siteName string) string {
	return path.Join("/home", siteName, "site")
}

// RemoteFolder keeps the "~" for the remote shell to expand.
func (p *Path) RemoteFolder() string {
	return path.Join("~", "repo", "backup", p.fileType)
}

func (p *Path) RemoteFile() string {
	return path.Join(p.RemoteFolder(), p.BackupFileName())
}

// LocalFile is the remote file name under the local home folder.
func (p *Path) LocalFile() (string, error) {
	return homedir.Expand(p.RemoteFile())
}

func (p *Path) LocalProjectFolder(siteName string) (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to find home folder: %w", err)
	}
	return filepath.Join(home, "dev", "project", siteName), nil
}

func (p *Path) LocalProjectFolderMedia(siteName string) (string, error) {
	return p.projectSub(siteName, "media")
}

func (p *Path) LocalProjectFolderMediaPrivate(siteName string) (string, error) {
	return p.projectSub(siteName, "media-private")
}

func (p *Path) projectSub(siteName, sub string) (string, error) {
	folder, err := p.LocalProjectFolder(siteName)
	if err != nil {
		return "", err
	}
	return filepath.Join(folder, sub), nil
}

// PHPFolders are the folders of a PHP site worth backing up.
func (p *Path) PHPFolders() []string {
	return []string{
		"images",
		"sites/all/libraries",
		"sites/all/modules",
		"sites/all/themes",
		"sites/default/files",
	}
}

// ObjectKey is the key of the offsite copy: <site>/<type>/<file>.
func (p *Path) ObjectKey(siteName string) string {
	return path.Join(siteName, p.fileType, p.BackupFileName())
}

// Package folder names the folders a site uses on a server.
//
// A deploy of version 1.2.34 for site csw_web on 18/10/2026 at 09:15 by
// patrick is installed into:
//
//	/home/web/repo/project/csw_web/deploy/1_2_34__20261018_091500_patrick
//
// and then linked to /home/web/repo/project/csw_web/live.
package folder

import (
	"os/user"
	"path"
	"strings"
	"time"

	"deploy.evalgo.org/common"
)

const (
	repo      = "/home/web/repo"
	srv       = "/srv"
	layout    = "20060102_150405"
	venv      = "venv"
	vassalDir = "uwsgi/vassals"
)

// Site is the part of the site settings the folder names depend on.
type Site interface {
	SiteName() string
	Domain() string
	IsCelery() bool
}

// Info returns the standard folder names for one site.
type Info struct {
	site       Site
	dateFolder string
}

// New creates folder names for site. version may be empty when no install
// folder is needed.
func New(site Site, version string) *Info {
	return NewAt(site, version, time.Now(), CurrentUser())
}

// NewAt is New with a fixed time and user name.
func NewAt(site Site, version string, now time.Time, userName string) *Info {
	info := &Info{site: site}
	if version != "" {
		info.dateFolder = DateFolder(version, now, userName)
	}
	return info
}

// DateFolder is the install folder name for a version.
func DateFolder(version string, now time.Time, userName string) string {
	return strings.ReplaceAll(version, ".", "_") + "__" + now.Format(layout) + "_" + userName
}

// CurrentUser returns the login name of the operator, or "unknown".
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return common.GetEnv("USER", "unknown")
}

func (i *Info) Site() string {
	return path.Join(repo, "project", i.site.SiteName())
}

func (i *Info) Deploy() string {
	return path.Join(i.Site(), "deploy")
}

// Install is the folder for this deploy. It needs a version.
func (i *Info) Install() (string, error) {
	if i.dateFolder == "" {
		return "", common.NewTaskError(
			"Cannot return an install folder if the class wasn't constructed with a version number e.g. '0.2.32'",
		)
	}
	return path.Join(i.Deploy(), i.dateFolder), nil
}

func (i *Info) InstallTemp() (string, error) {
	return i.installSub("temp")
}

func (i *Info) InstallVenv() (string, error) {
	return i.installSub(venv)
}

func (i *Info) installSub(name string) (string, error) {
	install, err := i.Install()
	if err != nil {
		return "", err
	}
	return path.Join(install, name), nil
}

func (i *Info) Live() string {
	return path.Join(i.Site(), "live")
}

func (i *Info) LiveVenv() string {
	return path.Join(i.Live(), venv)
}

func (i *Info) SrvFolder() string { return srv }

func (i *Info) SSLFolder() string {
	return path.Join(srv, "ssl")
}

func (i *Info) SSLCertFolder() string {
	return path.Join(i.SSLFolder(), i.site.Domain())
}

func (i *Info) SSLCert() string {
	return path.Join(i.SSLCertFolder(), "ssl-unified.crt")
}

func (i *Info) SSLServerKey() string {
	return path.Join(i.SSLCertFolder(), "server.key")
}

// Upload holds archives copied with rsync (drupal etc).
func (i *Info) Upload() string {
	return path.Join(repo, "upload")
}

// Vassals lists the uWSGI ini files touched to reload the site. Celery
// sites have a beat and a worker vassal as well.
func (i *Info) Vassals() []string {
	folder := path.Join(repo, vassalDir)
	name := i.site.SiteName()
	result := []string{path.Join(folder, name+".ini")}
	if i.site.IsCelery() {
		result = append(result,
			path.Join(folder, name+".celery.beat.ini"),
			path.Join(folder, name+".celery.worker.ini"),
		)
	}
	return result
}

// PHPInstall is the document root of a PHP site.
func (i *Info) PHPInstall(siteName string) string {
	return path.Join(repo, "php", siteName)
}

func (i *Info) Temp() string {
	return path.Join(repo, "temp")
}

package site

import (
	"os"
	"path/filepath"

	"deploy.evalgo.org/common"
)

const salt = "The config is a global variable used by salt when setting up server state"

// verifyProfile loads the sites and checks each declares a known profile
// with the matching global config on the server.
func (i *Info) verifyProfile() error {
	if !i.pillar.Has("sites") {
		return common.NewSiteNotFoundError(
			"Cannot find 'sites' key in the pillar data for server '%s', site '%s'",
			i.minionID, i.siteName,
		)
	}
	if err := i.pillar.Require("sites", &i.sites); err != nil {
		return err
	}

	hasDjango, hasPHP := false, false
	for _, name := range i.sortedSites() {
		switch profile := i.sites[name].Profile; profile {
		case ProfileDjango:
			hasDjango = true
		case ProfileMattermost:
		case ProfilePHP, ProfileApachePHP:
			hasPHP = true
		case "":
			return common.NewTaskError("site must have a 'profile' ('django' or 'php'): '%s'", name)
		default:
			return common.NewTaskError(
				"unknown 'profile' for site '%s' (should be 'django', 'apache_php', 'mattermost' or 'php'): %s",
				name, profile,
			)
		}
	}
	if hasDjango && !i.pillar.Has("django") {
		return common.NewTaskError("cannot find 'django' config key in the pillar data. %s", salt)
	}
	if hasPHP && !i.pillar.Has("php") && !i.pillar.Has("apache_php") {
		return common.NewTaskError("cannot find 'php' config key in the pillar data. %s", salt)
	}
	return nil
}

// verifySites checks the SSL flag and domain of every site, and the
// certificates of SSL sites when a certificate folder was given.
func (i *Info) verifySites() error {
	for _, name := range i.sortedSites() {
		s := i.sites[name]
		if s.SSL == nil {
			return common.NewTaskError("site '%s' does not have SSL 'True' or 'False'", name)
		}
		if s.Domain == nil || *s.Domain == "" {
			return common.NewTaskError("site '%s' does not have a domain name", name)
		}
		if s.LAN && i.effectiveSSL(s) {
			return common.NewTaskError("site '%s' is set to run on a LAN, so can't use SSL", name)
		}
		if i.opts.CertificateFolder != "" && i.effectiveSSL(s) {
			if err := i.verifyCertificate(i.effectiveDomain(s)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (i *Info) verifyCertificate(domain string) error {
	if _, err := os.Stat(i.opts.CertificateFolder); err != nil {
		return common.NewTaskError("Folder for SSL certificates does not exist: %s", i.opts.CertificateFolder)
	}
	folder := i.sslCertFolder(domain)
	stat, err := os.Stat(folder)
	if err != nil {
		return common.NewTaskError("%s: folder for SSL certificate does not exist: %s", domain, folder)
	}
	if !stat.IsDir() {
		return common.NewTaskError("%s: expecting folder for SSL certificate at '%s'", domain, folder)
	}
	if cert := filepath.Join(folder, SSLCertName); !fileExists(cert) {
		return common.NewTaskError("%s: certificate file not found '%s'", domain, cert)
	}
	if key := filepath.Join(folder, SSLServerKey); !fileExists(key) {
		return common.NewTaskError("%s: server key not found '%s'", domain, key)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// verifyUwsgiPorts checks every uWSGI hosted site has its own port. PHP and
// mattermost sites are not run by uWSGI.
func (i *Info) verifyUwsgiPorts() error {
	ports := map[int]string{}
	for _, name := range i.sortedSites() {
		s := i.sites[name]
		if s.isPHP() || s.Profile == ProfileMattermost {
			continue
		}
		if s.UwsgiPort == nil {
			return common.NewTaskError("site '%s' does not have a uWSGI port", name)
		}
		if other, ok := ports[*s.UwsgiPort]; ok {
			return common.NewTaskError("site '%s' has the same uWSGI port number as '%s'", name, other)
		}
		ports[*s.UwsgiPort] = name
	}
	return nil
}

func (i *Info) verifySite() error {
	s, ok := i.sites[i.siteName]
	if !ok {
		return common.NewSiteNotFoundError("site '%s' not found in pillar: %v", i.siteName, i.sortedSites())
	}
	i.site = s
	return nil
}

// verifyDatabaseSettings checks the database type and password of every
// site, then the server wide mysql and postgres settings they rely on.
func (i *Info) verifyDatabaseSettings() error {
	hasMySQL, hasPostgres := false, false
	for _, name := range i.sortedSites() {
		s := i.sites[name]
		if s.DBType == nil {
			return common.NewTaskError("site '%s' does not have a database type", name)
		}
		switch *s.DBType {
		case DBTypeMySQL:
			hasMySQL = true
		case DBTypePostgres:
			hasPostgres = true
		case DBTypeNone:
			continue
		default:
			return common.NewTaskError("site '%s' has an unknown database type: %s", name, *s.DBType)
		}
		if s.DBPass == nil {
			return common.NewTaskError("site '%s' does not have a database password", name)
		}
	}
	if hasMySQL && !i.pillar.Has("mysql_server") {
		return common.NewTaskError("Cannot find 'mysql_server' config in the pillar. %s", salt)
	}
	if hasPostgres {
		settings, err := i.postgresSettings()
		if err != nil {
			return err
		}
		if settings.ListenAddress == "" {
			return common.NewTaskError("Cannot find 'postgres_settings', 'listen_address'.")
		}
		if settings.ListenAddress != localhost && settings.PostgresPass == "" {
			return common.NewTaskError("Cannot find 'postgres_settings', 'postgres_pass' in pillar '%s'", i.opts.PillarFolder)
		}
	}
	return nil
}

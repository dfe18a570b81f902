// Package deploy installs a version of a site on its server and runs the
// maintenance tasks (SSL, backups, databases) against it.
package deploy

import "deploy.evalgo.org/site"

// Site is the validated configuration of the site being worked on. It is
// implemented by *site.Info.
type Site interface {
	SiteName() string
	MinionID() string
	Domain() string
	URL() string
	SSL() bool
	IsDjango() bool
	IsPHP() bool
	IsCelery() bool
	IsFTP() bool
	IsMySQL() bool
	IsPostgres() bool
	HasDatabase() bool
	DBName() string
	DBUser() (string, error)
	DBPass() (string, error)
	DBHost() (string, error)
	PostgresPass() (string, error)
	Prefix() (string, error)
	Packages() ([]site.Package, error)
	Backup() (site.BackupSettings, error)
	Env() (map[string]string, error)
	IsAmazon() (bool, error)
	SSLCert() string
	SSLServerKey() string
}

var _ Site = (*site.Info)(nil)

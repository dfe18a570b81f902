// Package site resolves the settings of one site on one server from the
// pillar and checks the whole server configuration before anything is run
// against it.
package site

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/pillar"
)

// Profiles a site can declare.
const (
	ProfileDjango     = "django"
	ProfilePHP        = "php"
	ProfileApachePHP  = "apache_php"
	ProfileMattermost = "mattermost"
)

// Database types. An empty type means the site has no database.
const (
	DBTypeMySQL    = "mysql"
	DBTypePostgres = "psql"
	DBTypeNone     = ""
)

// Certificate file names inside a certificate folder.
const (
	SSLCertName   = "ssl-unified.crt"
	SSLServerKey  = "server.key"
	localhost     = "localhost"
	maxMySQLUser  = 16
	projectFolder = "/home/web/repo/project"
)

// Package is one archive unpacked by a PHP deploy.
type Package struct {
	Name    string `yaml:"name"`
	Archive string `yaml:"archive"`
	Folder  string `yaml:"folder"`
	Tar     string `yaml:"tar"`
}

// BackupSettings tells the backup tasks where a site keeps its data.
type BackupSettings struct {
	Path string `yaml:"path"`
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	Name string `yaml:"name"`
}

// TestSettings override the live settings on a testing server.
type TestSettings struct {
	Domain    *string `yaml:"domain"`
	SSL       *bool   `yaml:"ssl"`
	DBPass    *string `yaml:"db_pass"`
	UwsgiPort *int    `yaml:"uwsgi_port"`
}

// Settings is one entry under the pillar 'sites' key. Pointer fields
// distinguish a missing key from its zero value.
type Settings struct {
	Profile   string                 `yaml:"profile"`
	Domain    *string                `yaml:"domain"`
	SSL       *bool                  `yaml:"ssl"`
	LAN       bool                   `yaml:"lan"`
	DBType    *string                `yaml:"db_type"`
	DBPass    *string                `yaml:"db_pass"`
	DBUser    string                 `yaml:"db_user"`
	UwsgiPort *int                   `yaml:"uwsgi_port"`
	FTP       bool                   `yaml:"ftp"`
	Celery    bool                   `yaml:"celery"`
	Workflow  bool                   `yaml:"workflow"`
	Amazon    bool                   `yaml:"amazon"`
	Compress  *bool                  `yaml:"compress"`
	Python    *int                   `yaml:"python_version"`
	Package   *string                `yaml:"package"`
	Packages  []Package              `yaml:"packages"`
	Backup    *BackupSettings        `yaml:"backup"`
	Env       map[string]interface{} `yaml:"env"`
	Test      *TestSettings          `yaml:"test"`
}

func (s Settings) isPHP() bool {
	return s.Profile == ProfilePHP || s.Profile == ProfileApachePHP
}

func (s Settings) dbType() string {
	return common.PtrValue(s.DBType)
}

// PostgresSettings is the pillar 'postgres_settings' key.
type PostgresSettings struct {
	ListenAddress string `yaml:"listen_address"`
	PostgresPass  string `yaml:"postgres_pass"`
}

// AmazonSettings is the pillar 'amazon' key.
type AmazonSettings struct {
	AccessKeyID     string `yaml:"aws_s3_access_key_id"`
	SecretAccessKey string `yaml:"aws_s3_secret_access_key"`
}

// RsyncSettings is the pillar 'gpg' / 'rsync' key used by duplicity.
type RsyncSettings struct {
	Pass   string `yaml:"pass"`
	Server string `yaml:"server"`
	User   string `yaml:"user"`
}

// Options locate the pillar and, optionally, the SSL certificates. The
// certificates of SSL sites are only checked when CertificateFolder is set.
type Options struct {
	PillarFolder      string
	CertificateFolder string
}

// Info is the validated configuration of one site on one server.
type Info struct {
	minionID string
	siteName string
	opts     Options
	pillar   *pillar.Pillar
	sites    map[string]Settings
	site     Settings
}

// New loads the pillar for minionID and validates every site on the server
// before returning the settings for siteName.
func New(minionID, siteName string, opts Options) (*Info, error) {
	p, err := pillar.Load(opts.PillarFolder, minionID)
	if err != nil {
		return nil, err
	}
	info := &Info{
		minionID: minionID,
		siteName: siteName,
		opts:     opts,
		pillar:   p,
	}
	steps := []func() error{
		info.verifyProfile,
		info.verifySites,
		info.verifyUwsgiPorts,
		info.verifySite,
		info.verifyDatabaseSettings,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// sortedSites returns the site names on the server in a stable order.
func (i *Info) sortedSites() []string {
	names := make([]string, 0, len(i.sites))
	for name := range i.sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pillar returns the merged pillar for the server.
func (i *Info) Pillar() *pillar.Pillar { return i.pillar }

// Settings returns the raw settings of the site.
func (i *Info) Settings() Settings { return i.site }

func (i *Info) SiteName() string { return i.siteName }

func (i *Info) MinionID() string { return i.minionID }

func (i *Info) Profile() string { return i.site.Profile }

// ServerTesting reports whether the server is flagged as a testing server.
func (i *Info) ServerTesting() bool {
	return i.pillar.Has("testing")
}

// IsTesting reports whether the server is a testing server and the site
// has a 'test' block.
func (i *Info) IsTesting() bool {
	return i.ServerTesting() && i.site.Test != nil
}

// effectiveDomain applies the test override for a site.
func (i *Info) effectiveDomain(s Settings) string {
	if i.ServerTesting() && s.Test != nil && s.Test.Domain != nil {
		return *s.Test.Domain
	}
	return common.PtrValue(s.Domain)
}

func (i *Info) effectiveSSL(s Settings) bool {
	if i.ServerTesting() && s.Test != nil && s.Test.SSL != nil {
		return *s.Test.SSL
	}
	return s.SSL != nil && *s.SSL
}

func (i *Info) Domain() string { return i.effectiveDomain(i.site) }

func (i *Info) SSL() bool { return i.effectiveSSL(i.site) }

// URL returns the home page of the site, e.g. https://www.example.com/.
func (i *Info) URL() string {
	scheme := "http"
	if i.SSL() {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/", scheme, i.Domain())
}

// DBName is the site name with dots replaced. Testing databases get a
// _test suffix so they never collide with a live database.
func (i *Info) DBName() string {
	name := strings.ReplaceAll(i.siteName, ".", "_")
	if i.IsTesting() {
		name += "_test"
	}
	return name
}

func (i *Info) DBNameWorkflow() string {
	return i.DBName() + "_workflow"
}

func (i *Info) DBPass() (string, error) {
	if i.IsTesting() && i.site.Test.DBPass != nil {
		return *i.site.Test.DBPass, nil
	}
	if i.site.DBPass == nil {
		return "", i.missingSetting("db_pass")
	}
	return *i.site.DBPass, nil
}

// DBUser is the 'db_user' setting or the site name. MySQL limits user
// names to 16 characters.
func (i *Info) DBUser() (string, error) {
	user := i.site.DBUser
	if user == "" {
		user = i.siteName
	}
	if i.IsMySQL() && len(user) > maxMySQLUser {
		return "", common.NewTaskError("maximum length of user name for mysql is %d characters: %s", maxMySQLUser, user)
	}
	return user, nil
}

func (i *Info) isPostgresServer() bool {
	for _, s := range i.sites {
		if s.dbType() == DBTypePostgres {
			return true
		}
	}
	return false
}

func (i *Info) postgresSettings() (PostgresSettings, error) {
	var settings PostgresSettings
	err := i.pillar.Require("postgres_settings", &settings)
	return settings, err
}

// DBHost is the postgres listen address, or an empty string when the
// database runs on the web server itself.
func (i *Info) DBHost() (string, error) {
	if !i.isPostgresServer() {
		return "", common.NewTaskError("no ip for non-postgres database")
	}
	settings, err := i.postgresSettings()
	if err != nil {
		return "", err
	}
	if settings.ListenAddress == localhost {
		return "", nil
	}
	return settings.ListenAddress, nil
}

func (i *Info) PostgresPass() (string, error) {
	if !i.isPostgresServer() {
		return "", common.NewTaskError("no password for non-postgres database")
	}
	settings, err := i.postgresSettings()
	if err != nil {
		return "", err
	}
	return settings.PostgresPass, nil
}

func (i *Info) HasDatabase() bool {
	t := i.site.dbType()
	return t == DBTypeMySQL || t == DBTypePostgres
}

func (i *Info) IsDjango() bool   { return i.site.Profile == ProfileDjango }
func (i *Info) IsPHP() bool      { return i.site.isPHP() }
func (i *Info) IsMySQL() bool    { return i.site.dbType() == DBTypeMySQL }
func (i *Info) IsPostgres() bool { return i.site.dbType() == DBTypePostgres }
func (i *Info) IsFTP() bool      { return i.site.FTP }
func (i *Info) IsCelery() bool   { return i.site.Celery }
func (i *Info) IsWorkflow() bool { return i.site.Workflow }

// IsAmazon reports whether the site stores its static files on S3. A site
// asking for amazon on a server without keys is an error.
func (i *Info) IsAmazon() (bool, error) {
	hasKeys := i.pillar.Has("amazon")
	if i.site.Amazon && !hasKeys {
		return false, common.NewTaskError("The site is using 'amazon', but we have no keys!")
	}
	return hasKeys && i.site.Amazon, nil
}

// Compress reports whether static files are compressed. Compression is on
// by default, but only for sites using amazon.
func (i *Info) Compress() (bool, error) {
	amazon, err := i.IsAmazon()
	if err != nil {
		return false, err
	}
	compress := i.site.Compress == nil || *i.site.Compress
	return compress && amazon, nil
}

// PythonVersion is the major python version of the site's virtualenv,
// 3 unless the pillar sets 'python_version'.
func (i *Info) PythonVersion() int {
	if i.site.Python == nil {
		return 3
	}
	return *i.site.Python
}

func (i *Info) missingSetting(key string) error {
	return common.NewTaskError("No '%s' setting for site: %s", key, i.siteName)
}

func (i *Info) Package() (string, error) {
	if i.site.Package == nil {
		return "", i.missingSetting("package")
	}
	return *i.site.Package, nil
}

func (i *Info) Packages() ([]Package, error) {
	if i.site.Packages == nil {
		return nil, i.missingSetting("packages")
	}
	return i.site.Packages, nil
}

func (i *Info) Backup() (BackupSettings, error) {
	if i.site.Backup == nil {
		return BackupSettings{}, i.missingSetting("backup")
	}
	return *i.site.Backup, nil
}

func (i *Info) UwsgiPort() (int, error) {
	if i.IsTesting() && i.site.Test.UwsgiPort != nil {
		return *i.site.Test.UwsgiPort, nil
	}
	if i.site.UwsgiPort == nil {
		return 0, i.missingSetting("uwsgi_port")
	}
	return *i.site.UwsgiPort, nil
}

type pipSettings struct {
	Prefix *string `yaml:"prefix"`
	Pypirc *string `yaml:"pypirc"`
}

func (i *Info) pip() (*pipSettings, error) {
	if !i.pillar.Has("django") {
		return nil, nil
	}
	var pip pipSettings
	if err := i.pillar.Require("pip", &pip); err != nil {
		return nil, err
	}
	return &pip, nil
}

// Prefix is the package index prefix from the 'pip' pillar. Servers
// without django have no prefix.
func (i *Info) Prefix() (string, error) {
	pip, err := i.pip()
	if err != nil || pip == nil {
		return "", err
	}
	if pip.Prefix == nil {
		return "", common.NewTaskError("'prefix' not found in 'pip' pillar.")
	}
	return *pip.Prefix, nil
}

// Pypirc is the name of the package index in ~/.pypirc.
func (i *Info) Pypirc() (string, error) {
	pip, err := i.pip()
	if err != nil || pip == nil {
		return "", err
	}
	if pip.Pypirc == nil {
		return "", common.NewTaskError("'pypirc' not found in 'pip' pillar.")
	}
	return *pip.Pypirc, nil
}

// Rsync returns the offsite backup account from the 'gpg' pillar.
func (i *Info) Rsync() (RsyncSettings, error) {
	var gpg struct {
		Rsync *RsyncSettings `yaml:"rsync"`
	}
	if !i.pillar.Has("gpg") {
		return RsyncSettings{}, common.NewTaskError("no gpg information found")
	}
	if _, err := i.pillar.Decode("gpg", &gpg); err != nil {
		return RsyncSettings{}, err
	}
	if gpg.Rsync == nil {
		return RsyncSettings{}, common.NewTaskError("no rsync information found in gpg")
	}
	return *gpg.Rsync, nil
}

func (i *Info) RsyncGPGPassword() (string, error) {
	rsync, err := i.Rsync()
	if err != nil {
		return "", err
	}
	if rsync.Pass == "" {
		return "", common.NewTaskError("no gpg password found in rsync")
	}
	return rsync.Pass, nil
}

// RsyncSSH is the duplicity target URL, scp://<user>@<server>/.
func (i *Info) RsyncSSH() (string, error) {
	rsync, err := i.Rsync()
	if err != nil {
		return "", err
	}
	if rsync.Server == "" {
		return "", common.NewTaskError("no rsync server found in rsync")
	}
	if rsync.User == "" {
		return "", common.NewTaskError("no rsync user found in rsync")
	}
	return fmt.Sprintf("scp://%s@%s/", rsync.User, rsync.Server), nil
}

// MediaRoot is the folder holding uploaded files on the server.
func (i *Info) MediaRoot() string {
	return fmt.Sprintf("%s/%s/files/", projectFolder, i.siteName)
}

func (i *Info) sslCertFolder(domain string) string {
	return filepath.Join(i.opts.CertificateFolder, domain)
}

// SSLCert is the local path of the certificate uploaded by the ssl task.
func (i *Info) SSLCert() string {
	return filepath.Join(i.sslCertFolder(i.Domain()), SSLCertName)
}

// SSLServerKey is the local path of the server key.
func (i *Info) SSLServerKey() string {
	return filepath.Join(i.sslCertFolder(i.Domain()), SSLServerKey)
}

// Env returns the environment for remote management commands. The mail,
// payment and secret values are placeholders: management commands do not
// need them, but the settings module refuses to load without them.
func (i *Info) Env() (map[string]string, error) {
	domain := i.Domain()
	env := map[string]string{
		"ALLOWED_HOSTS":          domain,
		"DEFAULT_FROM_EMAIL":     "test@pkimber.net",
		"DOMAIN":                 domain,
		"FTP_STATIC_DIR":         "z1",
		"FTP_STATIC_URL":         "a1",
		"HOST_NAME":              "blue",
		"MAILGUN_ACCESS_KEY":     "abc",
		"MAILGUN_SERVER_NAME":    "def",
		"MANDRILL_API_KEY":       "b3",
		"MANDRILL_USER_NAME":     "b4",
		"MEDIA_ROOT":             i.MediaRoot(),
		"NORECAPTCHA_SECRET_KEY": "pqr",
		"NORECAPTCHA_SITE_KEY":   "stu",
		"OPBEAT_APP_ID":          "123",
		"OPBEAT_ORGANIZATION_ID": "123",
		"OPBEAT_SECRET_TOKEN":    "123",
		"SECRET_KEY":             "jkl",
		"SENDFILE_ROOT":          "mno",
		"SSL":                    common.PyBool(i.SSL()),
		"STRIPE_PUBLISH_KEY":     "stu",
		"STRIPE_SECRET_KEY":      "vwx",
		"TESTING":                common.PyBool(i.IsTesting()),
	}
	if i.HasDatabase() {
		// DB_IP is the postgres listen address; mysql sites use the local socket.
		if i.IsPostgres() {
			host, err := i.DBHost()
			if err != nil {
				return nil, err
			}
			env["DB_IP"] = host
		}
		pass, err := i.DBPass()
		if err != nil {
			return nil, err
		}
		env["DB_PASS"] = pass
	}
	for key, value := range i.site.Env {
		env[strings.ToUpper(key)] = envString(value)
	}
	amazon, err := i.IsAmazon()
	if err != nil {
		return nil, err
	}
	if amazon {
		var keys AmazonSettings
		if err := i.pillar.Require("amazon", &keys); err != nil {
			return nil, err
		}
		env["AWS_S3_ACCESS_KEY_ID"] = keys.AccessKeyID
		env["AWS_S3_SECRET_ACCESS_KEY"] = keys.SecretAccessKey
	}
	return env, nil
}

// envString formats a pillar value the way the Python settings modules
// expect to read it.
func envString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case bool:
		return common.PyBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

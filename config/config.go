// Package config loads the deploy tool's own settings.
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (set via SetConfigDefaults)
//  2. Configuration file (--config, else deploy.yaml in ., $HOME/.deploy, /etc/deploy)
//  3. .env file in the working directory
//  4. Environment variables with the DEPLOY_ prefix
//
// Nested keys use underscores in the environment:
//   - DEPLOY_SSH_USER=web
//   - DEPLOY_FOLDERS_DEPLOY=/home/me/dev/module/deploy
//   - DEPLOY_BACKUP_S3_BUCKET=offsite-backups
//
// Site settings do not live here. They come from the pillar, whose location
// is configured by folders.pillar.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deploy.evalgo.org/common"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix for all settings.
const EnvPrefix = "DEPLOY"

// DefaultDeployFolder is where the pillar, certificates and test data are
// expected relative to the project being deployed.
const DefaultDeployFolder = "../../module/deploy"

// FoldersConfig locates the workstation folders used by tasks.
type FoldersConfig struct {
	// Deploy is the root folder; the others default to sub folders of it
	Deploy string `mapstructure:"deploy"`

	// Pillar holds top.sls and the pillar fragments
	Pillar string `mapstructure:"pillar"`

	// SSLCert holds one folder per domain with ssl-unified.crt and server.key
	SSLCert string `mapstructure:"ssl_cert"`

	// Test holds the <site>.yaml browser test files
	Test string `mapstructure:"test"`

	// PostDeploy holds scripts run after a deploy
	PostDeploy string `mapstructure:"post_deploy"`

	// Upload holds PHP package archives copied to the server
	Upload string `mapstructure:"upload"`
}

// SSHConfig contains remote connection settings.
type SSHConfig struct {
	// User is the remote user (default: web)
	User string `mapstructure:"user"`

	// Port is the SSH port (default: 22)
	Port int `mapstructure:"port"`

	// KeyFile is a private key used for public key authentication
	KeyFile string `mapstructure:"key_file"`

	// CertFile is an optional certificate signed for KeyFile
	CertFile string `mapstructure:"cert_file"`

	// KnownHosts verifies host keys when set
	KnownHosts string `mapstructure:"known_hosts"`

	// UseAgent authenticates through SSH_AUTH_SOCK when available
	UseAgent bool `mapstructure:"use_agent"`

	// Timeout for establishing the connection
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`
}

// BrowserConfig controls the post deploy smoke test.
type BrowserConfig struct {
	// Timeout is how long to wait for a page title
	Timeout time.Duration `mapstructure:"timeout"`

	// PollInterval is the delay between two title checks
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// HistoryConfig locates the local deploy ledger.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// S3Config is an optional offsite destination for backup files.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Enabled reports whether offsite copies should be made.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// BackupConfig contains backup settings.
type BackupConfig struct {
	S3 S3Config `mapstructure:"s3"`
}

// LocalDBConfig points at the database servers on the workstation used to
// restore backups for testing.
type LocalDBConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	MySQLUser     string `mapstructure:"mysql_user"`
	MySQLPassword string `mapstructure:"mysql_password"`
	MySQLAddr     string `mapstructure:"mysql_addr"`
}

// Config is the complete tool configuration.
type Config struct {
	Folders FoldersConfig `mapstructure:"folders"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	Logging LoggingConfig `mapstructure:"logging"`
	Browser BrowserConfig `mapstructure:"browser"`
	History HistoryConfig `mapstructure:"history"`
	Backup  BackupConfig  `mapstructure:"backup"`
	LocalDB LocalDBConfig `mapstructure:"local_db"`
}

// Loader provides configuration loading functionality.
type Loader struct {
	v      *viper.Viper
	prefix string
}

// NewLoader creates a new configuration loader with the given environment prefix.
func NewLoader(envPrefix string) *Loader {
	return &Loader{
		v:      viper.New(),
		prefix: envPrefix,
	}
}

// SetDefaults sets default configuration values.
// This should be called before Load().
func (l *Loader) SetDefaults(defaults map[string]interface{}) {
	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}
}

// Set overrides a key, e.g. from a command line flag. Overrides win over
// every other source.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// SetConfigDefaults sets the standard defaults. Every key gets a default so
// that environment variables are seen by Unmarshal.
func (l *Loader) SetConfigDefaults() {
	l.v.SetDefault("folders.deploy", DefaultDeployFolder)
	l.v.SetDefault("folders.pillar", "")
	l.v.SetDefault("folders.ssl_cert", "")
	l.v.SetDefault("folders.test", "")
	l.v.SetDefault("folders.post_deploy", "")
	l.v.SetDefault("folders.upload", "")

	l.v.SetDefault("ssh.user", "web")
	l.v.SetDefault("ssh.port", 22)
	l.v.SetDefault("ssh.key_file", "")
	l.v.SetDefault("ssh.cert_file", "")
	l.v.SetDefault("ssh.known_hosts", "")
	l.v.SetDefault("ssh.use_agent", true)
	l.v.SetDefault("ssh.timeout", "30s")

	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "text")

	l.v.SetDefault("browser.timeout", "10s")
	l.v.SetDefault("browser.poll_interval", "500ms")

	l.v.SetDefault("history.path", "~/.deploy/history.db")

	l.v.SetDefault("backup.s3.endpoint", "")
	l.v.SetDefault("backup.s3.region", "us-east-1")
	l.v.SetDefault("backup.s3.bucket", "")
	l.v.SetDefault("backup.s3.access_key", "")
	l.v.SetDefault("backup.s3.secret_key", "")

	l.v.SetDefault("local_db.postgres_dsn", "host=localhost user=postgres dbname=postgres sslmode=disable")
	l.v.SetDefault("local_db.mysql_user", "root")
	l.v.SetDefault("local_db.mysql_password", "")
	l.v.SetDefault("local_db.mysql_addr", "127.0.0.1:3306")
}

// Load reads configuration from file, .env, and environment variables.
// If cfgFile is empty, searches for deploy.yaml in standard locations.
func (l *Loader) Load(cfgFile string, target interface{}) error {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		l.v.SetConfigName("deploy")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("$HOME/.deploy")
		l.v.AddConfigPath("/etc/deploy")
	}

	if err := l.v.ReadInConfig(); err != nil {
		if cfgFile != "" && !isFileNotFoundError(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if cfgFile == "" {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// Merge .env file if present
	l.v.SetConfigFile(".env")
	l.v.SetConfigType("env")
	_ = l.v.MergeInConfig()

	if l.prefix != "" {
		l.v.SetEnvPrefix(l.prefix)
	}
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.Unmarshal(target); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	return nil
}

// LoadConfig loads, completes and validates the configuration.
// overrides are applied last, typically from command line flags.
func LoadConfig(cfgFile string, overrides map[string]interface{}) (*Config, error) {
	loader := NewLoader(EnvPrefix)
	loader.SetConfigDefaults()
	for k, v := range overrides {
		loader.Set(k, v)
	}

	cfg := &Config{}
	if err := loader.Load(cfgFile, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Complete(); err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Complete fills derived folders and expands '~' in paths.
func (c *Config) Complete() error {
	var err error
	if c.Folders.Deploy, err = homedir.Expand(c.Folders.Deploy); err != nil {
		return fmt.Errorf("failed to expand deploy folder: %w", err)
	}
	derived := []struct {
		value *string
		sub   string
	}{
		{&c.Folders.Pillar, "pillar"},
		{&c.Folders.SSLCert, "ssl-cert"},
		{&c.Folders.Test, "test"},
		{&c.Folders.PostDeploy, "post-deploy"},
		{&c.Folders.Upload, "upload"},
	}
	for _, d := range derived {
		if *d.value == "" {
			*d.value = filepath.Join(c.Folders.Deploy, d.sub)
			continue
		}
		if *d.value, err = homedir.Expand(*d.value); err != nil {
			return fmt.Errorf("failed to expand folder %s: %w", d.sub, err)
		}
	}
	for _, p := range []*string{&c.SSH.KeyFile, &c.SSH.CertFile, &c.SSH.KnownHosts, &c.History.Path} {
		if *p, err = homedir.Expand(*p); err != nil {
			return fmt.Errorf("failed to expand path: %w", err)
		}
	}
	return nil
}

// ValidateConfig validates the loaded configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.SSH.Port < 1 || cfg.SSH.Port > 65535 {
		return fmt.Errorf("invalid ssh port: %d", cfg.SSH.Port)
	}
	if cfg.SSH.User == "" {
		return fmt.Errorf("ssh user is required")
	}
	if cfg.Browser.Timeout <= 0 {
		return fmt.Errorf("invalid browser timeout: %s", cfg.Browser.Timeout)
	}
	if cfg.Browser.PollInterval <= 0 {
		return fmt.Errorf("invalid browser poll interval: %s", cfg.Browser.PollInterval)
	}
	if cfg.Backup.S3.Enabled() && cfg.Backup.S3.Region == "" {
		return fmt.Errorf("backup.s3.region is required when a bucket is set")
	}
	return nil
}

// PillarFolder returns the pillar folder, which must exist.
func (f FoldersConfig) PillarFolder() (string, error) {
	return existingFolder(f.Pillar, "pillar folder")
}

// CertificateFolder returns the SSL certificate folder, which must exist.
func (f FoldersConfig) CertificateFolder() (string, error) {
	return existingFolder(f.SSLCert, "certificate folder")
}

// TestFolder returns the browser test folder, which must exist.
func (f FoldersConfig) TestFolder() (string, error) {
	return existingFolder(f.Test, "'test' folder")
}

// PostDeployFolder returns the post deploy folder, which must exist.
func (f FoldersConfig) PostDeployFolder() (string, error) {
	return existingFolder(f.PostDeploy, "'post-deploy' folder")
}

func existingFolder(folder, what string) (string, error) {
	if _, err := os.Stat(folder); err != nil {
		return "", common.NewTaskError(
			"%s does not exist in the standard location on your workstation: %s", what, folder,
		)
	}
	return folder, nil
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deploy.evalgo.org/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoadConfig_Defaults tests defaults and derived folders
func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultDeployFolder, cfg.Folders.Deploy)
	assert.Equal(t, filepath.Join(DefaultDeployFolder, "pillar"), cfg.Folders.Pillar)
	assert.Equal(t, filepath.Join(DefaultDeployFolder, "ssl-cert"), cfg.Folders.SSLCert)
	assert.Equal(t, filepath.Join(DefaultDeployFolder, "test"), cfg.Folders.Test)
	assert.Equal(t, filepath.Join(DefaultDeployFolder, "post-deploy"), cfg.Folders.PostDeploy)
	assert.Equal(t, filepath.Join(DefaultDeployFolder, "upload"), cfg.Folders.Upload)
	assert.Equal(t, "web", cfg.SSH.User)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.True(t, cfg.SSH.UseAgent)
	assert.Equal(t, 30*time.Second, cfg.SSH.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser.PollInterval)
	assert.False(t, cfg.Backup.S3.Enabled())
	assert.Equal(t, "us-east-1", cfg.Backup.S3.Region)
	assert.NotContains(t, cfg.History.Path, "~")
}

// TestLoadConfig_FileAndEnv tests precedence of file, env and overrides
func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
folders:
  deploy: /srv/module/deploy
  test: /tmp/browser-tests
ssh:
  user: deployer
  port: 2222
backup:
  s3:
    bucket: offsite
`)
	t.Setenv("DEPLOY_SSH_USER", "from-env")

	cfg, err := LoadConfig(path, map[string]interface{}{"logging.level": "warn"})
	require.NoError(t, err)

	assert.Equal(t, "/srv/module/deploy/pillar", cfg.Folders.Pillar)
	assert.Equal(t, "/tmp/browser-tests", cfg.Folders.Test)
	assert.Equal(t, "from-env", cfg.SSH.User)
	assert.Equal(t, 2222, cfg.SSH.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Backup.S3.Enabled())
}

// TestValidateConfig tests validation failures
func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SSH:     SSHConfig{User: "web", Port: 22},
			Browser: BrowserConfig{Timeout: time.Second, PollInterval: time.Millisecond},
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{name: "Valid", modify: func(*Config) {}},
		{name: "PortZero", modify: func(c *Config) { c.SSH.Port = 0 }, errMsg: "invalid ssh port"},
		{name: "PortTooHigh", modify: func(c *Config) { c.SSH.Port = 70000 }, errMsg: "invalid ssh port"},
		{name: "NoUser", modify: func(c *Config) { c.SSH.User = "" }, errMsg: "ssh user is required"},
		{name: "NoTimeout", modify: func(c *Config) { c.Browser.Timeout = 0 }, errMsg: "invalid browser timeout"},
		{name: "NoPoll", modify: func(c *Config) { c.Browser.PollInterval = 0 }, errMsg: "invalid browser poll interval"},
		{
			name:   "BucketWithoutRegion",
			modify: func(c *Config) { c.Backup.S3.Bucket = "b" },
			errMsg: "region is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := ValidateConfig(cfg)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// TestFolders_Exist tests the folder lookups
func TestFolders_Exist(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "pillar"), 0o755))

	folders := FoldersConfig{
		Pillar:     filepath.Join(root, "pillar"),
		SSLCert:    filepath.Join(root, "ssl-cert"),
		Test:       filepath.Join(root, "test"),
		PostDeploy: filepath.Join(root, "post-deploy"),
	}

	folder, err := folders.PillarFolder()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pillar"), folder)

	_, err = folders.CertificateFolder()
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTask))
	assert.Contains(t, err.Error(), "certificate folder does not exist in the standard location on your workstation")

	_, err = folders.TestFolder()
	assert.ErrorContains(t, err, "'test' folder does not exist")

	_, err = folders.PostDeployFolder()
	assert.ErrorContains(t, err, "'post-deploy' folder does not exist")
}

// TestIsFileNotFoundError tests the helper
func TestIsFileNotFoundError(t *testing.T) {
	_, err := os.Open(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, isFileNotFoundError(err))
	assert.False(t, isFileNotFoundError(errors.New("other")))
}

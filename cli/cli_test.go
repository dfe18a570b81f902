package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
	"deploy.evalgo.org/history"
	"deploy.evalgo.org/network"
	"deploy.evalgo.org/site"
)

// writeConfig points the folders at the site test data and the history
// ledger at a temporary file.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	pillar, err := filepath.Abs(filepath.Join("..", "site", "testdata", "pillar", "data"))
	require.NoError(t, err)
	certs, err := filepath.Abs(filepath.Join("..", "site", "testdata", "cert"))
	require.NoError(t, err)
	historyPath := filepath.Join(dir, "history.db")
	content := "folders:\n" +
		"  deploy: " + dir + "\n" +
		"  pillar: " + pillar + "\n" +
		"  ssl_cert: " + certs + "\n" +
		"history:\n" +
		"  path: " + historyPath + "\n"
	file := filepath.Join(dir, "deploy.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	return file, historyPath
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// run executes the root command with a fresh set of flags.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(RootCmd)
	cfgFile = ""
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	err := RootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// mockDial replaces the SSH connection for the duration of the test.
func mockDial(t *testing.T, remote *executor.MockExecutor) *network.SSHConfig {
	t.Helper()
	dialed := &network.SSHConfig{}
	previous := dial
	dial = func(ctx context.Context, sshConfig network.SSHConfig) (executor.Remote, error) {
		*dialed = sshConfig
		return remote, nil
	}
	t.Cleanup(func() { dial = previous })
	return dialed
}

func mockPrompter(t *testing.T, answers ...string) *common.MockPrompter {
	t.Helper()
	previous := prompter
	mock := common.NewMockPrompter(answers...)
	prompter = mock
	t.Cleanup(func() { prompter = previous })
	return mock
}

// TestCommands tests every task has a command
func TestCommands(t *testing.T) {
	expected := []string{
		"backup-db", "backup-files", "backup-ftp", "backup-php-site", "create-db",
		"deploy", "drop-db", "drupal", "haystack-index-clear", "history", "kernel",
		"list-current", "list-offsite", "local-db", "ok", "reindex", "release", "restore",
		"server-name", "solr-status", "ssl", "valid", "version",
	}
	for _, name := range expected {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := RootCmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, cmd.Name())
			assert.NotNil(t, cmd.RunE)
		})
	}
}

// TestServerName tests finding the server from the pillar
func TestServerName(t *testing.T) {
	file, _ := writeConfig(t)
	out, err := run(t, "--config", file, "--site", "csw_web", "server-name")
	require.NoError(t, err)
	assert.Equal(t, "drop-temp\n", out)

	_, err = run(t, "--config", file, "--site", "does_not_exist", "server-name")
	require.Error(t, err)
	assert.True(t, common.IsSiteNotFound(err))

	_, err = run(t, "--config", file, "server-name")
	assert.ErrorContains(t, err, "the name of the site is required")
}

// TestValid tests the pillar and certificate checks
func TestValid(t *testing.T) {
	file, _ := writeConfig(t)
	out, err := run(t, "--config", file, "-s", "csw_web", "valid")
	require.NoError(t, err)
	assert.Equal(t, "The configuration for 'csw_web' on 'drop-temp' appears to be valid\n", out)

	_, err = run(t, "--config", file, "-s", "csw_web", "--server", "drop", "valid")
	require.Error(t, err)
	assert.True(t, common.IsSiteNotFound(err))
}

// TestKernel tests a server command on --host
func TestKernel(t *testing.T) {
	file, _ := writeConfig(t)
	remote := executor.NewMockExecutor("drop-temp").Respond("uname -r", "6.1.0-26-amd64\n", 0)
	dialed := mockDial(t, remote)

	out, err := run(t, "--config", file, "--host", "drop-temp", "kernel")
	require.NoError(t, err)
	assert.Equal(t, "6.1.0-26-amd64\n", out)
	assert.Equal(t, "drop-temp", dialed.Host)
	assert.Equal(t, "web", dialed.User)
	assert.Equal(t, 22, dialed.Port)
	assert.True(t, remote.Closed)
}

// TestSiteTask tests a site task connects to the site domain
func TestSiteTask(t *testing.T) {
	file, _ := writeConfig(t)
	remote := executor.NewMockExecutor("westcountrycoders.co.uk")
	dialed := mockDial(t, remote)
	mockPrompter(t, "Y")

	require.NoError(t, func() error {
		_, err := run(t, "--config", file, "-s", "csw_web", "haystack-index-clear")
		return err
	}())
	assert.Equal(t, "westcountrycoders.co.uk", dialed.Host)
	assert.True(t, remote.Ran("clear_index --noinput"))

	_, err := run(t, "--config", file, "-s", "csw_web", "drop-db", "01/01/2000-00:00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrAborted))
	assert.False(t, remote.Ran("DROP"))
}

// TestHistory tests listing the deploy ledger
func TestHistory(t *testing.T) {
	file, historyPath := writeConfig(t)
	store, err := history.Open(historyPath)
	require.NoError(t, err)
	rec, err := store.Start("csw_web", "drop-temp", "1.2.34", "/home/web/repo/project/csw_web/deploy/1_2_34")
	require.NoError(t, err)
	require.NoError(t, store.Finish(rec, nil))
	_, err = store.Start("kb_couk", "drop", "0.1.01", "")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := run(t, "--config", file, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "SITE")
	assert.Contains(t, out, "kb_couk")
	assert.Contains(t, out, "1.2.34")

	out, err = run(t, "--config", file, "--site", "csw_web", "history")
	require.NoError(t, err)
	assert.Contains(t, out, history.StatusSuccess)
	assert.NotContains(t, out, "kb_couk")
}

// TestVersion tests the version command needs no configuration
func TestVersion(t *testing.T) {
	out, err := run(t, "--config", "/does/not/exist.yaml", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "deploy ")
}

// TestConfigError tests an invalid configuration stops every task
func TestConfigError(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "deploy.yaml")
	require.NoError(t, os.WriteFile(file, []byte("ssh:\n  port: 0\n"), 0o644))
	_, err := run(t, "--config", file, "--site", "csw_web", "server-name")
	assert.ErrorContains(t, err, "invalid ssh port")
}

// TestListOffsite tests a bucket is required
func TestListOffsite(t *testing.T) {
	file, _ := writeConfig(t)
	_, err := run(t, "--config", file, "--site", "csw_web", "list-offsite")
	assert.ErrorContains(t, err, "offsite copies are not configured")
}

// TestDeployOptions tests the virtualenv python version comes from the pillar
func TestDeployOptions(t *testing.T) {
	file, _ := writeConfig(t)
	_, err := run(t, "--config", file, "--site", "csw_web", "server-name")
	require.NoError(t, err)

	for name, expected := range map[string]int{"csw_web": 3, "test_crm": 2} {
		t.Run(name, func(t *testing.T) {
			info, err := site.New("drop-temp", name, site.Options{PillarFolder: cfg.Folders.Pillar})
			require.NoError(t, err)
			opts := deployOptions(info, executor.NewMockExecutor("drop-temp"))
			assert.Equal(t, expected, opts.PythonVersion)
			assert.Equal(t, "drop-temp", opts.SSH.Host)
		})
	}
}

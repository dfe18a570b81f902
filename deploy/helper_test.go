package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
)

// TestPackageName tests the pip requirement and archive names
func TestPackageName(t *testing.T) {
	assert.Equal(t, "pkimber-csw-web==1.2.34", PackageName("pkimber", "csw_web", "1.2.34"))
	assert.Equal(t, "pkimber-csw-web-1.2.34.tar.gz", PackageArchive("pkimber", "csw_web", "1.2.34"))
	assert.Equal(t, "kb-hatherleigh.info-0.1.01.tar.gz", PackageArchive("kb", "hatherleigh.info", "0.1.01"))
}

// TestPackageCommands tests the download, extract and requirements lines
func TestPackageCommands(t *testing.T) {
	ctx := context.Background()
	mock := executor.NewMockExecutor("drop-temp")
	require.NoError(t, DownloadPackage(ctx, mock, "pkimber", "csw_web", "1.2.34", "/srv/install/temp"))
	require.NoError(t, ExtractProjectPackage(ctx, mock, "/srv/install", "/srv/install/temp", "pkimber", "csw_web", "1.2.34"))
	require.NoError(t, InstallRequirements(ctx, mock, "/srv/install", "/srv/install/venv"))
	assert.Equal(t, []string{
		"pip install --download=/srv/install/temp --no-deps pkimber-csw-web==1.2.34",
		"tar --strip-components=1 --directory=/srv/install -xzf /srv/install/temp/pkimber-csw-web-1.2.34.tar.gz",
		"/srv/install/venv/bin/pip install -r /srv/install/requirements/production.txt",
	}, mock.Lines())
}

// TestMkVirtualenv tests the python version switch
func TestMkVirtualenv(t *testing.T) {
	tests := []struct {
		name     string
		version  int
		expected string
		err      bool
	}{
		{"Python2", 2, "/usr/bin/virtualenv /srv/venv", false},
		{"Python3", 3, "/usr/bin/virtualenv --python=/usr/bin/python3 /srv/venv", false},
		{"Unknown", 4, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := executor.NewMockExecutor("drop-temp")
			err := MkVirtualenv(context.Background(), mock, "/srv/venv", tt.version)
			if tt.err {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "python version must be 2 or 3")
				assert.Empty(t, mock.Commands)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.expected}, mock.Lines())
		})
	}
}

// TestLinkInstallToLiveFolder tests replacing an existing live link
func TestLinkInstallToLiveFolder(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		mock := executor.NewMockExecutor("drop-temp")
		require.NoError(t, LinkInstallToLiveFolder(context.Background(), mock, "/srv/deploy/1", "/srv/live"))
		assert.Equal(t, []string{"test -e /srv/live", "ln -s /srv/deploy/1 /srv/live"}, mock.Lines())
	})
	t.Run("Existing", func(t *testing.T) {
		mock := executor.NewMockExecutor("drop-temp")
		mock.Existing["/srv/live"] = true
		require.NoError(t, LinkInstallToLiveFolder(context.Background(), mock, "/srv/deploy/2", "/srv/live"))
		assert.Equal(t, []string{"test -e /srv/live", "rm /srv/live", "ln -s /srv/deploy/2 /srv/live"}, mock.Lines())
	})
	t.Run("ProbeFails", func(t *testing.T) {
		mock := executor.NewMockExecutor("drop-temp").Respond("test -e", "permission denied", 2)
		err := LinkInstallToLiveFolder(context.Background(), mock, "/srv/deploy/2", "/srv/live")
		require.Error(t, err)
		assert.Equal(t, 2, executor.ExitCodeOf(err))
	})
}

// TestTouchVassalIni tests the reload of a uWSGI vassal
func TestTouchVassalIni(t *testing.T) {
	ini := "/home/web/repo/uwsgi/vassals/csw_web.ini"
	mock := executor.NewMockExecutor("drop-temp")
	err := TouchVassalIni(context.Background(), mock, ini)
	require.Error(t, err)
	assert.Equal(t, "uwsgi ini file does not exist: "+ini, err.Error())
	assert.True(t, errors.Is(err, common.ErrTask))

	mock.Existing[ini] = true
	require.NoError(t, TouchVassalIni(context.Background(), mock, ini))
	assert.True(t, mock.Ran("touch "+ini))
}

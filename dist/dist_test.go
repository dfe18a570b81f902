package dist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
)

func writeFiles(t *testing.T, folder string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(folder, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// projectFolder creates a project with an app, tests, static files and
// folders which are not packages.
func projectFolder(t *testing.T) string {
	folder := t.TempDir()
	writeFiles(t, folder, map[string]string{
		"setup.yaml":                      "description: Booking\nname: app_booking\nversion: 0.2.9\n",
		"requirements-pkimber.txt":        "pkimber-base==0.1.12\npkimber-login==0.1.04\n",
		"accounts/__init__.py":            "",
		"app/__init__.py":                 "",
		"app/tests/__init__.py":           "",
		"app/static/css/style.css":        "",
		"app/templates/app/home.html":     "",
		"app/templates/inner/__init__.py": "",
		"example/__init__.py":             "",
		"dist/old/__init__.py":            "",
		"project/__init__.py":             "",
		"docs/index.rst":                  "",
	})
	return folder
}

// TestCheckIsProjectOrApp tests the project or example folder check
func TestCheckIsProjectOrApp(t *testing.T) {
	assert.NoError(t, CheckIsProjectOrApp(projectFolder(t)))

	err := CheckIsProjectOrApp(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrAborted))
	assert.Contains(t, err.Error(), "Not a project or app")
}

// TestCheckScmStatus tests only setup.py may be uncommitted
func TestCheckScmStatus(t *testing.T) {
	assert.NoError(t, CheckScmStatus(nil))
	assert.NoError(t, CheckScmStatus([]string{"setup.py"}))
	assert.ErrorContains(t, CheckScmStatus([]string{"setup.py", "app/models.py"}), "have not been committed")
}

// TestSetup tests reading setup.yaml
func TestSetup(t *testing.T) {
	folder := projectFolder(t)
	description, err := Description(folder)
	require.NoError(t, err)
	assert.Equal(t, "Booking", description)
	name, err := Name(folder)
	require.NoError(t, err)
	assert.Equal(t, "app_booking", name)

	_, err = Name(t.TempDir())
	assert.ErrorContains(t, err, "File 'setup.yaml' does not exist")

	empty := t.TempDir()
	writeFiles(t, empty, map[string]string{"setup.yaml": "version: 0.1.0\n"})
	_, err = Description(empty)
	assert.ErrorContains(t, err, "Package 'description' not found in 'setup.yaml'")
}

// TestPackages tests finding the python packages
func TestPackages(t *testing.T) {
	folder := projectFolder(t)
	packages, err := Packages(folder)
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "accounts", "app.tests", "project"}, packages)
	assert.True(t, HasProjectPackage(packages))
	assert.False(t, HasProjectPackage([]string{"app", "example"}))

	data, err := PackageData(folder, packages)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"app": {"static", "static/css", "templates", "templates/app", "templates/inner"},
	}, data)
}

// TestNextVersion tests the suggested next version
func TestNextVersion(t *testing.T) {
	tests := []struct {
		current  string
		expected string
		errMsg   string
	}{
		{"0.2.9", "0.2.10", ""},
		{"0.2.1", "0.2.02", ""},
		{"1.0.15", "1.0.16", ""},
		{"0.2", "", "only three sections"},
		{"0.2.a", "", "only contain numbers"},
	}
	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			next, err := NextVersion(tt.current)
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
		})
	}
}

// TestValidateVersion tests version number checks
func TestValidateVersion(t *testing.T) {
	assert.NoError(t, ValidateVersion("0.2.10"))
	assert.ErrorContains(t, ValidateVersion("0.2.x"), "should contain only digits")
	assert.ErrorContains(t, ValidateVersion(""), "should contain only digits")
	assert.ErrorContains(t, ValidateVersion("0.2"), "should contain three elements")
}

// TestPromptVersion tests asking for and saving the release version
func TestPromptVersion(t *testing.T) {
	folder := projectFolder(t)
	p := common.NewMockPrompter("0.2", "0.3.1", "N", "", "Y")
	version, err := PromptVersion(folder, p)
	require.NoError(t, err)
	assert.Equal(t, "0.2.10", version)
	assert.Equal(t, "Version number to release (previous 0.2.9)", p.Messages[0])

	setup, err := ReadSetup(folder)
	require.NoError(t, err)
	assert.Equal(t, "0.2.10", setup["version"])
	assert.Equal(t, "Booking", setup["description"])

	_, err = PromptVersion(folder, common.NewMockPrompter())
	assert.Error(t, err)
}

// TestCheckRequirements tests confirming the project dependencies
func TestCheckRequirements(t *testing.T) {
	folder := projectFolder(t)
	require.NoError(t, CheckRequirements(folder, false, "pkimber", common.NewMockPrompter()))
	require.NoError(t, CheckRequirements(folder, true, "pkimber", common.NewMockPrompter("y")))
	require.NoError(t, CheckRequirements(folder, true, "kb", common.NewMockPrompter()))

	err := CheckRequirements(folder, true, "pkimber", common.NewMockPrompter("N"))
	assert.True(t, errors.Is(err, common.ErrAborted))

	writeFiles(t, folder, map[string]string{"requirements-bad.txt": "pkimber-base>=0.1\n"})
	err = CheckRequirements(folder, true, "bad", common.NewMockPrompter("Y"))
	assert.ErrorContains(t, err, "does not have a name and version number")
}

// TestArchiveName tests finding the archive created by sdist
func TestArchiveName(t *testing.T) {
	folder := t.TempDir()
	writeFiles(t, folder, map[string]string{"dist/pkimber-base-0.1.12.tar.gz": "x"})

	name, err := ArchiveName(folder, "running sdist\ncreating pkimber-base-0.1.12\nmaking hard links\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(folder, "dist", "pkimber-base-0.1.12.tar.gz"), name)

	_, err = ArchiveName(folder, "running sdist\n")
	assert.ErrorContains(t, err, "Cannot find archive name in output")
	_, err = ArchiveName(folder, "creating pkimber-base-0.1.13\n")
	assert.ErrorContains(t, err, "Cannot find archive name in the 'dist' folder")
}

// TestWriteManifestIn tests the MANIFEST.in content
func TestWriteManifestIn(t *testing.T) {
	folder := projectFolder(t)
	require.NoError(t, WriteManifestIn(folder, true, []string{"app", "accounts", "app.tests", "project"}))
	data, err := os.ReadFile(filepath.Join(folder, "MANIFEST.in"))
	require.NoError(t, err)
	assert.Equal(t, `recursive-include docs *
recursive-include app/static *
recursive-include app/templates *

include LICENSE
include manage.py
include README
include requirements/*.txt
include *.txt

prune example/`, string(data))
}

// TestWriteSetup tests the generated setup.py
func TestWriteSetup(t *testing.T) {
	folder := t.TempDir()
	require.NoError(t, WriteSetup(folder, Setup{
		Name:        "app_booking",
		Prefix:      "pkimber",
		Packages:    []string{"app", "project"},
		PackageData: map[string][]string{"app": {"templates", "static"}},
		Version:     "0.2.10",
		Description: "Booking",
		Author:      "Patrick Kimber",
		Email:       "code@pkimber.net",
		URL:         "git@github.com:pkimber/booking.git",
	}))
	data, err := os.ReadFile(filepath.Join(folder, "setup.py"))
	require.NoError(t, err)
	setup := string(data)
	assert.Contains(t, setup, "    name='pkimber-app-booking',\n")
	assert.Contains(t, setup, `    packages=['app', 'project'],
    package_data={
        'app': [
            'static/*.*',
            'templates/*.*',
        ],
    },
    version='0.2.10',
`)
	assert.Contains(t, setup, "    author_email='code@pkimber.net',\n")

	require.NoError(t, WriteSetup(folder, Setup{Name: "base", Prefix: "kb", Packages: []string{"base"}}))
	data, err = os.ReadFile(filepath.Join(folder, "setup.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "    packages=['base'],\n    version=''")
}

// TestRelease tests the whole release of a project
func TestRelease(t *testing.T) {
	folder := projectFolder(t)
	e := executor.NewMockExecutor("local").
		Respond("paths.default", "ssh://hg@bitbucket.org/pkimber/booking\n", 0).
		Respond("ui.username", "Patrick Kimber <code@pkimber.net>\n", 0).
		Respond("hg status", "M setup.py\n", 0)

	version, err := Release(context.Background(), ReleaseOptions{
		Folder:   folder,
		Prefix:   "pkimber",
		PyPIRC:   "dev",
		Exec:     e,
		Prompter: common.NewMockPrompter("Y", "", "Y"),
	})
	require.NoError(t, err)
	assert.Equal(t, "0.2.10", version)
	assert.True(t, e.Ran("hg commit -m 'version 0.2.10'"))
	assert.True(t, e.Ran("hg tag 0.2.10"))
	cmd, ok := e.Find("python setup.py")
	require.True(t, ok)
	assert.Equal(t, "python setup.py clean sdist upload -r dev", cmd.Line)
	assert.Equal(t, folder, cmd.Dir)
	assert.FileExists(t, filepath.Join(folder, "setup.py"))
	assert.FileExists(t, filepath.Join(folder, "MANIFEST.in"))
}

// TestRelease_Testing tests a release which skips version control and upload
func TestRelease_Testing(t *testing.T) {
	folder := projectFolder(t)
	e := executor.NewMockExecutor("local").
		Respond("paths.default", "ssh://hg@bitbucket.org/pkimber/booking\n", 0).
		Respond("hg status", "M app/models.py\n", 0)

	version, err := Release(context.Background(), ReleaseOptions{
		Folder:   folder,
		Prefix:   "pkimber",
		Testing:  true,
		Exec:     e,
		Prompter: common.NewMockPrompter("Y", "0.3.0", "Y"),
	})
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", version)
	assert.False(t, e.Ran("hg commit"))
	assert.False(t, e.Ran("python setup.py"))
}

// TestRelease_Uncommitted tests a release with uncommitted changes
func TestRelease_Uncommitted(t *testing.T) {
	e := executor.NewMockExecutor("local").
		Respond("paths.default", "ssh://hg@bitbucket.org/pkimber/booking\n", 0).
		Respond("hg status", "M app/models.py\n", 0)
	_, err := Release(context.Background(), ReleaseOptions{
		Folder:   projectFolder(t),
		Prefix:   "pkimber",
		Exec:     e,
		Prompter: common.NewMockPrompter(),
	})
	assert.ErrorContains(t, err, "have not been committed")
}

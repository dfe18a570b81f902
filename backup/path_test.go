package backup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy.evalgo.org/common"
)

var when = time.Date(2026, 10, 18, 9, 15, 0, 0, time.UTC)

func newTestPath(t *testing.T, name, fileType string) *Path {
	t.Helper()
	p, err := NewPathAt(name, fileType, when, "patrick")
	require.NoError(t, err)
	return p
}

// TestBackupFileName tests the extension of every file type
func TestBackupFileName(t *testing.T) {
	tests := []struct {
		fileType string
		expected string
	}{
		{"postgres", "csw_web_20261018_091500_patrick.sql"},
		{"mysql", "csw_web_20261018_091500_patrick.sql"},
		{"files", "csw_web_20261018_091500_patrick.tar.gz"},
		{"ftp", "csw_web_20261018_091500_patrick.ftp.tar.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.fileType, func(t *testing.T) {
			assert.Equal(t, tt.expected, newTestPath(t, "csw_web", tt.fileType).BackupFileName())
		})
	}
}

// TestNewPath_Names tests cleaning of the name
func TestNewPath_Names(t *testing.T) {
	p := newTestPath(t, "raymond@csw_web", "postgres")
	assert.NotContains(t, p.BackupFileName(), "raymond")

	p = newTestPath(t, "hatherleigh.info", "mysql")
	assert.Equal(t, "hatherleigh_info_20261018_091500_patrick", p.DatabaseName())

	p = newTestPath(t, "kb-couk", "files")
	assert.Equal(t, "test_kb_couk_patrick", p.TestDatabaseName())
	assert.Equal(t, "patrick", p.UserName())
	assert.Equal(t, "files", p.FileType())
}

// TestNewPath_Errors tests invalid names and file types
func TestNewPath_Errors(t *testing.T) {
	_, err := NewPathAt("csw_web_*", "postgres", when, "patrick")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid characters")
	assert.ErrorIs(t, err, common.ErrTask)

	_, err = NewPathAt("csw_web", "smartie", when, "patrick")
	assert.ErrorContains(t, err, "invalid file type: 'smartie'")
}

// TestFolders tests the remote and local folder names
func TestFolders(t *testing.T) {
	p := newTestPath(t, "csw_web", "postgres")
	assert.Equal(t, "/home/web/repo/files", p.FilesFolder())
	assert.Equal(t, "/home/hatherleigh_info/site", p.FTPFolder("hatherleigh_info"))
	assert.Equal(t, "~/repo/backup/postgres", p.RemoteFolder())
	assert.Equal(t, "~/repo/backup/postgres/csw_web_20261018_091500_patrick.sql", p.RemoteFile())
	assert.Equal(t, "csw_web/postgres/csw_web_20261018_091500_patrick.sql", p.ObjectKey("csw_web"))
	assert.Len(t, p.PHPFolders(), 5)

	home, err := homedir.Dir()
	require.NoError(t, err)

	local, err := p.LocalFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "repo", "backup", "postgres", "csw_web_20261018_091500_patrick.sql"), local)

	media, err := p.LocalProjectFolderMedia("csw_web")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "dev", "project", "csw_web", "media"), media)

	private, err := p.LocalProjectFolderMediaPrivate("csw_web")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "dev", "project", "csw_web", "media-private"), private)
}

// TestNewPath tests the current user is part of the name
func TestNewPath(t *testing.T) {
	p, err := NewPath("csw_web", "files")
	require.NoError(t, err)
	assert.Contains(t, p.Name(), "csw_web_")
	assert.Contains(t, p.Name(), time.Now().Format("2006"))
}

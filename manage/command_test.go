package manage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy.evalgo.org/executor"
)

type testSite struct {
	amazon    bool
	amazonErr error
	envErr    error
}

func (s testSite) SiteName() string { return "csw_web" }

func (s testSite) Env() (map[string]string, error) {
	if s.envErr != nil {
		return nil, s.envErr
	}
	return map[string]string{"DOMAIN": "westcountrycoders.co.uk", "SSL": "True"}, nil
}

func (s testSite) IsAmazon() (bool, error) { return s.amazon, s.amazonErr }

const (
	siteFolder = "/home/web/repo/project/csw_web/live"
	venvFolder = "/home/web/repo/project/csw_web/live/venv"
)

// TestCommands tests every management command line
func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		run      func(d *DjangoCommand, ctx context.Context) error
		expected string
	}{
		{"CollectStatic", (*DjangoCommand).CollectStatic, "collectstatic --noinput"},
		{"Compress", (*DjangoCommand).Compress, "compress"},
		{"HaystackIndex", (*DjangoCommand).HaystackIndex, "update_index"},
		{"HaystackIndexClear", (*DjangoCommand).HaystackIndexClear, "clear_index --noinput"},
		{"InitProject", (*DjangoCommand).InitProject, "init_project"},
		{"MigrateDatabase", (*DjangoCommand).MigrateDatabase, "migrate --noinput"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := executor.NewMockExecutor("drop-temp")
			d := New(mock, siteFolder, venvFolder, testSite{amazon: true})
			require.NoError(t, tt.run(d, context.Background()))
			require.Len(t, mock.Commands, 1)
			cmd := mock.Commands[0]
			assert.Equal(t, venvFolder+"/bin/python "+siteFolder+"/manage.py "+tt.expected, cmd.Line)
			assert.Equal(t, siteFolder, cmd.Dir)
			assert.Equal(t, "westcountrycoders.co.uk", cmd.Env["DOMAIN"])
		})
	}
}

// TestCompress_NotAmazon tests compress is skipped without amazon
func TestCompress_NotAmazon(t *testing.T) {
	mock := executor.NewMockExecutor("drop-temp")
	require.NoError(t, New(mock, siteFolder, venvFolder, testSite{}).Compress(context.Background()))
	assert.Empty(t, mock.Commands)

	err := New(mock, siteFolder, venvFolder, testSite{amazonErr: errors.New("no keys")}).Compress(context.Background())
	assert.EqualError(t, err, "no keys")
}

// TestRun_Errors tests environment and command failures
func TestRun_Errors(t *testing.T) {
	mock := executor.NewMockExecutor("drop-temp")
	err := New(mock, siteFolder, venvFolder, testSite{envErr: errors.New("bad env")}).CollectStatic(context.Background())
	assert.EqualError(t, err, "bad env")
	assert.Empty(t, mock.Commands)

	mock.Respond("migrate", "django.db.utils.OperationalError", 1)
	err = New(mock, siteFolder, venvFolder, testSite{}).MigrateDatabase(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, executor.ExitCodeOf(err))
}

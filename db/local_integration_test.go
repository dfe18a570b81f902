//go:build integration

package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"deploy.evalgo.org/executor"
)

// setupPostgresContainer starts a PostgreSQL container for testing
func setupPostgresContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start PostgreSQL container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=postgres password=testpass dbname=postgres sslmode=disable", host, port.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return dsn, cleanup
}

// setupMySQLContainer starts a MySQL container for testing
func setupMySQLContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "testpass",
			"MYSQL_DATABASE":      "hatherleigh_info",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start MySQL container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), cleanup
}

// TestLocalPostgres_Integration tests database and role management
func TestLocalPostgres_Integration(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	defer cleanup()

	ctx := context.Background()
	pg, err := OpenLocalPostgres(dsn, executor.NewCommandExecutor())
	require.NoError(t, err)
	defer pg.Close()

	exists, err := pg.DatabaseExists(ctx, "test_csw_web_patrick")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, pg.CreateDatabase(ctx, "test_csw_web_patrick"))
	exists, err = pg.DatabaseExists(ctx, "test_csw_web_patrick")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = pg.UserExists(ctx, "csw_web")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, pg.CreateUser(ctx, "csw_web", "csw_web"))
	exists, err = pg.UserExists(ctx, "csw_web")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, pg.DropDatabase(ctx, "test_csw_web_patrick"))
	exists, err = pg.DatabaseExists(ctx, "test_csw_web_patrick")
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestLocalMySQL_Integration tests the existence checks
func TestLocalMySQL_Integration(t *testing.T) {
	addr, cleanup := setupMySQLContainer(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, err := OpenLocalMySQL(ctx, "root", "testpass", addr)
	require.NoError(t, err)
	defer m.Close()

	exists, err := m.DatabaseExists(ctx, "hatherleigh_info")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.DatabaseExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = m.UserExists(ctx, "root")
	require.NoError(t, err)
	assert.True(t, exists)
}

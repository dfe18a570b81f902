//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"deploy.evalgo.org/config"
)

// setupMinIOContainer starts a MinIO container for S3-compatible testing
func setupMinIOContainer(t *testing.T) string {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			Cmd: []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").
				WithPort("9000/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start MinIO container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// TestS3Store_MinIO tests uploading and listing against a real server
func TestS3Store_MinIO(t *testing.T) {
	ctx := context.Background()
	store, err := NewS3Store(ctx, config.S3Config{
		Endpoint:  setupMinIOContainer(t),
		Region:    "us-east-1",
		Bucket:    testBucket,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(ctx))

	file := writeFile(t, "20240101_1200.sql", "select 1;\n")
	result, err := store.Upload(ctx, file, "csw_web/postgres/20240101_1200.sql")
	require.NoError(t, err)
	assert.False(t, result.Skipped)

	result, err = store.Upload(ctx, file, "csw_web/postgres/20240101_1200.sql")
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	objects, err := store.List(ctx, "csw_web/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, int64(10), objects[0].Size)
}

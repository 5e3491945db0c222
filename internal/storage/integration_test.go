//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"opsdesk/internal/config"
	"opsdesk/internal/storage"
)

func TestObjectStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Cmd:          []string{"server", "/data"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "opsdesk",
				"MINIO_ROOT_PASSWORD": "opsdesk-secret",
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	store, err := storage.NewObjectStore(config.StorageConfig{
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKey: "opsdesk",
		SecretKey: "opsdesk-secret",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	require.NoError(t, store.EnsureBucket(ctx, "opsdesk-audit"))
	require.NoError(t, store.EnsureBucket(ctx, "opsdesk-audit"))

	body := []byte("{\"type\":\"logout\"}\n")
	require.NoError(t, store.PutObject(ctx, "opsdesk-audit", "audit/2026/10/17.jsonl", body, "application/x-ndjson"))

	got, err := store.GetObject(ctx, "opsdesk-audit", "audit/2026/10/17.jsonl")
	require.NoError(t, err)
	require.Equal(t, body, got)
}

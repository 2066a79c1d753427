package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamwilson22/Velaa-Backend/internal/config"
)

func TestExportKey(t *testing.T) {
	a := ExportKey("2024-10", "csv")
	b := ExportKey("2024-10", "csv")
	assert.True(t, strings.HasPrefix(a, "exports/billing/2024-10/"))
	assert.True(t, strings.HasSuffix(a, ".csv"))
	assert.NotEqual(t, a, b)
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	_, err := m.PresignGet(ctx, "missing", time.Hour)
	assert.Error(t, err)

	require.NoError(t, m.PutObject(ctx, "k", "text/csv", []byte("a,b\n")))
	url, err := m.PresignGet(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "memory://k?expires=3600", url)

	obj, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "text/csv", obj.ContentType)
}

func TestNewS3Storage_RequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), &config.Config{AwsRegion: "us-east-1"})
	assert.Error(t, err)
}

func TestS3Storage_PresignGet(t *testing.T) {
	s, err := NewS3Storage(context.Background(), &config.Config{
		AwsRegion:          "us-east-1",
		AwsS3Bucket:        "velaa-exports",
		AwsAccessKeyID:     "AKIDEXAMPLE",
		AwsSecretAccessKey: "secret",
	})
	require.NoError(t, err)

	url, err := s.PresignGet(context.Background(), "exports/billing/2024-10/x.csv", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "velaa-exports")
	assert.Contains(t, url, "X-Amz-Expires=900")
}

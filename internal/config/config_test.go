package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("S3QL_CACHE_DIR", "/var/lib/s3ql/cache")
	t.Setenv("S3QL_BACKEND_LOCAL_PATH", "/var/lib/s3ql/objects")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/s3ql/cache", cfg.Cache.Dir)
	assert.Equal(t, DefaultMaxEntries, cfg.Cache.MaxEntries)
	assert.Equal(t, DefaultUploadThreads, cfg.Cache.UploadThreads)
	assert.Equal(t, DefaultRemovalQueueSize, cfg.Cache.RemovalQueueSize)
	assert.Equal(t, "local", cfg.Backend.Kind)
	assert.Equal(t, "memory", cfg.Metadata.Driver)
}

func TestValidateRejectsMissingCacheDir(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{Kind: "local", Local: LocalConfig{Path: "/tmp"}}}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "cache.dir")
}

func TestValidateRequiresS3Bucket(t *testing.T) {
	cfg := &Config{
		Cache:   CacheConfig{Dir: "/tmp/cache", MaxEntries: 10},
		Backend: BackendConfig{Kind: "s3"},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "backend.s3.bucket")
}

func TestValidateRequiresPostgresDSN(t *testing.T) {
	cfg := &Config{
		Cache:    CacheConfig{Dir: "/tmp/cache", MaxEntries: 10},
		Backend:  BackendConfig{Kind: "local", Local: LocalConfig{Path: "/tmp"}},
		Metadata: MetadataConfig{Driver: "postgres"},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "metadata.dsn")
}

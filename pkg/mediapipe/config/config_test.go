package config

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
)

func validConfig() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		DatabaseType: "memory",
		StorageType:  "memory",
		QueueType:    "memory",
		NotifierType: "memory",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"valid", func(c *ServerConfig) {}, ""},
		{"missing port", func(c *ServerConfig) { c.Port = "" }, "port"},
		{"unknown database", func(c *ServerConfig) { c.DatabaseType = "mysql" }, "DATABASE_TYPE"},
		{"postgres without url", func(c *ServerConfig) { c.DatabaseType = "postgres" }, "DATABASE_URL"},
		{"unknown storage", func(c *ServerConfig) { c.StorageType = "tape" }, "STORAGE_TYPE"},
		{"s3 without bucket", func(c *ServerConfig) { c.StorageType = "s3" }, "S3_BUCKET"},
		{"unknown queue", func(c *ServerConfig) { c.QueueType = "sqs" }, "QUEUE_TYPE"},
		{"unknown notifier", func(c *ServerConfig) { c.NotifierType = "kafka" }, "NOTIFIER_TYPE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	// The default QUEUE_TYPE is redis; pin it to memory so Load validates
	// without external services.
	t.Setenv("QUEUE_TYPE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, time.Hour, cfg.URLTTL)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 3, cfg.JobMaxRetries)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 480, cfg.ThumbnailWidth)
	assert.Equal(t, 30*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUEUE_TYPE", "memory")
	t.Setenv("PORT", "9999")
	t.Setenv("URL_TTL", "15m")
	t.Setenv("JOB_MAX_RETRIES", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.URLTTL)
	assert.Equal(t, 7, cfg.JobMaxRetries)
}

func TestBuildMemoryBackends(t *testing.T) {
	cfg := validConfig()

	repo, err := cfg.BuildRepository(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, repo)

	store, err := cfg.BuildBlobStore()
	require.NoError(t, err)
	assert.NotNil(t, store)

	enq, err := cfg.BuildEnqueuer()
	require.NoError(t, err)
	assert.NotNil(t, enq)

	notifier, subscriber, err := cfg.BuildNotifier(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, notifier)
	assert.NotNil(t, subscriber)
}

func TestBuildServiceMemoryQueueIsConsumable(t *testing.T) {
	cfg := validConfig()

	b, err := cfg.BuildService(context.Background())
	require.NoError(t, err)

	mq, ok := b.Queue.(*queue.Memory)
	require.True(t, ok, "memory queue config must expose the in-process consumer")

	_, err = b.Service.RequestImport(context.Background(), mediapipe.ImportRequest{
		OwnerID:   uuid.New(),
		Kind:      mediapipe.KindVideo,
		SourceURL: "https://example.com/clip.mp4",
	})
	require.NoError(t, err)

	// A job enqueued through the service is claimable in the same process.
	job, err := mq.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queue.KindImportVideo, job.Kind)
}

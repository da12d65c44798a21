// Package config loads pipeline configuration from the environment and
// builds the concrete repository, storage, queue and notifier backends.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/notify"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
	repomemory "github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/repo/memory"
	repopg "github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/repo/postgres"
	fsstorage "github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/storage/fs"
	memorystorage "github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/storage/memory"
	s3storage "github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/storage/s3"
)

// ServerConfig represents configuration for the media pipeline services
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	// Database configuration
	DatabaseType string `env:"DATABASE_TYPE" env-default:"memory"` // "memory", "postgres"
	DatabaseURL  string `env:"DATABASE_URL"`

	// Storage configuration
	StorageType  string `env:"STORAGE_TYPE" env-default:"memory"` // "memory", "fs", "s3"
	FSBaseDir    string `env:"FS_BASE_DIR" env-default:"./data/blobs"`
	FSURLPrefix  string `env:"FS_URL_PREFIX"`
	S3Region     string `env:"S3_REGION" env-default:"us-east-1"`
	S3Bucket     string `env:"S3_BUCKET"`
	S3AccessKey  string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey  string `env:"S3_SECRET_ACCESS_KEY"`
	S3Endpoint   string `env:"S3_ENDPOINT"`
	S3PathStyle  bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3AutoBucket bool   `env:"S3_CREATE_BUCKET" env-default:"false"`

	// Queue configuration
	QueueType     string `env:"QUEUE_TYPE" env-default:"redis"` // "memory", "redis"
	RedisAddr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Notifier configuration
	NotifierType string `env:"NOTIFIER_TYPE" env-default:"memory"` // "none", "memory", "nats", "redis"
	NATSURL      string `env:"NATS_URL" env-default:"nats://localhost:4222"`

	// Pipeline tuning
	URLTTL            time.Duration `env:"URL_TTL" env-default:"1h"`
	JobTimeout        time.Duration `env:"JOB_TIMEOUT" env-default:"10m"`
	JobMaxRetries     int           `env:"JOB_MAX_RETRIES" env-default:"3"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" env-default:"4"`
	ScratchDir        string        `env:"SCRATCH_DIR"`
	ThumbnailWidth    int           `env:"THUMBNAIL_WIDTH" env-default:"480"`
	StaleAfter        time.Duration `env:"STALE_AFTER" env-default:"30m"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" env-default:"5m"`
}

// Load reads configuration from the environment.
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("DATABASE_TYPE must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required when using postgres")
	}
	switch c.StorageType {
	case "memory", "fs":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when using s3 storage")
		}
	default:
		return errors.New("STORAGE_TYPE must be 'memory', 'fs' or 's3'")
	}
	if c.QueueType != "memory" && c.QueueType != "redis" {
		return errors.New("QUEUE_TYPE must be 'memory' or 'redis'")
	}
	switch c.NotifierType {
	case "none", "memory", "nats", "redis":
	default:
		return errors.New("NOTIFIER_TYPE must be 'none', 'memory', 'nats' or 'redis'")
	}
	return nil
}

// BuildRepository creates a Repository based on the configuration
func (c *ServerConfig) BuildRepository(ctx context.Context) (mediapipe.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", c.DatabaseType)
	}
}

// BuildBlobStore creates a BlobStore based on the configuration
func (c *ServerConfig) BuildBlobStore() (mediapipe.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   c.FSBaseDir,
			URLPrefix: c.FSURLPrefix,
			URLTTL:    c.URLTTL,
		})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.S3Region,
			Bucket:                 c.S3Bucket,
			AccessKeyID:            c.S3AccessKey,
			SecretAccessKey:        c.S3SecretKey,
			Endpoint:               c.S3Endpoint,
			UsePathStyle:           c.S3PathStyle,
			PresignDuration:        int(c.URLTTL.Seconds()),
			CreateBucketIfNotExist: c.S3AutoBucket,
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", c.StorageType)
	}
}

// RedisConfig returns the queue backend connection parameters.
func (c *ServerConfig) RedisConfig() queue.RedisConfig {
	return queue.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// BuildEnqueuer creates the producer side of the queue. The memory queue
// is returned as both so a single process can produce and consume it.
func (c *ServerConfig) BuildEnqueuer() (queue.Enqueuer, error) {
	switch c.QueueType {
	case "memory":
		return queue.NewMemory(), nil
	case "redis":
		return queue.NewClient(c.RedisConfig()), nil
	default:
		return nil, fmt.Errorf("unknown queue type: %s", c.QueueType)
	}
}

// BuildNotifier creates the publish side of the progress channel. The
// returned subscriber is nil for backends that cannot subscribe in this
// process.
func (c *ServerConfig) BuildNotifier(ctx context.Context) (notify.Notifier, notify.Subscriber, error) {
	switch c.NotifierType {
	case "none":
		return notify.Noop{}, nil, nil
	case "memory":
		m := notify.NewMemory()
		return m, m, nil
	case "nats":
		n, err := notify.ConnectNATS(c.NATSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		return n, n, nil
	case "redis":
		r, err := notify.ConnectRedis(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return r, r, nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier type: %s", c.NotifierType)
	}
}

// Backends is the assembled set of components a process runs on. Queue
// holds the producer side; with QUEUE_TYPE=memory it is a *queue.Memory,
// which the server process must also consume (register handlers and run
// its loop) since no separate worker can reach an in-process queue.
type Backends struct {
	Service    mediapipe.Service
	Store      mediapipe.BlobStore
	Queue      queue.Enqueuer
	Notifier   notify.Notifier
	Subscriber notify.Subscriber
}

// BuildService assembles the core service from the configured backends.
func (c *ServerConfig) BuildService(ctx context.Context) (*Backends, error) {
	repo, err := c.BuildRepository(ctx)
	if err != nil {
		return nil, err
	}
	store, err := c.BuildBlobStore()
	if err != nil {
		return nil, err
	}
	enqueuer, err := c.BuildEnqueuer()
	if err != nil {
		return nil, err
	}
	notifier, subscriber, err := c.BuildNotifier(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := mediapipe.New(
		mediapipe.WithRepository(repo),
		mediapipe.WithBlobStore(store),
		mediapipe.WithEnqueuer(enqueuer),
		mediapipe.WithNotifier(notifier),
		mediapipe.WithURLTTL(c.URLTTL),
		mediapipe.WithJobTimeout(c.JobTimeout),
		mediapipe.WithMaxRetries(c.JobMaxRetries),
	)
	if err != nil {
		return nil, err
	}
	return &Backends{
		Service:    svc,
		Store:      store,
		Queue:      enqueuer,
		Notifier:   notifier,
		Subscriber: subscriber,
	}, nil
}

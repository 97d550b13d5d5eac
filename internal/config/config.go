package config

import (
	"fmt"

	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/kelseyhightower/envconfig"
)

// Part size bounds enforced by the remote backend.
const (
	MinPartSize     = 5 * 1024 * 1024
	MaxPartSize     = 128 * 1024 * 1024
	DefaultPartSize = 50 * 1024 * 1024
)

type Config struct {
	Upstream UpstreamConfig
	Store    StoreConfig
	Minio    MinioConfig
}

type UpstreamConfig struct {
	WorkDir     string `envconfig:"UPSTREAM_WORK_DIR" required:"true"`
	PartSize    int64  `envconfig:"UPSTREAM_PART_SIZE" default:"52428800"` // 50MiB
	Parallelism int    `envconfig:"UPSTREAM_PARALLELISM" default:"1"`
}

type StoreConfig struct {
	// Backend selects the session store implementation: "file" or "bolt".
	Backend  string `envconfig:"STORE_BACKEND" default:"file"`
	FileRoot string `envconfig:"STORE_FILE_ROOT" default:"sessions"`
	BoltPath string `envconfig:"STORE_BOLT_PATH" default:"upstream.db"`
}

type MinioConfig struct {
	Endpoint   string `envconfig:"MINIO_ENDPOINT" required:"true"`
	BucketName string `envconfig:"MINIO_BUCKET_NAME" required:"true"`
	AccessKey  string `envconfig:"MINIO_ACCESS_KEY" required:"true"`
	SecretKey  string `envconfig:"MINIO_SECRET_KEY" required:"true"`
	UseSSL     bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

// Validate checks the part size against the backend bounds.
func (c UpstreamConfig) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("%w: work dir must not be empty", domain.ErrInvalidConfiguration)
	}
	if c.PartSize < MinPartSize {
		return fmt.Errorf("%w: part size must be at least %d bytes", domain.ErrInvalidConfiguration, MinPartSize)
	}
	if c.PartSize > MaxPartSize {
		return fmt.Errorf("%w: part size must be at most %d bytes", domain.ErrInvalidConfiguration, MaxPartSize)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism must be at least 1", domain.ErrInvalidConfiguration)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

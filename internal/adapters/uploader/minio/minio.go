// Package minio implements the upload client against S3-compatible object
// storage. Each part is stored as its own object under the video id, e.g.
// vi123/part.00001, so an interrupted session can resume without any
// server-side multipart bookkeeping.
package minio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/apivideo/go-upstream/internal/config"
	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/apivideo/go-upstream/internal/core/port"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client is an upload client backed by an S3-compatible bucket.
type Client struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

var _ port.UploadClient = (*Client)(nil)

// NewClient connects to the object storage and makes sure the bucket exists.
func NewClient(ctx context.Context, cfg config.MinioConfig, logger *slog.Logger) (*Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Client{client: client, bucket: cfg.BucketName, logger: logger}, nil
}

func (c *Client) NewVideoSession(videoID string) port.Uploader {
	return &uploader{client: c, videoID: videoID}
}

func (c *Client) NewTokenSession(token, videoID string) port.Uploader {
	return &uploader{client: c, token: token, videoID: videoID}
}

type uploader struct {
	client *Client
	token  string

	mu      sync.Mutex
	videoID string
}

func (u *uploader) UploadPart(ctx context.Context, filePath string, partIndex int, progress port.ProgressFunc) (*domain.Video, error) {
	return u.put(ctx, filePath, partIndex, progress)
}

func (u *uploader) UploadLastPart(ctx context.Context, filePath string, partIndex int, progress port.ProgressFunc) (*domain.Video, error) {
	return u.put(ctx, filePath, partIndex, progress)
}

func (u *uploader) put(ctx context.Context, filePath string, partIndex int, progress port.ProgressFunc) (*domain.Video, error) {
	videoID := u.ensureVideoID()

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open part file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat part file: %w", err)
	}

	key := fmt.Sprintf("%s/part.%05d", videoID, partIndex)
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if progress != nil {
		opts.Progress = &progressReader{total: info.Size(), report: progress}
	}

	if _, err := u.client.client.PutObject(ctx, u.client.bucket, key, f, info.Size(), opts); err != nil {
		return nil, fmt.Errorf("failed to upload part %d: %w", partIndex, err)
	}

	u.client.logger.Info("part uploaded",
		slog.String("videoId", videoID),
		slog.Int("part", partIndex),
		slog.Int64("size", info.Size()))

	return &domain.Video{ID: videoID}, nil
}

// ensureVideoID assigns a video id on the first upload of a token session.
func (u *uploader) ensureVideoID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.videoID == "" {
		u.videoID = uuid.NewString()
	}
	return u.videoID
}

// progressReader translates the bytes minio reports as transferred into a
// percentage for the part listener.
type progressReader struct {
	total  int64
	seen   int64
	report port.ProgressFunc
}

func (r *progressReader) Read(b []byte) (int, error) {
	r.seen += int64(len(b))
	if r.total > 0 {
		percent := int(r.seen * 100 / r.total)
		if percent > 100 {
			percent = 100
		}
		r.report(percent)
	}
	return len(b), nil
}

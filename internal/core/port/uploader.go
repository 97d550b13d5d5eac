package port

import (
	"context"

	"github.com/apivideo/go-upstream/internal/core/domain"
)

// ProgressFunc reports upload progress as a percentage in [0, 100].
type ProgressFunc func(percent int)

// Uploader uploads the parts of a single video. An implementation is bound to
// either a video id or an upload token at creation time.
//
// Both methods block until the upload finishes and are expected to honour
// context cancellation by returning the context error.
type Uploader interface {
	UploadPart(ctx context.Context, filePath string, partIndex int, progress ProgressFunc) (*domain.Video, error)
	UploadLastPart(ctx context.Context, filePath string, partIndex int, progress ProgressFunc) (*domain.Video, error)
}

// UploadClient creates per-video upload sessions against the remote backend
type UploadClient interface {
	NewVideoSession(videoID string) Uploader
	// NewTokenSession creates an uploader for a delegated upload token. The
	// video id may be empty; it is then assigned by the backend on the first
	// uploaded part.
	NewTokenSession(token, videoID string) Uploader
}

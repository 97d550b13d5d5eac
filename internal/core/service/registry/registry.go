// Package registry is the composition entry point of the library: it creates
// upload sessions for a video id or an upload token, reloads resumable
// sessions from the store and wires part writers into them.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/apivideo/go-upstream/internal/config"
	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/apivideo/go-upstream/internal/core/port"
	"github.com/apivideo/go-upstream/internal/core/service/partwriter"
	"github.com/apivideo/go-upstream/internal/core/service/session"
	"github.com/google/uuid"
)

const partDirName = "parts"

// Registry creates and reloads upload sessions against an explicitly injected
// store and upload client. Its lifecycle is owned by the caller; there is no
// process-wide instance.
type Registry struct {
	store  port.SessionStore
	client port.UploadClient
	cfg    config.UpstreamConfig
	logger *slog.Logger

	sessionListener port.SessionListener
	partListener    port.PartListener
}

// Options configures a Registry.
type Options struct {
	Logger          *slog.Logger
	SessionListener port.SessionListener
	PartListener    port.PartListener
}

// New validates the configuration and builds a Registry.
func New(store port.SessionStore, client port.UploadClient, cfg config.UpstreamConfig, opts Options) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || client == nil {
		return nil, fmt.Errorf("%w: store and upload client are required", domain.ErrInvalidConfiguration)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		store:           store,
		client:          client,
		cfg:             cfg,
		logger:          logger,
		sessionListener: opts.SessionListener,
		partListener:    opts.PartListener,
	}, nil
}

// ForVideoID creates a session that uploads to an existing video.
func (r *Registry) ForVideoID(ctx context.Context, videoID string) (*session.Session, error) {
	if videoID == "" {
		return nil, fmt.Errorf("%w: video id must not be empty", domain.ErrInvalidConfiguration)
	}
	return r.create(ctx, videoID, "")
}

// ForUploadToken creates a session that uploads through a delegated upload
// token. The video id is optional; when empty it is learned from the first
// successful part upload.
func (r *Registry) ForUploadToken(ctx context.Context, token, videoID string) (*session.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: upload token must not be empty", domain.ErrInvalidConfiguration)
	}
	return r.create(ctx, videoID, token)
}

func (r *Registry) create(ctx context.Context, videoID, token string) (*session.Session, error) {
	sessionID := uuid.NewString()

	if err := r.store.Insert(ctx, sessionID); err != nil {
		return nil, err
	}
	if videoID != "" {
		if err := r.store.InsertVideoID(ctx, sessionID, videoID); err != nil {
			return nil, err
		}
	}
	if token != "" {
		if err := r.store.InsertToken(ctx, sessionID, token); err != nil {
			return nil, err
		}
	}

	var uploader port.Uploader
	if token != "" {
		uploader = r.client.NewTokenSession(token, videoID)
	} else {
		uploader = r.client.NewVideoSession(videoID)
	}

	r.logger.Info("session created", "session", sessionID, "videoId", videoID)
	return session.New(ctx, sessionID, videoID, r.store, uploader, r.sessionOptions()), nil
}

// Load reconstructs a resumable session from the store.
func (r *Registry) Load(ctx context.Context, sessionID string) (*session.Session, error) {
	return session.Load(ctx, sessionID, r.store, r.client, r.sessionOptions())
}

// OpenStream returns the writer the capture pipeline feeds: bytes written to
// it are sliced into part files which are submitted to the session as their
// boundaries are crossed. Closing the writer submits the final part.
func (r *Registry) OpenStream(sess *session.Session) (io.WriteCloser, error) {
	dir := filepath.Join(r.cfg.WorkDir, sess.ID(), partDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return partwriter.New(dir, r.cfg.PartSize, func(index int, isLast bool, filePath string) {
		if err := sess.SubmitPart(index, isLast, filePath); err != nil {
			r.logger.Error("failed to submit part", "session", sess.ID(), "part", index, "error", err)
		}
	})
}

// SessionIDs lists the ids of the sessions known to the store, i.e. the
// sessions that have not completed yet.
func (r *Registry) SessionIDs(ctx context.Context) ([]string, error) {
	sessions, err := r.store.AllSessions(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// SessionIDForVideoID returns the id of the session uploading videoID, or an
// empty string when there is none.
func (r *Registry) SessionIDForVideoID(ctx context.Context, videoID string) (string, error) {
	sess, err := r.store.GetByVideoID(ctx, videoID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", nil
	}
	return sess.ID, nil
}

// VideoIDOf returns the video id of a stored session. It is empty for a
// token-based session that has not completed any part yet.
func (r *Registry) VideoIDOf(ctx context.Context, sessionID string) (string, error) {
	sess, err := r.store.GetByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownSession, sessionID)
	}
	return sess.VideoID, nil
}

// Delete removes a session's record and every file it left behind.
func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	if err := r.store.Remove(ctx, sessionID); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(r.cfg.WorkDir, sessionID)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// DeleteAll removes every known session.
func (r *Registry) DeleteAll(ctx context.Context) error {
	ids, err := r.SessionIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) sessionOptions() session.Options {
	return session.Options{
		Parallelism:     r.cfg.Parallelism,
		Logger:          r.logger,
		SessionListener: r.sessionListener,
		PartListener:    r.partListener,
	}
}

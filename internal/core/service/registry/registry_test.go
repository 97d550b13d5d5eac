package registry_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apivideo/go-upstream/internal/adapters/store/memory"
	"github.com/apivideo/go-upstream/internal/adapters/uploader"
	"github.com/apivideo/go-upstream/internal/config"
	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/apivideo/go-upstream/internal/core/service/registry"
	"github.com/apivideo/go-upstream/internal/core/service/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newConfig(t *testing.T) config.UpstreamConfig {
	t.Helper()
	return config.UpstreamConfig{
		WorkDir:     t.TempDir(),
		PartSize:    config.MinPartSize,
		Parallelism: 2,
	}
}

func newRegistry(t *testing.T, store *memory.Store, client *uploader.MockUploadClient) *registry.Registry {
	t.Helper()
	reg, err := registry.New(store, client, newConfig(t), registry.Options{})
	require.NoError(t, err)
	return reg
}

func waitOrFail(t *testing.T, s *session.Session) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("session did not reach a terminal state")
	}
}

func TestNew_ValidatesConfiguration(t *testing.T) {
	store := memory.New()
	client := uploader.NewMockUploadClient()

	_, err := registry.New(store, client, config.UpstreamConfig{
		WorkDir:     t.TempDir(),
		PartSize:    1024,
		Parallelism: 1,
	}, registry.Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = registry.New(nil, client, newConfig(t), registry.Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestForVideoID_RejectsEmptyVideoID(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	reg := newRegistry(t, store, uploader.NewMockUploadClient())

	_, err := reg.ForVideoID(ctx, "")

	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	ids, listErr := reg.SessionIDs(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, ids, "a rejected creation must not leave a store record")
}

func TestForUploadToken_RejectsEmptyToken(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	reg := newRegistry(t, store, uploader.NewMockUploadClient())

	_, err := reg.ForUploadToken(ctx, "", "vi1")

	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestForVideoID_CreatesStoreRecord(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := memory.New()
	client := uploader.NewMockUploadClient()
	client.On("NewVideoSession", "vi1").Return(uploader.NewMockUploader())
	reg := newRegistry(t, store, client)

	// Act
	sess, err := reg.ForVideoID(ctx, "vi1")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "vi1", sess.VideoID())
	id, err := reg.SessionIDForVideoID(ctx, "vi1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID(), id)
	videoID, err := reg.VideoIDOf(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "vi1", videoID)
	client.AssertExpectations(t)
}

func TestForUploadToken_CreatesStoreRecord(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := memory.New()
	client := uploader.NewMockUploadClient()
	client.On("NewTokenSession", "token1", "").Return(uploader.NewMockUploader())
	reg := newRegistry(t, store, client)

	// Act
	sess, err := reg.ForUploadToken(ctx, "token1", "")
	require.NoError(t, err)

	// Assert: the token is persisted, the video id is still unknown.
	stored, err := store.GetByID(ctx, sess.ID())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "token1", stored.Token)
	assert.Empty(t, stored.VideoID)
	client.AssertExpectations(t)
}

func TestVideoIDOf_UnknownSession(t *testing.T) {
	reg := newRegistry(t, memory.New(), uploader.NewMockUploadClient())

	_, err := reg.VideoIDOf(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrUnknownSession)
}

func TestOpenStream_UploadsStreamedParts(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := memory.New()
	up := uploader.NewMockUploader()
	up.On("UploadPart", mock.Anything, mock.Anything, 1, mock.Anything).
		Return(&domain.Video{ID: "vi1"}, nil)
	up.On("UploadLastPart", mock.Anything, mock.Anything, 2, mock.Anything).
		Return(&domain.Video{ID: "vi1"}, nil)
	client := uploader.NewMockUploadClient()
	client.On("NewVideoSession", "vi1").Return(up)
	reg := newRegistry(t, store, client)

	sess, err := reg.ForVideoID(ctx, "vi1")
	require.NoError(t, err)

	// Act: stream one full part plus a tail, then close.
	w, err := reg.OpenStream(sess)
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte{0xAB}, config.MinPartSize))
	require.NoError(t, err)
	_, err = w.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	waitOrFail(t, sess)

	// Assert
	assert.Equal(t, domain.SessionStateCompleted, sess.State())
	assert.Equal(t, 2, sess.PartsSucceeded())
	up.AssertExpectations(t)
}

func TestDelete_RemovesRecordAndWorkDir(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := memory.New()
	client := uploader.NewMockUploadClient()
	client.On("NewVideoSession", "vi1").Return(uploader.NewMockUploader())
	cfg := newConfig(t)
	reg, err := registry.New(store, client, cfg, registry.Options{})
	require.NoError(t, err)

	sess, err := reg.ForVideoID(ctx, "vi1")
	require.NoError(t, err)
	sessionDir := filepath.Join(cfg.WorkDir, sess.ID())
	require.NoError(t, os.MkdirAll(sessionDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "leftover"), []byte("x"), 0o644))

	// Act
	require.NoError(t, reg.Delete(ctx, sess.ID()))

	// Assert
	stored, err := store.GetByID(ctx, sess.ID())
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.NoDirExists(t, sessionDir)
}

func TestDeleteAll(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := memory.New()
	client := uploader.NewMockUploadClient()
	client.On("NewVideoSession", mock.Anything).Return(uploader.NewMockUploader())
	reg := newRegistry(t, store, client)
	_, err := reg.ForVideoID(ctx, "vi1")
	require.NoError(t, err)
	_, err = reg.ForVideoID(ctx, "vi2")
	require.NoError(t, err)

	// Act
	require.NoError(t, reg.DeleteAll(ctx))

	// Assert
	ids, err := reg.SessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

package bolt_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apivideo/go-upstream/internal/adapters/store/bolt"
	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *bolt.Store {
	t.Helper()
	store, err := bolt.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Insert(ctx, "s1"))
	require.NoError(t, store.InsertVideoID(ctx, "s1", "vi1"))
	require.NoError(t, store.InsertToken(ctx, "s1", "token1"))

	session, err := store.GetByID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "vi1", session.VideoID)
	assert.Equal(t, "token1", session.Token)

	assert.ErrorIs(t, store.Insert(ctx, "s1"), domain.ErrDuplicateSession)
	assert.ErrorIs(t, store.InsertVideoID(ctx, "missing", "vi1"), domain.ErrUnknownSession)

	missing, err := store.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkersAreFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Insert(ctx, "s1"))

	require.NoError(t, store.InsertVideoID(ctx, "s1", "vi1"))
	require.NoError(t, store.InsertVideoID(ctx, "s1", "vi2"))

	session, err := store.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "vi1", session.VideoID)
}

func TestPartBookkeeping(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Insert(ctx, "s1"))

	require.NoError(t, store.InsertPart(ctx, "s1", domain.Part{Index: 1, FilePath: "/tmp/1"}))
	require.NoError(t, store.InsertPart(ctx, "s1", domain.Part{Index: 2, IsLast: true, FilePath: "/tmp/2"}))
	assert.ErrorIs(t, store.InsertPart(ctx, "s1", domain.Part{Index: 1, FilePath: "/tmp/1"}), domain.ErrDuplicatePart)
	assert.ErrorIs(t, store.InsertPart(ctx, "missing", domain.Part{Index: 1}), domain.ErrUnknownSession)

	index, hasLast, err := store.GetLastPartIndex(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, hasLast)
	assert.Equal(t, 2, index)

	hasParts, err := store.HasParts(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, hasParts)

	require.NoError(t, store.RemovePart(ctx, "s1", 1))
	require.NoError(t, store.RemovePart(ctx, "s1", 1))

	parts, err := store.GetParts(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, 2, parts[0].Index)
	assert.True(t, parts[0].IsLast)
}

func TestLookupByVideoIDAndToken(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Insert(ctx, "s1"))
	require.NoError(t, store.InsertVideoID(ctx, "s1", "vi1"))
	require.NoError(t, store.Insert(ctx, "s2"))
	require.NoError(t, store.InsertToken(ctx, "s2", "token1"))

	byVideo, err := store.GetByVideoID(ctx, "vi1")
	require.NoError(t, err)
	require.NotNil(t, byVideo)
	assert.Equal(t, "s1", byVideo.ID)

	byToken, err := store.GetByToken(ctx, "token1", "")
	require.NoError(t, err)
	require.Len(t, byToken, 1)
	assert.Equal(t, "s2", byToken[0].ID)

	all, err := store.AllSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRemoveDeletesPartFiles(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	payload := filepath.Join(t.TempDir(), "1")
	require.NoError(t, os.WriteFile(payload, []byte("data"), 0o644))
	require.NoError(t, store.Insert(ctx, "s1"))
	require.NoError(t, store.InsertPart(ctx, "s1", domain.Part{Index: 1, FilePath: payload}))

	require.NoError(t, store.Remove(ctx, "s1"))
	require.NoError(t, store.Remove(ctx, "s1"))

	session, err := store.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.NoFileExists(t, payload)
}

func TestSurvivesReopen(t *testing.T) {
	// Arrange
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := bolt.New(path)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, "s1"))
	require.NoError(t, store.InsertVideoID(ctx, "s1", "vi1"))
	require.NoError(t, store.InsertPart(ctx, "s1", domain.Part{Index: 1, IsLast: true, FilePath: "/tmp/1"}))
	require.NoError(t, store.Close())

	// Act
	reopened, err := bolt.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	// Assert
	session, err := reopened.GetByID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "vi1", session.VideoID)
	require.Len(t, session.Parts, 1)
	assert.True(t, session.Parts[0].IsLast)
}

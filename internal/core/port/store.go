package port

import (
	"context"

	"github.com/apivideo/go-upstream/internal/core/domain"
)

// SessionStore is an interface to persist upload sessions and their parts.
//
// It is the single source of truth across process restarts. Query operations
// return nil/absent rather than an error when nothing matches; mutating
// operations never silently succeed on missing sessions.
type SessionStore interface {
	// Insert creates a new empty record. It guarantees at-most-one creation per
	// id and fails with domain.ErrDuplicateSession when the id already exists.
	Insert(ctx context.Context, sessionID string) error
	// Remove deletes the record and all associated part files. Removing a
	// non-existent id is a no-op.
	Remove(ctx context.Context, sessionID string) error

	// InsertVideoID records the video id, first-write-wins.
	InsertVideoID(ctx context.Context, sessionID, videoID string) error
	// InsertToken records the upload token, first-write-wins.
	InsertToken(ctx context.Context, sessionID, token string) error

	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	GetByVideoID(ctx context.Context, videoID string) (*domain.Session, error)
	// GetByToken returns the sessions created for the token. A non-empty
	// videoID filters the result further.
	GetByToken(ctx context.Context, token, videoID string) ([]domain.Session, error)
	AllSessions(ctx context.Context) ([]domain.Session, error)

	// InsertPart records a part of the session. If the part is flagged last,
	// the last part index is recorded as well (first-write-wins).
	InsertPart(ctx context.Context, sessionID string, part domain.Part) error
	// RemovePart is idempotent; removing a non-existent part is a no-op.
	RemovePart(ctx context.Context, sessionID string, partIndex int) error
	// GetLastPartIndex returns the recorded last part index, or false when the
	// last part has not been seen yet.
	GetLastPartIndex(ctx context.Context, sessionID string) (int, bool, error)
	HasParts(ctx context.Context, sessionID string) (bool, error)
	GetParts(ctx context.Context, sessionID string) ([]domain.Part, error)
}

// Package bolt implements the session store on an embedded bbolt database,
// for callers that prefer a single database file over a directory tree.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/apivideo/go-upstream/internal/core/port"
	"go.etcd.io/bbolt"
)

var (
	sessionsBucket = []byte("sessions")
	partsBucket    = []byte("parts")

	videoIDKey    = []byte("videoId")
	tokenKey      = []byte("token")
	lastPartIDKey = []byte("lastPartId")
)

// Store is a bbolt-backed port.SessionStore.
type Store struct {
	db *bbolt.DB
}

var _ port.SessionStore = (*Store)(nil)

// New opens (or creates) the database file at path.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(_ context.Context, sessionID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.Bucket(sessionsBucket).CreateBucket([]byte(sessionID))
		return err
	})
	if errors.Is(err, bbolt.ErrBucketExists) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSession, sessionID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Store) Remove(_ context.Context, sessionID string) error {
	var partPaths []string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(sessionsBucket)
		session := root.Bucket([]byte(sessionID))
		if session == nil {
			return nil
		}
		if parts := session.Bucket(partsBucket); parts != nil {
			if err := parts.ForEach(func(_, path []byte) error {
				partPaths = append(partPaths, string(path))
				return nil
			}); err != nil {
				return err
			}
		}
		return root.DeleteBucket([]byte(sessionID))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	for _, path := range partPaths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
	}
	return nil
}

func (s *Store) InsertVideoID(_ context.Context, sessionID, videoID string) error {
	return s.putOnce(sessionID, videoIDKey, videoID)
}

func (s *Store) InsertToken(_ context.Context, sessionID, token string) error {
	return s.putOnce(sessionID, tokenKey, token)
}

func (s *Store) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	var found *domain.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		session := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if session == nil {
			return nil
		}
		entity := readSession(sessionID, session)
		found = &entity
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return found, nil
}

func (s *Store) GetByVideoID(_ context.Context, videoID string) (*domain.Session, error) {
	var found *domain.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEachSession(tx, func(id string, session *bbolt.Bucket) error {
			if found == nil && string(session.Get(videoIDKey)) == videoID {
				entity := readSession(id, session)
				found = &entity
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return found, nil
}

func (s *Store) GetByToken(_ context.Context, token, videoID string) ([]domain.Session, error) {
	var sessions []domain.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEachSession(tx, func(id string, session *bbolt.Bucket) error {
			if string(session.Get(tokenKey)) != token {
				return nil
			}
			if videoID != "" && string(session.Get(videoIDKey)) != videoID {
				return nil
			}
			sessions = append(sessions, readSession(id, session))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return sessions, nil
}

func (s *Store) AllSessions(_ context.Context) ([]domain.Session, error) {
	var sessions []domain.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEachSession(tx, func(id string, session *bbolt.Bucket) error {
			sessions = append(sessions, readSession(id, session))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return sessions, nil
}

func (s *Store) InsertPart(_ context.Context, sessionID string, part domain.Part) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		session := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if session == nil {
			return fmt.Errorf("%w: %s", domain.ErrUnknownSession, sessionID)
		}
		parts, err := session.CreateBucketIfNotExists(partsBucket)
		if err != nil {
			return err
		}
		key := []byte(strconv.Itoa(part.Index))
		if parts.Get(key) != nil {
			return fmt.Errorf("%w: part %d of session %s", domain.ErrDuplicatePart, part.Index, sessionID)
		}
		if part.IsLast && session.Get(lastPartIDKey) == nil {
			if err := session.Put(lastPartIDKey, []byte(strconv.Itoa(part.Index))); err != nil {
				return err
			}
		}
		return parts.Put(key, []byte(part.FilePath))
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSession) || errors.Is(err, domain.ErrDuplicatePart) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Store) RemovePart(_ context.Context, sessionID string, partIndex int) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		session := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if session == nil {
			return nil
		}
		parts := session.Bucket(partsBucket)
		if parts == nil {
			return nil
		}
		return parts.Delete([]byte(strconv.Itoa(partIndex)))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Store) GetLastPartIndex(_ context.Context, sessionID string) (int, bool, error) {
	var (
		index   int
		hasLast bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		session := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if session == nil {
			return nil
		}
		raw := session.Get(lastPartIDKey)
		if raw == nil {
			return nil
		}
		parsed, err := strconv.Atoi(string(raw))
		if err != nil {
			return fmt.Errorf("%w: malformed last part index for session %s", domain.ErrStorage, sessionID)
		}
		index = parsed
		hasLast = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			return 0, false, err
		}
		return 0, false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return index, hasLast, nil
}

func (s *Store) HasParts(_ context.Context, sessionID string) (bool, error) {
	parts, err := s.GetParts(context.Background(), sessionID)
	if err != nil {
		return false, err
	}
	return len(parts) > 0, nil
}

func (s *Store) GetParts(_ context.Context, sessionID string) ([]domain.Part, error) {
	var parts []domain.Part
	err := s.db.View(func(tx *bbolt.Tx) error {
		session := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if session == nil {
			return nil
		}
		bucket := session.Bucket(partsBucket)
		if bucket == nil {
			return nil
		}
		lastIndex, hasLast := readLastIndex(session)
		return bucket.ForEach(func(key, path []byte) error {
			index, err := strconv.Atoi(string(key))
			if err != nil {
				return nil
			}
			parts = append(parts, domain.Part{
				Index:    index,
				IsLast:   hasLast && index == lastIndex,
				FilePath: string(path),
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return parts, nil
}

// putOnce writes a marker key, first-write-wins.
func (s *Store) putOnce(sessionID string, key []byte, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		session := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if session == nil {
			return fmt.Errorf("%w: %s", domain.ErrUnknownSession, sessionID)
		}
		if session.Get(key) != nil {
			return nil
		}
		return session.Put(key, []byte(value))
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func forEachSession(tx *bbolt.Tx, fn func(id string, session *bbolt.Bucket) error) error {
	root := tx.Bucket(sessionsBucket)
	return root.ForEachBucket(func(name []byte) error {
		return fn(string(name), root.Bucket(name))
	})
}

func readSession(id string, session *bbolt.Bucket) domain.Session {
	entity := domain.Session{
		ID:      id,
		VideoID: string(session.Get(videoIDKey)),
		Token:   string(session.Get(tokenKey)),
	}
	bucket := session.Bucket(partsBucket)
	if bucket == nil {
		return entity
	}
	lastIndex, hasLast := readLastIndex(session)
	bucket.ForEach(func(key, path []byte) error {
		index, err := strconv.Atoi(string(key))
		if err != nil {
			return nil
		}
		entity.Parts = append(entity.Parts, domain.Part{
			Index:    index,
			IsLast:   hasLast && index == lastIndex,
			FilePath: string(path),
		})
		return nil
	})
	return entity
}

func readLastIndex(session *bbolt.Bucket) (int, bool) {
	raw := session.Get(lastPartIDKey)
	if raw == nil {
		return 0, false
	}
	index, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return index, true
}

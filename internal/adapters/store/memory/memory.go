// Package memory implements the session store as an in-process map. It is
// mainly useful for tests and for callers that handle durability themselves.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/apivideo/go-upstream/internal/core/port"
)

type record struct {
	videoID   string
	token     string
	lastIndex int
	hasLast   bool
	parts     map[int]domain.Part
}

// Store is an in-memory port.SessionStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
}

var _ port.SessionStore = (*Store)(nil)

func New() *Store {
	return &Store{sessions: make(map[string]*record)}
}

func (s *Store) Insert(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSession, sessionID)
	}
	s.sessions[sessionID] = &record{parts: make(map[int]domain.Part)}
	return nil
}

func (s *Store) Remove(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	for _, part := range rec.parts {
		if err := os.Remove(part.FilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) InsertVideoID(_ context.Context, sessionID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSession, sessionID)
	}
	if rec.videoID == "" {
		rec.videoID = videoID
	}
	return nil
}

func (s *Store) InsertToken(_ context.Context, sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSession, sessionID)
	}
	if rec.token == "" {
		rec.token = token
	}
	return nil
}

func (s *Store) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	session := rec.toSession(sessionID)
	return &session, nil
}

func (s *Store) GetByVideoID(_ context.Context, videoID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, rec := range s.sessions {
		if rec.videoID == videoID {
			session := rec.toSession(id)
			return &session, nil
		}
	}
	return nil, nil
}

func (s *Store) GetByToken(_ context.Context, token, videoID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []domain.Session
	for id, rec := range s.sessions {
		if rec.token != token {
			continue
		}
		if videoID != "" && rec.videoID != videoID {
			continue
		}
		sessions = append(sessions, rec.toSession(id))
	}
	return sessions, nil
}

func (s *Store) AllSessions(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []domain.Session
	for id, rec := range s.sessions {
		sessions = append(sessions, rec.toSession(id))
	}
	return sessions, nil
}

func (s *Store) InsertPart(_ context.Context, sessionID string, part domain.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSession, sessionID)
	}
	if _, ok := rec.parts[part.Index]; ok {
		return fmt.Errorf("%w: part %d of session %s", domain.ErrDuplicatePart, part.Index, sessionID)
	}
	if part.IsLast && !rec.hasLast {
		rec.hasLast = true
		rec.lastIndex = part.Index
	}
	rec.parts[part.Index] = part
	return nil
}

func (s *Store) RemovePart(_ context.Context, sessionID string, partIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.sessions[sessionID]; ok {
		delete(rec.parts, partIndex)
	}
	return nil
}

func (s *Store) GetLastPartIndex(_ context.Context, sessionID string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok || !rec.hasLast {
		return 0, false, nil
	}
	return rec.lastIndex, true, nil
}

func (s *Store) HasParts(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	return ok && len(rec.parts) > 0, nil
}

func (s *Store) GetParts(_ context.Context, sessionID string) ([]domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return rec.partList(), nil
}

func (r *record) toSession(id string) domain.Session {
	return domain.Session{
		ID:      id,
		VideoID: r.videoID,
		Token:   r.token,
		Parts:   r.partList(),
	}
}

func (r *record) partList() []domain.Part {
	parts := make([]domain.Part, 0, len(r.parts))
	for _, part := range r.parts {
		parts = append(parts, part)
	}
	return parts
}

// Package file implements the session store on the local file system.
//
// Each session lives in a directory named after its id:
//
//	<root>/<sessionId>/videoId   the video id, once known
//	<root>/<sessionId>/token     the upload token, if any
//	<root>/<sessionId>/lastPartId  the index of the last part
//	<root>/<sessionId>/partInfo/<index>  the path of the still-pending part file
//
// A missing marker file means "value not yet known", not an error.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/apivideo/go-upstream/internal/core/port"
)

const (
	partInfoDirName    = "partInfo"
	videoIDFileName    = "videoId"
	tokenFileName      = "token"
	lastPartIDFileName = "lastPartId"
)

// Store is a file-backed port.SessionStore.
type Store struct {
	root string
	mu   sync.Mutex
}

var _ port.SessionStore = (*Store)(nil)

// New creates the store root directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Insert(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Mkdir is atomic, so two racing inserts cannot both succeed.
	err := os.Mkdir(s.sessionDir(sessionID), 0o755)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSession, sessionID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Store) Remove(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Part files may live outside the session directory; delete them first.
	for _, part := range s.readParts(sessionID) {
		if err := os.Remove(part.FilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
	}
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Store) InsertVideoID(_ context.Context, sessionID, videoID string) error {
	return s.writeMarker(sessionID, videoIDFileName, videoID)
}

func (s *Store) InsertToken(_ context.Context, sessionID, token string) error {
	return s.writeMarker(sessionID, tokenFileName, token)
}

func (s *Store) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSession(sessionID), nil
}

func (s *Store) GetByVideoID(_ context.Context, videoID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.sessionIDs() {
		if s.readMarker(id, videoIDFileName) == videoID {
			return s.readSession(id), nil
		}
	}
	return nil, nil
}

func (s *Store) GetByToken(_ context.Context, token, videoID string) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []domain.Session
	for _, id := range s.sessionIDs() {
		if s.readMarker(id, tokenFileName) != token {
			continue
		}
		if videoID != "" && s.readMarker(id, videoIDFileName) != videoID {
			continue
		}
		if session := s.readSession(id); session != nil {
			sessions = append(sessions, *session)
		}
	}
	return sessions, nil
}

func (s *Store) AllSessions(_ context.Context) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []domain.Session
	for _, id := range s.sessionIDs() {
		if session := s.readSession(id); session != nil {
			sessions = append(sessions, *session)
		}
	}
	return sessions, nil
}

func (s *Store) InsertPart(_ context.Context, sessionID string, part domain.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sessionExists(sessionID) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSession, sessionID)
	}

	partDir := s.partInfoDir(sessionID)
	if err := os.MkdirAll(partDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	partFile := filepath.Join(partDir, strconv.Itoa(part.Index))
	if _, err := os.Stat(partFile); err == nil {
		return fmt.Errorf("%w: part %d of session %s", domain.ErrDuplicatePart, part.Index, sessionID)
	}

	if part.IsLast {
		if err := s.writeMarkerLocked(sessionID, lastPartIDFileName, strconv.Itoa(part.Index)); err != nil {
			return err
		}
	}

	if err := os.WriteFile(partFile, []byte(part.FilePath), 0o644); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Store) RemovePart(_ context.Context, sessionID string, partIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.partInfoDir(sessionID), strconv.Itoa(partIndex)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *Store) GetLastPartIndex(_ context.Context, sessionID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLastPartIndex(sessionID)
}

func (s *Store) HasParts(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.partInfoDir(sessionID))
	if err != nil {
		return false, nil
	}
	return len(entries) > 0, nil
}

func (s *Store) GetParts(_ context.Context, sessionID string) ([]domain.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readParts(sessionID), nil
}

func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *Store) partInfoDir(sessionID string) string {
	return filepath.Join(s.sessionDir(sessionID), partInfoDirName)
}

func (s *Store) sessionExists(sessionID string) bool {
	info, err := os.Stat(s.sessionDir(sessionID))
	return err == nil && info.IsDir()
}

func (s *Store) sessionIDs() []string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids
}

func (s *Store) readSession(sessionID string) *domain.Session {
	if !s.sessionExists(sessionID) {
		return nil
	}
	return &domain.Session{
		ID:      sessionID,
		VideoID: s.readMarker(sessionID, videoIDFileName),
		Token:   s.readMarker(sessionID, tokenFileName),
		Parts:   s.readParts(sessionID),
	}
}

func (s *Store) readParts(sessionID string) []domain.Part {
	entries, err := os.ReadDir(s.partInfoDir(sessionID))
	if err != nil {
		return nil
	}
	lastIndex, hasLast, _ := s.readLastPartIndex(sessionID)

	var parts []domain.Part
	for _, entry := range entries {
		index, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		path, err := os.ReadFile(filepath.Join(s.partInfoDir(sessionID), entry.Name()))
		if err != nil {
			continue
		}
		parts = append(parts, domain.Part{
			Index:    index,
			IsLast:   hasLast && index == lastIndex,
			FilePath: string(path),
		})
	}
	return parts
}

func (s *Store) readLastPartIndex(sessionID string) (int, bool, error) {
	raw, err := os.ReadFile(filepath.Join(s.sessionDir(sessionID), lastPartIDFileName))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	index, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false, fmt.Errorf("%w: malformed last part index for session %s", domain.ErrStorage, sessionID)
	}
	return index, true, nil
}

// readMarker treats an unreadable optional marker as absent.
func (s *Store) readMarker(sessionID, name string) string {
	raw, err := os.ReadFile(filepath.Join(s.sessionDir(sessionID), name))
	if err != nil {
		return ""
	}
	return string(raw)
}

func (s *Store) writeMarker(sessionID, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeMarkerLocked(sessionID, name, value)
}

// writeMarkerLocked is first-write-wins: an existing marker is kept untouched.
func (s *Store) writeMarkerLocked(sessionID, name, value string) error {
	if !s.sessionExists(sessionID) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSession, sessionID)
	}
	marker := filepath.Join(s.sessionDir(sessionID), name)
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	if err := os.WriteFile(marker, []byte(value), 0o644); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/apivideo/go-upstream/internal/core/port"
)

// Options configures a Session.
type Options struct {
	// Parallelism bounds concurrent part uploads. Values below 1 mean 1.
	Parallelism     int
	Logger          *slog.Logger
	SessionListener port.SessionListener
	PartListener    port.PartListener
}

// Session binds the parts of one video to the upload backend and the session
// store, and reconciles the terminal outcome.
//
// A Session uploads one video only. Parts are handed in through SubmitPart as
// the producer emits them; uploads run on worker goroutines bounded by
// Options.Parallelism, and every listener callback is delivered from a single
// dispatch goroutine. At most one Session per session id may be active at a
// time.
type Session struct {
	id       string
	store    port.SessionStore
	uploader port.Uploader
	logger   *slog.Logger

	sessionListener port.SessionListener
	partListener    port.PartListener

	ctx      context.Context
	cancel   context.CancelFunc
	sem      chan struct{}
	dispatch *dispatcher

	mu        sync.Mutex
	statuses  map[int]domain.PartStatus
	submitted int
	lastIndex int
	hasLast   bool
	videoID   string
	state     domain.SessionState
}

// New creates a Session for an already-registered session record. The video
// id may be empty for token-based sessions; it is then learned from the first
// successful part upload.
func New(ctx context.Context, sessionID, videoID string, store port.SessionStore, uploader port.Uploader, opts Options) *Session {
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:              sessionID,
		store:           store,
		uploader:        uploader,
		logger:          logger,
		sessionListener: opts.SessionListener,
		partListener:    opts.PartListener,
		ctx:             ctx,
		cancel:          cancel,
		sem:             make(chan struct{}, parallelism),
		dispatch:        newDispatcher(),
		statuses:        make(map[int]domain.PartStatus),
		videoID:         videoID,
		state:           domain.SessionStateActive,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// VideoID returns the video id, or an empty string while a token-based
// session has not completed any part yet.
func (s *Session) VideoID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoID
}

// SubmitPart registers a part with the store and dispatches its upload. The
// part is durably recorded before the upload starts, so a crash mid-upload
// leaves a resumable trail instead of an orphaned file.
func (s *Session) SubmitPart(index int, isLast bool, filePath string) error {
	s.mu.Lock()
	if s.state != domain.SessionStateActive {
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s has already ended", domain.ErrInvalidSession, s.id)
	}
	if _, ok := s.statuses[index]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: part %d already submitted", domain.ErrDuplicatePart, index)
	}
	s.mu.Unlock()

	part := domain.Part{Index: index, IsLast: isLast, FilePath: filePath}
	if err := s.store.InsertPart(s.ctx, s.id, part); err != nil {
		// Already-recorded parts are expected when resuming from the store.
		if !errors.Is(err, domain.ErrDuplicatePart) {
			return err
		}
	}

	s.mu.Lock()
	first := s.submitted == 0
	s.submitted++
	s.statuses[index] = domain.PartStatus{State: domain.PartStatePending}
	if isLast && !s.hasLast {
		s.hasLast = true
		s.lastIndex = index
	}
	count := s.submitted
	if first && s.sessionListener.OnNewSessionCreated != nil {
		f := s.sessionListener.OnNewSessionCreated
		s.dispatch.enqueue(func() { f(s.id) })
	}
	if s.sessionListener.OnNumberOfPartsChanged != nil {
		f := s.sessionListener.OnNumberOfPartsChanged
		s.dispatch.enqueue(func() { f(s.id, count) })
	}
	s.mu.Unlock()

	go s.runUpload(part)
	return nil
}

// Cancel requests cancellation of all outstanding uploads. It is
// fire-and-forget: outcomes arrive asynchronously as cancelled parts, and
// persisted parts are kept for a later resume.
func (s *Session) Cancel() {
	s.cancel()
}

// Wait blocks until the session has reached a terminal state and every
// listener callback has been delivered. It does not return for a session
// whose last part was never submitted.
func (s *Session) Wait() {
	<-s.dispatch.done
}

func (s *Session) runUpload(part domain.Part) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-s.ctx.Done():
		s.finishCancelled(part.Index)
		return
	}

	s.mu.Lock()
	st := s.statuses[part.Index]
	st.State = domain.PartStateInProgress
	s.statuses[part.Index] = st
	if s.partListener.OnPartStarted != nil {
		f := s.partListener.OnPartStarted
		s.dispatch.enqueue(func() { f(s.id, part.Index) })
	}
	s.mu.Unlock()

	progress := func(percent int) {
		s.mu.Lock()
		defer s.mu.Unlock()
		st := s.statuses[part.Index]
		if st.State != domain.PartStateInProgress {
			return
		}
		st.Progress = percent
		s.statuses[part.Index] = st
		if s.partListener.OnPartProgress != nil {
			f := s.partListener.OnPartProgress
			s.dispatch.enqueue(func() { f(s.id, part.Index, percent) })
		}
	}

	var video *domain.Video
	var err error
	if part.IsLast {
		video, err = s.uploader.UploadLastPart(s.ctx, part.FilePath, part.Index, progress)
	} else {
		video, err = s.uploader.UploadPart(s.ctx, part.FilePath, part.Index, progress)
	}

	switch {
	case err == nil:
		s.finishSucceeded(part, *video)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.finishCancelled(part.Index)
	default:
		s.finishFailed(part.Index, err)
	}
}

func (s *Session) finishSucceeded(part domain.Part, video domain.Video) {
	// The part is done: drop it from the store and delete its local file.
	if err := s.store.RemovePart(context.Background(), s.id, part.Index); err != nil {
		s.logger.Error("failed to remove uploaded part from store", "session", s.id, "part", part.Index, "error", err)
	}
	if err := os.Remove(part.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to delete uploaded part file", "session", s.id, "part", part.Index, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.videoID == "" && video.ID != "" {
		// First successful part of a token-based session: record the video id
		// the backend assigned, first-write-wins.
		s.videoID = video.ID
		if err := s.store.InsertVideoID(context.Background(), s.id, video.ID); err != nil {
			s.logger.Error("failed to record learned video id", "session", s.id, "error", err)
		}
	}

	st := s.statuses[part.Index]
	st.State = domain.PartStateSucceeded
	st.Video = &video
	s.statuses[part.Index] = st
	if s.partListener.OnPartComplete != nil {
		f := s.partListener.OnPartComplete
		s.dispatch.enqueue(func() { f(s.id, part.Index, video) })
	}
	s.checkEndLocked()
}

func (s *Session) finishFailed(index int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.statuses[index]
	st.State = domain.PartStateFailed
	st.Err = err
	s.statuses[index] = st
	if s.partListener.OnPartError != nil {
		f := s.partListener.OnPartError
		s.dispatch.enqueue(func() { f(s.id, index, err) })
	}
	s.checkEndLocked()
}

func (s *Session) finishCancelled(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// No part-level callback for cancellations, only session bookkeeping.
	st := s.statuses[index]
	st.State = domain.PartStateCancelled
	s.statuses[index] = st
	s.checkEndLocked()
}

// checkEndLocked fires the session's terminal callback once all submitted
// parts are finished and the last part is known. Callers hold s.mu, which is
// what prevents two parts finishing simultaneously from both ending the
// session.
func (s *Session) checkEndLocked() {
	if s.state != domain.SessionStateActive || !s.hasLast {
		return
	}
	for _, st := range s.statuses {
		if !st.State.Finished() {
			return
		}
	}

	hasParts, err := s.store.HasParts(context.Background(), s.id)
	if err != nil {
		s.logger.Error("failed to check remaining parts", "session", s.id, "error", err)
		hasParts = true
	}

	if !hasParts {
		// Every part made it: drop the session record and its backing files.
		s.state = domain.SessionStateCompleted
		if err := s.store.Remove(context.Background(), s.id); err != nil {
			s.logger.Error("failed to remove completed session", "session", s.id, "error", err)
		}
		if s.sessionListener.OnComplete != nil {
			f := s.sessionListener.OnComplete
			s.dispatch.enqueue(func() { f(s.id) })
		}
	} else {
		// Some parts failed or were cancelled; they stay on disk so the
		// session can be loaded again later.
		s.state = domain.SessionStateEndedWithError
		if s.sessionListener.OnEndWithError != nil {
			f := s.sessionListener.OnEndWithError
			s.dispatch.enqueue(func() { f(s.id) })
		}
	}
	s.dispatch.close()
}

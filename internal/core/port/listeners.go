package port

import "github.com/apivideo/go-upstream/internal/core/domain"

// SessionListener receives session-level events. Nil funcs are skipped, so a
// caller only sets the callbacks it cares about. Callbacks for one session are
// always invoked from a single goroutine, in order.
type SessionListener struct {
	OnNewSessionCreated    func(sessionID string)
	OnNumberOfPartsChanged func(sessionID string, count int)
	OnComplete             func(sessionID string)
	OnEndWithError         func(sessionID string)
}

// PartListener receives part-level events. Nil funcs are skipped. Delivery
// shares the session's dispatch goroutine.
type PartListener struct {
	OnPartStarted  func(sessionID string, partIndex int)
	OnPartProgress func(sessionID string, partIndex, percent int)
	OnPartComplete func(sessionID string, partIndex int, video domain.Video)
	OnPartError    func(sessionID string, partIndex int, err error)
}

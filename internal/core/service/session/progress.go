package session

import "github.com/apivideo/go-upstream/internal/core/domain"

// The counters below reflect the in-memory outcome tracking; the store is the
// durability layer, not the live-progress source.

// State returns the derived session state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TotalParts is the number of parts submitted so far. It grows as long as the
// producer is running.
func (s *Session) TotalParts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// PartsFinished counts parts that were sent, cancelled or failed.
func (s *Session) PartsFinished() int {
	return s.countStates(func(st domain.PartState) bool { return st.Finished() })
}

// PartsSucceeded counts parts that were successfully sent.
func (s *Session) PartsSucceeded() int {
	return s.countStates(func(st domain.PartState) bool { return st == domain.PartStateSucceeded })
}

// PartsFailed counts parts that failed to be sent.
func (s *Session) PartsFailed() int {
	return s.countStates(func(st domain.PartState) bool { return st == domain.PartStateFailed })
}

// PartsCancelled counts parts whose upload was cancelled.
func (s *Session) PartsCancelled() int {
	return s.countStates(func(st domain.PartState) bool { return st == domain.PartStateCancelled })
}

// PartsWaiting counts parts that have not reached a terminal outcome yet.
func (s *Session) PartsWaiting() int {
	return s.countStates(func(st domain.PartState) bool { return !st.Finished() })
}

func (s *Session) countStates(match func(domain.PartState) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.statuses {
		if match(st.State) {
			n++
		}
	}
	return n
}

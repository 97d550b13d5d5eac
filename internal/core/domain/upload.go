package domain

// PartState represents the upload state of a single part
type PartState string

const (
	PartStatePending    PartState = "pending"
	PartStateInProgress PartState = "in_progress"
	PartStateSucceeded  PartState = "succeeded"
	PartStateFailed     PartState = "failed"
	PartStateCancelled  PartState = "cancelled"
)

// Finished reports whether the state is terminal.
func (s PartState) Finished() bool {
	return s == PartStateSucceeded || s == PartStateFailed || s == PartStateCancelled
}

// PartStatus is the transient upload outcome of a single part. It is never persisted.
type PartStatus struct {
	State    PartState
	Progress int // 0..100, only meaningful while in progress
	Video    *Video
	Err      error
}

// SessionState represents the derived state of an upload session
type SessionState string

const (
	SessionStateActive         SessionState = "active"
	SessionStateCompleted      SessionState = "completed"
	SessionStateEndedWithError SessionState = "ended_with_error"
)

package domain

// Session represents one end-to-end upload of a single video, composed of ordered parts.
// Exactly one of VideoID/Token is set at creation; VideoID may later be learned from the
// first successful part upload when only a token was supplied.
type Session struct {
	ID      string
	VideoID string
	Token   string
	Parts   []Part
}

// HasParts reports whether the session still has parts to upload.
func (s Session) HasParts() bool {
	return len(s.Parts) > 0
}

// LastPart returns the part flagged as last, if it has been seen.
func (s Session) LastPart() (Part, bool) {
	for _, p := range s.Parts {
		if p.IsLast {
			return p, true
		}
	}
	return Part{}, false
}

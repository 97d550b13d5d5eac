package session

import (
	"context"
	"fmt"

	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/apivideo/go-upstream/internal/core/port"
)

// Load reconstructs an in-flight session purely from persisted state, e.g.
// after a process restart. Every stored part is resubmitted through the same
// path as a live session, so the usual listener callbacks fire again.
//
// It fails with domain.ErrInvalidSession when the id is unknown or the
// session has nothing left to upload.
func Load(ctx context.Context, sessionID string, store port.SessionStore, client port.UploadClient, opts Options) (*Session, error) {
	entity, err := store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: unknown session %s", domain.ErrInvalidSession, sessionID)
	}
	if !entity.HasParts() {
		return nil, fmt.Errorf("%w: session %s has no more parts to upload", domain.ErrInvalidSession, sessionID)
	}

	lastIndex, hasLast, err := store.GetLastPartIndex(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !hasLast {
		return nil, fmt.Errorf("%w: session %s has no last part recorded", domain.ErrInvalidSession, sessionID)
	}

	var uploader port.Uploader
	switch {
	case entity.Token != "":
		uploader = client.NewTokenSession(entity.Token, entity.VideoID)
	case entity.VideoID != "":
		uploader = client.NewVideoSession(entity.VideoID)
	default:
		return nil, fmt.Errorf("%w: session %s has neither video id nor token", domain.ErrInvalidSession, sessionID)
	}

	s := New(ctx, sessionID, entity.VideoID, store, uploader, opts)
	for _, part := range entity.Parts {
		if err := s.SubmitPart(part.Index, part.Index == lastIndex, part.FilePath); err != nil {
			s.Cancel()
			return nil, err
		}
	}
	return s, nil
}

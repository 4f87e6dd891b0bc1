// Package session wires the per-user engine together: one MemoryStore
// subscription whose snapshots are pumped through the anniversary check
// and the marker reconciliation, plus the user's draft controller.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"memorymap-backend/application/services"
	"memorymap-backend/domain/core/entities"
)

// Publisher pushes session events to a user's connected clients.
type Publisher interface {
	PublishSnapshot(userID string, snap entities.Snapshot)
	PublishDraft(userID string, draft entities.Draft)
}

// Session is the live engine state of one user.
type Session struct {
	userID        string
	store         *services.MemoryStore
	mapSync       *services.MapSync
	draft         *services.DraftController
	anniversaries *services.AnniversaryService
	publisher     Publisher
	logger        *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
}

// UserID returns the session owner.
func (s *Session) UserID() string {
	return s.userID
}

// Snapshots returns the read side of the session's store.
func (s *Session) Snapshots() services.SnapshotSource {
	return s.store
}

// Draft returns the user's draft controller.
func (s *Session) Draft() *services.DraftController {
	return s.draft
}

// Markers returns the markers currently rendered for the user.
func (s *Session) Markers() entities.MarkerSet {
	return s.mapSync.Markers()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// pump is the session's single snapshot consumer. Each snapshot is fully
// handled before the next one is read.
func (s *Session) pump(ctx context.Context, stream <-chan entities.Snapshot) {
	defer close(s.done)

	for snap := range stream {
		if s.publisher != nil {
			s.publisher.PublishSnapshot(s.userID, snap)
		}
		s.anniversaries.Evaluate(ctx, s.userID, snap)
		s.mapSync.Apply(snap)
	}
	s.logger.Debug("Snapshot stream closed")
}

// close stops the pump and releases everything the session holds.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.store.Unsubscribe()
	s.cancel()
	<-s.done

	s.draft.Close()
	s.mapSync.Clear()
	s.anniversaries.Forget(s.userID)
}

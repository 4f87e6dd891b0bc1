package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
	pkgerrors "memorymap-backend/pkg/errors"
)

// SnapshotSource is the read side of a MemoryStore.
type SnapshotSource interface {
	Current() entities.Snapshot
	Status() StoreStatus
	Settled() <-chan struct{}
}

// DefaultLoadTimeout bounds how long a read waits for the first snapshot.
const DefaultLoadTimeout = 3 * time.Second

// MemoryQueryService serves list, detail and delete requests against a
// user's live snapshot.
type MemoryQueryService struct {
	remote      ports.RemoteCollection
	loadTimeout time.Duration
	logger      *zap.Logger
}

// NewMemoryQueryService creates the service. Reads issued before the
// first snapshot wait up to loadTimeout for it.
func NewMemoryQueryService(remote ports.RemoteCollection, loadTimeout time.Duration, logger *zap.Logger) *MemoryQueryService {
	if loadTimeout <= 0 {
		loadTimeout = DefaultLoadTimeout
	}
	return &MemoryQueryService{
		remote:      remote,
		loadTimeout: loadTimeout,
		logger:      logger.With(zap.String("component", "memory_query")),
	}
}

// List returns the current snapshot. Stale data is served as is. A store
// that has not loaded yet is waited on, bounded by ctx and the load
// timeout, so an empty list always means the remote reported no members.
func (q *MemoryQueryService) List(ctx context.Context, source SnapshotSource) (entities.Snapshot, error) {
	if err := q.awaitLoad(ctx, source); err != nil {
		return entities.Snapshot{}, err
	}
	return source.Current(), nil
}

func (q *MemoryQueryService) awaitLoad(ctx context.Context, source SnapshotSource) error {
	settled := source.Settled()
	if source.Status() == StatusLoading {
		timer := time.NewTimer(q.loadTimeout)
		defer timer.Stop()
		select {
		case <-settled:
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	switch source.Status() {
	case StatusLoaded, StatusStale:
		return nil
	case StatusUnavailable:
		return pkgerrors.NewUnavailableError("memories").
			WithCode(pkgerrors.CodeSnapshotUnavailable)
	default:
		return pkgerrors.NewUnavailableError("memories").
			WithCode(pkgerrors.CodeSnapshotLoading)
	}
}

// Get returns one memory from the current snapshot.
func (q *MemoryQueryService) Get(ctx context.Context, source SnapshotSource, id string) (entities.Memory, error) {
	snap, err := q.List(ctx, source)
	if err != nil {
		return entities.Memory{}, err
	}
	m, ok := snap.Find(id)
	if !ok {
		return entities.Memory{}, pkgerrors.NewNotFoundError("memory").WithDetail("id", id)
	}
	return m, nil
}

// Delete removes a memory from the remote collection. The deletion reaches
// the snapshot through the subscription like any other change.
func (q *MemoryQueryService) Delete(ctx context.Context, userID, id string) error {
	if id == "" {
		return pkgerrors.NewValidationError("memory id is required")
	}
	if err := q.remote.Delete(ctx, userID, id); err != nil {
		if pkgerrors.IsNotFound(err) {
			return err
		}
		q.logger.Error("Failed to delete memory",
			zap.String("userID", userID),
			zap.String("memoryID", id),
			zap.Error(err),
		)
		return pkgerrors.NewExternalError("remote collection", err)
	}
	q.logger.Info("Memory deleted", zap.String("userID", userID), zap.String("memoryID", id))
	return nil
}

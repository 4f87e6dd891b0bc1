package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memorymap-backend/domain/core/entities"
	pkgerrors "memorymap-backend/pkg/errors"
	"memorymap-backend/tests/fixtures"
	"memorymap-backend/tests/mocks"
)

type staticSource struct {
	snap   entities.Snapshot
	status StoreStatus
}

func (s staticSource) Current() entities.Snapshot { return s.snap }
func (s staticSource) Status() StoreStatus        { return s.status }
func (s staticSource) Settled() <-chan struct{} {
	ch := make(chan struct{})
	if s.status != StatusLoading {
		close(ch)
	}
	return ch
}

// loadingSource stays loading until load is called.
type loadingSource struct {
	mu      sync.Mutex
	snap    entities.Snapshot
	status  StoreStatus
	settled chan struct{}
}

func newLoadingSource() *loadingSource {
	return &loadingSource{snap: entities.NewSnapshot(nil), status: StatusLoading, settled: make(chan struct{})}
}

func (s *loadingSource) Current() entities.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *loadingSource) Status() StoreStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *loadingSource) Settled() <-chan struct{} { return s.settled }

func (s *loadingSource) load(snap entities.Snapshot, status StoreStatus) {
	s.mu.Lock()
	s.snap, s.status = snap, status
	s.mu.Unlock()
	close(s.settled)
}

func TestMemoryQueryService_List(t *testing.T) {
	snap := fixtures.Snapshot(fixtures.NewMemoryBuilder().WithID("a").Build())
	q := NewMemoryQueryService(new(mocks.MockRemoteCollection), 20*time.Millisecond, zap.NewNop())

	tests := []struct {
		name     string
		status   StoreStatus
		wantCode string
	}{
		{name: "loaded", status: StatusLoaded},
		{name: "stale data still served", status: StatusStale},
		{name: "never loaded", status: StatusLoading, wantCode: pkgerrors.CodeSnapshotLoading},
		{name: "not subscribed", status: StatusIdle, wantCode: pkgerrors.CodeSnapshotLoading},
		{name: "unavailable", status: StatusUnavailable, wantCode: pkgerrors.CodeSnapshotUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.List(context.Background(), staticSource{snap: snap, status: tt.status})
			if tt.wantCode != "" {
				assert.True(t, pkgerrors.IsUnavailable(err))
				assert.True(t, pkgerrors.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, snap, got)
		})
	}
}

func TestMemoryQueryService_ListWaitsForFirstSnapshot(t *testing.T) {
	// Arrange
	src := newLoadingSource()
	snap := fixtures.Snapshot(fixtures.NewMemoryBuilder().WithID("a").Build())
	q := NewMemoryQueryService(new(mocks.MockRemoteCollection), time.Minute, zap.NewNop())

	// Act
	go func() {
		time.Sleep(10 * time.Millisecond)
		src.load(snap, StatusLoaded)
	}()
	got, err := q.List(context.Background(), src)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestMemoryQueryService_ListFailedFirstLoad(t *testing.T) {
	src := newLoadingSource()
	q := NewMemoryQueryService(new(mocks.MockRemoteCollection), time.Minute, zap.NewNop())

	go src.load(entities.NewSnapshot(nil), StatusUnavailable)
	_, err := q.List(context.Background(), src)

	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSnapshotUnavailable))
}

func TestMemoryQueryService_ListBoundedByContext(t *testing.T) {
	q := NewMemoryQueryService(new(mocks.MockRemoteCollection), time.Minute, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.List(ctx, newLoadingSource())

	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSnapshotLoading))
}

func TestMemoryQueryService_Get(t *testing.T) {
	ctx := context.Background()
	src := staticSource{
		snap:   fixtures.Snapshot(fixtures.NewMemoryBuilder().WithID("a").WithDescription("Picnic").Build()),
		status: StatusLoaded,
	}
	q := NewMemoryQueryService(new(mocks.MockRemoteCollection), 0, zap.NewNop())

	m, err := q.Get(ctx, src, "a")
	require.NoError(t, err)
	assert.Equal(t, "Picnic", m.Description)

	_, err = q.Get(ctx, src, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))

	short := NewMemoryQueryService(new(mocks.MockRemoteCollection), 10*time.Millisecond, zap.NewNop())
	_, err = short.Get(ctx, newLoadingSource(), "a")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSnapshotLoading), "an unloaded store is not a missing memory")
}

func TestMemoryQueryService_Delete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		remote := new(mocks.MockRemoteCollection)
		remote.On("Delete", mock.Anything, "user-1", "a").Return(nil).Once()
		q := NewMemoryQueryService(remote, 0, zap.NewNop())

		require.NoError(t, q.Delete(context.Background(), "user-1", "a"))
		remote.AssertExpectations(t)
	})

	t.Run("remote failure", func(t *testing.T) {
		remote := new(mocks.MockRemoteCollection)
		remote.On("Delete", mock.Anything, "user-1", "a").Return(errors.New("timeout")).Once()
		q := NewMemoryQueryService(remote, 0, zap.NewNop())

		err := q.Delete(context.Background(), "user-1", "a")
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
	})

	t.Run("not found passes through", func(t *testing.T) {
		remote := new(mocks.MockRemoteCollection)
		remote.On("Delete", mock.Anything, "user-1", "a").Return(pkgerrors.NewNotFoundError("memory")).Once()
		q := NewMemoryQueryService(remote, 0, zap.NewNop())

		assert.True(t, pkgerrors.IsNotFound(q.Delete(context.Background(), "user-1", "a")))
	})

	t.Run("missing id", func(t *testing.T) {
		q := NewMemoryQueryService(new(mocks.MockRemoteCollection), 0, zap.NewNop())

		assert.True(t, pkgerrors.IsValidation(q.Delete(context.Background(), "user-1", "")))
	})
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"memorymap-backend/domain/core/entities"
	pkgerrors "memorymap-backend/pkg/errors"
	"memorymap-backend/pkg/observability"
	"memorymap-backend/tests/mocks"
)

// gatedResolver holds every lookup until the test releases it.
type gatedResolver struct {
	mu      sync.Mutex
	pending []chan string
	calls   chan struct{}
}

func newGatedResolver() *gatedResolver {
	return &gatedResolver{calls: make(chan struct{}, 16)}
}

func (r *gatedResolver) Resolve(ctx context.Context, _, _ float64) string {
	ch := make(chan string, 1)
	r.mu.Lock()
	r.pending = append(r.pending, ch)
	r.mu.Unlock()
	r.calls <- struct{}{}

	select {
	case address := <-ch:
		return address
	case <-ctx.Done():
		// A cancelled lookup still reports, the controller must drop it.
		return "cancelled"
	}
}

func (r *gatedResolver) waitCall(t *testing.T) {
	t.Helper()
	select {
	case <-r.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("resolver was not called")
	}
}

func (r *gatedResolver) release(i int, address string) {
	r.mu.Lock()
	ch := r.pending[i]
	r.mu.Unlock()
	ch <- address
}

type instantResolver string

func (r instantResolver) Resolve(context.Context, float64, float64) string { return string(r) }

type draftRecorder struct {
	mu     sync.Mutex
	states []entities.DraftState
}

func (r *draftRecorder) record(d entities.Draft) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, d.State)
}

func (r *draftRecorder) all() []entities.DraftState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entities.DraftState(nil), r.states...)
}

func newTestController(remote *mocks.MockRemoteCollection, resolver AddressResolver) (*DraftController, clock.FakeClock) {
	clk := clock.NewFake()
	clk.Set(time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC))
	c := NewDraftController("user-1", remote, resolver, clk, time.UTC, zap.NewNop(), observability.NewMetrics("test"))
	return c, clk
}

func waitForState(t *testing.T, c *DraftController, state entities.DraftState) entities.Draft {
	t.Helper()
	require.Eventually(t, func() bool { return c.Draft().State == state }, 2*time.Second, 5*time.Millisecond)
	return c.Draft()
}

func TestDraftController_CaptureResolvesAddress(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Arrange
	resolver := newGatedResolver()
	c, _ := newTestController(new(mocks.MockRemoteCollection), resolver)
	defer c.Close()
	rec := &draftRecorder{}
	c.OnChange(rec.record)

	// Act
	require.NoError(t, c.CaptureLocation(48.85, 2.35))
	resolver.waitCall(t)
	resolving := c.Draft()
	resolver.release(0, "Paris, Ile-de-France")
	ready := waitForState(t, c, entities.DraftReady)

	// Assert
	assert.Equal(t, entities.DraftAddressResolving, resolving.State)
	assert.Equal(t, entities.AddressPlaceholder, resolving.Address)
	assert.Equal(t, "Paris, Ile-de-France", ready.Address)
	assert.Equal(t, "10/05/2024", ready.Date)
	assert.Equal(t, 48.85, ready.Lat)
	assert.Equal(t, []entities.DraftState{
		entities.DraftLocationCaptured,
		entities.DraftAddressResolving,
		entities.DraftReady,
	}, rec.all())
}

func TestDraftController_RecaptureDropsStaleLookup(t *testing.T) {
	defer goleak.VerifyNone(t)

	resolver := newGatedResolver()
	c, _ := newTestController(new(mocks.MockRemoteCollection), resolver)
	defer c.Close()

	require.NoError(t, c.CaptureLocation(1, 1))
	resolver.waitCall(t)
	require.NoError(t, c.CaptureLocation(2, 2))
	resolver.waitCall(t)

	resolver.release(1, "second")
	ready := waitForState(t, c, entities.DraftReady)

	assert.Equal(t, "second", ready.Address)
	assert.Equal(t, 2.0, ready.Lat)

	// the first lookup was cancelled and its result must not land
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "second", c.Draft().Address)
}

func TestDraftController_CancelDuringLookup(t *testing.T) {
	defer goleak.VerifyNone(t)

	resolver := newGatedResolver()
	c, _ := newTestController(new(mocks.MockRemoteCollection), resolver)
	defer c.Close()

	require.NoError(t, c.CaptureLocation(1, 1))
	resolver.waitCall(t)
	require.NoError(t, c.Cancel())

	time.Sleep(20 * time.Millisecond)
	d := c.Draft()
	assert.Equal(t, entities.DraftEmpty, d.State)
	assert.Empty(t, d.Address)
}

func TestDraftController_CaptureValidation(t *testing.T) {
	c, _ := newTestController(new(mocks.MockRemoteCollection), instantResolver("x"))
	defer c.Close()

	err := c.CaptureLocation(0, 0)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLocationRequired))

	err = c.CaptureLocation(91, 0)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLocationOutOfRange))

	assert.Equal(t, entities.DraftEmpty, c.Draft().State)
}

func TestDraftController_SetDescription(t *testing.T) {
	c, _ := newTestController(new(mocks.MockRemoteCollection), instantResolver("Paris"))
	defer c.Close()

	err := c.SetDescription("too early")
	assert.True(t, pkgerrors.IsConflict(err))

	require.NoError(t, c.CaptureLocation(1, 1))
	require.NoError(t, c.SetDescription("Picnic"))
	d := waitForState(t, c, entities.DraftReady)

	assert.Equal(t, "Picnic", d.Description)
}

func TestDraftController_Commit(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Arrange
	remote := new(mocks.MockRemoteCollection)
	c, clk := newTestController(remote, instantResolver("Paris, Ile-de-France"))
	defer c.Close()

	require.NoError(t, c.CaptureLocation(48.85, 2.35))
	require.NoError(t, c.SetDescription("Picnic by the river"))
	waitForState(t, c, entities.DraftReady)

	expected := entities.Memory{
		ID:          "mem-1",
		Description: "Picnic by the river",
		Date:        "10/05/2024",
		Lat:         48.85,
		Lng:         2.35,
		Address:     "Paris, Ile-de-France",
		Timestamp:   clk.Now().UnixMilli(),
	}
	remote.On("GenerateID", mock.Anything, "user-1").Return("mem-1", nil).Once()
	remote.On("Write", mock.Anything, "user-1", "mem-1", expected.ToRecord()).Return(nil).Once()

	// Act
	memory, err := c.Commit(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, expected, memory)
	assert.Equal(t, entities.NewDraft(), c.Draft())
	remote.AssertExpectations(t)
}

func TestDraftController_CommitValidationFailures(t *testing.T) {
	tests := []struct {
		name        string
		description string
		capture     bool
		code        string
	}{
		{name: "blank description with location", description: "", capture: true, code: pkgerrors.CodeDescriptionRequired},
		{name: "whitespace description", description: "   ", capture: true, code: pkgerrors.CodeDescriptionRequired},
		{name: "empty draft", capture: false, code: pkgerrors.CodeDescriptionRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := new(mocks.MockRemoteCollection)
			c, _ := newTestController(remote, instantResolver("Paris"))
			defer c.Close()

			if tt.capture {
				require.NoError(t, c.CaptureLocation(5, 5))
				require.NoError(t, c.SetDescription(tt.description))
				waitForState(t, c, entities.DraftReady)
			}
			before := c.Draft()

			_, err := c.Commit(context.Background())

			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.True(t, pkgerrors.HasCode(err, tt.code))
			assert.Equal(t, before, c.Draft())
			remote.AssertNotCalled(t, "GenerateID", mock.Anything, mock.Anything)
			remote.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDraftController_CommitWhileResolvingIsRejected(t *testing.T) {
	defer goleak.VerifyNone(t)

	resolver := newGatedResolver()
	remote := new(mocks.MockRemoteCollection)
	c, _ := newTestController(remote, resolver)
	defer c.Close()

	require.NoError(t, c.CaptureLocation(1, 1))
	require.NoError(t, c.SetDescription("Picnic"))
	resolver.waitCall(t)

	_, err := c.Commit(context.Background())

	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
	assert.Equal(t, entities.DraftAddressResolving, c.Draft().State)
	remote.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDraftController_CommitWriteFailureKeepsDraft(t *testing.T) {
	remote := new(mocks.MockRemoteCollection)
	c, _ := newTestController(remote, instantResolver("Paris"))
	defer c.Close()

	require.NoError(t, c.CaptureLocation(1, 1))
	require.NoError(t, c.SetDescription("Picnic"))
	before := waitForState(t, c, entities.DraftReady)

	remote.On("GenerateID", mock.Anything, "user-1").Return("mem-1", nil).Once()
	remote.On("Write", mock.Anything, "user-1", "mem-1", mock.Anything).Return(errors.New("quota exceeded")).Once()

	_, err := c.Commit(context.Background())

	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeMemoryWriteFailed))
	assert.Equal(t, before, c.Draft())
	remote.AssertExpectations(t)
}

func TestDraftController_CommitIDFailure(t *testing.T) {
	remote := new(mocks.MockRemoteCollection)
	c, _ := newTestController(remote, instantResolver("Paris"))
	defer c.Close()

	require.NoError(t, c.CaptureLocation(1, 1))
	require.NoError(t, c.SetDescription("Picnic"))
	waitForState(t, c, entities.DraftReady)
	remote.On("GenerateID", mock.Anything, "user-1").Return("", errors.New("offline")).Once()

	_, err := c.Commit(context.Background())

	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeMemoryWriteFailed))
	assert.Equal(t, entities.DraftReady, c.Draft().State)
	remote.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDraftController_CancelWhileSubmitting(t *testing.T) {
	defer goleak.VerifyNone(t)

	remote := new(mocks.MockRemoteCollection)
	c, _ := newTestController(remote, instantResolver("Paris"))
	defer c.Close()

	require.NoError(t, c.CaptureLocation(1, 1))
	require.NoError(t, c.SetDescription("Picnic"))
	waitForState(t, c, entities.DraftReady)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	remote.On("GenerateID", mock.Anything, "user-1").Run(func(mock.Arguments) {
		close(entered)
		<-unblock
	}).Return("mem-1", nil).Once()
	remote.On("Write", mock.Anything, "user-1", "mem-1", mock.Anything).Return(nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := c.Commit(context.Background())
		done <- err
	}()
	<-entered

	assert.True(t, pkgerrors.IsConflict(c.Cancel()))
	assert.True(t, pkgerrors.IsConflict(c.SetDescription("changed")))
	assert.True(t, c.Draft().IsSubmitting())

	close(unblock)
	require.NoError(t, <-done)
	assert.Equal(t, entities.DraftEmpty, c.Draft().State)
}

func TestDraftController_CloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	resolver := newGatedResolver()
	c, _ := newTestController(new(mocks.MockRemoteCollection), resolver)

	require.NoError(t, c.CaptureLocation(1, 1))
	resolver.waitCall(t)

	c.Close()
	c.Close()

	assert.Error(t, c.CaptureLocation(2, 2))
	assert.Equal(t, entities.DraftEmpty, c.Draft().State)
}

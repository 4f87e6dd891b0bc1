package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"memorymap-backend/pkg/observability"
	"memorymap-backend/tests/fixtures"
	"memorymap-backend/tests/mocks"
)

func TestMapSync_AppliesDelta(t *testing.T) {
	// Arrange
	surface := new(mocks.MockRenderSurface)
	ms := NewMapSync(surface, zap.NewNop(), observability.NewMetrics("test"))
	a := fixtures.NewMemoryBuilder().WithID("a").WithLocation(1, 1).WithDescription("A").Build()
	b := fixtures.NewMemoryBuilder().WithID("b").WithLocation(2, 2).WithDescription("B").Build()
	c := fixtures.NewMemoryBuilder().WithID("c").WithLocation(3, 3).WithDescription("C").Build()

	surface.On("AddMarker", "a", 1.0, 1.0, "A").Return(nil).Once()
	surface.On("AddMarker", "b", 2.0, 2.0, "B").Return(nil).Once()

	// Act
	added, removed := ms.Apply(fixtures.Snapshot(a, b))

	// Assert
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, removed)

	surface.On("RemoveMarker", "a").Return(nil).Once()
	surface.On("AddMarker", "c", 3.0, 3.0, "C").Return(nil).Once()

	added, removed = ms.Apply(fixtures.Snapshot(b, c))

	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"b", "c"}, ms.Markers().IDs())
	surface.AssertExpectations(t)
}

func TestMapSync_SkipsMemoriesWithoutLocation(t *testing.T) {
	surface := new(mocks.MockRenderSurface)
	ms := NewMapSync(surface, zap.NewNop(), nil)

	added, removed := ms.Apply(fixtures.Snapshot(fixtures.NewMemoryBuilder().WithoutLocation().Build()))

	assert.Zero(t, added)
	assert.Zero(t, removed)
	assert.Zero(t, ms.Markers().Len())
	surface.AssertNotCalled(t, "AddMarker", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMapSync_FailedAddIsRetried(t *testing.T) {
	surface := new(mocks.MockRenderSurface)
	ms := NewMapSync(surface, zap.NewNop(), nil)
	a := fixtures.NewMemoryBuilder().WithID("a").WithLocation(1, 1).WithDescription("A").Build()

	surface.On("AddMarker", "a", 1.0, 1.0, "A").Return(errors.New("surface busy")).Once()
	added, _ := ms.Apply(fixtures.Snapshot(a))
	assert.Zero(t, added)
	assert.False(t, ms.Markers().Has("a"))

	surface.On("AddMarker", "a", 1.0, 1.0, "A").Return(nil).Once()
	added, _ = ms.Apply(fixtures.Snapshot(a))
	assert.Equal(t, 1, added)
	assert.True(t, ms.Markers().Has("a"))
	surface.AssertExpectations(t)
}

func TestMapSync_FailedRemoveKeepsMarker(t *testing.T) {
	surface := new(mocks.MockRenderSurface)
	ms := NewMapSync(surface, zap.NewNop(), nil)
	a := fixtures.NewMemoryBuilder().WithID("a").WithLocation(1, 1).WithDescription("A").Build()
	moved := fixtures.NewMemoryBuilder().WithID("a").WithLocation(5, 5).WithDescription("A").Build()

	surface.On("AddMarker", "a", 1.0, 1.0, "A").Return(nil).Once()
	ms.Apply(fixtures.Snapshot(a))

	surface.On("RemoveMarker", "a").Return(errors.New("gone wrong")).Once()
	added, removed := ms.Apply(fixtures.Snapshot(moved))

	assert.Zero(t, added)
	assert.Zero(t, removed)
	mk, ok := ms.Markers().Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1.0, mk.Lat, "the marker still drawn at the old position is tracked")
	surface.AssertExpectations(t)
}

func TestMapSync_Clear(t *testing.T) {
	surface := new(mocks.MockRenderSurface)
	ms := NewMapSync(surface, zap.NewNop(), nil)
	surface.On("AddMarker", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	surface.On("RemoveMarker", mock.Anything).Return(nil)

	ms.Apply(fixtures.Snapshot(
		fixtures.NewMemoryBuilder().WithID("a").Build(),
		fixtures.NewMemoryBuilder().WithID("b").Build(),
	))
	ms.Clear()

	assert.Zero(t, ms.Markers().Len())
	surface.AssertNumberOfCalls(t, "RemoveMarker", 2)
}

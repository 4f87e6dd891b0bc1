package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
	"memorymap-backend/pkg/observability"
	"memorymap-backend/tests/fixtures"
	"memorymap-backend/tests/mocks"
)

const budgetKey = "mm:user-1:last_anniversary_notify"

type anniversaryFixture struct {
	budgets *mocks.MockKeyValueStore
	sink    *mocks.MockNotificationSink
	clock   clock.FakeClock
	service *AnniversaryService
}

func newAnniversaryFixture(t *testing.T, now time.Time) *anniversaryFixture {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(now)
	f := &anniversaryFixture{
		budgets: new(mocks.MockKeyValueStore),
		sink:    new(mocks.MockNotificationSink),
		clock:   clk,
	}
	f.service = NewAnniversaryService(f.budgets, f.sink, clk, time.UTC, "mm:", zap.NewNop(), observability.NewMetrics("test"))
	return f
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestAnniversaryService_BudgetKey(t *testing.T) {
	f := newAnniversaryFixture(t, day(2024, time.May, 10))

	assert.Equal(t, budgetKey, f.service.BudgetKey("user-1"))
}

func TestAnniversaryService_NotifiesOncePerDay(t *testing.T) {
	// Arrange
	f := newAnniversaryFixture(t, day(2024, time.May, 10))
	snap := fixtures.Snapshot(
		fixtures.NewMemoryBuilder().WithID("a").WithDate("10/05/2023").WithAddress("Paris, Ile-de-France").WithTimestamp(2).Build(),
		fixtures.NewMemoryBuilder().WithID("b").WithDate("11/05/2023").WithTimestamp(1).Build(),
	)

	f.budgets.On("Get", mock.Anything, budgetKey).Return("", ports.ErrKeyNotFound).Once()
	f.budgets.On("Put", mock.Anything, budgetKey, "10/05/2024").Return(nil).Once()
	f.sink.On("Notify", mock.Anything, ports.Notification{
		UserID:   "user-1",
		Title:    AnniversaryTitle,
		Body:     "You were at Paris, Ile-de-France",
		MemoryID: "a",
	}).Return(nil).Once()

	// Act
	memory, notified := f.service.Evaluate(context.Background(), "user-1", snap)
	_, again := f.service.Evaluate(context.Background(), "user-1", snap)

	// Assert
	require.True(t, notified)
	assert.Equal(t, "a", memory.ID)
	assert.False(t, again)
	f.budgets.AssertExpectations(t)
	f.sink.AssertExpectations(t)
}

func TestAnniversaryService_BudgetAlreadySpent(t *testing.T) {
	f := newAnniversaryFixture(t, day(2024, time.May, 10))
	snap := fixtures.Snapshot(fixtures.NewMemoryBuilder().WithDate("10/05/2023").Build())
	f.budgets.On("Get", mock.Anything, budgetKey).Return("10/05/2024", nil).Once()

	_, notified := f.service.Evaluate(context.Background(), "user-1", snap)
	_, again := f.service.Evaluate(context.Background(), "user-1", snap)

	assert.False(t, notified)
	assert.False(t, again)
	f.budgets.AssertExpectations(t)
	f.budgets.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	f.sink.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestAnniversaryService_NextDayNotifiesAgain(t *testing.T) {
	f := newAnniversaryFixture(t, day(2024, time.May, 10))
	snap := fixtures.Snapshot(
		fixtures.NewMemoryBuilder().WithID("first").WithDate("10/05/2023").Build(),
		fixtures.NewMemoryBuilder().WithID("second").WithDate("11/05/2023").Build(),
	)
	f.budgets.On("Get", mock.Anything, budgetKey).Return("", ports.ErrKeyNotFound).Once()
	f.budgets.On("Put", mock.Anything, budgetKey, "10/05/2024").Return(nil).Once()
	f.budgets.On("Get", mock.Anything, budgetKey).Return("10/05/2024", nil).Once()
	f.budgets.On("Put", mock.Anything, budgetKey, "11/05/2024").Return(nil).Once()
	f.sink.On("Notify", mock.Anything, mock.Anything).Return(nil).Twice()

	first, ok := f.service.Evaluate(context.Background(), "user-1", snap)
	require.True(t, ok)
	f.clock.Add(24 * time.Hour)
	second, ok := f.service.Evaluate(context.Background(), "user-1", snap)
	require.True(t, ok)

	assert.Equal(t, "first", first.ID)
	assert.Equal(t, "second", second.ID)
	f.budgets.AssertExpectations(t)
}

func TestAnniversaryService_NoMatchDoesNotSpendBudget(t *testing.T) {
	f := newAnniversaryFixture(t, day(2024, time.May, 10))
	empty := fixtures.Snapshot(fixtures.NewMemoryBuilder().WithDate("01/01/2020").Build())
	later := fixtures.Snapshot(fixtures.NewMemoryBuilder().WithID("late").WithDate("10/05/2023").Build())

	f.budgets.On("Get", mock.Anything, budgetKey).Return("", ports.ErrKeyNotFound).Twice()
	f.budgets.On("Put", mock.Anything, budgetKey, "10/05/2024").Return(nil).Once()
	f.sink.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	_, first := f.service.Evaluate(context.Background(), "user-1", empty)
	memory, second := f.service.Evaluate(context.Background(), "user-1", later)

	assert.False(t, first)
	assert.True(t, second)
	assert.Equal(t, "late", memory.ID)
}

func TestAnniversaryService_ReadFailureSuppresses(t *testing.T) {
	f := newAnniversaryFixture(t, day(2024, time.May, 10))
	snap := fixtures.Snapshot(fixtures.NewMemoryBuilder().WithDate("10/05/2023").Build())
	f.budgets.On("Get", mock.Anything, budgetKey).Return("", errors.New("disk unreadable")).Once()

	_, notified := f.service.Evaluate(context.Background(), "user-1", snap)
	_, again := f.service.Evaluate(context.Background(), "user-1", snap)

	assert.False(t, notified)
	assert.False(t, again, "the day is settled after a read failure")
	f.sink.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	f.budgets.AssertExpectations(t)
}

func TestAnniversaryService_WriteFailureSkipsNotification(t *testing.T) {
	f := newAnniversaryFixture(t, day(2024, time.May, 10))
	snap := fixtures.Snapshot(fixtures.NewMemoryBuilder().WithDate("10/05/2023").Build())
	f.budgets.On("Get", mock.Anything, budgetKey).Return("", ports.ErrKeyNotFound).Once()
	f.budgets.On("Put", mock.Anything, budgetKey, "10/05/2024").Return(errors.New("read-only")).Once()

	_, notified := f.service.Evaluate(context.Background(), "user-1", snap)

	assert.False(t, notified)
	f.sink.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestAnniversaryService_DeliveryFailureStillSpendsBudget(t *testing.T) {
	f := newAnniversaryFixture(t, day(2024, time.May, 10))
	snap := fixtures.Snapshot(fixtures.NewMemoryBuilder().WithDate("10/05/2023").WithAddress("").Build())
	f.budgets.On("Get", mock.Anything, budgetKey).Return("", ports.ErrKeyNotFound).Once()
	f.budgets.On("Put", mock.Anything, budgetKey, "10/05/2024").Return(nil).Once()
	f.sink.On("Notify", mock.Anything, mock.MatchedBy(func(n ports.Notification) bool {
		return n.Body == "You were at "+entities.NoAddressLabel
	})).Return(errors.New("bot blocked")).Once()

	_, notified := f.service.Evaluate(context.Background(), "user-1", snap)
	_, again := f.service.Evaluate(context.Background(), "user-1", snap)

	assert.True(t, notified)
	assert.False(t, again)
	f.sink.AssertExpectations(t)
}

func TestAnniversaryService_ForgetClearsProcessGuard(t *testing.T) {
	f := newAnniversaryFixture(t, day(2024, time.May, 10))
	snap := fixtures.Snapshot(fixtures.NewMemoryBuilder().WithDate("10/05/2023").Build())
	f.budgets.On("Get", mock.Anything, budgetKey).Return("", ports.ErrKeyNotFound).Once()
	f.budgets.On("Put", mock.Anything, budgetKey, "10/05/2024").Return(nil).Once()
	f.budgets.On("Get", mock.Anything, budgetKey).Return("10/05/2024", nil).Once()
	f.sink.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	_, first := f.service.Evaluate(context.Background(), "user-1", snap)
	f.service.Forget("user-1")
	_, second := f.service.Evaluate(context.Background(), "user-1", snap)

	assert.True(t, first)
	assert.False(t, second, "the durable budget still blocks a second reminder")
	f.budgets.AssertExpectations(t)
}

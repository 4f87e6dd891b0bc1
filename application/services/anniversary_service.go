package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
	"memorymap-backend/domain/core/valueobjects"
	domainservices "memorymap-backend/domain/services"
	"memorymap-backend/pkg/observability"
)

// Anniversary notification text.
const (
	AnniversaryTitle      = "Exactly one year ago today!"
	anniversaryBodyPrefix = "You were at "
)

// AnniversaryService runs the detector on every snapshot and owns the
// durable notification budget.
//
// The budget is read, compared and written before the notification is
// sent. A budget that cannot be read (other than being absent) or cannot
// be written suppresses the notification, so failures lean towards
// under-notifying.
type AnniversaryService struct {
	detector  domainservices.AnniversaryDetector
	budgets   ports.KeyValueStore
	sink      ports.NotificationSink
	clock     clock.Clock
	location  *time.Location
	keyPrefix string
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	settled map[string]string // userID -> day already handled in this process
}

// NewAnniversaryService creates the service. location decides where
// "today" begins; nil means UTC.
func NewAnniversaryService(
	budgets ports.KeyValueStore,
	sink ports.NotificationSink,
	clk clock.Clock,
	location *time.Location,
	keyPrefix string,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *AnniversaryService {
	if location == nil {
		location = time.UTC
	}
	return &AnniversaryService{
		detector:  domainservices.NewAnniversaryDetector(),
		budgets:   budgets,
		sink:      sink,
		clock:     clk,
		location:  location,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "anniversary")),
		metrics:   metrics,
		locks:     make(map[string]*sync.Mutex),
		settled:   make(map[string]string),
	}
}

// BudgetKey is the key-value key holding userID's budget.
func (s *AnniversaryService) BudgetKey(userID string) string {
	return s.keyPrefix + userID + ":" + entities.BudgetKey
}

// Today returns the current calendar day in the service's location.
func (s *AnniversaryService) Today() valueobjects.CalendarDate {
	return valueobjects.DateOf(s.clock.Now().In(s.location))
}

// Evaluate checks snap for a one-year anniversary and notifies at most once
// per calendar day. It returns the memory that was announced, if any.
func (s *AnniversaryService) Evaluate(ctx context.Context, userID string, snap entities.Snapshot) (entities.Memory, bool) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	today := s.Today()
	if s.isSettled(userID, today) {
		return entities.Memory{}, false
	}

	budget, ok := s.readBudget(ctx, userID, today)
	if !ok {
		s.settle(userID, today)
		return entities.Memory{}, false
	}

	memory, next, found := s.detector.Check(snap, today, budget)
	if budget.SpentOn(today) {
		s.settle(userID, today)
	}
	if !found {
		return entities.Memory{}, false
	}

	s.settle(userID, today)
	if err := s.budgets.Put(ctx, s.BudgetKey(userID), next.LastNotified); err != nil {
		s.metrics.RecordBudgetError("write")
		s.logger.Error("Failed to persist notification budget, skipping reminder",
			zap.String("userID", userID),
			zap.String("memoryID", memory.ID),
			zap.Error(err),
		)
		return entities.Memory{}, false
	}

	n := ports.Notification{
		UserID:   userID,
		Title:    AnniversaryTitle,
		Body:     anniversaryBodyPrefix + memory.DisplayAddress(),
		MemoryID: memory.ID,
	}
	if err := s.sink.Notify(ctx, n); err != nil {
		s.logger.Warn("Anniversary notification delivery failed",
			zap.String("userID", userID),
			zap.String("memoryID", memory.ID),
			zap.Error(err),
		)
	}
	s.metrics.RecordAnniversary()
	s.logger.Info("Anniversary reminder sent",
		zap.String("userID", userID),
		zap.String("memoryID", memory.ID),
		zap.String("date", memory.Date),
	)
	return memory, true
}

// readBudget returns the stored budget. ok is false when the budget could
// not be read, in which case the caller treats today as already notified.
func (s *AnniversaryService) readBudget(ctx context.Context, userID string, today valueobjects.CalendarDate) (entities.NotificationBudget, bool) {
	value, err := s.budgets.Get(ctx, s.BudgetKey(userID))
	switch {
	case err == nil:
		return entities.NotificationBudget{LastNotified: value}, true
	case errors.Is(err, ports.ErrKeyNotFound):
		return entities.NotificationBudget{}, true
	}

	s.metrics.RecordBudgetError("read")
	s.logger.Error("Failed to read notification budget, assuming already notified",
		zap.String("userID", userID),
		zap.String("today", today.String()),
		zap.Error(err),
	)
	return entities.NotificationBudget{}, false
}

func (s *AnniversaryService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *AnniversaryService) isSettled(userID string, today valueobjects.CalendarDate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled[userID] == today.String()
}

func (s *AnniversaryService) settle(userID string, today valueobjects.CalendarDate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled[userID] = today.String()
}

// Forget drops the in-process state held for userID.
func (s *AnniversaryService) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settled, userID)
	delete(s.locks, userID)
}

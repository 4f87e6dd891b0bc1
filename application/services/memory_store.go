package services

import (
	"context"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
	pkgerrors "memorymap-backend/pkg/errors"
	"memorymap-backend/pkg/observability"
)

// StoreStatus describes how fresh the store's current snapshot is.
type StoreStatus string

const (
	StatusIdle        StoreStatus = "idle"
	StatusLoading     StoreStatus = "loading"
	StatusLoaded      StoreStatus = "loaded"
	StatusStale       StoreStatus = "stale"
	StatusUnavailable StoreStatus = "unavailable"
)

// MemoryStoreConfig tunes resubscription.
type MemoryStoreConfig struct {
	ResubscribeDelay time.Duration
}

// DefaultMemoryStoreConfig returns production defaults.
func DefaultMemoryStoreConfig() MemoryStoreConfig {
	return MemoryStoreConfig{ResubscribeDelay: 5 * time.Second}
}

type storeEvent struct {
	records []entities.Record
	err     error
}

// MemoryStore owns the authoritative snapshot of one user's memories.
//
// Remote callbacks never touch the snapshot directly: they append to a
// FIFO and return. A single goroutine per subscription drains the FIFO,
// orders each member set and publishes it, so consumers observe snapshots
// in exactly the order the remote delivered them. Every remote
// subscription is tagged with a generation; callbacks carrying an old
// generation are discarded.
type MemoryStore struct {
	remote  ports.RemoteCollection
	clock   clock.Clock
	config  MemoryStoreConfig
	logger  *zap.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	userKey    string
	generation uint64
	sub        ports.Subscription
	queue      []storeEvent
	signal     chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
	current    entities.Snapshot
	status     StoreStatus
	sequence   uint64
	settled    chan struct{}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// NewMemoryStore creates a store reading from remote.
func NewMemoryStore(
	remote ports.RemoteCollection,
	clk clock.Clock,
	config MemoryStoreConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *MemoryStore {
	if config.ResubscribeDelay <= 0 {
		config.ResubscribeDelay = DefaultMemoryStoreConfig().ResubscribeDelay
	}
	return &MemoryStore{
		remote:  remote,
		clock:   clk,
		config:  config,
		logger:  logger.With(zap.String("component", "memory_store")),
		metrics: metrics,
		current: entities.NewSnapshot(nil),
		status:  StatusIdle,
		settled: closedChan(),
	}
}

// Subscribe opens the remote subscription for userKey and returns the
// snapshot stream. Any previous subscription is torn down first and its
// stream closed. The stream closes on Unsubscribe or when ctx ends.
func (s *MemoryStore) Subscribe(ctx context.Context, userKey string) (<-chan entities.Snapshot, error) {
	if userKey == "" {
		return nil, pkgerrors.NewValidationError("user key is required")
	}

	s.Unsubscribe()

	loopCtx, cancel := context.WithCancel(ctx)
	out := make(chan entities.Snapshot)
	done := make(chan struct{})

	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.userKey != userKey {
		s.current = entities.NewSnapshot(nil)
		s.sequence = 0
	}
	s.userKey = userKey
	s.queue = nil
	s.signal = make(chan struct{}, 1)
	s.cancel = cancel
	s.done = done
	s.status = StatusLoading
	s.settled = make(chan struct{})
	signal := s.signal
	s.mu.Unlock()

	go s.run(loopCtx, signal, out, done)

	s.logger.Info("Subscribing to memories", zap.String("userID", userKey))
	s.open(loopCtx, userKey, gen)

	return out, nil
}

// Unsubscribe releases the remote subscription and closes the stream.
// Calling it more than once, or before Subscribe, is a no-op.
func (s *MemoryStore) Unsubscribe() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Current returns the most recently published snapshot.
func (s *MemoryStore) Current() entities.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Status reports whether the current snapshot is live, stale or absent.
func (s *MemoryStore) Status() StoreStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Settled returns a channel closed once the subscription opened by the
// last Subscribe has either published a snapshot or failed.
func (s *MemoryStore) Settled() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled
}

// settle must be called with mu held.
func (s *MemoryStore) settle() {
	select {
	case <-s.settled:
	default:
		close(s.settled)
	}
}

// UserKey returns the scope of the active subscription.
func (s *MemoryStore) UserKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userKey
}

// open subscribes to the remote collection under generation gen. A
// failure is queued like any other subscription error.
func (s *MemoryStore) open(ctx context.Context, userKey string, gen uint64) {
	sub, err := s.remote.Subscribe(ctx, userKey,
		func(records []entities.Record) {
			s.enqueue(gen, storeEvent{records: append([]entities.Record(nil), records...)})
		},
		func(err error) {
			s.enqueue(gen, storeEvent{err: err})
		},
	)
	if err != nil {
		s.enqueue(gen, storeEvent{err: err})
		return
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.closeSubscription(sub)
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

// enqueue appends ev if gen is still current. An error retires the
// generation immediately so nothing the failed subscription sends
// afterwards is published.
func (s *MemoryStore) enqueue(gen uint64, ev storeEvent) {
	s.mu.Lock()
	if gen != s.generation || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	if ev.err != nil {
		s.generation++
	}
	s.queue = append(s.queue, ev)
	signal := s.signal
	s.mu.Unlock()

	select {
	case signal <- struct{}{}:
	default:
	}
}

func (s *MemoryStore) dequeue() (storeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return storeEvent{}, false
	}
	ev := s.queue[0]
	s.queue[0] = storeEvent{}
	s.queue = s.queue[1:]
	return ev, true
}

func (s *MemoryStore) run(ctx context.Context, signal <-chan struct{}, out chan<- entities.Snapshot, done chan struct{}) {
	defer close(done)
	defer close(out)
	defer s.teardown()

	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case <-retry:
			retry = nil
			s.resubscribe(ctx)

		case <-signal:
			for {
				ev, ok := s.dequeue()
				if !ok {
					break
				}
				if ev.err != nil {
					s.handleError(ev.err)
					if retry == nil {
						retry = s.clock.After(s.config.ResubscribeDelay)
					}
					continue
				}
				if !s.publish(ctx, out, ev.records) {
					return
				}
			}
		}
	}
}

func (s *MemoryStore) publish(ctx context.Context, out chan<- entities.Snapshot, records []entities.Record) bool {
	memories := make([]entities.Memory, 0, len(records))
	for _, r := range records {
		memories = append(memories, entities.MemoryFromRecord("", r))
	}

	snap := entities.NewSnapshot(memories)

	s.mu.Lock()
	s.sequence++
	snap = snap.WithSequence(s.sequence)
	s.current = snap
	s.status = StatusLoaded
	s.settle()
	s.mu.Unlock()

	s.metrics.RecordSnapshot(snap.Len())

	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *MemoryStore) handleError(err error) {
	s.mu.Lock()
	if s.sequence > 0 {
		s.status = StatusStale
	} else {
		s.status = StatusUnavailable
	}
	s.settle()
	sub := s.sub
	s.sub = nil
	userKey := s.userKey
	status := s.status
	s.mu.Unlock()

	s.logger.Warn("Remote subscription failed, keeping last snapshot",
		zap.String("userID", userKey),
		zap.String("status", string(status)),
		zap.Duration("retryIn", s.config.ResubscribeDelay),
		zap.Error(err),
	)
	s.metrics.RecordSubscriptionError()
	s.closeSubscription(sub)
}

func (s *MemoryStore) resubscribe(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	userKey := s.userKey
	s.mu.Unlock()

	s.logger.Info("Resubscribing to memories", zap.String("userID", userKey))
	s.metrics.RecordResubscribe()
	s.open(ctx, userKey, gen)
}

func (s *MemoryStore) teardown() {
	s.mu.Lock()
	s.generation++
	sub := s.sub
	s.sub = nil
	s.queue = nil
	s.cancel, s.done = nil, nil
	if s.status == StatusLoading {
		s.status = StatusIdle
	}
	s.settle()
	userKey := s.userKey
	s.mu.Unlock()

	s.closeSubscription(sub)
	s.logger.Info("Unsubscribed from memories", zap.String("userID", userKey))
}

func (s *MemoryStore) closeSubscription(sub ports.Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		s.logger.Warn("Failed to close remote subscription", zap.Error(err))
	}
}

package mocks

import (
	"context"
	"sync"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
)

// FakeSubscription exposes the callbacks handed to FakeCollection so tests
// can drive deliveries by hand.
type FakeSubscription struct {
	Scope      string
	onSnapshot ports.SnapshotCallback
	onError    ports.ErrorCallback

	mu     sync.Mutex
	closed bool
}

// Push delivers a full member set.
func (s *FakeSubscription) Push(records ...entities.Record) {
	s.onSnapshot(records)
}

// Fail delivers a subscription error.
func (s *FakeSubscription) Fail(err error) {
	s.onError(err)
}

func (s *FakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FakeSubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeCollection records subscriptions instead of talking to a backend.
// GenerateID, Write and Delete are not supported; use
// MockRemoteCollection for the write path.
type FakeCollection struct {
	mu           sync.Mutex
	subs         []*FakeSubscription
	subscribeErr error
}

func NewFakeCollection() *FakeCollection {
	return &FakeCollection{}
}

// FailSubscribe makes subsequent Subscribe calls return err (nil restores).
func (f *FakeCollection) FailSubscribe(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErr = err
}

func (f *FakeCollection) Subscribe(_ context.Context, scope string, onSnapshot ports.SnapshotCallback, onError ports.ErrorCallback) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := &FakeSubscription{Scope: scope, onSnapshot: onSnapshot, onError: onError}
	f.subs = append(f.subs, sub)
	return sub, nil
}

// Subscriptions returns every subscription opened so far, oldest first.
func (f *FakeCollection) Subscriptions() []*FakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSubscription(nil), f.subs...)
}

// Count returns the number of successful Subscribe calls.
func (f *FakeCollection) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Latest returns the most recent subscription or nil.
func (f *FakeCollection) Latest() *FakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *FakeCollection) GenerateID(context.Context, string) (string, error) {
	return "", errNotSupported
}

func (f *FakeCollection) Write(context.Context, string, string, entities.Record) error {
	return errNotSupported
}

func (f *FakeCollection) Delete(context.Context, string, string) error {
	return errNotSupported
}

type notSupported struct{}

func (notSupported) Error() string { return "not supported by FakeCollection" }

var errNotSupported error = notSupported{}

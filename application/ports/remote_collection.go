package ports

import (
	"context"
	"errors"

	"memorymap-backend/domain/core/entities"
)

// ErrSubscriptionClosed is reported by a collection when it shuts down
// underneath a live subscription.
var ErrSubscriptionClosed = errors.New("subscription closed")

// SnapshotCallback receives the full member set of a scope. It is invoked
// every time the remote side changes, never with a delta.
type SnapshotCallback func(records []entities.Record)

// ErrorCallback receives subscription failures. After an error the
// subscription delivers nothing further.
type ErrorCallback func(err error)

// Subscription is a live remote listener.
type Subscription interface {
	// Close releases the listener. Safe to call more than once.
	Close() error
}

// RemoteCollection is a key-scoped, push-notifying collection of records.
// This is a port in hexagonal architecture; adapters live under
// infrastructure/persistence.
type RemoteCollection interface {
	// Subscribe opens a listener on scope. Callbacks may arrive on any
	// goroutine and, depending on the adapter, concurrently.
	Subscribe(ctx context.Context, scope string, onSnapshot SnapshotCallback, onError ErrorCallback) (Subscription, error)

	// GenerateID reserves a fresh record id in scope.
	GenerateID(ctx context.Context, scope string) (string, error)

	// Write creates or replaces the record id in scope.
	Write(ctx context.Context, scope, id string, record entities.Record) error

	// Delete removes the record id from scope.
	Delete(ctx context.Context, scope, id string) error
}

// Package memory provides in-process adapters for local development and
// tests: a push-notifying record collection and a key-value store.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
	pkgerrors "memorymap-backend/pkg/errors"
)

type scopeData struct {
	order   []string
	records map[string]entities.Record
}

func (s *scopeData) members() []entities.Record {
	out := make([]entities.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyRecord(s.records[id]))
	}
	return out
}

type listener struct {
	id         uint64
	scope      string
	onSnapshot ports.SnapshotCallback
	onError    ports.ErrorCallback
}

// Collection is an in-process RemoteCollection. Every write delivers the
// full member set of the affected scope to its listeners, in write order.
type Collection struct {
	logger *zap.Logger

	// dispatch serialises mutation plus delivery so listeners observe
	// member sets in the order writes happened.
	dispatch sync.Mutex

	mu        sync.Mutex
	scopes    map[string]*scopeData
	listeners map[uint64]*listener
	nextID    uint64
	closed    bool
}

// NewCollection creates an empty collection.
func NewCollection(logger *zap.Logger) *Collection {
	return &Collection{
		logger:    logger.With(zap.String("component", "memory_collection")),
		scopes:    make(map[string]*scopeData),
		listeners: make(map[uint64]*listener),
	}
}

// Subscribe registers a listener and immediately delivers the current
// member set, like a snapshot listener on a document database.
func (c *Collection) Subscribe(ctx context.Context, scope string, onSnapshot ports.SnapshotCallback, onError ports.ErrorCallback) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.dispatch.Lock()
	defer c.dispatch.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ports.ErrSubscriptionClosed
	}
	c.nextID++
	l := &listener{id: c.nextID, scope: scope, onSnapshot: onSnapshot, onError: onError}
	c.listeners[l.id] = l
	members := c.scope(scope).members()
	c.mu.Unlock()

	onSnapshot(members)
	return &subscription{collection: c, id: l.id}, nil
}

// GenerateID returns a random id. The memory backend never collides.
func (c *Collection) GenerateID(_ context.Context, _ string) (string, error) {
	return uuid.NewString(), nil
}

// Write creates or replaces a record and notifies the scope's listeners.
func (c *Collection) Write(ctx context.Context, scope, id string, record entities.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return pkgerrors.NewValidationError("record id is required")
	}

	c.dispatch.Lock()
	defer c.dispatch.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ports.ErrSubscriptionClosed
	}
	data := c.scope(scope)
	if _, exists := data.records[id]; !exists {
		data.order = append(data.order, id)
	}
	stored := copyRecord(record)
	stored[entities.FieldID] = id
	data.records[id] = stored
	members := data.members()
	targets := c.listenersFor(scope)
	c.mu.Unlock()

	c.logger.Debug("Record written", zap.String("scope", scope), zap.String("id", id))
	for _, l := range targets {
		l.onSnapshot(members)
	}
	return nil
}

// Delete removes a record and notifies the scope's listeners.
func (c *Collection) Delete(ctx context.Context, scope, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.dispatch.Lock()
	defer c.dispatch.Unlock()

	c.mu.Lock()
	data := c.scope(scope)
	if _, exists := data.records[id]; !exists {
		c.mu.Unlock()
		return pkgerrors.NewNotFoundError("memory").WithDetail("id", id)
	}
	delete(data.records, id)
	for i, existing := range data.order {
		if existing == id {
			data.order = append(data.order[:i], data.order[i+1:]...)
			break
		}
	}
	members := data.members()
	targets := c.listenersFor(scope)
	c.mu.Unlock()

	for _, l := range targets {
		l.onSnapshot(members)
	}
	return nil
}

// Close fails every live subscription with ErrSubscriptionClosed and
// rejects further use.
func (c *Collection) Close() {
	c.dispatch.Lock()
	defer c.dispatch.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	targets := make([]*listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		targets = append(targets, l)
	}
	c.listeners = make(map[uint64]*listener)
	c.mu.Unlock()

	for _, l := range targets {
		l.onError(ports.ErrSubscriptionClosed)
	}
}

// ListenerCount returns the number of live subscriptions.
func (c *Collection) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func (c *Collection) scope(name string) *scopeData {
	data, ok := c.scopes[name]
	if !ok {
		data = &scopeData{records: make(map[string]entities.Record)}
		c.scopes[name] = data
	}
	return data
}

func (c *Collection) listenersFor(scope string) []*listener {
	var out []*listener
	for _, l := range c.listeners {
		if l.scope == scope {
			out = append(out, l)
		}
	}
	return out
}

func (c *Collection) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

type subscription struct {
	collection *Collection
	id         uint64
	once       sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() { s.collection.unsubscribe(s.id) })
	return nil
}

func copyRecord(r entities.Record) entities.Record {
	out := make(entities.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

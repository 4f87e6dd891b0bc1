package services

import (
	"context"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
	"memorymap-backend/domain/core/valueobjects"
	pkgerrors "memorymap-backend/pkg/errors"
	"memorymap-backend/pkg/observability"
)

// AddressResolver resolves coordinates to a display address without
// failing. *GeocodeResolver implements it.
type AddressResolver interface {
	Resolve(ctx context.Context, lat, lng float64) string
}

// DraftListener observes every draft change.
type DraftListener func(entities.Draft)

// DraftController drives the memory creation flow for one user:
// capture a location, resolve its address in the background, collect a
// description and commit the result to the remote collection.
//
// Each address lookup carries a token. A lookup whose token no longer
// matches (the draft was reset, the location recaptured or the controller
// closed) is discarded, so a late result never lands on a newer draft.
type DraftController struct {
	userID   string
	remote   ports.RemoteCollection
	resolver AddressResolver
	clock    clock.Clock
	location *time.Location
	logger   *zap.Logger
	metrics  *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	draft        entities.Draft
	version      uint64
	token        uint64
	cancelLookup context.CancelFunc
	closed       bool

	notifyMu    sync.Mutex
	listener    DraftListener
	lastEmitted uint64
}

// NewDraftController creates a controller writing into userID's scope.
func NewDraftController(
	userID string,
	remote ports.RemoteCollection,
	resolver AddressResolver,
	clk clock.Clock,
	location *time.Location,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *DraftController {
	if location == nil {
		location = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DraftController{
		userID:   userID,
		remote:   remote,
		resolver: resolver,
		clock:    clk,
		location: location,
		logger:   logger.With(zap.String("component", "draft"), zap.String("userID", userID)),
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
		draft:    entities.NewDraft(),
	}
}

// OnChange registers the listener notified after every state change.
func (c *DraftController) OnChange(fn DraftListener) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.listener = fn
}

// Draft returns a copy of the current draft.
func (c *DraftController) Draft() entities.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// CaptureLocation records a tapped location and starts resolving its
// address. Recapturing while a lookup is in flight abandons that lookup.
func (c *DraftController) CaptureLocation(lat, lng float64) error {
	loc, err := valueobjects.NewLocation(lat, lng)
	if err != nil {
		return err
	}
	if !loc.IsCaptured() {
		return pkgerrors.NewValidationError("a location must be selected").
			WithCode(pkgerrors.CodeLocationRequired)
	}

	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.draft.TransitionTo(entities.DraftLocationCaptured); err != nil {
		c.mu.Unlock()
		return err
	}
	c.abandonLookupLocked()
	c.draft.Lat, c.draft.Lng = loc.Lat(), loc.Lng()
	c.draft.Date = valueobjects.DateOf(c.clock.Now().In(c.location)).String()
	c.draft.Address = ""
	captured, capturedVersion := c.bumpLocked()

	// LocationCaptured always moves straight on to resolving.
	_ = c.draft.TransitionTo(entities.DraftAddressResolving)
	c.draft.Address = entities.AddressPlaceholder
	lookupCtx, cancel := context.WithCancel(c.ctx)
	c.cancelLookup = cancel
	token := c.token
	resolving, resolvingVersion := c.bumpLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	c.emit(captured, capturedVersion)
	c.emit(resolving, resolvingVersion)

	go func() {
		defer c.wg.Done()
		defer cancel()
		address := c.resolver.Resolve(lookupCtx, loc.Lat(), loc.Lng())
		c.finishLookup(token, address)
	}()
	return nil
}

func (c *DraftController) finishLookup(token uint64, address string) {
	c.mu.Lock()
	if token != c.token || c.draft.State != entities.DraftAddressResolving {
		c.mu.Unlock()
		c.logger.Debug("Discarding stale address lookup", zap.Uint64("token", token))
		return
	}
	c.draft.Address = address
	_ = c.draft.TransitionTo(entities.DraftReady)
	c.cancelLookup = nil
	d, v := c.bumpLocked()
	c.mu.Unlock()

	c.emit(d, v)
}

// SetDescription updates the description while the draft is editable.
func (c *DraftController) SetDescription(description string) error {
	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.draft.CanEditDescription() {
		state := c.draft.State
		c.mu.Unlock()
		return pkgerrors.NewConflictError("description cannot be edited in state " + string(state)).
			WithCode(pkgerrors.CodeInvalidTransition).
			WithDetail("state", string(state))
	}
	c.draft.Description = description
	d, v := c.bumpLocked()
	c.mu.Unlock()

	c.emit(d, v)
	return nil
}

// Commit validates the draft and writes it as a new memory. A validation
// failure leaves the draft untouched and writes nothing. A write failure
// returns the draft to Ready with every field preserved.
func (c *DraftController) Commit(ctx context.Context) (entities.Memory, error) {
	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		c.mu.Unlock()
		return entities.Memory{}, err
	}
	if err := c.draft.Validate(); err != nil {
		c.mu.Unlock()
		c.metrics.RecordCommit("rejected")
		return entities.Memory{}, err
	}
	if c.draft.State != entities.DraftReady {
		state := c.draft.State
		c.mu.Unlock()
		c.metrics.RecordCommit("rejected")
		return entities.Memory{}, pkgerrors.NewConflictError("draft is not ready to commit").
			WithCode(pkgerrors.CodeInvalidTransition).
			WithDetail("state", string(state))
	}
	_ = c.draft.TransitionTo(entities.DraftSubmitting)
	pending, v := c.bumpLocked()
	c.mu.Unlock()
	c.emit(pending, v)

	ctx, span := observability.StartSpan(ctx, "draft.Commit", "user.id", c.userID)
	defer span.End()

	memory, err := c.write(ctx, pending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")

		c.mu.Lock()
		_ = c.draft.TransitionTo(entities.DraftReady)
		d, v := c.bumpLocked()
		c.mu.Unlock()
		c.emit(d, v)

		c.metrics.RecordCommit("failed")
		c.logger.Warn("Memory commit failed, draft kept", zap.Error(err))
		return entities.Memory{}, pkgerrors.NewExternalError("remote collection", err).
			WithCode(pkgerrors.CodeMemoryWriteFailed)
	}

	c.mu.Lock()
	_ = c.draft.TransitionTo(entities.DraftEmpty)
	c.draft = entities.NewDraft()
	d, v := c.bumpLocked()
	c.mu.Unlock()
	c.emit(d, v)

	c.metrics.RecordCommit("ok")
	c.logger.Info("Memory committed", zap.String("memoryID", memory.ID))
	return memory, nil
}

func (c *DraftController) write(ctx context.Context, d entities.Draft) (entities.Memory, error) {
	id, err := c.remote.GenerateID(ctx, c.userID)
	if err != nil {
		return entities.Memory{}, err
	}
	memory := d.ToMemory(id, c.clock.Now().UnixMilli())
	if err := c.remote.Write(ctx, c.userID, id, memory.ToRecord()); err != nil {
		return entities.Memory{}, err
	}
	return memory, nil
}

// Cancel discards the draft and any in-flight lookup. A commit in flight
// cannot be cancelled.
func (c *DraftController) Cancel() error {
	c.mu.Lock()
	switch c.draft.State {
	case entities.DraftEmpty:
		c.mu.Unlock()
		return nil
	case entities.DraftSubmitting:
		c.mu.Unlock()
		return pkgerrors.NewConflictError("a commit is in progress").
			WithCode(pkgerrors.CodeInvalidTransition).
			WithDetail("state", string(entities.DraftSubmitting))
	}
	if err := c.draft.TransitionTo(entities.DraftEmpty); err != nil {
		c.mu.Unlock()
		return err
	}
	c.abandonLookupLocked()
	c.draft = entities.NewDraft()
	d, v := c.bumpLocked()
	c.mu.Unlock()

	c.emit(d, v)
	return nil
}

// Close abandons any lookup, waits for background work to finish and
// rejects further use.
func (c *DraftController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.abandonLookupLocked()
	c.draft = entities.NewDraft()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *DraftController) checkOpenLocked() error {
	if c.closed {
		return pkgerrors.NewConflictError("draft controller is closed").
			WithCode(pkgerrors.CodeInvalidTransition)
	}
	return nil
}

func (c *DraftController) abandonLookupLocked() {
	c.token++
	if c.cancelLookup != nil {
		c.cancelLookup()
		c.cancelLookup = nil
	}
}

func (c *DraftController) bumpLocked() (entities.Draft, uint64) {
	c.version++
	return c.draft, c.version
}

func (c *DraftController) emit(d entities.Draft, version uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if version <= c.lastEmitted {
		return
	}
	c.lastEmitted = version
	if c.listener != nil {
		c.listener(d)
	}
}

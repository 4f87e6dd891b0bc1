package geocoding

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	pkgerrors "memorymap-backend/pkg/errors"
)

// BreakerConfig holds configuration for the geocoding circuit breaker.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// BreakerBackend stops calling a failing backend for OpenTimeout after
// ConsecutiveFailures errors in a row. Rejected calls fail fast as
// unavailable.
type BreakerBackend struct {
	next ports.GeocodeBackend
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerBackend(next ports.GeocodeBackend, cfg BreakerConfig, logger *zap.Logger) *BreakerBackend {
	if cfg.Name == "" {
		cfg.Name = "geocoding"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	log := logger.With(zap.String("component", "geocode_breaker"))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A caller giving up says nothing about the backend's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerBackend{next: next, cb: cb}
}

func (b *BreakerBackend) Lookup(ctx context.Context, lat, lng float64) ([]ports.Address, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Lookup(ctx, lat, lng)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, pkgerrors.NewUnavailableError("geocoding").WithCause(err)
	}
	if err != nil {
		return nil, err
	}
	addrs, _ := result.([]ports.Address)
	return addrs, nil
}

// State reports the breaker state for readiness checks.
func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}

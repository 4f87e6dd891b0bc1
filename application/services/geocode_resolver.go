package services

import (
	"context"
	"strings"

	"github.com/jmhodges/clock"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/pkg/observability"
)

// Fallback addresses. They are distinct so callers and tests can tell an
// empty lookup from a failed one.
const (
	UnknownLocation         = "Unknown Location"
	LocationServiceNotReady = "Location service not ready"
)

// GeocodeResolver turns coordinates into a display address. It never
// returns an error: every failure degrades to a fallback string.
type GeocodeResolver struct {
	backend ports.GeocodeBackend
	clock   clock.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewGeocodeResolver creates a resolver over backend.
func NewGeocodeResolver(backend ports.GeocodeBackend, clk clock.Clock, logger *zap.Logger, metrics *observability.Metrics) *GeocodeResolver {
	return &GeocodeResolver{
		backend: backend,
		clock:   clk,
		logger:  logger.With(zap.String("component", "geocode_resolver")),
		metrics: metrics,
	}
}

// Resolve looks up lat/lng and formats the first candidate.
func (r *GeocodeResolver) Resolve(ctx context.Context, lat, lng float64) string {
	ctx, span := observability.StartSpan(ctx, "geocode.Resolve")
	defer span.End()

	start := r.clock.Now()
	candidates, err := r.backend.Lookup(ctx, lat, lng)
	elapsed := r.clock.Since(start)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		r.metrics.RecordGeocode("error", elapsed)
		r.logger.Warn("Geocode lookup failed",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.Error(err),
		)
		return LocationServiceNotReady

	case len(candidates) == 0:
		r.metrics.RecordGeocode("empty", elapsed)
		return UnknownLocation
	}

	r.metrics.RecordGeocode("ok", elapsed)
	return FormatAddress(candidates[0])
}

// FormatAddress joins locality, sub-region and region with ", ", skipping
// blank parts. A candidate with every part blank formats as "".
func FormatAddress(a ports.Address) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Locality, a.SubRegion, a.Region} {
		p = strings.Trim(p, " ,")
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

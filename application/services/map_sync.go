package services

import (
	"sync"

	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
	domainservices "memorymap-backend/domain/services"
	"memorymap-backend/pkg/observability"
)

// MapSync keeps a render surface in line with the latest snapshot. It is
// the sole owner of the marker set.
type MapSync struct {
	reconciler domainservices.MapReconciler
	surface    ports.RenderSurface
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu      sync.Mutex
	markers entities.MarkerSet
}

// NewMapSync creates a MapSync drawing on surface.
func NewMapSync(surface ports.RenderSurface, logger *zap.Logger, metrics *observability.Metrics) *MapSync {
	return &MapSync{
		reconciler: domainservices.NewMapReconciler(),
		surface:    surface,
		logger:     logger.With(zap.String("component", "map_sync")),
		metrics:    metrics,
		markers:    entities.NewMarkerSet(),
	}
}

// Apply reconciles snap against the rendered markers and pushes the delta,
// removals first. Surface failures are logged; the marker set records
// what was actually drawn so the next snapshot retries the difference.
func (m *MapSync) Apply(snap entities.Snapshot) (added, removed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	adds, removes, next := m.reconciler.Reconcile(snap, m.markers)
	if len(adds) == 0 && len(removes) == 0 {
		m.markers = next
		return 0, 0
	}

	rendered := make(map[string]entities.Marker, next.Len())
	for _, id := range next.IDs() {
		mk, _ := next.Get(id)
		rendered[id] = mk
	}

	stuck := make(map[string]struct{})
	for _, id := range removes {
		if err := m.surface.RemoveMarker(id); err != nil {
			m.logger.Warn("Failed to remove marker", zap.String("memoryID", id), zap.Error(err))
			if prev, ok := m.markers.Get(id); ok {
				rendered[id] = prev
			}
			stuck[id] = struct{}{}
			continue
		}
		removed++
	}

	for _, mk := range adds {
		if _, ok := stuck[mk.ID]; ok {
			continue
		}
		if err := m.surface.AddMarker(mk.ID, mk.Lat, mk.Lng, mk.Label); err != nil {
			m.logger.Warn("Failed to add marker", zap.String("memoryID", mk.ID), zap.Error(err))
			delete(rendered, mk.ID)
			continue
		}
		added++
	}

	markers := make([]entities.Marker, 0, len(rendered))
	for _, mk := range rendered {
		markers = append(markers, mk)
	}
	m.markers = entities.NewMarkerSet(markers...)
	m.metrics.RecordMarkers(added, removed)

	m.logger.Debug("Markers reconciled",
		zap.Uint64("sequence", snap.Sequence()),
		zap.Int("added", added),
		zap.Int("removed", removed),
		zap.Int("total", m.markers.Len()),
	)
	return added, removed
}

// Markers returns the rendered marker set.
func (m *MapSync) Markers() entities.MarkerSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers
}

// Clear removes every marker from the surface.
func (m *MapSync) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.markers.IDs() {
		if err := m.surface.RemoveMarker(id); err != nil {
			m.logger.Debug("Failed to remove marker during clear", zap.String("memoryID", id), zap.Error(err))
		}
	}
	m.markers = entities.NewMarkerSet()
}

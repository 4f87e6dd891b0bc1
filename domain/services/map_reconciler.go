package services

import (
	"sort"

	"memorymap-backend/domain/core/entities"
)

// MapReconciler computes the minimal marker delta between a snapshot and
// the markers already on screen.
type MapReconciler struct{}

// NewMapReconciler creates a reconciler.
func NewMapReconciler() MapReconciler {
	return MapReconciler{}
}

// MarkerFor builds the marker a memory would render as.
func MarkerFor(m entities.Memory) entities.Marker {
	return entities.Marker{ID: m.ID, Lat: m.Lat, Lng: m.Lng, Label: m.Description}
}

// Reconcile returns the markers to add (in snapshot order), the ids to
// remove (sorted) and the resulting marker set. Memories at (0, 0) never
// get a marker. A marker whose memory is still eligible at the same
// position is carried over untouched even if its label changed; a marker
// whose position moved is removed and re-added.
func (MapReconciler) Reconcile(
	snapshot entities.Snapshot,
	previous entities.MarkerSet,
) ([]entities.Marker, []string, entities.MarkerSet) {
	var (
		adds    []entities.Marker
		removes []string
		next    = make([]entities.Marker, 0, snapshot.Len())
		seen    = make(map[string]struct{}, snapshot.Len())
	)

	snapshot.Each(func(m entities.Memory) bool {
		if !m.HasLocation() {
			return true
		}
		if _, dup := seen[m.ID]; dup {
			return true
		}
		seen[m.ID] = struct{}{}

		want := MarkerFor(m)
		if have, ok := previous.Get(m.ID); ok {
			if have.SamePosition(want) {
				next = append(next, have)
				return true
			}
			removes = append(removes, m.ID)
		}
		adds = append(adds, want)
		next = append(next, want)
		return true
	})

	for _, id := range previous.IDs() {
		if _, keep := seen[id]; !keep {
			removes = append(removes, id)
		}
	}
	sort.Strings(removes)

	return adds, removes, entities.NewMarkerSet(next...)
}

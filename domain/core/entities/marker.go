package entities

import "sort"

// Marker is a rendered map pin for one memory.
type Marker struct {
	ID    string  `json:"id"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label"`
}

// SamePosition reports whether two markers sit on the same coordinates.
func (m Marker) SamePosition(other Marker) bool {
	return m.Lat == other.Lat && m.Lng == other.Lng
}

// MarkerSet maps memory ids to their rendered markers. Values are
// read-only; reconciliation always builds a new set.
type MarkerSet struct {
	markers map[string]Marker
}

// NewMarkerSet builds a set from markers. Later duplicates win.
func NewMarkerSet(markers ...Marker) MarkerSet {
	m := make(map[string]Marker, len(markers))
	for _, mk := range markers {
		m[mk.ID] = mk
	}
	return MarkerSet{markers: m}
}

func (s MarkerSet) Len() int {
	return len(s.markers)
}

func (s MarkerSet) Has(id string) bool {
	_, ok := s.markers[id]
	return ok
}

func (s MarkerSet) Get(id string) (Marker, bool) {
	m, ok := s.markers[id]
	return m, ok
}

// IDs returns the ids in lexical order.
func (s MarkerSet) IDs() []string {
	ids := make([]string, 0, len(s.markers))
	for id := range s.markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

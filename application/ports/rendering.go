package ports

// RenderSurface is a map view that markers are drawn on. It only ever
// receives the deltas computed by reconciliation.
type RenderSurface interface {
	AddMarker(id string, lat, lng float64, label string) error
	RemoveMarker(id string) error
}

package ports

import "context"

// Address is one candidate returned by a reverse geocoding backend.
type Address struct {
	Locality  string `json:"locality"`
	SubRegion string `json:"subRegion"`
	Region    string `json:"region"`
}

// GeocodeBackend performs a reverse lookup of coordinates. An empty result
// with a nil error means the lookup succeeded but found nothing.
type GeocodeBackend interface {
	Lookup(ctx context.Context, lat, lng float64) ([]Address, error)
}

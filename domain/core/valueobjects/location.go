package valueobjects

import (
	"fmt"
	"math"

	pkgerrors "memorymap-backend/pkg/errors"
)

// Location is a geographic coordinate pair in signed degrees.
// The zero value (0, 0) means "no location captured".
type Location struct {
	lat float64
	lng float64
}

// NewLocation validates and creates a Location.
func NewLocation(lat, lng float64) (Location, error) {
	if !isFinite(lat) || !isFinite(lng) {
		return Location{}, pkgerrors.NewValidationError("invalid coordinates: must be finite numbers").
			WithCode(pkgerrors.CodeLocationOutOfRange)
	}
	if lat < -90 || lat > 90 {
		return Location{}, pkgerrors.NewValidationError(fmt.Sprintf("latitude %v out of range [-90, 90]", lat)).
			WithCode(pkgerrors.CodeLocationOutOfRange)
	}
	if lng < -180 || lng > 180 {
		return Location{}, pkgerrors.NewValidationError(fmt.Sprintf("longitude %v out of range [-180, 180]", lng)).
			WithCode(pkgerrors.CodeLocationOutOfRange)
	}
	return Location{lat: lat, lng: lng}, nil
}

// Lat returns the latitude
func (l Location) Lat() float64 {
	return l.lat
}

// Lng returns the longitude
func (l Location) Lng() float64 {
	return l.lng
}

// IsCaptured reports whether the location differs from the (0, 0) sentinel.
// A point on the equator or on the prime meridian counts as captured.
func (l Location) IsCaptured() bool {
	return HasCoordinates(l.lat, l.lng)
}

// Equals checks if two locations are equal
func (l Location) Equals(other Location) bool {
	const epsilon = 1e-9
	return math.Abs(l.lat-other.lat) < epsilon && math.Abs(l.lng-other.lng) < epsilon
}

func (l Location) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.lat, l.lng)
}

// HasCoordinates is the eligibility rule shared by drafts and map markers.
func HasCoordinates(lat, lng float64) bool {
	return lat != 0 || lng != 0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

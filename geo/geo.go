package geo

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied means the positioning permission was refused.
	ErrPermissionDenied = errors.New("geo: positioning permission denied")
	// ErrLocationUnavailable means permission was granted but no position
	// could be obtained.
	ErrLocationUnavailable = errors.New("geo: location unavailable")
	// ErrGeocodeFailure means the reverse-geocoding call failed. Callers
	// degrade the address to unknown and proceed.
	ErrGeocodeFailure = errors.New("geo: reverse geocode failed")
)

// Point is a geographic coordinate pair in degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Accuracy is a coarse positioning tier. Dispatch only needs a best-effort
// fix, not highest precision.
type Accuracy string

const (
	AccuracyCoarse   Accuracy = "coarse"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyPrecise  Accuracy = "precise"
)

// Position is a located fix with its accuracy tier.
type Position struct {
	Point    Point
	Accuracy Accuracy
}

// PositionProvider is the permission-gated positioning contract. A denied
// permission surfaces as ErrPermissionDenied; an unobtainable fix as
// ErrLocationUnavailable.
type PositionProvider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

package geo

import (
	"context"

	"go.uber.org/zap"
)

// Fix is the outcome of a resolve: coordinates are mandatory, the address is
// best-effort and nil when reverse geocoding was unavailable or failed.
type Fix struct {
	Position Position
	Address  *string
}

// Resolver combines the positioning provider and the reverse geocoder. Only
// the position is required for a resolve to succeed.
type Resolver struct {
	provider PositionProvider
	geocoder Geocoder
	log      *zap.Logger
}

func NewResolver(provider PositionProvider, geocoder Geocoder, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		provider: provider,
		geocoder: geocoder,
		log:      log,
	}
}

// Resolve obtains the current position and, independently, attempts reverse
// geocoding. A geocoding failure is logged and degrades the address to nil;
// a positioning failure fails the resolve outright.
func (r *Resolver) Resolve(ctx context.Context) (Fix, error) {
	pos, err := r.provider.CurrentPosition(ctx)
	if err != nil {
		return Fix{}, err
	}

	fix := Fix{Position: pos}
	if r.geocoder == nil {
		return fix, nil
	}

	address, err := r.geocoder.ReverseGeocode(ctx, pos.Point)
	if err != nil {
		r.log.Warn("reverse geocode failed, continuing without address",
			zap.Float64("lat", pos.Point.Latitude),
			zap.Float64("lon", pos.Point.Longitude),
			zap.Error(err))
		return fix, nil
	}

	fix.Address = &address
	return fix, nil
}

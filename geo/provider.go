package geo

import "context"

// StaticProvider serves a fixed position, for hosts whose platform layer
// supplies coordinates out of band (configuration, test fixtures, kiosks).
type StaticProvider struct {
	Position Position
}

func (p StaticProvider) CurrentPosition(_ context.Context) (Position, error) {
	return p.Position, nil
}

// DeniedProvider models a refused positioning permission.
type DeniedProvider struct{}

func (DeniedProvider) CurrentPosition(_ context.Context) (Position, error) {
	return Position{}, ErrPermissionDenied
}

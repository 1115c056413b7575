package geo

import (
	"math"
	"testing"
)

func TestDistanceKm_Symmetric(t *testing.T) {
	cases := []struct {
		name string
		a, b Point
	}{
		{"johannesburg-capetown", Point{-26.2041, 28.0473}, Point{-33.9249, 18.4241}},
		{"equator-crossing", Point{-1.5, 10.0}, Point{1.5, -10.0}},
		{"antimeridian", Point{10.0, 179.5}, Point{10.0, -179.5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ab := DistanceKm(tc.a, tc.b)
			ba := DistanceKm(tc.b, tc.a)
			if math.Abs(ab-ba) > 1e-9 {
				t.Fatalf("distance not symmetric: %f vs %f", ab, ba)
			}
			if ab <= 0 {
				t.Fatalf("expected positive distance, got %f", ab)
			}
		})
	}
}

func TestDistanceKm_Identity(t *testing.T) {
	points := []Point{
		{0, 0},
		{-26.2041, 28.0473},
		{89.9, -135.0},
	}
	for _, p := range points {
		if d := DistanceKm(p, p); d != 0 {
			t.Fatalf("expected zero distance from %v to itself, got %f", p, d)
		}
	}
}

func TestDistanceKm_KnownDistance(t *testing.T) {
	// Johannesburg to Cape Town is roughly 1261 km great-circle.
	d := DistanceKm(Point{-26.2041, 28.0473}, Point{-33.9249, 18.4241})
	if d < 1240 || d > 1280 {
		t.Fatalf("unexpected Johannesburg-Cape Town distance: %f km", d)
	}
}

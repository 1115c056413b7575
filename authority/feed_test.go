package authority

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"lifeline/alert"
	"lifeline/geo"
)

type fakeResponder struct {
	rec alert.Alert
	err error
}

func (f *fakeResponder) TransitionToResponded(_ context.Context, _, _ string) (alert.Alert, error) {
	return f.rec, f.err
}

func snapshotOf(ids ...string) []alert.Alert {
	now := time.Now()
	out := make([]alert.Alert, 0, len(ids))
	for i, id := range ids {
		out = append(out, alert.Alert{
			ID:        id,
			Latitude:  -26.2 - float64(i),
			Longitude: 28.0,
			Status:    alert.StatusActive,
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestDecorate_PreservesStoreOrder(t *testing.T) {
	f := NewFeed(&fakeResponder{}, nil, "authority-A", nil)
	// Nearest alert is last in store order; decoration must not re-sort.
	f.position = &geo.Point{Latitude: -28.2, Longitude: 28.0}

	ranked := f.Decorate(snapshotOf("newest", "middle", "oldest"))
	if len(ranked) != 3 {
		t.Fatalf("expected 3 items, got %d", len(ranked))
	}
	for i, id := range []string{"newest", "middle", "oldest"} {
		if ranked[i].Alert.ID != id {
			t.Fatalf("order changed at %d: got %s", i, ranked[i].Alert.ID)
		}
	}
	if ranked[2].DistanceKm == nil || ranked[0].DistanceKm == nil {
		t.Fatalf("expected distances annotated")
	}
	if *ranked[2].DistanceKm > *ranked[0].DistanceKm {
		t.Fatalf("sanity: oldest alert should be nearest in this fixture")
	}
}

func TestDecorate_UnknownDistanceWithoutPosition(t *testing.T) {
	f := NewFeed(&fakeResponder{}, nil, "authority-A", nil)

	ranked := f.Decorate(snapshotOf("a", "b"))
	for _, r := range ranked {
		if r.DistanceKm != nil {
			t.Fatalf("expected unknown distance without a position, got %f", *r.DistanceKm)
		}
	}
}

func TestDecorate_DistanceValue(t *testing.T) {
	f := NewFeed(&fakeResponder{}, nil, "authority-A", nil)
	f.position = &geo.Point{Latitude: -26.2041, Longitude: 28.0473}

	ranked := f.Decorate([]alert.Alert{{ID: "x", Latitude: -26.2041, Longitude: 28.0473}})
	if ranked[0].DistanceKm == nil || math.Abs(*ranked[0].DistanceKm) > 1e-9 {
		t.Fatalf("expected zero distance to own position, got %v", ranked[0].DistanceKm)
	}
}

func TestRespond_Success(t *testing.T) {
	respondedAt := time.Now()
	f := NewFeed(&fakeResponder{rec: alert.Alert{
		ID:          "alert-1",
		Latitude:    -26.2,
		Longitude:   28.0,
		Status:      alert.StatusResponded,
		RespondedAt: &respondedAt,
	}}, nil, "authority-A", nil)

	outcome, err := f.Respond(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if outcome.Conflict {
		t.Fatalf("expected win, got conflict")
	}
	if outcome.Alert.Latitude != -26.2 || outcome.Alert.Longitude != 28.0 {
		t.Fatalf("expected alert coordinates for the live view, got %+v", outcome.Alert)
	}
}

func TestRespond_ConflictIsInformationalNotError(t *testing.T) {
	f := NewFeed(&fakeResponder{err: alert.ErrAlreadyResponded}, nil, "authority-B", nil)

	outcome, err := f.Respond(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("conflict must not surface as error, got %v", err)
	}
	if !outcome.Conflict {
		t.Fatalf("expected conflict outcome")
	}
}

func TestRespond_UnexpectedErrorPropagates(t *testing.T) {
	f := NewFeed(&fakeResponder{err: errors.New("connection reset")}, nil, "authority-A", nil)

	if _, err := f.Respond(context.Background(), "alert-1"); err == nil {
		t.Fatalf("expected error propagation")
	}
}

func TestRespond_NotFoundPropagates(t *testing.T) {
	f := NewFeed(&fakeResponder{err: alert.ErrNotFound}, nil, "authority-A", nil)

	_, err := f.Respond(context.Background(), "missing")
	if !errors.Is(err, alert.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

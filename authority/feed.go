package authority

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lifeline/alert"
	"lifeline/geo"
	"lifeline/metrics"
)

// RankedAlert is an alert decorated with the distance from the authority's
// last-known position. Items keep the store's creation-descending order;
// distance is displayed metadata, not a sort key.
type RankedAlert struct {
	Alert      alert.Alert
	DistanceKm *float64
}

// RespondOutcome distinguishes winning the respond race from losing it.
type RespondOutcome struct {
	Alert    alert.Alert
	Conflict bool
}

// AlertResponder performs the responded transition against the store.
type AlertResponder interface {
	TransitionToResponded(ctx context.Context, alertID, responderID string) (alert.Alert, error)
}

// Feed is the authority-side view over active alerts.
type Feed struct {
	responder AlertResponder
	resolver  *geo.Resolver
	log       *zap.Logger

	authorityID string
	position    *geo.Point
}

func NewFeed(responder AlertResponder, resolver *geo.Resolver, authorityID string, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		responder:   responder,
		resolver:    resolver,
		log:         log,
		authorityID: authorityID,
	}
}

// RefreshPosition updates the authority's own last-known location. A denied
// permission leaves the position unset so distances render as unknown
// instead of blocking the feed.
func (f *Feed) RefreshPosition(ctx context.Context) {
	if f.resolver == nil {
		return
	}
	fix, err := f.resolver.Resolve(ctx)
	if err != nil {
		f.log.Warn("authority position unavailable; distances will be unknown", zap.Error(err))
		f.position = nil
		return
	}
	p := fix.Position.Point
	f.position = &p
}

// WithPosition sets the authority position directly, for callers that
// already hold a fix.
func (f *Feed) WithPosition(p geo.Point) *Feed {
	f.position = &p
	return f
}

// Decorate annotates a snapshot with distances from the authority position.
// Store order is preserved.
func (f *Feed) Decorate(snapshot []alert.Alert) []RankedAlert {
	out := make([]RankedAlert, 0, len(snapshot))
	for _, a := range snapshot {
		ranked := RankedAlert{Alert: a}
		if f.position != nil {
			d := geo.DistanceKm(*f.position, geo.Point{Latitude: a.Latitude, Longitude: a.Longitude})
			ranked.DistanceKm = &d
		}
		out = append(out, ranked)
	}
	return out
}

// Respond claims the alert for this authority. Losing the race is an
// expected outcome reported as a conflict, not an error: the caller informs
// the authority the alert was already handled.
func (f *Feed) Respond(ctx context.Context, alertID string) (RespondOutcome, error) {
	rec, err := f.responder.TransitionToResponded(ctx, alertID, f.authorityID)
	if err != nil {
		if errors.Is(err, alert.ErrAlreadyResponded) {
			metrics.RespondConflicts.Inc()
			f.log.Info("alert already handled by another authority", zap.String("alert_id", alertID))
			return RespondOutcome{Conflict: true}, nil
		}
		return RespondOutcome{}, fmt.Errorf("authority: respond: %w", err)
	}

	metrics.AlertsResponded.Inc()
	f.log.Info("alert claimed",
		zap.String("alert_id", rec.ID),
		zap.Float64("lat", rec.Latitude),
		zap.Float64("lon", rec.Longitude))
	return RespondOutcome{Alert: rec}, nil
}

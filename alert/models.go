package alert

import (
	"errors"
	"time"
)

// Status tracks the single permitted lifecycle of an alert record. The only
// transition is active -> responded; nothing moves an alert back.
type Status string

const (
	StatusActive    Status = "active"
	StatusResponded Status = "responded"
)

var (
	// ErrNotFound is returned when no alert row exists for the identifier.
	ErrNotFound = errors.New("alert: not found")
	// ErrAlreadyResponded signals the conditional respond update lost the race:
	// another authority already moved the alert out of active.
	ErrAlreadyResponded = errors.New("alert: already responded")
)

// Alert mirrors the alerts table. Reporter fields are a snapshot taken at
// trigger time and are intentionally not kept in sync with later profile
// edits.
type Alert struct {
	ID                 string
	ReporterID         string
	ReporterName       string
	ReporterPhone      string
	IdentifyingFeature string
	PhotoURL           string
	Latitude           float64
	Longitude          float64
	Status             Status
	CreatedAt          time.Time
	RespondedAt        *time.Time
	RespondedBy        *string
}

// CreateParams enumerates the fields required to persist a new alert.
type CreateParams struct {
	ReporterID         string
	ReporterName       string
	ReporterPhone      string
	IdentifyingFeature string
	PhotoURL           string
	Latitude           float64
	Longitude          float64
}

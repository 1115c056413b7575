package emergency

import (
	"fmt"

	"lifeline/geo"
)

// unknownAddress replaces the address when reverse geocoding produced
// nothing. Coordinates alone are enough to dispatch.
const unknownAddress = "Unknown"

// BuildMessage renders the distress message sent to every recipient.
func BuildMessage(reporterName string, fix geo.Fix) string {
	address := unknownAddress
	if fix.Address != nil && *fix.Address != "" {
		address = *fix.Address
	}
	return fmt.Sprintf(
		"EMERGENCY! %s needs help. Location: %s. Map: %s",
		reporterName,
		address,
		MapLink(fix.Position.Point),
	)
}

// MapLink derives a map URL from raw coordinates.
func MapLink(p geo.Point) string {
	return fmt.Sprintf("https://maps.google.com/?q=%f,%f", p.Latitude, p.Longitude)
}

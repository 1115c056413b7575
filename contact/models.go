package contact

// EmergencyContact is a person the reporter registered ahead of time. The
// rows are owned by the contact-management CRUD surface; this package only
// reads them.
type EmergencyContact struct {
	ID           string
	OwnerID      string
	Name         string
	Phone        string
	Relationship string
}

// Dispatchable reports whether the contact can receive a distress message.
// Contacts without a phone number are skipped during fan-out, not treated as
// failures.
func (c EmergencyContact) Dispatchable() bool {
	return c.Phone != ""
}

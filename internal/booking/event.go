package booking

import "time"

type EventType string

const (
	EventBookingCreated EventType = "booking.created"
	EventBookingUpdated EventType = "booking.updated"
	EventBookingDeleted EventType = "booking.deleted"
)

// Event describes a committed change of a booking.
type Event struct {
	Type       EventType `json:"type"`
	Booking    Booking   `json:"booking"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Package dispatch pushes negotiation events to connected view clients.
package dispatch

// Event is the payload delivered to a single user's view client.
type Event struct {
	Type        string  `json:"type"`
	State       string  `json:"state,omitempty"`
	RequestID   string  `json:"request_id,omitempty"`
	TripID      string  `json:"trip_id,omitempty"`
	DriverID    string  `json:"driver_id,omitempty"`
	PassengerID string  `json:"passenger_id,omitempty"`
	Price       float64 `json:"price,omitempty"`
}

// Event types pushed to clients.
const (
	EventStateChanged  = "state_changed"
	EventOfferReceived = "offer_received"
	EventRequestOpened = "request_opened"
	EventRequestClosed = "request_closed"
)

// Notifier delivers an event to one user. Delivery is best effort; the
// engine never blocks on a slow or absent client.
type Notifier interface {
	Notify(userID string, ev Event) error
}

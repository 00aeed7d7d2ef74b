package models

import "time"

type Role string

const (
	RolePassenger Role = "PASSENGER"
	RoleDriver    Role = "DRIVER"
	RoleAdmin     Role = "ADMIN"
)

type ServiceType string

const (
	ServiceMobility ServiceType = "MOBILITY"
	ServiceDelivery ServiceType = "DELIVERY"
)

func (s ServiceType) Valid() bool {
	return s == ServiceMobility || s == ServiceDelivery
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// State is the passenger-session view state. Driver and admin states are
// independent of this linear flow.
type State string

const (
	StateRequestingRide State = "REQUESTING_RIDE"
	StateWaitingOffers  State = "WAITING_FOR_OFFERS"
	StateViewingOffers  State = "VIEWING_OFFERS"
	StateTripInProgress State = "TRIP_IN_PROGRESS"
	StateTripCompleted  State = "TRIP_COMPLETED"
)

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatar_url"`
}

type Passenger struct {
	User
}

type Driver struct {
	User
	Rating       float64            `json:"rating"` // 0..5
	Vehicle      string             `json:"vehicle"`
	Plate        string             `json:"plate"`
	Online       bool               `json:"online"`
	Verification VerificationStatus `json:"verification_status"`
	ETAMinutes   int                `json:"eta_minutes,omitempty"`
}

// Eligible reports whether the driver may bid on open requests:
// online and approved by an admin.
func (d *Driver) Eligible() bool {
	return d.Online && d.Verification == VerificationApproved
}

// Offer is a driver's stated price for one trip request. At most one offer
// per driver is kept on a request.
type Offer struct {
	DriverID string  `json:"driver_id"`
	Price    float64 `json:"price"`
}

type TripRequest struct {
	ID           string      `json:"id"`
	Passenger    *Passenger  `json:"passenger"`
	Pickup       string      `json:"pickup"`
	Destination  string      `json:"destination"`
	OfferedPrice float64     `json:"offered_price"`
	ServiceType  ServiceType `json:"service_type"`
	CreatedAt    time.Time   `json:"created_at"`
	Offers       []Offer     `json:"offers"` // kept ascending by price
}

// OngoingTrip pairs an accepted request with its driver at the agreed price.
type OngoingTrip struct {
	ID         string       `json:"id"`
	Request    *TripRequest `json:"request"`
	Driver     *Driver      `json:"driver"`
	FinalPrice float64      `json:"final_price"` // accepted offer price, never recomputed
	StartTime  time.Time    `json:"start_time"`
	Rating     int          `json:"rating,omitempty"` // 0 = unrated
}

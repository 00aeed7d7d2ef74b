// Package engine owns the trip negotiation state machine. All mutation of
// shared request/trip collections is funneled through its public operations
// under one lock, so timer callbacks and user intents never interleave
// mid-transition.
package engine

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/dispatch"
	"github.com/example/ride-negotiation/internal/ingest"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/observability"
	"github.com/example/ride-negotiation/internal/sched"
	"github.com/example/ride-negotiation/internal/simulate"
	"github.com/example/ride-negotiation/internal/store"
)

// ViewTrigger selects when a waiting passenger is moved to VIEWING_OFFERS.
type ViewTrigger string

const (
	// TriggerFirstOffer flips to VIEWING_OFFERS as soon as the first offer
	// lands.
	TriggerFirstOffer ViewTrigger = "first_offer"
	// TriggerWindow flips after a fixed delay, offers or not.
	TriggerWindow ViewTrigger = "window"
)

type Config struct {
	ViewTrigger  ViewTrigger
	OfferWindow  time.Duration // used by TriggerWindow
	TripDuration time.Duration // fixed simulated trip length, never ETA-derived
}

func DefaultConfig() Config {
	return Config{
		ViewTrigger:  TriggerFirstOffer,
		OfferWindow:  3 * time.Second,
		TripDuration: 5 * time.Second,
	}
}

// EventSink receives lifecycle telemetry, typically the Kafka producer.
type EventSink interface {
	Publish(ev ingest.TripEvent) error
}

type Engine struct {
	// Optional collaborators, wired before serving traffic.
	Notifier dispatch.Notifier
	Events   EventSink
	Archive  store.TripArchive

	store *store.Store
	sim   *simulate.Simulator
	sched sched.Scheduler
	cfg   Config
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session // by passenger id
	owner    map[string]string   // open request id -> passenger id
}

// session tracks one passenger's position in the linear flow. Exactly one of
// {request, trip} is non-nil outside REQUESTING_RIDE.
type session struct {
	state     models.State
	request   *models.TripRequest
	trip      *models.OngoingTrip
	run       *simulate.Run
	viewTimer sched.Timer
	tripTimer sched.Timer
}

func New(st *store.Store, sim *simulate.Simulator, sc sched.Scheduler, cfg Config, log *slog.Logger) *Engine {
	if cfg.ViewTrigger == "" {
		cfg.ViewTrigger = TriggerFirstOffer
	}
	if cfg.TripDuration <= 0 {
		cfg.TripDuration = DefaultConfig().TripDuration
	}
	if cfg.OfferWindow <= 0 {
		cfg.OfferWindow = DefaultConfig().OfferWindow
	}
	return &Engine{
		store:    st,
		sim:      sim,
		sched:    sc,
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*session),
		owner:    make(map[string]string),
	}
}

func (e *Engine) session(passengerID string) *session {
	s, ok := e.sessions[passengerID]
	if !ok {
		s = &session{state: models.StateRequestingRide}
		e.sessions[passengerID] = s
	}
	return s
}

// Snapshot is a copy of one passenger session safe to hand to a view layer.
type Snapshot struct {
	State   models.State        `json:"state"`
	Request *models.TripRequest `json:"request,omitempty"`
	Trip    *models.OngoingTrip `json:"trip,omitempty"`
}

func (e *Engine) PassengerState(passengerID string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.store.Passenger(passengerID); !ok {
		return Snapshot{}, e.reject(&UnknownReferenceError{Kind: "passenger", ID: passengerID})
	}
	s := e.session(passengerID)
	return Snapshot{State: s.state, Request: copyRequest(s.request), Trip: copyTrip(s.trip)}, nil
}

// SubmitInput carries the request form fields.
type SubmitInput struct {
	Pickup       string             `json:"pickup"`
	Destination  string             `json:"destination"`
	OfferedPrice float64            `json:"offered_price"`
	ServiceType  models.ServiceType `json:"service_type"`
}

// SubmitRequest opens a trip request and starts the offer search.
// REQUESTING_RIDE -> WAITING_FOR_OFFERS.
func (e *Engine) SubmitRequest(passengerID string, in SubmitInput) (*models.TripRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.store.Passenger(passengerID)
	if !ok {
		return nil, e.reject(&UnknownReferenceError{Kind: "passenger", ID: passengerID})
	}
	s := e.session(passengerID)
	if s.state != models.StateRequestingRide {
		return nil, e.reject(&InvalidTransitionError{Intent: "submit_request", State: string(s.state)})
	}
	if strings.TrimSpace(in.Destination) == "" {
		return nil, e.reject(&ValidationError{Field: "destination", Reason: "must not be empty"})
	}
	if in.OfferedPrice <= 0 {
		return nil, e.reject(&ValidationError{Field: "offered_price", Reason: "must be > 0"})
	}
	if in.ServiceType == "" {
		in.ServiceType = models.ServiceMobility
	}
	if !in.ServiceType.Valid() {
		return nil, e.reject(&ValidationError{Field: "service_type", Reason: "unknown service type"})
	}

	req := &models.TripRequest{
		ID:           uuid.NewString(),
		Passenger:    p,
		Pickup:       in.Pickup,
		Destination:  in.Destination,
		OfferedPrice: in.OfferedPrice,
		ServiceType:  in.ServiceType,
		CreatedAt:    e.sched.Now(),
		Offers:       []models.Offer{},
	}
	e.store.AddRequest(req)
	e.owner[req.ID] = passengerID
	s.request = req
	s.state = models.StateWaitingOffers

	candidates := e.store.EligibleDrivers()
	s.run = e.sim.Start(req.ID, req.OfferedPrice, candidates, func(o models.Offer) {
		e.applySimulatedOffer(req.ID, o)
	})
	if e.cfg.ViewTrigger == TriggerWindow {
		s.viewTimer = e.sched.After(e.cfg.OfferWindow, func() {
			e.viewingDeadline(passengerID, req.ID)
		})
	}

	observability.RequestsSubmitted.Inc()
	e.publish(ingest.TripEvent{Type: ingest.EventRequestSubmitted, RequestID: req.ID, PassengerID: passengerID, Price: req.OfferedPrice})
	e.notify(passengerID, dispatch.Event{Type: dispatch.EventStateChanged, State: string(s.state), RequestID: req.ID})
	for _, d := range candidates {
		e.notify(d.ID, dispatch.Event{Type: dispatch.EventRequestOpened, RequestID: req.ID, PassengerID: passengerID, Price: req.OfferedPrice})
	}
	e.log.Info("request submitted", "request_id", req.ID, "passenger_id", passengerID,
		"destination", req.Destination, "offered_price", req.OfferedPrice, "candidates", len(candidates))
	return copyRequest(req), nil
}

// applySimulatedOffer lands an offer from the simulator. A late callback for
// a cancelled or accepted request is a no-op, not an error.
func (e *Engine) applySimulatedOffer(requestID string, o models.Offer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.insertOfferLocked(requestID, o); err != nil {
		e.log.Debug("late simulated offer dropped", "request_id", requestID, "driver_id", o.DriverID)
	}
}

// SubmitOffer records a driver's manual bid (accept-at-asking-price or
// counter-offer) against an open request. The driver's own state is
// unchanged.
func (e *Engine) SubmitOffer(driverID, requestID string, price float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.store.Driver(driverID)
	if !ok {
		return e.reject(&UnknownReferenceError{Kind: "driver", ID: driverID})
	}
	if price <= 0 {
		return e.reject(&ValidationError{Field: "price", Reason: "must be > 0"})
	}
	if !d.Online {
		return e.reject(&InvalidTransitionError{Intent: "submit_offer", State: "DRIVER_OFFLINE"})
	}
	if d.Verification != models.VerificationApproved {
		return e.reject(&InvalidTransitionError{Intent: "submit_offer", State: "DRIVER_" + string(d.Verification)})
	}
	if err := e.insertOfferLocked(requestID, models.Offer{DriverID: driverID, Price: price}); err != nil {
		return err
	}
	e.log.Info("driver offer submitted", "request_id", requestID, "driver_id", driverID, "price", price)
	return nil
}

// insertOfferLocked appends an offer and re-sorts ascending by price. The
// offer list only grows in WAITING_FOR_OFFERS and VIEWING_OFFERS.
func (e *Engine) insertOfferLocked(requestID string, o models.Offer) error {
	passengerID, ok := e.owner[requestID]
	if !ok {
		return e.reject(&UnknownReferenceError{Kind: "request", ID: requestID})
	}
	s := e.session(passengerID)
	if s.state != models.StateWaitingOffers && s.state != models.StateViewingOffers {
		return e.reject(&InvalidTransitionError{Intent: "submit_offer", State: string(s.state)})
	}
	for _, prev := range s.request.Offers {
		if prev.DriverID == o.DriverID {
			return e.reject(&ValidationError{Field: "driver_id", Reason: "driver already offered on this request"})
		}
	}
	s.request.Offers = append(s.request.Offers, o)
	sort.SliceStable(s.request.Offers, func(i, j int) bool {
		return s.request.Offers[i].Price < s.request.Offers[j].Price
	})

	observability.OffersGenerated.Inc()
	e.publish(ingest.TripEvent{Type: ingest.EventOfferReceived, RequestID: requestID, PassengerID: passengerID, DriverID: o.DriverID, Price: o.Price})
	e.notify(passengerID, dispatch.Event{Type: dispatch.EventOfferReceived, RequestID: requestID, DriverID: o.DriverID, Price: o.Price})

	if s.state == models.StateWaitingOffers && e.cfg.ViewTrigger == TriggerFirstOffer {
		e.enterViewingLocked(passengerID, s)
	}
	return nil
}

// viewingDeadline fires in TriggerWindow mode; offers or not, the passenger
// gets the list after the window elapses.
func (e *Engine) viewingDeadline(passengerID, requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[passengerID]
	if !ok || s.state != models.StateWaitingOffers || s.request == nil || s.request.ID != requestID {
		return
	}
	e.enterViewingLocked(passengerID, s)
}

func (e *Engine) enterViewingLocked(passengerID string, s *session) {
	s.state = models.StateViewingOffers
	e.notify(passengerID, dispatch.Event{Type: dispatch.EventStateChanged, State: string(s.state), RequestID: s.request.ID})
}

// AcceptOffer pairs the passenger with the chosen driver at the offered
// price. VIEWING_OFFERS -> TRIP_IN_PROGRESS. The offer is referenced by
// driver id: at most one offer per driver is held per request.
func (e *Engine) AcceptOffer(passengerID, driverID string) (*models.OngoingTrip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[passengerID]
	if !ok || s.state != models.StateViewingOffers {
		state := string(models.StateRequestingRide)
		if ok {
			state = string(s.state)
		}
		return nil, e.reject(&InvalidTransitionError{Intent: "accept_offer", State: state})
	}
	var accepted *models.Offer
	for i := range s.request.Offers {
		if s.request.Offers[i].DriverID == driverID {
			accepted = &s.request.Offers[i]
			break
		}
	}
	if accepted == nil {
		return nil, e.reject(&UnknownReferenceError{Kind: "offer", ID: driverID})
	}
	d, ok := e.store.Driver(driverID)
	if !ok {
		return nil, e.reject(&UnknownReferenceError{Kind: "driver", ID: driverID})
	}

	e.stopSearchLocked(s)
	req := s.request
	e.store.RemoveRequest(req.ID)
	delete(e.owner, req.ID)

	trip := &models.OngoingTrip{
		ID:         req.ID, // the trip keeps the id of the request it settles
		Request:    req,
		Driver:     d,
		FinalPrice: accepted.Price,
		StartTime:  e.sched.Now(),
	}
	e.store.AddTrip(trip)
	s.request = nil
	s.trip = trip
	s.state = models.StateTripInProgress
	s.tripTimer = e.sched.After(e.cfg.TripDuration, func() {
		e.finishTrip(passengerID, trip.ID)
	})

	observability.OffersAccepted.Inc()
	e.publish(ingest.TripEvent{Type: ingest.EventOfferAccepted, RequestID: req.ID, TripID: trip.ID, PassengerID: passengerID, DriverID: driverID, Price: trip.FinalPrice})
	e.notify(passengerID, dispatch.Event{Type: dispatch.EventStateChanged, State: string(s.state), TripID: trip.ID, DriverID: driverID, Price: trip.FinalPrice})
	for _, cand := range e.store.EligibleDrivers() {
		e.notify(cand.ID, dispatch.Event{Type: dispatch.EventRequestClosed, RequestID: req.ID})
	}
	e.log.Info("offer accepted", "trip_id", trip.ID, "passenger_id", passengerID,
		"driver_id", driverID, "final_price", trip.FinalPrice)
	return copyTrip(trip), nil
}

// CancelRequest discards the open request and suppresses every pending
// simulated emission for it. WAITING_FOR_OFFERS|VIEWING_OFFERS ->
// REQUESTING_RIDE.
func (e *Engine) CancelRequest(passengerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[passengerID]
	if !ok || (s.state != models.StateWaitingOffers && s.state != models.StateViewingOffers) {
		state := string(models.StateRequestingRide)
		if ok {
			state = string(s.state)
		}
		return e.reject(&InvalidTransitionError{Intent: "cancel_request", State: state})
	}
	e.stopSearchLocked(s)
	req := s.request
	e.store.RemoveRequest(req.ID)
	delete(e.owner, req.ID)
	s.request = nil
	s.state = models.StateRequestingRide

	observability.RequestsCancelled.Inc()
	e.publish(ingest.TripEvent{Type: ingest.EventRequestCancelled, RequestID: req.ID, PassengerID: passengerID})
	e.notify(passengerID, dispatch.Event{Type: dispatch.EventStateChanged, State: string(s.state)})
	for _, cand := range e.store.EligibleDrivers() {
		e.notify(cand.ID, dispatch.Event{Type: dispatch.EventRequestClosed, RequestID: req.ID})
	}
	e.log.Info("request cancelled", "request_id", req.ID, "passenger_id", passengerID)
	return nil
}

// stopSearchLocked kills the simulator run and the viewing deadline so no
// late timer can touch a dead request.
func (e *Engine) stopSearchLocked(s *session) {
	if s.run != nil {
		s.run.Cancel()
		s.run = nil
	}
	if s.viewTimer != nil {
		s.viewTimer.Stop()
		s.viewTimer = nil
	}
}

// finishTrip fires when the simulated trip duration elapses.
// TRIP_IN_PROGRESS -> TRIP_COMPLETED.
func (e *Engine) finishTrip(passengerID, tripID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[passengerID]
	if !ok || s.state != models.StateTripInProgress || s.trip == nil || s.trip.ID != tripID {
		return
	}
	trip, ok := e.store.CompleteTrip(tripID)
	if !ok {
		return
	}
	s.state = models.StateTripCompleted
	s.tripTimer = nil

	observability.TripsCompleted.Inc()
	if e.Archive != nil {
		if err := e.Archive.ArchiveTrip(trip); err != nil {
			e.log.Warn("trip archive failed", "trip_id", tripID, "error", err)
		}
	}
	e.publish(ingest.TripEvent{Type: ingest.EventTripCompleted, TripID: tripID, PassengerID: passengerID, DriverID: trip.Driver.ID, Price: trip.FinalPrice})
	e.notify(passengerID, dispatch.Event{Type: dispatch.EventStateChanged, State: string(s.state), TripID: tripID, Price: trip.FinalPrice})
	e.notify(trip.Driver.ID, dispatch.Event{Type: dispatch.EventStateChanged, State: string(s.state), TripID: tripID})
	e.log.Info("trip completed", "trip_id", tripID, "passenger_id", passengerID, "final_price", trip.FinalPrice)
}

// RateTrip records a 1-5 star rating on the completed trip. The rating has
// no further effect on the flow.
func (e *Engine) RateTrip(passengerID string, stars int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[passengerID]
	if !ok || s.state != models.StateTripCompleted {
		state := string(models.StateRequestingRide)
		if ok {
			state = string(s.state)
		}
		return e.reject(&InvalidTransitionError{Intent: "rate_trip", State: state})
	}
	if stars < 1 || stars > 5 {
		return e.reject(&ValidationError{Field: "rating", Reason: "must be between 1 and 5"})
	}
	s.trip.Rating = stars
	if e.Archive != nil {
		if err := e.Archive.ArchiveTrip(s.trip); err != nil {
			e.log.Warn("trip archive failed", "trip_id", s.trip.ID, "error", err)
		}
	}
	e.publish(ingest.TripEvent{Type: ingest.EventTripRated, TripID: s.trip.ID, PassengerID: passengerID, DriverID: s.trip.Driver.ID, Rating: stars})
	e.log.Info("trip rated", "trip_id", s.trip.ID, "rating", stars)
	return nil
}

// NewRide dismisses the completed trip and resets the session.
// TRIP_COMPLETED -> REQUESTING_RIDE.
func (e *Engine) NewRide(passengerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[passengerID]
	if !ok || s.state != models.StateTripCompleted {
		state := string(models.StateRequestingRide)
		if ok {
			state = string(s.state)
		}
		return e.reject(&InvalidTransitionError{Intent: "new_ride", State: state})
	}
	s.trip = nil
	s.state = models.StateRequestingRide
	e.notify(passengerID, dispatch.Event{Type: dispatch.EventStateChanged, State: string(s.state)})
	return nil
}

// SetDriverOnline toggles DRIVER_OFFLINE <-> DRIVER_IDLE.
func (e *Engine) SetDriverOnline(driverID string, online bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.store.Driver(driverID)
	if !ok {
		return e.reject(&UnknownReferenceError{Kind: "driver", ID: driverID})
	}
	if d.Online == online {
		return nil
	}
	d.Online = online
	if online {
		observability.DriversOnline.Inc()
	} else {
		observability.DriversOnline.Dec()
	}
	e.publish(ingest.TripEvent{Type: ingest.EventDriverPresence, DriverID: driverID, Online: online})
	e.log.Info("driver presence changed", "driver_id", driverID, "online", online)
	return nil
}

// SetVerification applies the admin decision on a pending driver:
// PENDING -> APPROVED or PENDING -> REJECTED.
func (e *Engine) SetVerification(driverID string, status models.VerificationStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.store.Driver(driverID)
	if !ok {
		return e.reject(&UnknownReferenceError{Kind: "driver", ID: driverID})
	}
	if status != models.VerificationApproved && status != models.VerificationRejected {
		return e.reject(&ValidationError{Field: "status", Reason: "must be APPROVED or REJECTED"})
	}
	if d.Verification != models.VerificationPending {
		return e.reject(&InvalidTransitionError{Intent: "set_verification", State: string(d.Verification)})
	}
	d.Verification = status
	e.publish(ingest.TripEvent{Type: ingest.EventVerificationChanged, DriverID: driverID})
	e.log.Info("driver verification updated", "driver_id", driverID, "status", string(status))
	return nil
}

func (e *Engine) reject(err error) error {
	label := "other"
	switch err.(type) {
	case *ValidationError:
		label = "validation"
	case *InvalidTransitionError:
		label = "invalid_transition"
	case *UnknownReferenceError:
		label = "unknown_reference"
	}
	observability.RejectedIntents.WithLabelValues(label).Inc()
	return err
}

func (e *Engine) publish(ev ingest.TripEvent) {
	if e.Events == nil {
		return
	}
	ev.At = e.sched.Now()
	if err := e.Events.Publish(ev); err != nil {
		e.log.Warn("event publish failed", "type", ev.Type, "error", err)
	}
}

func (e *Engine) notify(userID string, ev dispatch.Event) {
	if e.Notifier == nil {
		return
	}
	_ = e.Notifier.Notify(userID, ev) // best effort
}

func copyRequest(r *models.TripRequest) *models.TripRequest {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Offers = append([]models.Offer(nil), r.Offers...)
	return &cp
}

func copyTrip(t *models.OngoingTrip) *models.OngoingTrip {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Request = copyRequest(t.Request)
	return &cp
}

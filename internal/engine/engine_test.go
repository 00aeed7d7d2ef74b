package engine

import (
	"errors"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/sched"
	"github.com/example/ride-negotiation/internal/simulate"
	"github.com/example/ride-negotiation/internal/store"
)

func testRoster(st *store.Store) {
	st.AddPassenger(&models.Passenger{User: models.User{ID: "p1", Name: "Ana", Role: models.RolePassenger}})
	st.AddDriver(&models.Driver{
		User:         models.User{ID: "d1", Name: "Carlos", Role: models.RoleDriver},
		Rating:       4.9,
		Vehicle:      "Toyota Prius",
		Plate:        "ABC-123",
		Online:       true,
		Verification: models.VerificationApproved,
	})
	st.AddDriver(&models.Driver{
		User:         models.User{ID: "d2", Name: "Maria", Role: models.RoleDriver},
		Rating:       4.7,
		Vehicle:      "Honda Civic",
		Plate:        "XYZ-789",
		Online:       true,
		Verification: models.VerificationApproved,
	})
	st.AddDriver(&models.Driver{
		User:         models.User{ID: "d3", Name: "Luis", Role: models.RoleDriver},
		Online:       false,
		Verification: models.VerificationPending,
	})
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *store.Store, *sched.Fake) {
	t.Helper()
	st := store.New()
	testRoster(st)
	fake := sched.NewFake(time.Unix(1_700_000_000, 0))
	sim := simulate.New(simulate.Config{
		Variance: 0.10,
		MinPrice: 5.0,
		DelayMin: 1 * time.Second,
		DelayMax: 4 * time.Second,
	}, fake, rand.New(rand.NewSource(42)), slog.Default())
	return New(st, sim, fake, cfg, slog.Default()), st, fake
}

func submit(t *testing.T, e *Engine) *models.TripRequest {
	t.Helper()
	req, err := e.SubmitRequest("p1", SubmitInput{
		Pickup:       "123 Main St",
		Destination:  "456 Oak Ave",
		OfferedPrice: 15,
		ServiceType:  models.ServiceMobility,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return req
}

func TestSubmitRequestOpensExactlyOneRequest(t *testing.T) {
	e, st, _ := newTestEngine(t, Config{})
	req := submit(t, e)

	if len(req.Offers) != 0 {
		t.Fatalf("new request should have no offers, got %d", len(req.Offers))
	}
	snap, err := e.PassengerState("p1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != models.StateWaitingOffers {
		t.Fatalf("expected WAITING_FOR_OFFERS, got %s", snap.State)
	}
	if open := st.OpenRequests(); len(open) != 1 || open[0].ID != req.ID {
		t.Fatalf("expected exactly one open request %s, got %v", req.ID, open)
	}
}

func TestSubmitRequestValidation(t *testing.T) {
	e, st, _ := newTestEngine(t, Config{})

	cases := []struct {
		name string
		in   SubmitInput
	}{
		{"zero price", SubmitInput{Destination: "456 Oak Ave", OfferedPrice: 0}},
		{"negative price", SubmitInput{Destination: "456 Oak Ave", OfferedPrice: -3}},
		{"empty destination", SubmitInput{Destination: "  ", OfferedPrice: 15}},
		{"bad service type", SubmitInput{Destination: "456 Oak Ave", OfferedPrice: 15, ServiceType: "TELEPORT"}},
	}
	for _, tc := range cases {
		_, err := e.SubmitRequest("p1", tc.in)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}

	snap, _ := e.PassengerState("p1")
	if snap.State != models.StateRequestingRide {
		t.Fatalf("failed submissions must not change state, got %s", snap.State)
	}
	if len(st.OpenRequests()) != 0 {
		t.Fatal("failed submissions must not open requests")
	}

	_, err := e.SubmitRequest("ghost", SubmitInput{Destination: "456 Oak Ave", OfferedPrice: 15})
	var re *UnknownReferenceError
	if !errors.As(err, &re) {
		t.Fatalf("expected UnknownReferenceError for ghost passenger, got %v", err)
	}
}

func TestSimulatedOffersArriveSortedAndFlipToViewing(t *testing.T) {
	e, _, fake := newTestEngine(t, Config{ViewTrigger: TriggerFirstOffer})
	submit(t, e)

	fake.Advance(4 * time.Second)

	snap, _ := e.PassengerState("p1")
	if snap.State != models.StateViewingOffers {
		t.Fatalf("expected VIEWING_OFFERS after first offer, got %s", snap.State)
	}
	offers := snap.Request.Offers
	if len(offers) != 2 {
		t.Fatalf("expected one offer per eligible driver, got %d", len(offers))
	}
	for i, o := range offers {
		if o.Price <= 0 {
			t.Fatalf("offer price must be positive, got %f", o.Price)
		}
		if o.Price < 15*0.9-0.01 || o.Price > 15*1.1+0.01 {
			t.Fatalf("offer %f outside the documented +/-10%% band", o.Price)
		}
		if i > 0 && offers[i-1].Price > o.Price {
			t.Fatalf("offers not ascending: %v", offers)
		}
	}
}

func TestOffersResortedOnEachArrival(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	req := submit(t, e)

	// manual offers arrive out of price order
	if err := e.SubmitOffer("d2", req.ID, 16.20); err != nil {
		t.Fatal(err)
	}
	if err := e.SubmitOffer("d1", req.ID, 13.80); err != nil {
		t.Fatal(err)
	}
	snap, _ := e.PassengerState("p1")
	got := snap.Request.Offers
	if len(got) != 2 || got[0].Price != 13.80 || got[1].Price != 16.20 {
		t.Fatalf("expected [13.80 16.20], got %v", got)
	}
}

func TestEndToEndNegotiation(t *testing.T) {
	e, st, fake := newTestEngine(t, Config{TripDuration: 5 * time.Second})
	req := submit(t, e)

	if err := e.SubmitOffer("d2", req.ID, 16.20); err != nil {
		t.Fatal(err)
	}
	if err := e.SubmitOffer("d1", req.ID, 13.80); err != nil {
		t.Fatal(err)
	}
	snap, _ := e.PassengerState("p1")
	if snap.State != models.StateViewingOffers {
		t.Fatalf("expected VIEWING_OFFERS, got %s", snap.State)
	}

	trip, err := e.AcceptOffer("p1", "d1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if trip.FinalPrice != 13.80 {
		t.Fatalf("finalPrice must equal accepted offer price, got %f", trip.FinalPrice)
	}
	if trip.Driver.ID != "d1" {
		t.Fatalf("expected driver d1, got %s", trip.Driver.ID)
	}
	if len(st.OpenRequests()) != 0 {
		t.Fatal("accepted request must leave the open-requests collection")
	}
	if len(st.ActiveTrips()) != 1 {
		t.Fatal("expected exactly one active trip")
	}
	snap, _ = e.PassengerState("p1")
	if snap.State != models.StateTripInProgress {
		t.Fatalf("expected TRIP_IN_PROGRESS, got %s", snap.State)
	}

	fake.Advance(5 * time.Second)

	snap, _ = e.PassengerState("p1")
	if snap.State != models.StateTripCompleted {
		t.Fatalf("expected TRIP_COMPLETED after trip duration, got %s", snap.State)
	}
	if len(st.ActiveTrips()) != 0 {
		t.Fatal("completed trip must leave the active collection")
	}

	if err := e.RateTrip("p1", 5); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if err := e.NewRide("p1"); err != nil {
		t.Fatalf("new ride: %v", err)
	}
	snap, _ = e.PassengerState("p1")
	if snap.State != models.StateRequestingRide || snap.Trip != nil || snap.Request != nil {
		t.Fatalf("expected clean REQUESTING_RIDE session, got %+v", snap)
	}
}

func TestAcceptGuards(t *testing.T) {
	e, st, _ := newTestEngine(t, Config{})

	// accept before any request
	_, err := e.AcceptOffer("p1", "d1")
	var te *InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	req := submit(t, e)
	if err := e.SubmitOffer("d1", req.ID, 14); err != nil {
		t.Fatal(err)
	}

	// accept an offer not in the list
	_, err = e.AcceptOffer("p1", "d2")
	var re *UnknownReferenceError
	if !errors.As(err, &re) {
		t.Fatalf("expected UnknownReferenceError, got %v", err)
	}
	snap, _ := e.PassengerState("p1")
	if snap.State != models.StateViewingOffers {
		t.Fatalf("failed accept must be a no-op, got state %s", snap.State)
	}
	if len(st.OpenRequests()) != 1 {
		t.Fatal("failed accept must keep the request open")
	}
}

func TestCancelSuppressesPendingSimulatedOffers(t *testing.T) {
	e, st, fake := newTestEngine(t, Config{})
	submit(t, e)

	if err := e.CancelRequest("p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if n := fake.PendingCount(); n != 0 {
		t.Fatalf("cancel must stop all scheduled emissions, %d still pending", n)
	}

	// even if time passes, nothing may resurrect the dead request
	fake.Advance(10 * time.Second)

	snap, _ := e.PassengerState("p1")
	if snap.State != models.StateRequestingRide || snap.Request != nil {
		t.Fatalf("expected reset session, got %+v", snap)
	}
	if len(st.OpenRequests()) != 0 {
		t.Fatal("cancelled request must be removed")
	}

	// the session is reusable afterwards
	req := submit(t, e)
	if err := e.SubmitOffer("d1", req.ID, 14.50); err != nil {
		t.Fatalf("resubmission should accept offers: %v", err)
	}
}

func TestLateSimulatedOfferAfterAcceptIsDropped(t *testing.T) {
	e, _, fake := newTestEngine(t, Config{TripDuration: time.Minute})
	req := submit(t, e)

	if err := e.SubmitOffer("d1", req.ID, 13.80); err != nil {
		t.Fatal(err)
	}
	trip, err := e.AcceptOffer("p1", "d1")
	if err != nil {
		t.Fatal(err)
	}

	// the two simulated emissions scheduled at submit time must not fire
	fake.Advance(30 * time.Second)

	snap, _ := e.PassengerState("p1")
	if snap.State != models.StateTripInProgress {
		t.Fatalf("expected TRIP_IN_PROGRESS, got %s", snap.State)
	}
	if len(snap.Trip.Request.Offers) != 1 {
		t.Fatalf("offer list must be frozen at accept, got %v", snap.Trip.Request.Offers)
	}
	if snap.Trip.FinalPrice != trip.FinalPrice {
		t.Fatal("finalPrice must never be recomputed")
	}
}

func TestDriverOfferGuards(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	req := submit(t, e)

	// offline driver
	if err := e.SetDriverOnline("d1", false); err != nil {
		t.Fatalf("toggling a driver with no open offers must succeed: %v", err)
	}
	err := e.SubmitOffer("d1", req.ID, 14)
	var te *InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("offline driver offer must be rejected, got %v", err)
	}

	// unverified driver, even if online
	if err := e.SetDriverOnline("d3", true); err != nil {
		t.Fatal(err)
	}
	if err := e.SubmitOffer("d3", req.ID, 14); !errors.As(err, &te) {
		t.Fatalf("unapproved driver offer must be rejected, got %v", err)
	}

	// non-positive price
	err = e.SubmitOffer("d2", req.ID, 0)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for zero price, got %v", err)
	}

	// duplicate offer from one driver
	if err := e.SubmitOffer("d2", req.ID, 14); err != nil {
		t.Fatal(err)
	}
	if err := e.SubmitOffer("d2", req.ID, 13); !errors.As(err, &ve) {
		t.Fatalf("duplicate driver offer must be rejected, got %v", err)
	}

	// unknown request
	err = e.SubmitOffer("d2", "nope", 14)
	var re *UnknownReferenceError
	if !errors.As(err, &re) {
		t.Fatalf("expected UnknownReferenceError, got %v", err)
	}
}

func TestWindowTriggerFlipsWithoutOffers(t *testing.T) {
	e, st, fake := newTestEngine(t, Config{ViewTrigger: TriggerWindow, OfferWindow: 3 * time.Second})

	// park every driver so no offers can arrive
	for _, d := range st.Drivers() {
		if err := e.SetDriverOnline(d.ID, false); err != nil {
			t.Fatal(err)
		}
	}
	submit(t, e)

	fake.Advance(2 * time.Second)
	snap, _ := e.PassengerState("p1")
	if snap.State != models.StateWaitingOffers {
		t.Fatalf("window not elapsed yet, got %s", snap.State)
	}

	fake.Advance(1 * time.Second)
	snap, _ = e.PassengerState("p1")
	if snap.State != models.StateViewingOffers {
		t.Fatalf("expected VIEWING_OFFERS after window, got %s", snap.State)
	}
	if len(snap.Request.Offers) != 0 {
		t.Fatalf("expected empty offer list, got %v", snap.Request.Offers)
	}
}

func TestRatingGuards(t *testing.T) {
	e, _, fake := newTestEngine(t, Config{TripDuration: time.Second})
	req := submit(t, e)
	if err := e.SubmitOffer("d1", req.ID, 14); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AcceptOffer("p1", "d1"); err != nil {
		t.Fatal(err)
	}

	var te *InvalidTransitionError
	if err := e.RateTrip("p1", 5); !errors.As(err, &te) {
		t.Fatalf("rating an in-progress trip must fail, got %v", err)
	}

	fake.Advance(time.Second)

	var ve *ValidationError
	if err := e.RateTrip("p1", 0); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for 0 stars, got %v", err)
	}
	if err := e.RateTrip("p1", 6); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for 6 stars, got %v", err)
	}
	if err := e.RateTrip("p1", 4); err != nil {
		t.Fatalf("valid rating rejected: %v", err)
	}
}

func TestVerificationTransitions(t *testing.T) {
	e, st, _ := newTestEngine(t, Config{})

	var ve *ValidationError
	if err := e.SetVerification("d3", models.VerificationPending); !errors.As(err, &ve) {
		t.Fatalf("PENDING is not an admin decision, got %v", err)
	}

	if err := e.SetVerification("d3", models.VerificationApproved); err != nil {
		t.Fatalf("approve pending driver: %v", err)
	}
	d, _ := st.Driver("d3")
	if d.Verification != models.VerificationApproved {
		t.Fatalf("expected APPROVED, got %s", d.Verification)
	}

	var te *InvalidTransitionError
	if err := e.SetVerification("d3", models.VerificationRejected); !errors.As(err, &te) {
		t.Fatalf("verification decisions apply to PENDING drivers only, got %v", err)
	}

	var re *UnknownReferenceError
	if err := e.SetVerification("ghost", models.VerificationApproved); !errors.As(err, &re) {
		t.Fatalf("expected UnknownReferenceError, got %v", err)
	}
}

func TestSecondSubmitWhileActiveRejected(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	submit(t, e)

	_, err := e.SubmitRequest("p1", SubmitInput{Destination: "789 Pine Rd", OfferedPrice: 20})
	var te *InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("a session holds at most one active request, got %v", err)
	}
}
